package session

import (
	"fmt"
	"strconv"
	"strings"
)

// Индексы полей в имени динамического пэда rtpbin
// (recv_rtp_src_<session>_<ssrc>_<pt>)
const (
	padFieldSession = 3
	padFieldSSRC    = 4
	padFieldPT      = 5
	padFieldCount   = 6
)

// PadID разобранное имя динамического пэда сессии
type PadID struct {
	Name    string
	Session uint
	SSRC    uint32
	PT      uint
}

func (id PadID) String() string {
	return fmt.Sprintf("session=%d ssrc=%d pt=%d", id.Session, id.SSRC, id.PT)
}

// ParsePadName разбирает имя пэда, разделенное "_". Payload type
// находится в поле с индексом 5; нечисловые session и ssrc дают 0.
func ParsePadName(name string) (PadID, error) {
	fields := strings.Split(name, "_")
	if len(fields) < padFieldCount {
		return PadID{}, &MalformedPadNameError{
			Name:   name,
			Reason: fmt.Sprintf("expected at least %d fields, got %d", padFieldCount, len(fields)),
		}
	}

	pt, err := strconv.ParseUint(fields[padFieldPT], 10, 32)
	if err != nil {
		return PadID{}, &MalformedPadNameError{Name: name, Reason: "bad payload type " + strconv.Quote(fields[padFieldPT])}
	}
	// session и ssrc только для диагностики, маршрут решает PT
	sess, _ := strconv.ParseUint(fields[padFieldSession], 10, 32)
	ssrc, _ := strconv.ParseUint(fields[padFieldSSRC], 10, 32)

	return PadID{
		Name:    name,
		Session: uint(sess),
		SSRC:    uint32(ssrc),
		PT:      uint(pt),
	}, nil
}
