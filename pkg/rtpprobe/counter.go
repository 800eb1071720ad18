package rtpprobe

import (
	"sort"
	"sync"
	"time"

	"github.com/pion/rtp"
)

// StreamKey поток определяется парой payload type и SSRC
type StreamKey struct {
	PT   uint8
	SSRC uint32
}

// StreamStats счетчики одного потока
type StreamStats struct {
	StreamKey

	Packets uint64
	Bytes   uint64
	// Lost ожидаемое количество пакетов минус полученное (RFC 3550 A.3).
	// Может быть отрицательным при дубликатах.
	Lost int64
	// Reordered пакеты с номером меньше уже виденного максимума
	Reordered uint64

	FirstSeq   uint16
	HighestSeq uint16
	FirstAt    time.Time
	LastAt     time.Time
}

// Expected сколько пакетов должно было прийти по номерам последовательности
func (s StreamStats) Expected() int64 {
	return int64(s.Packets) + s.Lost
}

type streamState struct {
	stats StreamStats
	// base и maxExt расширенные (с учетом переполнения) номера
	base   int64
	maxExt int64
}

// Counter считает пакеты по потокам. Безопасен для конкурентного использования.
type Counter struct {
	mu      sync.Mutex
	streams map[StreamKey]*streamState
	invalid uint64
}

// NewCounter создает пустой счетчик
func NewCounter() *Counter {
	return &Counter{streams: make(map[StreamKey]*streamState)}
}

// Add учитывает пакет размером size байт, полученный в at
func (c *Counter) Add(p *rtp.Packet, size int, at time.Time) StreamStats {
	key := StreamKey{PT: p.PayloadType, SSRC: p.SSRC}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.streams[key]
	if !ok {
		st = &streamState{
			stats: StreamStats{StreamKey: key, FirstSeq: p.SequenceNumber, FirstAt: at},
			base:  int64(p.SequenceNumber),
		}
		st.maxExt = st.base
		st.stats.HighestSeq = p.SequenceNumber
		c.streams[key] = st
	} else {
		delta := int64(int16(p.SequenceNumber - uint16(st.maxExt)))
		ext := st.maxExt + delta
		if ext > st.maxExt {
			st.maxExt = ext
			st.stats.HighestSeq = p.SequenceNumber
		} else {
			st.stats.Reordered++
		}
	}

	st.stats.Packets++
	st.stats.Bytes += uint64(size)
	st.stats.LastAt = at
	expected := st.maxExt - st.base + 1
	st.stats.Lost = expected - int64(st.stats.Packets)
	return st.stats
}

// AddInvalid учитывает датаграмму, не разобранную как RTP
func (c *Counter) AddInvalid() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalid++
}

// Invalid количество отброшенных датаграмм
func (c *Counter) Invalid() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalid
}

// Snapshot копия счетчиков, отсортированная по PT и SSRC
func (c *Counter) Snapshot() []StreamStats {
	c.mu.Lock()
	out := make([]StreamStats, 0, len(c.streams))
	for _, st := range c.streams {
		out = append(out, st.stats)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PT != out[j].PT {
			return out[i].PT < out[j].PT
		}
		return out[i].SSRC < out[j].SSRC
	})
	return out
}

// HasPT получен ли хотя бы один пакет с payload type pt
func (c *Counter) HasPT(pt uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.streams {
		if key.PT == pt {
			return true
		}
	}
	return false
}

// Packets общее количество пакетов с payload type pt
func (c *Counter) Packets(pt uint8) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n uint64
	for key, st := range c.streams {
		if key.PT == pt {
			n += st.stats.Packets
		}
	}
	return n
}
