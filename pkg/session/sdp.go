package session

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pion/sdp/v3"
)

// Направление потока в SDP
const (
	DirectionSendOnly = "sendonly"
	DirectionRecvOnly = "recvonly"
)

// DescribeParams параметры SDP описания потока
type DescribeParams struct {
	// Host адрес, на который приходит (recvonly) или уходит (sendonly) RTP
	Host string
	Port int
	// SessionName s= строка
	SessionName string
	Direction   string
	Payloads    *PayloadMap
	// Ptime длительность Opus кадра (0 не добавляет a=ptime)
	Ptime time.Duration
	// Now используется для o= session id; нулевое значение означает time.Now
	Now time.Time
}

// Describe строит SDP описание payload таблицы, достаточное
// сторонним плеерам для приема потока
func Describe(p DescribeParams) (*sdp.SessionDescription, error) {
	if p.Port < 1 || p.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidParams, p.Port)
	}
	ip := net.ParseIP(p.Host)
	if ip == nil {
		return nil, fmt.Errorf("%w: host %q is not an IP address", ErrInvalidParams, p.Host)
	}
	addrType := "IP4"
	if ip.To4() == nil {
		addrType = "IP6"
	}
	payloads := p.Payloads
	if payloads == nil {
		payloads = DefaultPayloadMap()
	}
	name := p.SessionName
	if name == "" {
		name = "opus_fec"
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(now.Unix()),
			SessionVersion: uint64(now.Unix()),
			NetworkType:    "IN",
			AddressType:    addrType,
			UnicastAddress: p.Host,
		},
		SessionName: sdp.SessionName(name),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addrType,
			Address:     &sdp.Address{Address: p.Host},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	media := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  "audio",
			Port:   sdp.RangedPort{Value: p.Port},
			Protos: []string{"RTP", "AVP"},
		},
	}
	for _, pl := range payloads.Payloads() {
		media.MediaName.Formats = append(media.MediaName.Formats, strconv.FormatUint(uint64(pl.PT), 10))
		media.Attributes = append(media.Attributes, sdp.NewAttribute("rtpmap", pl.RTPMap()))
	}
	if p.Ptime > 0 {
		media.Attributes = append(media.Attributes,
			sdp.NewAttribute("ptime", strconv.FormatInt(p.Ptime.Milliseconds(), 10)))
	}
	switch p.Direction {
	case DirectionSendOnly, DirectionRecvOnly:
		media.Attributes = append(media.Attributes, sdp.NewPropertyAttribute(p.Direction))
	case "":
	default:
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidParams, p.Direction)
	}

	desc.MediaDescriptions = []*sdp.MediaDescription{media}
	return desc, nil
}
