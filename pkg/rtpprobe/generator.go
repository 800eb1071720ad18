package rtpprobe

import (
	"context"
	"time"

	"github.com/pion/rtp"
)

// Параметры синтетического Opus потока
const (
	OpusPayloadType = 96
	opusClockRate   = 48000
	// DefaultPtime длительность пакета по умолчанию
	DefaultPtime = 20 * time.Millisecond
	// DefaultPayloadSize размер полезной нагрузки, близкий к Opus 64 кбит/с на 20 мс
	DefaultPayloadSize = 160
)

// Generator выдает RTP пакеты с равномерно растущими номером и временной меткой.
// Полезная нагрузка не является валидным Opus кадром: декодер отбросит ее,
// но jitter buffer и FEC увидят корректную последовательность.
type Generator struct {
	SSRC        uint32
	PayloadType uint8
	Ptime       time.Duration
	PayloadSize int

	seq     uint16
	ts      uint32
	started bool
}

// NewGenerator генератор PT 96 с параметрами по умолчанию
func NewGenerator(ssrc uint32, startSeq uint16) *Generator {
	return &Generator{
		SSRC:        ssrc,
		PayloadType: OpusPayloadType,
		Ptime:       DefaultPtime,
		PayloadSize: DefaultPayloadSize,
		seq:         startSeq,
	}
}

// Next следующий пакет последовательности
func (g *Generator) Next() *rtp.Packet {
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         !g.started,
			PayloadType:    g.PayloadType,
			SequenceNumber: g.seq,
			Timestamp:      g.ts,
			SSRC:           g.SSRC,
		},
		Payload: make([]byte, g.PayloadSize),
	}
	for i := range p.Payload {
		p.Payload[i] = byte(g.seq) + byte(i)
	}
	g.started = true
	g.seq++
	g.ts += uint32(g.Ptime.Seconds() * opusClockRate)
	return p
}

// Run отправляет count пакетов (0 без ограничения) с интервалом Ptime.
// Возвращает количество отправленных пакетов.
func (g *Generator) Run(ctx context.Context, s *Sender, count int) (int, error) {
	ticker := time.NewTicker(g.Ptime)
	defer ticker.Stop()

	sent := 0
	for count == 0 || sent < count {
		if err := s.Send(g.Next()); err != nil {
			return sent, err
		}
		sent++
		select {
		case <-ctx.Done():
			return sent, nil
		case <-ticker.C:
		}
	}
	return sent, nil
}
