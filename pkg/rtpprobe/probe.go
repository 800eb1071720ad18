package rtpprobe

import (
	"context"
	"errors"
	"time"

	"github.com/arzzra/opus_fec/pkg/logging"
)

// Probe читает пакеты слушателя в счетчик
type Probe struct {
	listener *Listener
	counter  *Counter
	logger   logging.StructuredLogger
}

// NewProbe создает пробу поверх слушателя
func NewProbe(l *Listener, logger logging.StructuredLogger) *Probe {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Probe{
		listener: l,
		counter:  NewCounter(),
		logger:   logger.WithComponent("rtpprobe"),
	}
}

// Counter счетчики пробы
func (p *Probe) Counter() *Counter { return p.counter }

// Run принимает пакеты до отмены ctx или закрытия слушателя
func (p *Probe) Run(ctx context.Context) error {
	p.logger.Info(ctx, "listening", logging.String("addr", p.listener.LocalAddr().String()))
	for {
		packet, from, err := p.listener.Receive(ctx)
		if err != nil {
			var invalid *InvalidPacketError
			switch {
			case errors.As(err, &invalid):
				p.counter.AddInvalid()
				p.logger.Debug(ctx, "dropped datagram", logging.Err(err))
				continue
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrClosed):
				return nil
			default:
				return err
			}
		}

		st := p.counter.Add(packet, packet.MarshalSize(), time.Now())
		if st.Packets == 1 {
			p.logger.Info(ctx, "new stream",
				logging.Uint("pt", uint(st.PT)),
				logging.Int64("ssrc", int64(st.SSRC)),
				logging.String("from", from.String()))
		}
	}
}

// Report периодически пишет счетчики в лог до отмены ctx
func (p *Probe) Report(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.log(ctx)
		}
	}
}

func (p *Probe) log(ctx context.Context) {
	for _, st := range p.counter.Snapshot() {
		p.logger.Info(ctx, "stream",
			logging.Uint("pt", uint(st.PT)),
			logging.Int64("ssrc", int64(st.SSRC)),
			logging.Any("packets", st.Packets),
			logging.Int64("lost", st.Lost),
			logging.Any("reordered", st.Reordered))
	}
}
