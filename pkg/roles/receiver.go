package roles

import (
	"context"
	"fmt"

	"github.com/arzzra/opus_fec/pkg/logging"
	"github.com/arzzra/opus_fec/pkg/pipeline"
	"github.com/arzzra/opus_fec/pkg/session"
)

// Имена элементов, по которым их находит опрос статистики
const (
	SessionElementName = "rtpbin"
	DepayElementName   = "depay"
)

// rtpRecvCaps caps на выходе udpsrc приемника
const rtpRecvCaps = pipeline.Caps("application/x-rtp, clock-rate=48000")

// ReceiverGraph собранный граф приемника
type ReceiverGraph struct {
	Pipeline pipeline.Pipeline
	Session  pipeline.Session
	Router   *session.Router
	FEC      *session.FECNegotiator
	Payloads *session.PayloadMap
	Depay    pipeline.Element
}

// BuildReceiver собирает
//
//	udpsrc -> rtpbin ~> depay -> queue -> opusdec -> queue -> audioconvert -> sink
//
// где ~> динамическая связь, которую устанавливает маршрутизатор.
func BuildReceiver(f pipeline.Factory, p pipeline.Pipeline, cfg ReceiverConfig, logger logging.StructuredLogger) (*ReceiverGraph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	mk := newMaker(f)
	udpsrc := mk.make("udpsrc", "")
	rtpbin := mk.make("rtpbin", SessionElementName)
	depay := mk.make("rtpopusdepay", DepayElementName)
	queue1 := mk.make("queue", "")
	opusdec := mk.make("opusdec", "")
	queue2 := mk.make("queue", "")
	convert := mk.make("audioconvert", "")
	sink := mk.make(cfg.SinkFactory, "")
	if mk.err != nil {
		return nil, mk.err
	}

	sess, err := asSession(rtpbin)
	if err != nil {
		return nil, err
	}

	if err := p.Add(udpsrc, rtpbin, depay, queue1, opusdec, queue2, convert, sink); err != nil {
		return nil, err
	}
	if err := pipeline.LinkMany(depay, queue1, opusdec, queue2, convert, sink); err != nil {
		return nil, err
	}

	payloads := session.DefaultPayloadMap()
	window := session.StorageWindow{SizeTime: cfg.SizeTime, Logger: logger.WithComponent("storage")}
	router := session.NewRouter(sess, logger).Route(session.OpusPayloadType, depay)
	fec, err := session.NewFECNegotiator(f, sess, session.DefaultFECParams(), logger)
	if err != nil {
		return nil, err
	}

	for _, register := range []func() error{
		func() error { return window.Register(sess) },
		func() error { return payloads.Register(sess) },
		func() error { return router.Register(sess) },
		fec.RegisterDecoder,
	} {
		if err := register(); err != nil {
			return nil, err
		}
	}

	if err := linkStaticToRequest(udpsrc, "src", rtpbin, "recv_rtp_sink_0"); err != nil {
		return nil, err
	}

	if err := pipeline.SetProperties(udpsrc,
		pipeline.Property{Name: "port", Value: cfg.Port},
		pipeline.Property{Name: "caps", Value: rtpRecvCaps},
	); err != nil {
		return nil, err
	}
	if err := pipeline.SetProperties(rtpbin,
		pipeline.Property{Name: "do-lost", Value: true},
		pipeline.Property{Name: "latency", Value: cfg.Latency},
	); err != nil {
		return nil, err
	}
	if err := opusdec.SetProperty("plc", true); err != nil {
		return nil, pipeline.NewPropertyError(opusdec.Name(), "plc", err)
	}
	if cfg.BufferTime > 0 {
		if err := sink.SetProperty("buffer-time", cfg.BufferTime); err != nil {
			return nil, pipeline.NewPropertyError(sink.Name(), "buffer-time", err)
		}
	}

	logger.Info(context.Background(), "receiver graph assembled",
		logging.Int("port", cfg.Port),
		logging.Uint("latency_ms", cfg.Latency),
		logging.Duration("size_time", cfg.SizeTime),
		logging.String("sink", cfg.SinkFactory))

	return &ReceiverGraph{
		Pipeline: p,
		Session:  sess,
		Router:   router,
		FEC:      fec,
		Payloads: payloads,
		Depay:    depay,
	}, nil
}

// maker создает элементы, запоминая первую ошибку
type maker struct {
	f   pipeline.Factory
	err error
}

func newMaker(f pipeline.Factory) *maker { return &maker{f: f} }

func (m *maker) make(factory, name string) pipeline.Element {
	if m.err != nil {
		return nil
	}
	el, err := pipeline.MakeElement(m.f, factory, name)
	if err != nil {
		m.err = err
		return nil
	}
	return el
}

func asSession(el pipeline.Element) (pipeline.Session, error) {
	sess, ok := el.(pipeline.Session)
	if !ok {
		return nil, fmt.Errorf("element %s does not expose RTP session signals", el.Name())
	}
	return sess, nil
}

func linkStaticToRequest(src pipeline.Element, srcPad string, dst pipeline.Element, dstPad string) error {
	out, err := pipeline.StaticPad(src, srcPad)
	if err != nil {
		return err
	}
	in, err := pipeline.RequestPad(dst, dstPad)
	if err != nil {
		return err
	}
	return pipeline.LinkPads(out, in)
}

func linkStatic(src pipeline.Element, srcPad string, dst pipeline.Element, dstPad string) error {
	out, err := pipeline.StaticPad(src, srcPad)
	if err != nil {
		return err
	}
	in, err := pipeline.StaticPad(dst, dstPad)
	if err != nil {
		return err
	}
	return pipeline.LinkPads(out, in)
}
