package roles

import (
	"context"
	"strconv"

	"github.com/arzzra/opus_fec/pkg/logging"
	"github.com/arzzra/opus_fec/pkg/pipeline"
	"github.com/arzzra/opus_fec/pkg/session"
)

// EncoderElementName имя opusenc в графе передатчика
const EncoderElementName = "opusenc"

// TransmitterGraph собранный граф передатчика
type TransmitterGraph struct {
	Pipeline pipeline.Pipeline
	Session  pipeline.Session
	FEC      *session.FECNegotiator
	Encoder  pipeline.Element
	Source   pipeline.Element
}

// BuildTransmitter собирает
//
//	src -> audioconvert -> opusenc -> rtpopuspay -> rtpbin -> udpsink
//
// FEC кодер подключает сама сессия по сигналу request-fec-encoder.
func BuildTransmitter(f pipeline.Factory, p pipeline.Pipeline, cfg TransmitterConfig, logger logging.StructuredLogger) (*TransmitterGraph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	mk := newMaker(f)
	src := mk.make(cfg.Source.Factory, "")
	convert := mk.make("audioconvert", "")
	opusenc := mk.make("opusenc", EncoderElementName)
	pay := mk.make("rtpopuspay", "")
	rtpbin := mk.make("rtpbin", SessionElementName)
	udpsink := mk.make("udpsink", "")
	if mk.err != nil {
		return nil, mk.err
	}

	sess, err := asSession(rtpbin)
	if err != nil {
		return nil, err
	}

	if err := p.Add(src, convert, opusenc, pay, rtpbin, udpsink); err != nil {
		return nil, err
	}
	if err := pipeline.LinkMany(convert, opusenc, pay); err != nil {
		return nil, err
	}

	fec, err := session.NewFECNegotiator(f, sess, cfg.FEC, logger)
	if err != nil {
		return nil, err
	}
	if err := fec.RegisterEncoder(); err != nil {
		return nil, err
	}

	if err := linkStaticToRequest(pay, "src", rtpbin, "send_rtp_sink_0"); err != nil {
		return nil, err
	}
	// send_rtp_src_0 появляется после запроса send_rtp_sink_0
	if err := linkStatic(rtpbin, "send_rtp_src_0", udpsink, "sink"); err != nil {
		return nil, err
	}
	if err := pipeline.LinkMany(src, convert); err != nil {
		return nil, err
	}

	if cfg.Source.TestSignal {
		if err := pipeline.SetProperties(src,
			pipeline.Property{Name: "wave", Value: pipeline.EnumValue(strconv.Itoa(cfg.Source.Wave))},
			pipeline.Property{Name: "freq", Value: cfg.Source.Freq},
		); err != nil {
			return nil, err
		}
	}

	encProps := []pipeline.Property{{Name: "bitrate", Value: cfg.Bitrate}}
	if cfg.FrameSize != 0 {
		encProps = append(encProps, pipeline.Property{Name: "frame-size", Value: pipeline.EnumValue(strconv.Itoa(int(cfg.FrameSize)))})
	}
	if err := pipeline.SetProperties(opusenc, encProps...); err != nil {
		return nil, err
	}

	if err := pipeline.SetProperties(udpsink,
		pipeline.Property{Name: "host", Value: cfg.Address},
		pipeline.Property{Name: "sync", Value: true},
		pipeline.Property{Name: "port", Value: cfg.Port},
	); err != nil {
		return nil, err
	}

	fields := []logging.Field{
		logging.String("address", cfg.Address),
		logging.Int("port", cfg.Port),
		logging.Int("bitrate", cfg.Bitrate),
		logging.Uint("percentage", cfg.FEC.Percentage),
		logging.Uint("percentage_important", cfg.FEC.PercentageImportant),
		logging.String("source", cfg.Source.Factory),
	}
	if cfg.FrameSize != 0 {
		fields = append(fields, logging.String("frame_size", cfg.FrameSize.String()))
	}
	logger.Info(context.Background(), "transmitter graph assembled", fields...)

	return &TransmitterGraph{
		Pipeline: p,
		Session:  sess,
		FEC:      fec,
		Encoder:  opusenc,
		Source:   src,
	}, nil
}
