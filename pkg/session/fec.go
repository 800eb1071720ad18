package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/arzzra/opus_fec/pkg/logging"
	"github.com/arzzra/opus_fec/pkg/pipeline"
)

const (
	// OpusPayloadType динамический payload type основного Opus потока
	OpusPayloadType uint = 96
	// FECPayloadType payload type ULPFEC потока защиты
	FECPayloadType uint = 100

	// ClockRate частота RTP часов для обоих потоков
	ClockRate = 48000
)

// Тексты отказов, публикуемых на шину
const (
	FailedFECEncoderText = "Failed to make FEC encoder"
	FailedFECDecoderText = "Failed to make FEC decoder"
)

// Фабрики и имена FEC элементов
const (
	fecEncoderFactory = "rtpulpfecenc"
	fecDecoderFactory = "rtpulpfecdec"
)

// FECEncoderName имя FEC кодера для сессии
func FECEncoderName(session uint) string { return fmt.Sprintf("fecenc%d", session) }

// FECDecoderName имя FEC декодера для сессии
func FECDecoderName(session uint) string { return fmt.Sprintf("fecdec%d", session) }

// FECParams параметры защиты, фиксируются при старте
type FECParams struct {
	// Percentage доля FEC пакетов к медиа пакетам, %
	Percentage uint
	// PercentageImportant доля для пакетов, помеченных важными, %
	PercentageImportant uint
	// MultiPacket защищать несколько пакетов одним FEC пакетом
	MultiPacket bool
}

// DefaultFECParams параметры по умолчанию
func DefaultFECParams() FECParams {
	return FECParams{MultiPacket: true}
}

// Validate проверяет диапазоны процентов
func (p FECParams) Validate() error {
	if p.Percentage > 100 {
		return fmt.Errorf("%w: percentage %d > 100", ErrInvalidParams, p.Percentage)
	}
	if p.PercentageImportant > 100 {
		return fmt.Errorf("%w: percentage-important %d > 100", ErrInvalidParams, p.PercentageImportant)
	}
	return nil
}

// FECCounters счетчики запросов FEC элементов
type FECCounters struct {
	EncodersServed uint64
	EncodersFailed uint64
	DecodersServed uint64
	DecodersFailed uint64
}

// FECNegotiator отвечает на запросы сессии о FEC кодере и декодере
type FECNegotiator struct {
	factory pipeline.Factory
	session pipeline.Session
	params  FECParams
	logger  logging.StructuredLogger

	encServed atomic.Uint64
	encFailed atomic.Uint64
	decServed atomic.Uint64
	decFailed atomic.Uint64
}

// NewFECNegotiator создает negotiator. params копируются и далее не меняются.
func NewFECNegotiator(factory pipeline.Factory, s pipeline.Session, params FECParams, logger logging.StructuredLogger) (*FECNegotiator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &FECNegotiator{
		factory: factory,
		session: s,
		params:  params,
		logger:  logger.WithComponent("fec"),
	}, nil
}

// Params возвращает зафиксированные параметры
func (n *FECNegotiator) Params() FECParams { return n.params }

// RegisterEncoder подписывается на request-fec-encoder
func (n *FECNegotiator) RegisterEncoder() error {
	return n.session.OnRequestFECEncoder(n.onEncoderRequest)
}

// RegisterDecoder подписывается на request-fec-decoder
func (n *FECNegotiator) RegisterDecoder() error {
	return n.session.OnRequestFECDecoder(n.onDecoderRequest)
}

func (n *FECNegotiator) onEncoderRequest(session uint) pipeline.Element {
	enc, err := n.MakeEncoder(session)
	if err != nil {
		n.logger.LogError(context.Background(), err, "FEC encoder request failed", logging.Uint("session", session))
		n.session.ReportFailure(FailedFECEncoderText, err.Error())
		return nil
	}
	return enc
}

func (n *FECNegotiator) onDecoderRequest(session uint) pipeline.Element {
	dec, err := n.MakeDecoder(session)
	if err != nil {
		n.logger.LogError(context.Background(), err, "FEC decoder request failed", logging.Uint("session", session))
		n.session.ReportFailure(FailedFECDecoderText, err.Error())
		return nil
	}
	return dec
}

// MakeEncoder строит rtpulpfecenc с параметрами защиты
func (n *FECNegotiator) MakeEncoder(session uint) (pipeline.Element, error) {
	enc, err := n.makeEncoder(session)
	if err != nil {
		n.encFailed.Add(1)
		return nil, &FECError{Session: session, Role: "encoder", Wrapped: err}
	}
	n.encServed.Add(1)
	n.logger.Info(context.Background(), "FEC encoder created",
		logging.Uint("session", session),
		logging.Uint("percentage", n.params.Percentage),
		logging.Uint("percentage_important", n.params.PercentageImportant),
		logging.Bool("multipacket", n.params.MultiPacket))
	return enc, nil
}

func (n *FECNegotiator) makeEncoder(session uint) (pipeline.Element, error) {
	enc, err := pipeline.MakeElement(n.factory, fecEncoderFactory, FECEncoderName(session))
	if err != nil {
		return nil, err
	}
	if err := pipeline.SetProperties(enc,
		pipeline.Property{Name: "pt", Value: FECPayloadType},
		pipeline.Property{Name: "multipacket", Value: n.params.MultiPacket},
		pipeline.Property{Name: "percentage", Value: n.params.Percentage},
		pipeline.Property{Name: "percentage-important", Value: n.params.PercentageImportant},
	); err != nil {
		return nil, err
	}
	return enc, nil
}

// MakeDecoder строит rtpulpfecdec, привязанный к хранилищу пакетов сессии.
// Элемент возвращается только полностью настроенным.
func (n *FECNegotiator) MakeDecoder(session uint) (pipeline.Element, error) {
	dec, err := n.makeDecoder(session)
	if err != nil {
		n.decFailed.Add(1)
		return nil, &FECError{Session: session, Role: "decoder", Wrapped: err}
	}
	n.decServed.Add(1)
	n.logger.Info(context.Background(), "FEC decoder created",
		logging.Uint("session", session),
		logging.String("element", dec.Name()))
	return dec, nil
}

func (n *FECNegotiator) makeDecoder(session uint) (pipeline.Element, error) {
	// хранилище проверяется до создания элемента: без него декодер не нужен
	storage, ok := n.session.InternalStorage(session)
	if !ok || storage == nil {
		return nil, &StorageUnavailableError{Session: session}
	}
	dec, err := pipeline.MakeElement(n.factory, fecDecoderFactory, FECDecoderName(session))
	if err != nil {
		return nil, err
	}
	if err := pipeline.SetProperties(dec,
		pipeline.Property{Name: "storage", Value: storage},
		pipeline.Property{Name: "pt", Value: FECPayloadType},
	); err != nil {
		return nil, err
	}
	return dec, nil
}

// Counters возвращает снимок счетчиков
func (n *FECNegotiator) Counters() FECCounters {
	return FECCounters{
		EncodersServed: n.encServed.Load(),
		EncodersFailed: n.encFailed.Load(),
		DecodersServed: n.decServed.Load(),
		DecodersFailed: n.decFailed.Load(),
	}
}
