package pipelinetest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/arzzra/opus_fec/pkg/pipeline"
)

// ErrNilHandler попытка зарегистрировать пустой обработчик
var ErrNilHandler = errors.New("обработчик не задан")

// Session in-memory rtpbin. Сигналы запускаются тестом вручную
// через методы Emit*/Request*.
type Session struct {
	*Element

	hmu sync.Mutex

	padAdded   []pipeline.PadHandler
	ptMap      []pipeline.PTMapHandler
	fecEncoder []pipeline.FECHandler
	fecDecoder []pipeline.FECHandler
	newStorage []pipeline.StorageHandler

	connectErr map[string]error
	storages   map[uint]interface{}
}

// NewSession создает фейковый rtpbin
func NewSession(name string) *Session {
	return &Session{
		Element:    NewElement("rtpbin", name),
		connectErr: make(map[string]error),
		storages:   make(map[uint]interface{}),
	}
}

// RequestPad поддерживает шаблоны recv_rtp_sink_%u и send_rtp_sink_%u.
// Запрос send_rtp_sink_N создает статический send_rtp_src_N.
func (s *Session) RequestPad(name string) (pipeline.Pad, bool) {
	if pad, ok := s.Element.StaticPad(name); ok {
		return pad, true
	}
	switch {
	case hasIndexSuffix(name, "recv_rtp_sink_"), hasIndexSuffix(name, "recv_rtcp_sink_"):
		return s.AddStaticPad(name, pipeline.PadSink), true
	case hasIndexSuffix(name, "send_rtp_sink_"):
		idx := strings.TrimPrefix(name, "send_rtp_sink_")
		s.AddStaticPad("send_rtp_src_"+idx, pipeline.PadSrc)
		return s.AddStaticPad(name, pipeline.PadSink), true
	case hasIndexSuffix(name, "send_rtcp_src_"):
		return s.AddStaticPad(name, pipeline.PadSrc), true
	}
	return nil, false
}

func hasIndexSuffix(name, prefix string) bool {
	if !strings.HasPrefix(name, prefix) {
		return false
	}
	_, err := strconv.ParseUint(strings.TrimPrefix(name, prefix), 10, 32)
	return err == nil
}

// FailConnect заставляет регистрацию обработчика сигнала вернуть err
func (s *Session) FailConnect(signal string, err error) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.connectErr[signal] = err
}

func (s *Session) connect(signal string, isNil bool, add func()) error {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	if err := s.connectErr[signal]; err != nil {
		return err
	}
	if isNil {
		return fmt.Errorf("%s: %w", signal, ErrNilHandler)
	}
	add()
	return nil
}

func (s *Session) OnPadAdded(h pipeline.PadHandler) error {
	return s.connect("pad-added", h == nil, func() { s.padAdded = append(s.padAdded, h) })
}

func (s *Session) OnRequestPTMap(h pipeline.PTMapHandler) error {
	return s.connect("request-pt-map", h == nil, func() { s.ptMap = append(s.ptMap, h) })
}

func (s *Session) OnRequestFECEncoder(h pipeline.FECHandler) error {
	return s.connect("request-fec-encoder", h == nil, func() { s.fecEncoder = append(s.fecEncoder, h) })
}

func (s *Session) OnRequestFECDecoder(h pipeline.FECHandler) error {
	return s.connect("request-fec-decoder", h == nil, func() { s.fecDecoder = append(s.fecDecoder, h) })
}

func (s *Session) OnNewStorage(h pipeline.StorageHandler) error {
	return s.connect("new-storage", h == nil, func() { s.newStorage = append(s.newStorage, h) })
}

// SetInternalStorage задает ответ get-internal-storage для сессии
func (s *Session) SetInternalStorage(session uint, storage interface{}) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	if storage == nil {
		delete(s.storages, session)
		return
	}
	s.storages[session] = storage
}

func (s *Session) InternalStorage(session uint) (interface{}, bool) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	st, ok := s.storages[session]
	return st, ok
}

// AddDynamicPad создает src пэд на сессии и запускает pad-added
func (s *Session) AddDynamicPad(name string) *Pad {
	pad := s.AddStaticPad(name, pipeline.PadSrc)
	s.EmitPadAdded(pad)
	return pad
}

// EmitPadAdded вызывает все обработчики pad-added
func (s *Session) EmitPadAdded(pad pipeline.Pad) {
	s.hmu.Lock()
	handlers := append([]pipeline.PadHandler(nil), s.padAdded...)
	s.hmu.Unlock()
	for _, h := range handlers {
		h(pad)
	}
}

// RequestPTMap запускает request-pt-map; отвечает первый обработчик
func (s *Session) RequestPTMap(session, pt uint) (string, bool) {
	s.hmu.Lock()
	handlers := append([]pipeline.PTMapHandler(nil), s.ptMap...)
	s.hmu.Unlock()
	if len(handlers) == 0 {
		return "", false
	}
	return handlers[0](session, pt)
}

// RequestFECEncoder запускает request-fec-encoder
func (s *Session) RequestFECEncoder(session uint) pipeline.Element {
	s.hmu.Lock()
	handlers := append([]pipeline.FECHandler(nil), s.fecEncoder...)
	s.hmu.Unlock()
	if len(handlers) == 0 {
		return nil
	}
	return handlers[0](session)
}

// RequestFECDecoder запускает request-fec-decoder
func (s *Session) RequestFECDecoder(session uint) pipeline.Element {
	s.hmu.Lock()
	handlers := append([]pipeline.FECHandler(nil), s.fecDecoder...)
	s.hmu.Unlock()
	if len(handlers) == 0 {
		return nil
	}
	return handlers[0](session)
}

// EmitNewStorage вызывает все обработчики new-storage
func (s *Session) EmitNewStorage(storage pipeline.Element, session uint) {
	s.hmu.Lock()
	handlers := append([]pipeline.StorageHandler(nil), s.newStorage...)
	s.hmu.Unlock()
	for _, h := range handlers {
		h(storage, session)
	}
}

// HandlerCount количество обработчиков сигнала
func (s *Session) HandlerCount(signal string) int {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	switch signal {
	case "pad-added":
		return len(s.padAdded)
	case "request-pt-map":
		return len(s.ptMap)
	case "request-fec-encoder":
		return len(s.fecEncoder)
	case "request-fec-decoder":
		return len(s.fecDecoder)
	case "new-storage":
		return len(s.newStorage)
	}
	return 0
}
