package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/arzzra/opus_fec/pkg/logging"
	"github.com/arzzra/opus_fec/pkg/pipeline"
)

// Caps, которые сессия получает в ответ на request-pt-map
const (
	OpusCaps = "application/x-rtp, media=audio, clock-rate=48000, encoding-name=OPUS"
	FECCaps  = "application/x-rtp, media=audio, clock-rate=48000, is-fec=true"
)

// Payload описание одного payload type
type Payload struct {
	PT uint
	// Caps строка caps для фреймворка
	Caps string
	// Encoding имя кодировки для SDP rtpmap (opus, ulpfec)
	Encoding  string
	ClockRate uint32
	Channels  uint16
}

// RTPMap значение атрибута a=rtpmap
func (p Payload) RTPMap() string {
	if p.Channels > 1 {
		return fmt.Sprintf("%d %s/%d/%d", p.PT, p.Encoding, p.ClockRate, p.Channels)
	}
	return fmt.Sprintf("%d %s/%d", p.PT, p.Encoding, p.ClockRate)
}

// PayloadMap таблица payload type -> caps
type PayloadMap struct {
	entries map[uint]Payload
}

// NewPayloadMap создает таблицу из списка payload
func NewPayloadMap(payloads ...Payload) *PayloadMap {
	m := &PayloadMap{entries: make(map[uint]Payload, len(payloads))}
	for _, p := range payloads {
		m.entries[p.PT] = p
	}
	return m
}

// DefaultPayloadMap Opus на 96 и ULPFEC на 100
func DefaultPayloadMap() *PayloadMap {
	return NewPayloadMap(
		Payload{PT: OpusPayloadType, Caps: OpusCaps, Encoding: "opus", ClockRate: ClockRate, Channels: 2},
		Payload{PT: FECPayloadType, Caps: FECCaps, Encoding: "ulpfec", ClockRate: ClockRate},
	)
}

// Caps отвечает на request-pt-map. Для неизвестного pt caps нет.
func (m *PayloadMap) Caps(session, pt uint) (string, bool) {
	p, ok := m.entries[pt]
	if !ok {
		return "", false
	}
	return p.Caps, true
}

// Lookup возвращает описание payload type
func (m *PayloadMap) Lookup(pt uint) (Payload, bool) {
	p, ok := m.entries[pt]
	return p, ok
}

// Payloads возвращает описания в порядке возрастания payload type
func (m *PayloadMap) Payloads() []Payload {
	out := make([]Payload, 0, len(m.entries))
	for _, p := range m.entries {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PT < out[j].PT })
	return out
}

// Register подписывает таблицу на request-pt-map
func (m *PayloadMap) Register(s pipeline.Session) error {
	return s.OnRequestPTMap(m.Caps)
}

// StorageWindow задает глубину хранилища пакетов для восстановления FEC
type StorageWindow struct {
	SizeTime time.Duration
	Logger   logging.StructuredLogger
}

// Apply выставляет size-time (в наносекундах) новому хранилищу
func (w StorageWindow) Apply(storage pipeline.Element, session uint) {
	logger := w.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	ns := uint64(w.SizeTime.Nanoseconds())
	if err := storage.SetProperty("size-time", ns); err != nil {
		logger.LogError(context.Background(), err, "failed to set storage size-time",
			logging.Uint("session", session))
		storage.ReportFailure("Failed to configure storage", err.Error())
		return
	}
	logger.Debug(context.Background(), "storage configured",
		logging.Uint("session", session),
		logging.Duration("size_time", w.SizeTime))
}

// Register подписывает окно на new-storage
func (w StorageWindow) Register(s pipeline.Session) error {
	return s.OnNewStorage(w.Apply)
}
