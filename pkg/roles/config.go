package roles

import (
	"net"
	"strconv"
	"time"

	"github.com/arzzra/opus_fec/pkg/session"
)

// Допустимые диапазоны параметров
const (
	MaxLatencyMs  = 10000
	MaxSizeTimeMs = 60000
	MinBitrate    = 4000
	MaxBitrate    = 650000
	MaxWave       = 12
	MaxFreq       = 24000
)

// FrameSize длительность Opus кадра в терминах перечисления opusenc
// (2 означает 2.5 мс)
type FrameSize int

// Значения frame-size, которые принимает opusenc
var validFrameSizes = map[FrameSize]time.Duration{
	2:  2500 * time.Microsecond,
	5:  5 * time.Millisecond,
	10: 10 * time.Millisecond,
	20: 20 * time.Millisecond,
	40: 40 * time.Millisecond,
	60: 60 * time.Millisecond,
}

// Duration длительность кадра; 0 для невалидного значения
func (f FrameSize) Duration() time.Duration { return validFrameSizes[f] }

// Valid входит ли значение в перечисление
func (f FrameSize) Valid() bool {
	_, ok := validFrameSizes[f]
	return ok
}

func (f FrameSize) String() string {
	if f == 2 {
		return "2.5"
	}
	return strconv.Itoa(int(f))
}

// ReceiverConfig параметры приемника
type ReceiverConfig struct {
	// Port UDP порт приема RTP
	Port int
	// Latency задержка jitter buffer в rtpbin, мс
	Latency uint
	// SizeTime глубина хранилища пакетов для восстановления FEC
	SizeTime time.Duration

	// SinkFactory аудио выход (jackaudiosink по умолчанию)
	SinkFactory string
	// BufferTime buffer-time аудио выхода, мкс; 0 не устанавливает свойство
	BufferTime int64
}

// DefaultReceiverConfig возвращает конфигурацию по умолчанию
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		Port:        5000,
		Latency:     200,
		SizeTime:    250 * time.Millisecond,
		SinkFactory: "jackaudiosink",
		BufferTime:  100000,
	}
}

// Validate проверяет диапазоны
func (c ReceiverConfig) Validate() error {
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if c.Latency > MaxLatencyMs {
		return invalid("LATENCY", c.Latency, "must be at most 10000 ms")
	}
	if c.SizeTime < time.Millisecond || c.SizeTime > MaxSizeTimeMs*time.Millisecond {
		return invalid("SIZE-TIME", c.SizeTime, "must be between 1 and 60000 ms")
	}
	if c.SinkFactory == "" {
		return invalid("sink", c.SinkFactory, "factory must not be empty")
	}
	if c.BufferTime < 0 {
		return invalid("buffer-time", c.BufferTime, "must not be negative")
	}
	return nil
}

// SourceConfig источник звука передатчика
type SourceConfig struct {
	// Factory jackaudiosrc или audiotestsrc
	Factory string
	// TestSignal задает wave и freq (только для audiotestsrc)
	TestSignal bool
	Wave       int
	Freq       float64
}

// TransmitterConfig параметры передатчика
type TransmitterConfig struct {
	// Address адрес получателя
	Address string
	Port    int
	// Bitrate битрейт opusenc, бит/с
	Bitrate int
	// FrameSize 0 оставляет значение opusenc по умолчанию
	FrameSize FrameSize
	FEC       session.FECParams
	Source    SourceConfig
}

// DefaultTransmitterConfig возвращает конфигурацию по умолчанию
func DefaultTransmitterConfig() TransmitterConfig {
	return TransmitterConfig{
		Address: "127.0.0.1",
		Port:    5000,
		Bitrate: 64000,
		FEC:     session.DefaultFECParams(),
		Source:  SourceConfig{Factory: "jackaudiosrc"},
	}
}

// Validate проверяет диапазоны
func (c TransmitterConfig) Validate() error {
	if c.Address == "" {
		return invalid("ADDRESS", c.Address, "must not be empty")
	}
	if net.ParseIP(c.Address) == nil && !isHostname(c.Address) {
		return invalid("ADDRESS", c.Address, "not an IP address or host name")
	}
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if c.Bitrate < MinBitrate || c.Bitrate > MaxBitrate {
		return invalid("OPUS_BITRATE", c.Bitrate, "must be between 4000 and 650000")
	}
	if c.FrameSize != 0 && !c.FrameSize.Valid() {
		return invalid("OPUS_FRAME_SIZE", int(c.FrameSize), "must be one of 2, 5, 10, 20, 40, 60")
	}
	if c.FEC.Percentage > 100 {
		return invalid("PERCENTAGE", c.FEC.Percentage, "must be between 0 and 100")
	}
	if c.FEC.PercentageImportant > 100 {
		return invalid("PERCENTAGE_IMPORTANT", c.FEC.PercentageImportant, "must be between 0 and 100")
	}
	if c.Source.Factory == "" {
		return invalid("source", c.Source.Factory, "factory must not be empty")
	}
	if c.Source.TestSignal {
		if c.Source.Wave < 0 || c.Source.Wave > MaxWave {
			return invalid("WAVE", c.Source.Wave, "must be between 0 and 12")
		}
		if c.Source.Freq <= 0 || c.Source.Freq >= MaxFreq {
			return invalid("FREQ", c.Source.Freq, "must be above 0 and below 24000")
		}
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return invalid("PORT", port, "must be between 1 and 65535")
	}
	return nil
}

// isHostname грубая проверка синтаксиса имени хоста (RFC 1123)
func isHostname(s string) bool {
	if len(s) > 253 {
		return false
	}
	label := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '.':
			if label == 0 {
				return false
			}
			label = 0
		case c == '-' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
			label++
			if label > 63 {
				return false
			}
		default:
			return false
		}
	}
	return label > 0
}
