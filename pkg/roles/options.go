package roles

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arzzra/opus_fec/pkg/logging"
	"github.com/arzzra/opus_fec/pkg/stats"
)

// Options общие параметры запуска, не входящие в позиционные аргументы.
// Загружаются из YAML файла и переопределяются флагами.
type Options struct {
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// Stats включает опрос статистики
	Stats         bool          `yaml:"stats"`
	StatsInterval time.Duration `yaml:"stats_interval"`
	// MetricsAddr адрес HTTP сервера /metrics; пусто - не запускать
	MetricsAddr string `yaml:"metrics_addr"`

	// SDPPath файл для SDP описания потока; пусто - не писать
	SDPPath string `yaml:"sdp"`
	// SDPHost адрес в SDP приемника (передатчик пишет ADDRESS)
	SDPHost string `yaml:"sdp_host"`
	// Dot выгружать граф в dot файл при переходе в PLAYING
	Dot bool `yaml:"dot"`

	// SinkFactory аудио выход приемника
	SinkFactory string `yaml:"sink"`
	// BufferTime buffer-time аудио выхода, мкс. Для jackaudiosink 0 оставляет
	// значение по умолчанию, для другого sink 0 не трогает свойство.
	BufferTime int64 `yaml:"buffer_time"`
	// SourceFactory аудио вход передатчика (кроме тестового источника)
	SourceFactory string `yaml:"source"`

	// DrainTimeout ожидание EOS после Ctrl+C; 0 - без ограничения
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// DefaultOptions возвращает параметры по умолчанию
func DefaultOptions() Options {
	return Options{
		LogLevel:      "info",
		Stats:         true,
		StatsInterval: stats.DefaultInterval,
		SDPHost:       "127.0.0.1",
		SinkFactory:   "jackaudiosink",
		SourceFactory: "jackaudiosrc",
		DrainTimeout:  5 * time.Second,
	}
}

// LoadOptions читает YAML поверх значений по умолчанию. Пустой путь
// возвращает значения по умолчанию.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}
	return opts, opts.Validate()
}

// Validate проверяет параметры
func (o Options) Validate() error {
	if _, err := logging.ParseLevel(o.LogLevel); err != nil {
		return &InvalidArgumentError{Name: "log_level", Value: o.LogLevel, Wrapped: err}
	}
	if o.BufferTime < 0 {
		return invalid("buffer_time", o.BufferTime, "must not be negative")
	}
	if o.StatsInterval < 0 {
		return invalid("stats_interval", o.StatsInterval, "must not be negative")
	}
	if o.DrainTimeout < 0 {
		return invalid("drain_timeout", o.DrainTimeout, "must not be negative")
	}
	if o.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(o.MetricsAddr); err != nil {
			return &InvalidArgumentError{Name: "metrics_addr", Value: o.MetricsAddr, Wrapped: err}
		}
	}
	return nil
}

// Logger создает логгер по параметрам
func (o Options) Logger() (logging.StructuredLogger, error) {
	level, err := logging.ParseLevel(o.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:  level,
		Output: os.Stderr,
		JSON:   o.LogJSON,
	}), nil
}

// Marshal сериализует параметры в YAML (для --print-config)
func (o Options) Marshal() ([]byte, error) {
	return yaml.Marshal(o)
}
