// Package stats периодически опрашивает элементы запущенного конвейера
// (FEC декодер и кодер, jitter buffer, депакетизатор) и публикует
// значения в лог и метрики Prometheus. Конвейер не изменяется.
package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arzzra/opus_fec/pkg/logging"
	"github.com/arzzra/opus_fec/pkg/pipeline"
)

// DefaultInterval период опроса по умолчанию
const DefaultInterval = 500 * time.Millisecond

// Kind что именно читается у элемента
type Kind int

const (
	KindFECDecoder Kind = iota
	KindFECEncoder
	KindJitterBuffer
	KindDepayloader
)

func (k Kind) String() string {
	switch k {
	case KindFECDecoder:
		return "fec_decoder"
	case KindFECEncoder:
		return "fec_encoder"
	case KindJitterBuffer:
		return "jitterbuffer"
	case KindDepayloader:
		return "depayloader"
	default:
		return "unknown"
	}
}

// Target опрашиваемый элемент
type Target struct {
	Element string
	Kind    Kind
}

// ReceiverTargets набор приемника: fecdec<session>, rtpjitterbuffer0, depay
func ReceiverTargets(fecDecoder string) []Target {
	return []Target{
		{Element: fecDecoder, Kind: KindFECDecoder},
		{Element: "rtpjitterbuffer0", Kind: KindJitterBuffer},
		{Element: "depay", Kind: KindDepayloader},
	}
}

// TransmitterTargets набор передатчика: FEC кодер
func TransmitterTargets(fecEncoder string) []Target {
	return []Target{{Element: fecEncoder, Kind: KindFECEncoder}}
}

// Sample одно чтение элемента
type Sample struct {
	Element string
	Kind    Kind
	// Present элемент найден в конвейере
	Present bool
	// Values прочитанные числовые значения (recovered, num-lost, ...)
	Values map[string]float64
	// State текущее состояние (для депакетизатора)
	State pipeline.State
	At    time.Time
}

// Source где искать элементы по имени; pipeline.Pipeline подходит
type Source interface {
	ElementByName(name string) (pipeline.Element, bool)
}

// Reporter получатель сэмплов
type Reporter interface {
	Report(s Sample)
}

// Config параметры опроса
type Config struct {
	Source   Source
	Targets  []Target
	Interval time.Duration
	Logger   logging.StructuredLogger
	// Reporters получают каждый сэмпл (например *Metrics)
	Reporters []Reporter
}

// Poller фоновый опрос статистики
type Poller struct {
	cfg    Config
	logger logging.StructuredLogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	absent  map[string]bool
}

// NewPoller создает поллер; нулевой интервал заменяется на DefaultInterval
func NewPoller(cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Poller{
		cfg:    cfg,
		logger: logger.WithComponent("stats"),
		absent: make(map[string]bool),
	}
}

// Start запускает цикл опроса. Повторный вызов ничего не делает.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop останавливает цикл и дожидается его завершения
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range p.SampleOnce() {
				p.report(ctx, s)
			}
		}
	}
}

// SampleOnce читает все цели один раз
func (p *Poller) SampleOnce() []Sample {
	now := time.Now()
	samples := make([]Sample, 0, len(p.cfg.Targets))
	for _, t := range p.cfg.Targets {
		samples = append(samples, p.sample(t, now))
	}
	return samples
}

func (p *Poller) sample(t Target, now time.Time) Sample {
	s := Sample{Element: t.Element, Kind: t.Kind, At: now}
	el, ok := p.cfg.Source.ElementByName(t.Element)
	if !ok {
		return s
	}
	s.Present = true

	switch t.Kind {
	case KindFECDecoder:
		s.Values = readNumbers(el, "recovered", "unrecovered")
	case KindFECEncoder:
		s.Values = readNumbers(el, "protected")
	case KindJitterBuffer:
		s.Values = readStructure(el, "stats")
	case KindDepayloader:
		s.State = el.CurrentState()
	}
	return s
}

func (p *Poller) report(ctx context.Context, s Sample) {
	p.mu.Lock()
	wasAbsent, seen := p.absent[s.Element]
	p.absent[s.Element] = !s.Present
	p.mu.Unlock()

	switch {
	case !s.Present && (!seen || !wasAbsent):
		p.logger.Warn(ctx, "element not found",
			logging.String("element", s.Element),
			logging.String("kind", s.Kind.String()))
	case !s.Present:
		p.logger.Trace(ctx, "element still absent", logging.String("element", s.Element))
	default:
		fields := []logging.Field{
			logging.String("element", s.Element),
			logging.String("kind", s.Kind.String()),
		}
		if s.Kind == KindDepayloader {
			fields = append(fields, logging.String("state", s.State.String()))
		}
		for _, k := range sortedKeys(s.Values) {
			fields = append(fields, logging.Any(k, s.Values[k]))
		}
		p.logger.Info(ctx, "stats", fields...)
	}

	for _, r := range p.cfg.Reporters {
		r.Report(s)
	}
}

func readNumbers(el pipeline.Element, props ...string) map[string]float64 {
	out := make(map[string]float64, len(props))
	for _, name := range props {
		v, err := el.Property(name)
		if err != nil {
			continue
		}
		if f, ok := toFloat(v); ok {
			out[name] = f
		}
	}
	return out
}

// structure значение-структура (GstStructure у реального бэкенда)
type structure interface {
	Values() map[string]interface{}
}

func readStructure(el pipeline.Element, prop string) map[string]float64 {
	v, err := el.Property(prop)
	if err != nil || v == nil {
		return map[string]float64{}
	}
	var fields map[string]interface{}
	switch st := v.(type) {
	case map[string]interface{}:
		fields = st
	case structure:
		fields = st.Values()
	default:
		return map[string]float64{}
	}
	out := make(map[string]float64, len(fields))
	for k, raw := range fields {
		if f, ok := toFloat(raw); ok {
			out[k] = f
		}
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
