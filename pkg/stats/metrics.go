package stats

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arzzra/opus_fec/pkg/session"
)

// Namespace префикс всех метрик
const Namespace = "opus_fec"

// Metrics метрики Prometheus в собственном реестре
type Metrics struct {
	registry *prometheus.Registry

	present    *prometheus.GaugeVec
	fecPackets *prometheus.GaugeVec
	jitter     *prometheus.GaugeVec
	state      *prometheus.GaugeVec
	samples    prometheus.Counter
	phase      *prometheus.GaugeVec
	runInfo    *prometheus.GaugeVec

	mu        sync.Mutex
	lastPhase string
}

// NewMetrics создает реестр с метриками процесса, Go рантайма и конвейера
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		present: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "element_present",
			Help:      "Whether a polled element exists in the pipeline (1) or not (0)",
		}, []string{"element"}),
		fecPackets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "fec",
			Name:      "packets",
			Help:      "FEC element packet counters (recovered, unrecovered, protected)",
		}, []string{"element", "counter"}),
		jitter: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "jitterbuffer",
			Name:      "stat",
			Help:      "Numeric fields of the jitter buffer stats structure",
		}, []string{"element", "field"}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "element_state",
			Help:      "Current element state (1=NULL, 2=READY, 3=PAUSED, 4=PLAYING)",
		}, []string{"element"}),
		samples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "samples_total",
			Help:      "Total number of element samples taken",
		}),
		phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pipeline_phase",
			Help:      "Supervisor lifecycle phase (1 for the current phase)",
		}, []string{"phase"}),
		runInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_info",
			Help:      "Run metadata, always 1",
		}, []string{"run_id", "role"}),
	}
}

// Registry возвращает реестр (для тестов и дополнительных коллекторов)
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler HTTP обработчик /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Report реализует Reporter
func (m *Metrics) Report(s Sample) {
	m.samples.Inc()
	if !s.Present {
		m.present.WithLabelValues(s.Element).Set(0)
		return
	}
	m.present.WithLabelValues(s.Element).Set(1)

	switch s.Kind {
	case KindFECDecoder, KindFECEncoder:
		for k, v := range s.Values {
			m.fecPackets.WithLabelValues(s.Element, k).Set(v)
		}
	case KindJitterBuffer:
		for k, v := range s.Values {
			m.jitter.WithLabelValues(s.Element, k).Set(v)
		}
	case KindDepayloader:
		m.state.WithLabelValues(s.Element).Set(float64(s.State))
	}
}

// SetPhase отмечает текущую фазу супервизора
func (m *Metrics) SetPhase(phase string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastPhase != "" {
		m.phase.WithLabelValues(m.lastPhase).Set(0)
	}
	m.phase.WithLabelValues(phase).Set(1)
	m.lastPhase = phase
}

// SetRunInfo публикует идентификатор запуска и роль
func (m *Metrics) SetRunInfo(runID, role string) {
	m.runInfo.WithLabelValues(runID, role).Set(1)
}

// WatchRouter экспортирует счетчики маршрутизатора
func (m *Metrics) WatchRouter(r interface{ Stats() session.RouterStats }) {
	factory := promauto.With(m.registry)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "router",
		Name:      "routed_total",
		Help:      "Dynamic pads linked to a consumer",
	}, func() float64 { return float64(r.Stats().Routed) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "router",
		Name:      "rejected_total",
		Help:      "Dynamic pads that could not be routed",
	}, func() float64 { return float64(r.Stats().Rejected) })
}

// WatchFEC экспортирует счетчики запросов FEC элементов
func (m *Metrics) WatchFEC(n interface{ Counters() session.FECCounters }) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "fec",
		Name:      "requests_failed",
		Help:      "FEC encoder and decoder requests that could not be served",
	}, func() float64 {
		c := n.Counters()
		return float64(c.EncodersFailed + c.DecodersFailed)
	})
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "fec",
		Name:      "requests_served",
		Help:      "FEC encoder and decoder requests answered with an element",
	}, func() float64 {
		c := n.Counters()
		return float64(c.EncodersServed + c.DecodersServed)
	})
}
