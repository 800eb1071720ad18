package rtpprobe

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector экспортирует счетчики пробы в Prometheus
type Collector struct {
	counter *Counter

	packets   *prometheus.Desc
	lost      *prometheus.Desc
	reordered *prometheus.Desc
	invalid   *prometheus.Desc
}

// NewCollector создает коллектор; регистрируется вызывающим
func NewCollector(c *Counter) *Collector {
	labels := []string{"pt", "ssrc"}
	return &Collector{
		counter:   c,
		packets:   prometheus.NewDesc("opus_fec_probe_packets_total", "RTP packets received per stream", labels, nil),
		lost:      prometheus.NewDesc("opus_fec_probe_lost", "Expected minus received packets per stream", labels, nil),
		reordered: prometheus.NewDesc("opus_fec_probe_reordered_total", "Out of order packets per stream", labels, nil),
		invalid:   prometheus.NewDesc("opus_fec_probe_invalid_total", "Datagrams that were not valid RTP", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packets
	ch <- c.lost
	ch <- c.reordered
	ch <- c.invalid
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.counter.Snapshot() {
		pt := strconv.Itoa(int(st.PT))
		ssrc := strconv.FormatUint(uint64(st.SSRC), 10)
		ch <- prometheus.MustNewConstMetric(c.packets, prometheus.CounterValue, float64(st.Packets), pt, ssrc)
		ch <- prometheus.MustNewConstMetric(c.lost, prometheus.GaugeValue, float64(st.Lost), pt, ssrc)
		ch <- prometheus.MustNewConstMetric(c.reordered, prometheus.CounterValue, float64(st.Reordered), pt, ssrc)
	}
	ch <- prometheus.MustNewConstMetric(c.invalid, prometheus.CounterValue, float64(c.counter.Invalid()))
}
