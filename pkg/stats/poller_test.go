package stats_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/opus_fec/pkg/pipeline"
	"github.com/arzzra/opus_fec/pkg/pipeline/pipelinetest"
	"github.com/arzzra/opus_fec/pkg/session"
	"github.com/arzzra/opus_fec/pkg/stats"
)

type recorder struct {
	mu      sync.Mutex
	samples []stats.Sample
}

func (r *recorder) Report(s stats.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func receiverPipeline(t *testing.T) (*pipelinetest.Pipeline, *pipelinetest.Element, *pipelinetest.Element) {
	t.Helper()
	p := pipelinetest.NewPipeline("client")
	depay := pipelinetest.NewElement("rtpopusdepay", "depay")
	require.NoError(t, p.Add(depay))

	jb := pipelinetest.NewElement("rtpjitterbuffer", "rtpjitterbuffer0")
	require.NoError(t, jb.SetProperty("stats", map[string]interface{}{
		"num-pushed": uint64(120),
		"num-lost":   uint64(3),
		"avg-jitter": uint64(2000),
		"rtx-rtt":    "n/a",
	}))
	p.AddInternal(jb)
	return p, depay, jb
}

// TestSampleOnceReceiver проверяет чтение набора приемника
func TestSampleOnceReceiver(t *testing.T) {
	p, depay, _ := receiverPipeline(t)
	depay.SetCurrentState(pipeline.StatePlaying)

	dec := pipelinetest.NewElement("rtpulpfecdec", "fecdec0")
	require.NoError(t, dec.SetProperty("recovered", uint(7)))
	require.NoError(t, dec.SetProperty("unrecovered", uint(2)))
	p.AddInternal(dec)

	poller := stats.NewPoller(stats.Config{Source: p, Targets: stats.ReceiverTargets(session.FECDecoderName(0))})
	samples := poller.SampleOnce()
	require.Len(t, samples, 3)

	assert.True(t, samples[0].Present)
	assert.Equal(t, map[string]float64{"recovered": 7, "unrecovered": 2}, samples[0].Values)

	assert.Equal(t, "rtpjitterbuffer0", samples[1].Element)
	assert.Equal(t, float64(3), samples[1].Values["num-lost"])
	assert.NotContains(t, samples[1].Values, "rtx-rtt")

	assert.Equal(t, stats.KindDepayloader, samples[2].Kind)
	assert.Equal(t, pipeline.StatePlaying, samples[2].State)
}

// TestSampleAbsentElement отсутствующий элемент не ошибка
func TestSampleAbsentElement(t *testing.T) {
	p := pipelinetest.NewPipeline("client")
	poller := stats.NewPoller(stats.Config{Source: p, Targets: stats.ReceiverTargets("fecdec0")})

	for _, s := range poller.SampleOnce() {
		assert.False(t, s.Present, s.Element)
		assert.Empty(t, s.Values)
	}
}

// TestPollerDoesNotMutate опрос не трогает состояние и связи
func TestPollerDoesNotMutate(t *testing.T) {
	p, depay, _ := receiverPipeline(t)
	poller := stats.NewPoller(stats.Config{Source: p, Targets: stats.ReceiverTargets("fecdec0")})
	poller.SampleOnce()

	assert.Empty(t, p.StateRequests())
	assert.Empty(t, depay.PropertyNames())
	assert.Equal(t, 0, p.EOSCount())
}

// TestPollerStartStop проверяет периодический опрос и кооперативную остановку
func TestPollerStartStop(t *testing.T) {
	p, _, _ := receiverPipeline(t)
	rec := &recorder{}
	poller := stats.NewPoller(stats.Config{
		Source:    p,
		Targets:   stats.TransmitterTargets("fecenc0"),
		Interval:  5 * time.Millisecond,
		Reporters: []stats.Reporter{rec},
	})

	poller.Start(context.Background())
	poller.Start(context.Background())
	assert.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, time.Millisecond)

	poller.Stop()
	n := rec.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, rec.count(), "no samples after Stop returns")
	poller.Stop()
}

// TestPollerStopsWithContext отмена родительского контекста останавливает цикл
func TestPollerStopsWithContext(t *testing.T) {
	p := pipelinetest.NewPipeline("server")
	ctx, cancel := context.WithCancel(context.Background())
	poller := stats.NewPoller(stats.Config{Source: p, Interval: time.Millisecond})
	poller.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() { poller.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

// TestMetricsReport проверяет экспорт сэмплов в Prometheus
func TestMetricsReport(t *testing.T) {
	m := stats.NewMetrics()
	m.Report(stats.Sample{Element: "fecdec0", Kind: stats.KindFECDecoder, Present: true,
		Values: map[string]float64{"recovered": 5, "unrecovered": 1}})
	m.Report(stats.Sample{Element: "rtpjitterbuffer0", Kind: stats.KindJitterBuffer, Present: false})
	m.Report(stats.Sample{Element: "depay", Kind: stats.KindDepayloader, Present: true, State: pipeline.StatePlaying})

	reg := m.Registry()
	count, err := testutil.GatherAndCount(reg, "opus_fec_samples_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := `
# HELP opus_fec_fec_packets FEC element packet counters (recovered, unrecovered, protected)
# TYPE opus_fec_fec_packets gauge
opus_fec_fec_packets{counter="recovered",element="fecdec0"} 5
opus_fec_fec_packets{counter="unrecovered",element="fecdec0"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "opus_fec_fec_packets"))

	expected = `
# HELP opus_fec_element_present Whether a polled element exists in the pipeline (1) or not (0)
# TYPE opus_fec_element_present gauge
opus_fec_element_present{element="depay"} 1
opus_fec_element_present{element="fecdec0"} 1
opus_fec_element_present{element="rtpjitterbuffer0"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "opus_fec_element_present"))
}

// TestMetricsPhaseAndCounters проверяет фазу и счетчики сессии
func TestMetricsPhaseAndCounters(t *testing.T) {
	m := stats.NewMetrics()
	m.SetPhase("starting")
	m.SetPhase("playing")
	m.SetRunInfo("run-1", "receiver")

	rtpbin := pipelinetest.NewSession("rtpbin")
	router := session.NewRouter(rtpbin, nil).Route(session.OpusPayloadType, pipelinetest.NewElement("rtpopusdepay", "depay"))
	m.WatchRouter(router)
	_ = router.HandlePad(pipelinetest.NewPad(nil, "recv_rtp_src_0_1_97", pipeline.PadSrc))

	n, err := session.NewFECNegotiator(pipelinetest.NewFactory(), rtpbin, session.DefaultFECParams(), nil)
	require.NoError(t, err)
	m.WatchFEC(n)
	_, _ = n.MakeDecoder(0)

	expected := `
# HELP opus_fec_pipeline_phase Supervisor lifecycle phase (1 for the current phase)
# TYPE opus_fec_pipeline_phase gauge
opus_fec_pipeline_phase{phase="playing"} 1
opus_fec_pipeline_phase{phase="starting"} 0
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "opus_fec_pipeline_phase"))

	expected = `
# HELP opus_fec_router_rejected_total Dynamic pads that could not be routed
# TYPE opus_fec_router_rejected_total counter
opus_fec_router_rejected_total 1
# HELP opus_fec_fec_requests_failed FEC encoder and decoder requests that could not be served
# TYPE opus_fec_fec_requests_failed gauge
opus_fec_fec_requests_failed 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"opus_fec_router_rejected_total", "opus_fec_fec_requests_failed"))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `opus_fec_run_info{role="receiver",run_id="run-1"} 1`)
}
