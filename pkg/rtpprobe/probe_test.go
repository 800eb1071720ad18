package rtpprobe_test

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/opus_fec/pkg/rtpprobe"
)

func listen(t *testing.T) *rtpprobe.Listener {
	t.Helper()
	l, err := rtpprobe.Listen(rtpprobe.ListenConfig{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func dial(t *testing.T, l *rtpprobe.Listener) *rtpprobe.Sender {
	t.Helper()
	s, err := rtpprobe.Dial(rtpprobe.SendConfig{Remote: l.LocalAddr().String()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestListenerReceive пакет проходит через реальный UDP сокет
func TestListenerReceive(t *testing.T) {
	l := listen(t)
	s := dial(t, l)

	sent := &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 100, SequenceNumber: 42, Timestamp: 960, SSRC: 0x1234},
		Payload: []byte{1, 2, 3},
	}
	require.NoError(t, s.Send(sent))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, from, err := l.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, sent.Header.PayloadType, got.PayloadType)
	assert.Equal(t, sent.SequenceNumber, got.SequenceNumber)
	assert.Equal(t, sent.Payload, got.Payload)
	assert.True(t, from.IP.IsLoopback())
}

// TestListenerRejectsGarbage датаграмма короче заголовка отбрасывается
func TestListenerRejectsGarbage(t *testing.T) {
	l := listen(t)
	conn, err := net.Dial("udp", l.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = l.Receive(ctx)
	var invalid *rtpprobe.InvalidPacketError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 4, invalid.Size)
}

func TestListenerCancel(t *testing.T) {
	l := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := l.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	_, _, err = l.Receive(context.Background())
	assert.ErrorIs(t, err, rtpprobe.ErrClosed)
}

func TestSenderRejectsBadHeader(t *testing.T) {
	s := dial(t, listen(t))
	err := s.Send(&rtp.Packet{Header: rtp.Header{Version: 1, PayloadType: 96}})
	var invalid *rtpprobe.InvalidPacketError
	require.ErrorAs(t, err, &invalid)
}

// TestProbeCountsGeneratedStream поток с пропусками номеров считается как потери
func TestProbeCountsGeneratedStream(t *testing.T) {
	l := listen(t)
	s := dial(t, l)
	probe := rtpprobe.NewProbe(l, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- probe.Run(ctx) }()

	// 103 и 104 не отправляются
	g := rtpprobe.NewGenerator(77, 100)
	for i := 0; i < 10; i++ {
		p := g.Next()
		if p.SequenceNumber == 103 || p.SequenceNumber == 104 {
			continue
		}
		require.NoError(t, s.Send(p))
	}

	counter := probe.Counter()
	require.Eventually(t, func() bool { return counter.Packets(rtpprobe.OpusPayloadType) == 8 },
		2*time.Second, 5*time.Millisecond)

	snap := counter.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(2), snap[0].Lost)
	assert.Equal(t, uint16(109), snap[0].HighestSeq)
	assert.False(t, counter.HasPT(100))

	reg := prometheus.NewRegistry()
	reg.MustRegister(rtpprobe.NewCollector(counter))
	expected := `
# HELP opus_fec_probe_lost Expected minus received packets per stream
# TYPE opus_fec_probe_lost gauge
opus_fec_probe_lost{pt="96",ssrc="77"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "opus_fec_probe_lost"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("probe did not stop")
	}
}

func TestGeneratorRunSendsCount(t *testing.T) {
	l := listen(t)
	s := dial(t, l)
	probe := rtpprobe.NewProbe(l, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = probe.Run(ctx) }()

	g := rtpprobe.NewGenerator(5, 0)
	g.Ptime = time.Millisecond
	sent, err := g.Run(ctx, s, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	require.Eventually(t, func() bool { return probe.Counter().Packets(rtpprobe.OpusPayloadType) == 3 },
		2*time.Second, 5*time.Millisecond)
	assert.Zero(t, probe.Counter().Snapshot()[0].Lost)
}
