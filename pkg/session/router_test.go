package session_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/opus_fec/pkg/pipeline"
	"github.com/arzzra/opus_fec/pkg/pipeline/pipelinetest"
	"github.com/arzzra/opus_fec/pkg/session"
)

type routerFixture struct {
	factory *pipelinetest.Factory
	rtpbin  *pipelinetest.Session
	depay   *pipelinetest.Element
	router  *session.Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := pipelinetest.NewFactory()
	rtpbin := f.MustMake("rtpbin", "rtpbin").(*pipelinetest.Session)
	depay := f.MustMake("rtpopusdepay", "depay").(*pipelinetest.Element)

	router := session.NewRouter(rtpbin, nil).Route(session.OpusPayloadType, depay)
	require.NoError(t, router.Register(rtpbin))

	return &routerFixture{factory: f, rtpbin: rtpbin, depay: depay, router: router}
}

// TestParsePadName проверяет разбор имен динамических пэдов
func TestParsePadName(t *testing.T) {
	tests := []struct {
		name    string
		want    session.PadID
		wantErr bool
	}{
		{name: "recv_rtp_src_0_1234_96", want: session.PadID{Name: "recv_rtp_src_0_1234_96", Session: 0, SSRC: 1234, PT: 96}},
		{name: "recv_rtp_src_2_4294967295_100", want: session.PadID{Name: "recv_rtp_src_2_4294967295_100", Session: 2, SSRC: 4294967295, PT: 100}},
		{name: "recv_rtp_src_0_1234", wantErr: true},
		{name: "src", wantErr: true},
		{name: "recv_rtp_src_0_1234_opus", wantErr: true},
		{name: "recv_rtp_src_x_1234_96", want: session.PadID{Name: "recv_rtp_src_x_1234_96", SSRC: 1234, PT: 96}},
		{name: "recv_rtp_src_0_1234_200", want: session.PadID{Name: "recv_rtp_src_0_1234_200", SSRC: 1234, PT: 200}},
		{name: "recv_rtp_src_0_1234_4294967296", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := session.ParsePadName(tt.name)
			if tt.wantErr {
				var malformed *session.MalformedPadNameError
				require.ErrorAs(t, err, &malformed)
				assert.Equal(t, tt.name, malformed.Name)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestRouterLinksOpusPad проверяет связывание пэда PT 96 с депакетизатором
func TestRouterLinksOpusPad(t *testing.T) {
	fx := newRouterFixture(t)

	pad := fx.rtpbin.AddDynamicPad("recv_rtp_src_0_1234_96")

	sink := fx.depay.Pad("sink")
	require.NotNil(t, sink)
	assert.Same(t, pad, sink.Peer(), "depay sink should be linked to the new pad")
	assert.Equal(t, uint64(1), fx.router.Stats().Routed)
	assert.Empty(t, fx.rtpbin.Failures())
}

// TestRouterUnknownPTLeavesConsumerUntouched проверяет, что неизвестный PT
// не меняет уже установленную связь
func TestRouterUnknownPTLeavesConsumerUntouched(t *testing.T) {
	fx := newRouterFixture(t)

	first := fx.rtpbin.AddDynamicPad("recv_rtp_src_0_1234_96")
	err := fx.router.HandlePad(pipelinetest.NewPad(nil, "recv_rtp_src_0_1234_97", pipeline.PadSrc))

	var unknown *session.UnknownPTError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, uint(97), unknown.PT)
	assert.Equal(t, "Unknown payload type 97", err.Error())

	assert.Same(t, first, fx.depay.Pad("sink").Peer(), "existing link must survive")
	assert.Equal(t, 1, fx.rtpbin.UnlinkCount("depay"), "only the first routing unlinked")
}

// TestRouterRejectsAnyOtherPT проверяет, что любой PT кроме 96 дает
// UnknownPT, включая значения вне 7 бит и пэды с нечисловыми полями
func TestRouterRejectsAnyOtherPT(t *testing.T) {
	tests := []struct {
		pad string
		pt  uint
	}{
		{pad: "recv_rtp_src_0_1234_97", pt: 97},
		{pad: "recv_rtp_src_0_1234_200", pt: 200},
		{pad: "recv_rtp_src_x_1_97", pt: 97},
		{pad: "recv_rtp_src_0_y_0", pt: 0},
	}

	for _, tt := range tests {
		t.Run(tt.pad, func(t *testing.T) {
			fx := newRouterFixture(t)

			err := fx.router.HandlePad(pipelinetest.NewPad(nil, tt.pad, pipeline.PadSrc))

			var unknown *session.UnknownPTError
			require.ErrorAs(t, err, &unknown)
			assert.Equal(t, tt.pt, unknown.PT)
			assert.False(t, session.HasErrorCode(err, session.ErrorCodeMalformedPadName))
			assert.False(t, fx.depay.Pad("sink").IsLinked())
		})
	}
}

// TestRouterRoutesPadWithOddSessionField проверяет, что PT 96 маршрутизируется
// даже при нечисловом поле сессии
func TestRouterRoutesPadWithOddSessionField(t *testing.T) {
	fx := newRouterFixture(t)

	pad := fx.rtpbin.AddDynamicPad("recv_rtp_src_x_1234_96")

	assert.Same(t, pad, fx.depay.Pad("sink").Peer())
	assert.Empty(t, fx.rtpbin.Failures())
}

// TestRouterUnknownPTReportsFailure проверяет публикацию отказа через шину
func TestRouterUnknownPTReportsFailure(t *testing.T) {
	fx := newRouterFixture(t)

	fx.rtpbin.AddDynamicPad("recv_rtp_src_0_1234_97")

	failures := fx.rtpbin.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, session.FailedToLinkText, failures[0].Text)
	assert.Contains(t, failures[0].Debug, "Unknown payload type 97")
	assert.False(t, fx.depay.Pad("sink").IsLinked())
	assert.Equal(t, uint64(1), fx.router.Stats().Rejected)
}

// TestRouterIdempotentReplace проверяет, что повторный пэд с PT 96
// заменяет связь, а не падает на уже связанном sink
func TestRouterIdempotentReplace(t *testing.T) {
	fx := newRouterFixture(t)

	first := fx.rtpbin.AddDynamicPad("recv_rtp_src_0_1111_96")
	second := fx.rtpbin.AddDynamicPad("recv_rtp_src_0_2222_96")

	assert.False(t, first.IsLinked(), "old pad should be unlinked")
	assert.Same(t, second, fx.depay.Pad("sink").Peer())
	assert.Equal(t, 2, fx.rtpbin.UnlinkCount("depay"))
	assert.Empty(t, fx.rtpbin.Failures())
	assert.Equal(t, uint64(2), fx.router.Stats().Routed)
}

// TestRouterIgnoresSinkPads проверяет, что sink пэды не маршрутизируются
func TestRouterIgnoresSinkPads(t *testing.T) {
	fx := newRouterFixture(t)

	err := fx.router.HandlePad(pipelinetest.NewPad(nil, "recv_rtp_sink_0", pipeline.PadSink))
	require.NoError(t, err)
	assert.Equal(t, 0, fx.rtpbin.UnlinkCount("depay"))
	assert.Equal(t, session.RouterStats{}, fx.router.Stats())
}

// TestRouterMalformedName проверяет отказ на имени без поля PT
func TestRouterMalformedName(t *testing.T) {
	fx := newRouterFixture(t)

	err := fx.router.HandlePad(pipelinetest.NewPad(nil, "recv_rtp_src_0", pipeline.PadSrc))
	assert.True(t, session.HasErrorCode(err, session.ErrorCodeMalformedPadName))
	assert.Equal(t, 0, fx.rtpbin.UnlinkCount("depay"))
}

// TestRouterConsumerWithoutSink проверяет ошибку NoSuchPad у потребителя
func TestRouterConsumerWithoutSink(t *testing.T) {
	fx := newRouterFixture(t)
	src := fx.factory.MustMake("udpsrc", "odd")
	fx.router.Route(101, src)

	err := fx.router.HandlePad(pipelinetest.NewPad(nil, "recv_rtp_src_0_1_101", pipeline.PadSrc))
	var noPad *pipeline.NoSuchPadError
	require.True(t, errors.As(err, &noPad))
	assert.Equal(t, "No such pad sink in odd", noPad.Error())
}

// TestRouterOnRouted проверяет вызов наблюдателя
func TestRouterOnRouted(t *testing.T) {
	fx := newRouterFixture(t)
	var got []session.PadID
	fx.router.OnRouted = func(id session.PadID, consumer string) {
		assert.Equal(t, "depay", consumer)
		got = append(got, id)
	}

	fx.rtpbin.AddDynamicPad("recv_rtp_src_0_42_96")
	require.Len(t, got, 1)
	assert.Equal(t, uint32(42), got[0].SSRC)
	assert.Equal(t, []uint{96}, fx.router.PayloadTypes())
}
