package pipeline_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/opus_fec/pkg/pipeline"
	"github.com/arzzra/opus_fec/pkg/pipeline/pipelinetest"
)

func TestMakeElement(t *testing.T) {
	f := pipelinetest.NewFactory().Without("jackaudiosink")

	el, err := pipeline.MakeElement(f, "opusdec", "dec")
	require.NoError(t, err)
	assert.Equal(t, "dec", el.Name())

	_, err = pipeline.MakeElement(f, "jackaudiosink", "")
	require.Error(t, err)
	assert.Equal(t, "Missing element jackaudiosink", err.Error())

	var missing *pipeline.MissingElementError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "jackaudiosink", missing.Factory)
	assert.ErrorIs(t, err, &pipeline.MissingElementError{})
	assert.NotErrorIs(t, err, &pipeline.MissingElementError{Factory: "opusdec"})
}

func TestStaticAndRequestPad(t *testing.T) {
	f := pipelinetest.NewFactory()
	depay := f.MustMake("rtpopusdepay", "depay")
	rtpbin := f.MustMake("rtpbin", "rtpbin")

	pad, err := pipeline.StaticPad(depay, "sink")
	require.NoError(t, err)
	assert.Equal(t, "sink", pad.Name())
	assert.Equal(t, pipeline.PadSink, pad.Direction())

	_, err = pipeline.StaticPad(depay, "bogus")
	require.Error(t, err)
	assert.Equal(t, "No such pad bogus in depay", err.Error())
	assert.ErrorIs(t, err, &pipeline.NoSuchPadError{Pad: "bogus"})

	sink, err := pipeline.RequestPad(rtpbin, "send_rtp_sink_0")
	require.NoError(t, err)
	assert.Equal(t, "send_rtp_sink_0", sink.Name())

	src, err := pipeline.StaticPad(rtpbin, "send_rtp_src_0")
	require.NoError(t, err, "send_rtp_src_0 появляется после запроса send_rtp_sink_0")
	assert.Equal(t, pipeline.PadSrc, src.Direction())

	_, err = pipeline.RequestPad(rtpbin, "nonsense_%u")
	assert.ErrorIs(t, err, &pipeline.NoSuchPadError{})
}

func TestLinkPads(t *testing.T) {
	f := pipelinetest.NewFactory()
	src := f.MustMake("udpsrc", "src")
	sink := f.MustMake("udpsink", "sink")

	srcPad, err := pipeline.StaticPad(src, "src")
	require.NoError(t, err)
	sinkPad, err := pipeline.StaticPad(sink, "sink")
	require.NoError(t, err)

	require.NoError(t, pipeline.LinkPads(srcPad, sinkPad))

	err = pipeline.LinkPads(srcPad, sinkPad)
	require.Error(t, err)
	assert.ErrorIs(t, err, &pipeline.GraphError{ErrCode: pipeline.ErrorCodeLinkFailed})
	assert.ErrorIs(t, err, pipelinetest.ErrAlreadyLinked)
}

func TestLinkMany(t *testing.T) {
	f := pipelinetest.NewFactory()
	a := f.MustMake("queue", "a").(*pipelinetest.Element)
	b := f.MustMake("opusdec", "b").(*pipelinetest.Element)
	c := f.MustMake("audioconvert", "c").(*pipelinetest.Element)

	require.NoError(t, pipeline.LinkMany(a, b, c))
	assert.Equal(t, 1, a.LinkCount("b"))
	assert.Equal(t, 1, b.LinkCount("c"))
	assert.Equal(t, 0, a.LinkCount("c"))

	cause := errors.New("not-negotiated")
	b.FailLink(cause)
	err := pipeline.LinkMany(a, b, c)
	require.Error(t, err)

	var graphErr *pipeline.GraphError
	require.True(t, errors.As(err, &graphErr))
	assert.Equal(t, "b", graphErr.Element)
	assert.Equal(t, pipeline.ErrorCodeLinkFailed, graphErr.Code())
	assert.ErrorIs(t, err, cause)
}

func TestSetProperties(t *testing.T) {
	f := pipelinetest.NewFactory()
	enc := f.MustMake("opusenc", "enc").(*pipelinetest.Element)

	require.NoError(t, pipeline.SetProperties(enc,
		pipeline.Property{Name: "bitrate", Value: 64000},
		pipeline.Property{Name: "frame-size", Value: 20},
	))
	v, err := enc.Property("bitrate")
	require.NoError(t, err)
	assert.Equal(t, 64000, v)

	enc.FailProperty("inband-fec", errors.New("no such property"))
	err = pipeline.SetProperties(enc,
		pipeline.Property{Name: "inband-fec", Value: true},
		pipeline.Property{Name: "dtx", Value: true},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inband-fec")
	assert.False(t, enc.HasProperty("dtx"), "после первой ошибки свойства не устанавливаются")
}

func TestStateAndKindStrings(t *testing.T) {
	assert.Equal(t, "PLAYING", pipeline.StatePlaying.String())
	assert.Equal(t, "NULL", pipeline.StateNull.String())
	assert.Equal(t, "State(42)", pipeline.State(42).String())
	assert.Equal(t, "eos", pipeline.MessageEOS.String())
	assert.Equal(t, "src", pipeline.PadSrc.String())
	assert.Equal(t, "LinkFailed", pipeline.ErrorCodeLinkFailed.String())
}
