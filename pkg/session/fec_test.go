package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/opus_fec/pkg/pipeline"
	"github.com/arzzra/opus_fec/pkg/pipeline/pipelinetest"
	"github.com/arzzra/opus_fec/pkg/session"
)

type storageHandle struct{ name string }

func newNegotiator(t *testing.T, f *pipelinetest.Factory, params session.FECParams) (*session.FECNegotiator, *pipelinetest.Session) {
	t.Helper()
	rtpbin := f.MustMake("rtpbin", "rtpbin").(*pipelinetest.Session)
	n, err := session.NewFECNegotiator(f, rtpbin, params, nil)
	require.NoError(t, err)
	require.NoError(t, n.RegisterEncoder())
	require.NoError(t, n.RegisterDecoder())
	return n, rtpbin
}

// TestFECEncoderPassesParams проверяет, что параметры доходят до кодера без изменений
func TestFECEncoderPassesParams(t *testing.T) {
	f := pipelinetest.NewFactory()
	n, rtpbin := newNegotiator(t, f, session.FECParams{Percentage: 30, PercentageImportant: 60, MultiPacket: true})

	el := rtpbin.RequestFECEncoder(0)
	require.NotNil(t, el)
	enc := el.(*pipelinetest.Element)
	assert.Equal(t, "rtpulpfecenc", enc.Factory())
	assert.Equal(t, "fecenc0", enc.Name())

	for prop, want := range map[string]interface{}{
		"pt":                   uint(100),
		"multipacket":          true,
		"percentage":           uint(30),
		"percentage-important": uint(60),
	} {
		got, err := enc.Property(prop)
		require.NoError(t, err, prop)
		assert.Equal(t, want, got, prop)
	}
	assert.Equal(t, session.FECCounters{EncodersServed: 1}, n.Counters())
}

// TestFECEncoderZeroPercentage проверяет, что нулевой процент тоже передается
func TestFECEncoderZeroPercentage(t *testing.T) {
	f := pipelinetest.NewFactory()
	_, rtpbin := newNegotiator(t, f, session.FECParams{})

	enc := rtpbin.RequestFECEncoder(1).(*pipelinetest.Element)
	v, err := enc.Property("percentage")
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	mp, _ := enc.Property("multipacket")
	assert.Equal(t, false, mp)
}

// TestFECEncoderMissingFactory проверяет отказ без плагина ULPFEC
func TestFECEncoderMissingFactory(t *testing.T) {
	f := pipelinetest.NewFactory().Without("rtpulpfecenc")
	n, rtpbin := newNegotiator(t, f, session.DefaultFECParams())

	assert.Nil(t, rtpbin.RequestFECEncoder(0))

	failures := rtpbin.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, session.FailedFECEncoderText, failures[0].Text)
	assert.Contains(t, failures[0].Debug, "Missing element rtpulpfecenc")
	assert.Equal(t, uint64(1), n.Counters().EncodersFailed)

	_, err := n.MakeEncoder(0)
	assert.ErrorIs(t, err, &pipeline.MissingElementError{Factory: "rtpulpfecenc"})
}

// TestFECDecoderBindsStorage проверяет привязку декодера к хранилищу сессии
func TestFECDecoderBindsStorage(t *testing.T) {
	f := pipelinetest.NewFactory()
	n, rtpbin := newNegotiator(t, f, session.DefaultFECParams())
	storage := &storageHandle{name: "storage0"}
	rtpbin.SetInternalStorage(0, storage)

	el := rtpbin.RequestFECDecoder(0)
	require.NotNil(t, el)
	dec := el.(*pipelinetest.Element)
	assert.Equal(t, "rtpulpfecdec", dec.Factory())
	assert.Equal(t, "fecdec0", dec.Name())

	got, err := dec.Property("storage")
	require.NoError(t, err)
	assert.Same(t, storage, got)
	pt, _ := dec.Property("pt")
	assert.Equal(t, uint(100), pt)
	assert.Equal(t, []string{"pt", "storage"}, dec.PropertyNames())
	assert.Equal(t, uint64(1), n.Counters().DecodersServed)
}

// TestFECDecoderWithoutStorage проверяет, что без хранилища декодер не отдается
func TestFECDecoderWithoutStorage(t *testing.T) {
	f := pipelinetest.NewFactory()
	n, rtpbin := newNegotiator(t, f, session.DefaultFECParams())
	made := f.MadeCount()

	assert.Nil(t, rtpbin.RequestFECDecoder(3))

	failures := rtpbin.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, session.FailedFECDecoderText, failures[0].Text)

	_, err := n.MakeDecoder(3)
	var unavailable *session.StorageUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, uint(3), unavailable.Session)
	assert.True(t, session.HasErrorCode(err, session.ErrorCodeStorageUnavailable))
	assert.Equal(t, uint64(2), n.Counters().DecodersFailed)
	assert.Equal(t, made, f.MadeCount(), "decoder must not be created without storage")
}

// TestFECDecoderPropertyFailure проверяет, что полу-настроенный декодер не возвращается
func TestFECDecoderPropertyFailure(t *testing.T) {
	f := pipelinetest.NewFactory()
	rtpbin := f.MustMake("rtpbin", "rtpbin").(*pipelinetest.Session)
	rtpbin.SetInternalStorage(0, &storageHandle{})
	n, err := session.NewFECNegotiator(failingPTFactory{f}, rtpbin, session.DefaultFECParams(), nil)
	require.NoError(t, err)
	require.NoError(t, n.RegisterDecoder())

	assert.Nil(t, rtpbin.RequestFECDecoder(0))
	failures := rtpbin.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, session.FailedFECDecoderText, failures[0].Text)
	assert.Contains(t, failures[0].Debug, "read-only")
}

type failingPTFactory struct{ *pipelinetest.Factory }

func (f failingPTFactory) Make(factory, name string) (pipeline.Element, bool) {
	el, ok := f.Factory.Make(factory, name)
	if ok && factory == "rtpulpfecdec" {
		el.(*pipelinetest.Element).FailProperty("pt", errors.New("read-only"))
	}
	return el, ok
}

// TestFECParamsValidate проверяет границы процентов
func TestFECParamsValidate(t *testing.T) {
	assert.NoError(t, session.FECParams{Percentage: 100, PercentageImportant: 100}.Validate())
	assert.ErrorIs(t, session.FECParams{Percentage: 101}.Validate(), session.ErrInvalidParams)
	assert.ErrorIs(t, session.FECParams{PercentageImportant: 200}.Validate(), session.ErrInvalidParams)

	_, err := session.NewFECNegotiator(pipelinetest.NewFactory(), pipelinetest.NewSession("rtpbin"), session.FECParams{Percentage: 150}, nil)
	assert.ErrorIs(t, err, session.ErrInvalidParams)
}

// TestPayloadMap проверяет ответы на request-pt-map
func TestPayloadMap(t *testing.T) {
	rtpbin := pipelinetest.NewSession("rtpbin")
	require.NoError(t, session.DefaultPayloadMap().Register(rtpbin))

	caps, ok := rtpbin.RequestPTMap(0, 96)
	require.True(t, ok)
	assert.Contains(t, caps, "encoding-name=OPUS")
	assert.Contains(t, caps, "clock-rate=48000")

	caps, ok = rtpbin.RequestPTMap(0, 100)
	require.True(t, ok)
	assert.Contains(t, caps, "is-fec=true")

	_, ok = rtpbin.RequestPTMap(0, 97)
	assert.False(t, ok)
}

// TestStorageWindow проверяет перевод миллисекунд в наносекунды
func TestStorageWindow(t *testing.T) {
	rtpbin := pipelinetest.NewSession("rtpbin")
	w := session.StorageWindow{SizeTime: 200 * time.Millisecond}
	require.NoError(t, w.Register(rtpbin))

	storage := pipelinetest.NewElement("rtpstorage", "storage0")
	rtpbin.EmitNewStorage(storage, 0)

	v, err := storage.Property("size-time")
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000_000), v)

	broken := pipelinetest.NewElement("rtpstorage", "storage1")
	broken.FailProperty("size-time", errors.New("no such property"))
	rtpbin.EmitNewStorage(broken, 1)
	require.Len(t, broken.Failures(), 1)
}
