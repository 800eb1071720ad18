package session_test

import (
	"testing"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/opus_fec/pkg/session"
)

// TestDescribeDefaultMap проверяет SDP для Opus + ULPFEC
func TestDescribeDefaultMap(t *testing.T) {
	desc, err := session.Describe(session.DescribeParams{
		Host:      "127.0.0.1",
		Port:      5000,
		Direction: session.DirectionRecvOnly,
		Ptime:     20 * time.Millisecond,
		Now:       time.Unix(1700000000, 0),
	})
	require.NoError(t, err)

	raw, err := desc.Marshal()
	require.NoError(t, err)

	parsed := &sdp.SessionDescription{}
	require.NoError(t, parsed.Unmarshal(raw))
	require.Len(t, parsed.MediaDescriptions, 1)

	media := parsed.MediaDescriptions[0]
	assert.Equal(t, "audio", media.MediaName.Media)
	assert.Equal(t, 5000, media.MediaName.Port.Value)
	assert.Equal(t, []string{"96", "100"}, media.MediaName.Formats)

	var rtpmaps []string
	for _, a := range media.Attributes {
		if a.Key == "rtpmap" {
			rtpmaps = append(rtpmaps, a.Value)
		}
	}
	assert.Equal(t, []string{"96 opus/48000/2", "100 ulpfec/48000"}, rtpmaps)

	ptime, ok := media.Attribute("ptime")
	require.True(t, ok)
	assert.Equal(t, "20", ptime)
	_, ok = media.Attribute(session.DirectionRecvOnly)
	assert.True(t, ok)
	assert.Equal(t, uint64(1700000000), parsed.Origin.SessionID)
}

// TestDescribeIPv6 проверяет тип адреса
func TestDescribeIPv6(t *testing.T) {
	desc, err := session.Describe(session.DescribeParams{Host: "::1", Port: 5000})
	require.NoError(t, err)
	assert.Equal(t, "IP6", desc.ConnectionInformation.AddressType)
}

// TestDescribeInvalid проверяет отказ на неверных параметрах
func TestDescribeInvalid(t *testing.T) {
	for name, p := range map[string]session.DescribeParams{
		"port":      {Host: "127.0.0.1", Port: 0},
		"host":      {Host: "example.org", Port: 5000},
		"direction": {Host: "127.0.0.1", Port: 5000, Direction: "sideways"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := session.Describe(p)
			assert.ErrorIs(t, err, session.ErrInvalidParams)
		})
	}
}
