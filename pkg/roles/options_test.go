package roles_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/opus_fec/pkg/roles"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoadOptions YAML переопределяет только указанные поля
func TestLoadOptions(t *testing.T) {
	path := writeFile(t, "opus_fec.yaml", `
log_level: debug
log_json: true
stats_interval: 1s
metrics_addr: 127.0.0.1:9100
sink: fakesink
buffer_time: 40000
dot: true
drain_timeout: 250ms
`)
	opts, err := roles.LoadOptions(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", opts.LogLevel)
	assert.True(t, opts.LogJSON)
	assert.True(t, opts.Stats)
	assert.Equal(t, time.Second, opts.StatsInterval)
	assert.Equal(t, "127.0.0.1:9100", opts.MetricsAddr)
	assert.Equal(t, "fakesink", opts.SinkFactory)
	assert.Equal(t, int64(40000), opts.BufferTime)
	assert.Equal(t, "jackaudiosrc", opts.SourceFactory)
	assert.True(t, opts.Dot)
	assert.Equal(t, 250*time.Millisecond, opts.DrainTimeout)
}

func TestLoadOptionsDefaults(t *testing.T) {
	opts, err := roles.LoadOptions("")
	require.NoError(t, err)
	assert.Equal(t, roles.DefaultOptions(), opts)
}

func TestLoadOptionsErrors(t *testing.T) {
	_, err := roles.LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = roles.LoadOptions(writeFile(t, "bad.yaml", "log_level: [\n"))
	require.Error(t, err)

	_, err = roles.LoadOptions(writeFile(t, "level.yaml", "log_level: loud\n"))
	var invalid *roles.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "log_level", invalid.Name)

	_, err = roles.LoadOptions(writeFile(t, "addr.yaml", "metrics_addr: nowhere\n"))
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "metrics_addr", invalid.Name)

	_, err = roles.LoadOptions(writeFile(t, "buffer.yaml", "buffer_time: -1\n"))
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "buffer_time", invalid.Name)
}

// TestOptionsMarshalRoundTrip --print-config должен читаться обратно
func TestOptionsMarshalRoundTrip(t *testing.T) {
	opts := roles.DefaultOptions()
	opts.SDPPath = "/tmp/stream.sdp"
	data, err := opts.Marshal()
	require.NoError(t, err)

	loaded, err := roles.LoadOptions(writeFile(t, "dump.yaml", string(data)))
	require.NoError(t, err)
	assert.Equal(t, opts, loaded)
}

func TestOptionsLogger(t *testing.T) {
	opts := roles.DefaultOptions()
	opts.LogLevel = "warn"
	logger, err := opts.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
