package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/ozontech/contentpipe/config"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	assert.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.ProducerOpts())
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel())
}

func TestParse(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	cfg, err := config.Parse(strings.NewReader(`
reader:
  chunk_size: 4KiB
  max_body_size: "1 MB"
  min_data_rate: 512
  min_data_rate_window: 3s
message:
  max_size: 10
  stream_id: 5
log:
  level: debug
`))
	require.NoError(t, err)

	a.Equal(config.ByteSize(4096), cfg.Reader.ChunkSize)
	a.Equal(config.ByteSize(1000000), cfg.Reader.MaxBodySize)
	a.Equal(config.ByteSize(512), cfg.Reader.MinDataRate)
	a.Equal(3*time.Second, cfg.Reader.MinDataRateWindow)
	a.Equal(config.ByteSize(10), cfg.Message.MaxSize)
	a.Equal(uint32(5), cfg.Message.StreamID)
	a.Equal(config.Default().Message.ReadBufferSize, cfg.Message.ReadBufferSize, "defaults kept")
	a.Equal(zapcore.DebugLevel, cfg.LogLevel())

	a.Len(cfg.ProducerOpts(), 2)
	a.Len(cfg.SourceOpts(), 1)
	a.Len(cfg.MessageOpts(), 1)
	a.Len(cfg.PumpOpts(), 2)
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()
	cfg, err := config.Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	for name, input := range map[string]string{
		"unknown key": "reader:\n  chunk: 1\n",
		"bad size":    "reader:\n  chunk_size: lots\n",
		"sequence":    "reader:\n  chunk_size: [1]\n",
	} {
		_, err := config.Parse(strings.NewReader(input))
		assert.Error(t, err, name)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Reader.ChunkSize = 0
	cfg.Reader.MinDataRate = 10
	cfg.Reader.MinDataRateWindow = 0
	cfg.Message.ReadBufferSize = -1
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
}

func TestLoad(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	path := filepath.Join(t.TempDir(), "contentpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("message:\n  max_size: 2MiB\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	a.Equal(config.ByteSize(2<<20), cfg.Message.MaxSize)

	// what String prints parses back to the same config
	again, err := config.Parse(strings.NewReader(cfg.String()))
	require.NoError(t, err)
	a.Equal(cfg, again)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	a.Error(err)
}
