// Package config loads pipeline settings from YAML. Sizes accept
// human-readable values such as "64KiB" or "1 MB".
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ozontech/contentpipe/frames"
	"github.com/ozontech/contentpipe/intercept"
	"github.com/ozontech/contentpipe/message"
	"github.com/ozontech/contentpipe/producer"
	"github.com/ozontech/contentpipe/source"
)

type Config struct {
	Reader  ReaderConfig  `yaml:"reader"`
	Message MessageConfig `yaml:"message"`
	Log     LogConfig     `yaml:"log"`
}

type ReaderConfig struct {
	ChunkSize         ByteSize      `yaml:"chunk_size"`
	MaxBodySize       ByteSize      `yaml:"max_body_size"`
	MinDataRate       ByteSize      `yaml:"min_data_rate"` // per second, 0 disables
	MinDataRateWindow time.Duration `yaml:"min_data_rate_window"`
}

type MessageConfig struct {
	MaxSize        ByteSize `yaml:"max_size"`
	StreamID       uint32   `yaml:"stream_id"`
	ReadBufferSize ByteSize `yaml:"read_buffer_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		Reader: ReaderConfig{
			ChunkSize:         source.DefaultChunkSize,
			MaxBodySize:       0,
			MinDataRate:       0,
			MinDataRateWindow: time.Second,
		},
		Message: MessageConfig{
			MaxSize:        64 << 20,
			ReadBufferSize: frames.DefaultReadBufferSize,
		},
		Log: LogConfig{Level: "info"},
	}
}

func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads YAML on top of Default. Unknown keys are an error.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var err error
	if c.Reader.ChunkSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("reader.chunk_size must be positive, got %s", c.Reader.ChunkSize))
	}
	if c.Reader.MaxBodySize < 0 {
		err = multierr.Append(err, errors.New("reader.max_body_size must not be negative"))
	}
	if c.Reader.MinDataRate < 0 {
		err = multierr.Append(err, errors.New("reader.min_data_rate must not be negative"))
	}
	if c.Reader.MinDataRate > 0 && c.Reader.MinDataRateWindow <= 0 {
		err = multierr.Append(err, errors.New("reader.min_data_rate_window must be positive when a rate is set"))
	}
	if c.Message.MaxSize < 0 {
		err = multierr.Append(err, errors.New("message.max_size must not be negative"))
	}
	if c.Message.ReadBufferSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("message.read_buffer_size must be positive, got %s", c.Message.ReadBufferSize))
	}
	if _, lerr := zapcore.ParseLevel(c.Log.Level); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("log.level: %w", lerr))
	}
	return err
}

func (c Config) LogLevel() zapcore.Level {
	l, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// ProducerOpts configures the producer behind a reader. The body limit is
// a fresh interceptor per call.
func (c Config) ProducerOpts() []producer.Opt {
	var opts []producer.Opt
	if c.Reader.MinDataRate > 0 {
		opts = append(opts, producer.WithMinDataRate{
			Rate:   int64(c.Reader.MinDataRate),
			Window: c.Reader.MinDataRateWindow,
		})
	}
	if c.Reader.MaxBodySize > 0 {
		opts = append(opts, producer.WithInterceptor{Interceptor: intercept.Limit(int64(c.Reader.MaxBodySize))})
	}
	return opts
}

func (c Config) SourceOpts() []source.Opt {
	return []source.Opt{source.WithChunkSize(c.Reader.ChunkSize)}
}

func (c Config) MessageOpts() []message.Opt {
	return []message.Opt{message.WithMaxSize(c.Message.MaxSize)}
}

func (c Config) PumpOpts() []frames.Opt {
	return []frames.Opt{
		frames.WithStreamID(c.Message.StreamID),
		frames.WithReadBufferSize(c.Message.ReadBufferSize),
	}
}

func (c Config) String() string {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err.Error()
	}
	_ = enc.Close()
	return buf.String()
}

// ByteSize is a size in bytes read from "1.5 MiB", "64k" or a plain number.
type ByteSize int64

func (s *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*s = ByteSize(n)
		return nil
	}
	var str string
	if err := value.Decode(&str); err != nil {
		return fmt.Errorf("line %d: size must be a number or a string: %w", value.Line, err)
	}
	v, err := humanize.ParseBytes(str)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = ByteSize(v)
	return nil
}

func (s ByteSize) MarshalYAML() (any, error) {
	return s.String(), nil
}

func (s ByteSize) String() string {
	if s < 0 {
		return fmt.Sprintf("%d B", int64(s))
	}
	return humanize.IBytes(uint64(s))
}
