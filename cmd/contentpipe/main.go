package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	mangokong "github.com/alecthomas/mango-kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ozontech/contentpipe/config"
)

var CLI struct {
	Read   ReadCommand   `cmd:"" help:"Read a byte stream through the demand-driven reader."`
	Frames FramesCommand `cmd:"" help:"Reassemble messages from HTTP/2 DATA frames."`
	Config ConfigCommand `cmd:"" help:"Print the effective configuration."`

	ConfigFile     string            `name:"config" type:"existingfile" placeholder:"contentpipe.yaml" help:"YAML configuration file."`
	Verbose        bool              `help:"Verbose output."`
	ReportInterval time.Duration     `default:"1s" help:"Throughput report interval."`
	Man            mangokong.ManFlag `help:"Write man page." hidden:""`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(
		&CLI,
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.ConfigureHelp(kong.HelpOptions{
			Tree:    true,
			Compact: true,
		}),
		kong.Description(`demand-driven content pipeline

Reads byte streams and HTTP/2 DATA frames pulling one unit at a time, so that a slow consumer holds back the producer.
		`),
	)

	cfg := config.Default()
	if CLI.ConfigFile != "" {
		var err error
		cfg, err = config.Load(CLI.ConfigFile)
		kongCtx.FatalIfErrorf(err)
	}

	log := newLogger(CLI.Verbose, cfg.LogLevel())
	defer log.Sync() //nolint:errcheck

	err := kongCtx.Run(cfg, log, reportInterval(CLI.ReportInterval))
	kongCtx.FatalIfErrorf(err)
}

type reportInterval time.Duration

func newLogger(verbose bool, level zapcore.Level) *zap.Logger {
	if verbose {
		return zap.Must(zap.NewDevelopment())
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stderr"}
	log, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func openOutput(path string) (*os.File, error) {
	if path == "-" {
		return os.Stdout, nil
	}
	return os.Create(path)
}
