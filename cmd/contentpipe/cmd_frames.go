package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ozontech/contentpipe/config"
	"github.com/ozontech/contentpipe/content"
	"github.com/ozontech/contentpipe/frames"
	"github.com/ozontech/contentpipe/message"
	"github.com/ozontech/contentpipe/report"
	"github.com/ozontech/contentpipe/report/simple"
)

type FramesCommand struct {
	In  *os.File `arg:"" required:"" default:"-" help:"Raw HTTP/2 frames without the connection preface (default is stdin)"`
	Out string   `arg:"" required:"" default:"-" help:"Messages output, one per line (default is stdout)" type:"path"`

	StreamID uint32 `help:"Only reassemble DATA frames of this stream, overrides the configuration."`
}

func (c *FramesCommand) Run(ctx context.Context, cfg config.Config, log *zap.Logger, interval reportInterval) error {
	out, err := openOutput(c.Out)
	if err != nil {
		return fmt.Errorf("output file creation: %w", err)
	}
	defer out.Close()

	if c.StreamID != 0 {
		cfg.Message.StreamID = c.StreamID
	}
	rep := simple.New(os.Stderr, time.Duration(interval))
	delivered, err := framesPipeline(ctx, cfg, log, rep, c.In, out)
	log.Info("frames finished", zap.Int("frames", delivered), zap.Error(err))
	return err
}

func framesPipeline(
	ctx context.Context,
	cfg config.Config,
	log *zap.Logger,
	rep report.Reporter,
	in io.Reader,
	out io.Writer,
) (int, error) {
	var pump *frames.Pump
	reassembler := message.New(
		func(payload []byte) error {
			if _, err := out.Write(payload); err != nil {
				return err
			}
			if _, err := out.Write([]byte{'\n'}); err != nil {
				return err
			}
			rep.Message(len(payload), nil)
			return nil
		},
		message.DemanderFunc(func(n int) { pump.Demand(n) }),
		log,
		cfg.MessageOpts()...,
	)
	pump = frames.NewPump(in, reportingSink{reassembler, rep}, log, cfg.PumpOpts()...)

	g := new(errgroup.Group)
	g.Go(rep.Run)
	g.Go(func() error {
		defer rep.Close() //nolint:errcheck
		return pump.Run(ctx)
	})
	err := g.Wait()
	return pump.Delivered(), err
}

// reportingSink reports a failed message once, on the frame whose arrival
// failed it.
type reportingSink struct {
	next frames.Sink
	rep  report.Reporter
}

func (s reportingSink) Accept(frame message.Frame, cb content.Callback) {
	current := true
	s.next.Accept(frame, content.CallbackFuncs{
		OnSucceeded: cb.Succeeded,
		OnFailed: func(err error) {
			if current {
				s.rep.Message(0, err)
			}
			cb.Failed(err)
		},
	})
	current = false
}
