package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ozontech/contentpipe/config"
	"github.com/ozontech/contentpipe/input"
	"github.com/ozontech/contentpipe/intercept"
	"github.com/ozontech/contentpipe/report"
	"github.com/ozontech/contentpipe/report/simple"
	"github.com/ozontech/contentpipe/source"
)

type ReadCommand struct {
	In  *os.File `arg:"" required:"" default:"-" help:"Input file (default is stdin)"`
	Out string   `arg:"" required:"" default:"-" help:"Output file (default is stdout)" type:"path"`

	Async bool `help:"Consume through a read listener instead of blocking reads."`
}

func (c *ReadCommand) Run(ctx context.Context, cfg config.Config, log *zap.Logger, interval reportInterval) error {
	out, err := openOutput(c.Out)
	if err != nil {
		return fmt.Errorf("output file creation: %w", err)
	}
	defer out.Close()

	rep := simple.New(os.Stderr, time.Duration(interval))
	n, err := readPipeline(ctx, cfg, log, rep, c.In, out, c.Async)
	log.Info("read finished", zap.Int64("written", n), zap.Error(err))
	return err
}

// readPipeline copies in to out through a source.Stream and an input.Reader.
func readPipeline(
	ctx context.Context,
	cfg config.Config,
	log *zap.Logger,
	rep report.Reporter,
	in io.Reader,
	out io.Writer,
	async bool,
) (int64, error) {
	g, ctx := errgroup.WithContext(ctx)

	stream := source.New(in, log, cfg.SourceOpts()...)
	sess := newSession()
	reader := input.New(sess, stream, log, cfg.ProducerOpts()...)
	reader.AddInterceptor(intercept.Observe(rep.Chunk))

	g.Go(func() error {
		return stream.Run(ctx)
	})
	g.Go(rep.Run)

	var written int64
	g.Go(func() error {
		defer rep.Close() //nolint:errcheck
		var err error
		if async {
			written, err = readAsync(ctx, sess, reader, out)
		} else {
			written, err = io.Copy(out, reader)
		}
		if err != nil {
			return fmt.Errorf("copy: %w", err)
		}
		return nil
	})

	err := g.Wait()
	return written, err
}

func readAsync(ctx context.Context, sess *session, reader *input.Reader, out io.Writer) (int64, error) {
	sessCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sess.run(sessCtx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	var written int64
	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	buf := make([]byte, 32<<10)

	err := reader.SetReadListener(input.ListenerFuncs{
		DataAvailable: func() error {
			for reader.IsReady() {
				n, err := reader.Read(buf)
				if n > 0 {
					if _, werr := out.Write(buf[:n]); werr != nil {
						return werr
					}
					written += int64(n)
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
		AllDataRead: func() error {
			finish(nil)
			return nil
		},
		Error: finish,
	})
	if err != nil {
		return 0, err
	}

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	// written belongs to the session goroutine until it stops
	cancel()
	wg.Wait()
	return written, err
}
