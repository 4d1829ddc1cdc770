package frames

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"

	"github.com/ozontech/contentpipe/utils/pool"
)

const (
	DefaultReadBufferSize = 64 << 10
	// DefaultFrameBufferSize covers the default SETTINGS_MAX_FRAME_SIZE.
	DefaultFrameBufferSize = 16 << 10
)

type Opt interface {
	apply(*Pump)
}

// WithStreamID restricts the pump to one stream; 0 takes DATA frames of any
// stream.
type WithStreamID uint32

func (o WithStreamID) apply(p *Pump) { p.streamID = uint32(o) }

type WithReadBufferSize int

func (o WithReadBufferSize) apply(p *Pump) {
	if o > 0 {
		p.readBufferSize = int(o)
	}
}

// WithInitialDemand sets how many frames may be delivered before the sink
// demands more. Defaults to 1.
type WithInitialDemand uint32

func (o WithInitialDemand) apply(p *Pump) { p.initial = uint32(o) }

type WithBuffers struct{ *pool.Buffers }

func (o WithBuffers) apply(p *Pump) { p.bufs = o.Buffers }

// Pump reads HTTP/2 frames from r and feeds DATA frames to a sink, waiting
// for demand before each one. Demand is the sink's message.Demander.
type Pump struct {
	r   io.Reader
	log *zap.Logger

	streamID       uint32
	readBufferSize int
	initial        uint32
	bufs           *pool.Buffers

	credits   *credits
	data      *dataFrameProcessor
	processor *Processor
}

func NewPump(r io.Reader, sink Sink, log *zap.Logger, opts ...Opt) *Pump {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pump{
		r:              r,
		log:            log.Named("pump"),
		readBufferSize: DefaultReadBufferSize,
		initial:        1,
	}
	for _, o := range opts {
		o.apply(p)
	}
	if p.bufs == nil {
		p.bufs = pool.NewBuffers(DefaultFrameBufferSize, 8)
	}

	p.credits = newCredits(p.initial)
	p.data = newDataFrameProcessor(p.streamID, sink, p.credits, p.bufs, p.log)
	p.processor = NewProcessor([]FrameTypeProcessor{
		http2.FrameData:      p.data,
		http2.FrameRSTStream: newRSTStreamFrameProcessor(p.streamID),
		http2.FrameGoAway:    newGoAwayFrameProcessor(),
	})
	return p
}

// Demand grants n more frames.
func (p *Pump) Demand(n int) {
	if n > 0 {
		p.credits.Add(uint32(n))
	}
}

// Delivered counts frames handed to the sink.
func (p *Pump) Delivered() int { return p.data.delivered }

// Run returns nil once r is exhausted at a frame boundary.
func (p *Pump) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, p.credits.Disable)
	defer stop()

	ch := make(chan []byte)
	g.Go(func() error {
		return p.processor.Run(ch)
	})
	g.Go(func() error {
		defer close(ch)
		buf1 := make([]byte, p.readBufferSize)
		buf2 := make([]byte, p.readBufferSize)
		for {
			done, err := p.read(gctx, ch, buf1)
			if done || err != nil {
				return err
			}
			done, err = p.read(gctx, ch, buf2)
			if done || err != nil {
				return err
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, errStopped) && ctx.Err() != nil {
		err = ctx.Err()
	}
	if p.processor.Pending() && ctx.Err() == nil {
		err = multierr.Append(err, fmt.Errorf("frame cut short: %w", io.ErrUnexpectedEOF))
	}
	p.log.Debug("pump finished", zap.Int("delivered", p.Delivered()), zap.Error(err))
	return err
}

func (p *Pump) read(ctx context.Context, ch chan<- []byte, b []byte) (bool, error) {
	if ctx.Err() != nil {
		return true, ctx.Err()
	}

	n, err := p.r.Read(b)
	if n > 0 {
		select {
		case ch <- b[:n]:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
	switch {
	case errors.Is(err, io.EOF):
		return true, nil
	case err != nil:
		return true, fmt.Errorf("reading error: %w", err)
	}
	return false, nil
}
