// Package source adapts an io.Reader into a demand-driven upstream: a chunk
// is read only after a consumer asked for one.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/ozontech/contentpipe/content"
	"github.com/ozontech/contentpipe/utils/pool"
)

const DefaultChunkSize = 16 << 10

type Opt interface {
	apply(*Stream)
}

// WithChunkSize sets the size of a single read.
type WithChunkSize int

func (o WithChunkSize) apply(s *Stream) {
	if o > 0 {
		s.chunkSize = int(o)
	}
}

// WithBuffers shares a buffer pool between streams.
type WithBuffers struct{ *pool.Buffers }

func (o WithBuffers) apply(s *Stream) { s.bufs = o.Buffers }

// Stream implements producer.Upstream. Run must be running for content to
// arrive.
type Stream struct {
	r         io.Reader
	chunkSize int
	bufs      *pool.Buffers
	log       *zap.Logger

	demand chan struct{}

	mu      sync.Mutex
	ready   *content.Content
	tail    *content.Content // terminal unit read together with the last chunk
	wake    func()
	pending bool // a read was requested and not yet published
	demands int
}

func New(r io.Reader, log *zap.Logger, opts ...Opt) *Stream {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Stream{
		r:         r,
		chunkSize: DefaultChunkSize,
		log:       log.Named("source"),
		demand:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o.apply(s)
	}
	if s.bufs == nil {
		s.bufs = pool.NewBuffers(s.chunkSize, 4)
	}
	return s
}

func (s *Stream) Produce() *content.Content {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ready
	if c == nil {
		s.request()
		return nil
	}
	s.ready, s.tail = s.tail, nil
	return c
}

func (s *Stream) NeedContent(wake func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready != nil {
		return true
	}
	s.wake = wake
	s.request()
	return false
}

func (s *Stream) request() {
	if s.pending {
		return
	}
	s.pending = true
	select {
	case s.demand <- struct{}{}:
	default: // stale token left by a cancelled Run
	}
}

// Demands counts reads made on behalf of consumers.
func (s *Stream) Demands() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demands
}

// Run serves demands until the reader is exhausted or ctx is done. The
// terminal unit (EOF or error) is always published before Run returns.
func (s *Stream) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("stream cancelled", zap.Error(ctx.Err()))
			s.publish(nil, content.NewError(ctx.Err()))
			return ctx.Err()
		case <-s.demand:
		}

		s.mu.Lock()
		s.demands++
		s.mu.Unlock()

		payload, err := s.read()
		switch {
		case err == nil:
			s.publish(payload, nil)
		case errors.Is(err, io.EOF):
			s.log.Debug("stream finished")
			s.publish(payload, content.EOF)
			return nil
		default:
			s.log.Debug("stream failed", zap.Error(err))
			err = fmt.Errorf("read source: %w", err)
			s.publish(payload, content.NewError(err))
			return err
		}
	}
}

// read returns a non-empty payload, an error, or both.
func (s *Stream) read() (*content.Content, error) {
	buf := s.bufs.Get()
	for {
		n, err := s.r.Read(buf)
		if n == 0 && err == nil {
			continue
		}
		if n == 0 {
			s.bufs.Put(buf)
			return nil, err
		}
		chunk := buf[:n]
		return content.NewPayload(chunk, content.Release(func() { s.bufs.Put(chunk) })), err
	}
}

func (s *Stream) publish(payload, terminal *content.Content) {
	s.mu.Lock()
	switch {
	case payload != nil:
		s.ready, s.tail = payload, terminal
	case s.ready != nil:
		s.tail = terminal
	default:
		s.ready = terminal
	}
	s.pending = false
	wake := s.wake
	s.wake = nil
	s.mu.Unlock()

	if wake != nil {
		wake()
	}
}
