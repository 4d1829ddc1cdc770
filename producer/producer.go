// Package producer turns raw units pulled from an upstream collaborator into
// the content a reader consumes, applying the interceptor chain and holding
// at most one unit at a time.
package producer

import (
	"time"

	"go.uber.org/zap"

	"github.com/ozontech/contentpipe/content"
)

// Upstream produces raw content on demand.
type Upstream interface {
	// Produce returns the next raw unit or nil if none is ready yet.
	Produce() *content.Content
	// NeedContent reports true if a unit can be produced right away.
	// Otherwise wake is called once when one may be, never from inside
	// NeedContent itself. A registration must be honoured even when the
	// producer is recycled in between: until wake runs no new one is made.
	NeedContent(wake func()) bool
}

type Producer interface {
	NextContent() *content.Content
	Reclaim(c *content.Content)
	CheckMinDataRate() error
	ConsumeAll(err error) (atEOF bool)
	IsReady() bool
	IsError() bool
	HasContent() bool
	Available() int
	RawContentArrived() int64
	SetInterceptor(i content.Interceptor)
	Interceptor() content.Interceptor
	Recycle()
}

var (
	_ Producer = (*Async)(nil)
	_ Producer = (*Blocking)(nil)
)

type Opt interface {
	apply(*Async)
}

// WithMinDataRate fails the stream when fewer than Rate bytes per second
// arrive, measured from the first byte once Window has elapsed.
type WithMinDataRate struct {
	Rate   int64
	Window time.Duration
}

func (o WithMinDataRate) apply(p *Async) {
	p.meter.rate = o.Rate
	p.meter.window = o.Window
}

type WithClock func() time.Time

func (o WithClock) apply(p *Async) { p.meter.now = o }

type WithInterceptor struct {
	content.Interceptor
}

func (o WithInterceptor) apply(p *Async) { p.interceptor = o.Interceptor }

func named(log *zap.Logger, name string) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log.Named(name)
}
