package producer

import (
	"go.uber.org/zap"

	"github.com/ozontech/contentpipe/content"
	"github.com/ozontech/contentpipe/faults"
)

// Blocking parks the caller of NextContent until content is available.
type Blocking struct {
	*Async
	waiter *waiter
	log    *zap.Logger
}

func NewBlocking(async *Async) *Blocking {
	b := &Blocking{
		Async:  async,
		waiter: newWaiter(),
		log:    async.log.Named("blocking"),
	}
	async.OnProducible(b.OnContentProducible)
	return b
}

// NextContent never returns nil. A caller parked while the pipeline is
// recycled gets an error sentinel carrying faults.ErrRecycled.
func (b *Blocking) NextContent() *content.Content {
	for {
		gen := b.waiter.begin()
		if c := b.Async.NextContent(); c != nil {
			return c
		}
		if b.Async.Demand() {
			continue
		}
		b.log.Debug("waiting for content")
		if !b.waiter.wait(gen) {
			b.log.Debug("interrupted by recycle")
			return content.NewError(faults.ErrRecycled)
		}
	}
}

// OnContentProducible wakes a parked caller.
func (b *Blocking) OnContentProducible() {
	b.waiter.signal()
}

// IsReady is always true: a blocking read waits instead of reporting
// not-ready.
func (b *Blocking) IsReady() bool { return true }

func (b *Blocking) Recycle() {
	b.waiter.interrupt()
	b.Async.Recycle()
	b.Async.OnProducible(b.OnContentProducible)
}
