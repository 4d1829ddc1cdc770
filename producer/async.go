package producer

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ozontech/contentpipe/content"
	"github.com/ozontech/contentpipe/faults"
)

var errNoProgress = errors.New("interceptor absorbed nothing and produced nothing")

// Async never waits: NextContent returns nil when upstream has nothing ready.
type Async struct {
	mu          sync.Mutex
	upstream    Upstream
	interceptor content.Interceptor
	log         *zap.Logger

	raw         *content.Content // as produced by upstream
	transformed *content.Content // what the reader sees; may be raw itself
	eofPending  bool
	rawArrived  int64
	meter       rateMeter

	demanding    atomic.Bool
	onProducible atomic.Pointer[func()]
}

func NewAsync(upstream Upstream, log *zap.Logger, opts ...Opt) *Async {
	p := &Async{
		upstream: upstream,
		log:      named(log, "producer"),
		meter:    rateMeter{now: time.Now},
	}
	for _, o := range opts {
		o.apply(p)
	}
	return p
}

// OnProducible sets who gets woken when upstream has content after a demand.
func (p *Async) OnProducible(fn func()) {
	p.onProducible.Store(&fn)
}

func (p *Async) NextContent() *content.Content {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next(true)
}

// next advances to the next unit the reader may see. With pull == false it
// only works on what is already held.
func (p *Async) next(pull bool) *content.Content {
	for {
		if t := p.transformed; t != nil {
			if t.IsSpecial() || !t.IsEmpty() {
				return t
			}
			p.release(t)
		}

		if p.raw == nil {
			switch {
			case p.eofPending:
				p.raw = content.EOF
			case !pull:
				return nil
			default:
				p.raw = p.produceRaw()
				if p.raw == nil {
					return nil
				}
			}
		}

		raw := p.raw
		switch {
		case raw.IsSpecial():
			if err := raw.Err(); err != nil {
				p.log.Debug("latched error", zap.Error(err))
			}
			p.transformed = raw
		case raw.IsEmpty():
			p.raw = nil
			if raw.IsEOF() {
				p.eofPending = true
			}
			raw.Succeeded()
		case p.interceptor == nil:
			p.transformed = raw
		default:
			p.intercept(raw)
		}
	}
}

// release acknowledges the consumed unit t.
func (p *Async) release(t *content.Content) {
	p.transformed = nil
	if t == p.raw {
		p.raw = nil
	}
	if t.IsEOF() {
		p.eofPending = true
	}
	t.Succeeded()
}

// Reclaim acknowledges c right away if it is the held unit and has been
// fully consumed, instead of waiting for the next pull.
func (p *Async) Reclaim(c *content.Content) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c == p.transformed && !c.IsSpecial() && c.IsEmpty() {
		p.release(c)
	}
}

func (p *Async) intercept(raw *content.Content) {
	before := raw.Remaining()
	t := p.interceptor.Intercept(raw)
	switch {
	case t == raw:
		p.transformed = raw
		return
	case t != nil && t.Err() != nil:
		p.failWith(t.Err())
		return
	}

	p.transformed = t
	switch {
	case raw.IsEmpty():
		p.raw = nil
		if raw.IsEOF() {
			p.eofPending = true
		}
		raw.Succeeded()
	case t == nil && raw.Remaining() == before:
		p.failWith(errNoProgress)
	}
}

func (p *Async) produceRaw() *content.Content {
	c := p.upstream.Produce()
	if c == nil {
		return nil
	}
	if !c.IsSpecial() {
		n := c.Remaining()
		p.rawArrived += int64(n)
		p.meter.onBytes(n)
	}
	p.log.Debug("produced raw content", zap.Stringer("content", c), zap.Int64("arrived", p.rawArrived))
	return c
}

// failWith fails whatever is held and latches an error sentinel.
func (p *Async) failWith(err error) {
	if t := p.transformed; t != nil && t != p.raw {
		t.Failed(err)
	}
	if p.raw != nil {
		p.raw.Failed(err)
	}
	p.transformed = nil
	p.eofPending = false
	p.raw = content.NewError(err)
}

func (p *Async) terminal() bool {
	return p.raw != nil && p.raw.IsSpecial()
}

func (p *Async) CheckMinDataRate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminal() {
		return nil
	}
	err := p.meter.check(p.rawArrived)
	if err != nil {
		p.log.Debug("min data rate violated", zap.Error(err))
		p.failWith(err)
	}
	return err
}

func (p *Async) ConsumeAll(err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		c := p.next(true)
		if c == nil {
			p.log.Debug("consume all: upstream not ready", zap.Error(err))
			p.failWith(err)
			return false
		}
		if c.IsSpecial() {
			atEOF := c.Err() == nil
			p.log.Debug("consume all done", zap.Bool("eof", atEOF))
			return atEOF
		}
		c.Skip(c.Remaining())
		c.Failed(err)
	}
}

// IsReady reports whether NextContent would return without upstream. It
// never pulls; when nothing is held it registers demand instead.
func (p *Async) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next(false) != nil {
		return true
	}
	return p.demand()
}

// Demand registers interest in upstream content. At most one registration
// is outstanding; true means content is available now.
func (p *Async) Demand() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.demand()
}

func (p *Async) demand() bool {
	if !p.demanding.CompareAndSwap(false, true) {
		return false
	}
	if p.upstream.NeedContent(p.wake) {
		p.demanding.Store(false)
		return true
	}
	return false
}

func (p *Async) wake() {
	p.demanding.Store(false)
	if fn := p.onProducible.Load(); fn != nil && *fn != nil {
		(*fn)()
	}
}

// Demanding reports whether a wake-up registration is outstanding.
func (p *Async) Demanding() bool { return p.demanding.Load() }

func (p *Async) HasContent() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.transformed
	return t != nil && (t.IsSpecial() || !t.IsEmpty())
}

func (p *Async) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.transformed == nil {
		return 0
	}
	return p.transformed.Remaining()
}

func (p *Async) IsError() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.raw != nil && p.raw.Err() != nil
}

func (p *Async) RawContentArrived() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rawArrived
}

func (p *Async) SetInterceptor(i content.Interceptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interceptor = i
}

func (p *Async) Interceptor() content.Interceptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interceptor
}

// Recycle fails held content and resets the producer for the next request.
// An outstanding wake-up registration survives: it belongs to upstream and
// its wake clears the demand flag for the next lifecycle.
func (p *Async) Recycle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.Debug("recycle", zap.Int64("arrived", p.rawArrived))
	if t := p.transformed; t != nil && t != p.raw {
		t.Failed(faults.ErrRecycled)
	}
	if p.raw != nil {
		p.raw.Failed(faults.ErrRecycled)
	}
	content.Free(p.interceptor)
	p.interceptor = nil
	p.raw = nil
	p.transformed = nil
	p.eofPending = false
	p.rawArrived = 0
	p.meter.reset()
}
