// Package input exposes pipeline content to application code, either as a
// blocking io.Reader or through a ReadListener notified as content arrives.
package input

import (
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/ozontech/contentpipe/content"
	"github.com/ozontech/contentpipe/faults"
	"github.com/ozontech/contentpipe/producer"
)

var errNoContent = errors.New("no data, no error and not EOF")

// Session is the connection scoped state a Reader is bound to.
type Session interface {
	// IsAsyncStarted reports whether the request entered asynchronous mode.
	IsAsyncStarted() bool
	// Execute runs task, typically on another goroutine. Tasks for one
	// Reader must not run concurrently.
	Execute(task func())
}

type State int

const (
	StateInitial State = iota
	StateAsyncArmed
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateAsyncArmed:
		return "async-armed"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Reader is not safe for concurrent Read/Run calls; callers serialize
// them. Recycle may be called while a blocking Read is parked.
type Reader struct {
	session  Session
	async    *producer.Async
	blocking *producer.Blocking
	log      *zap.Logger

	mu          sync.Mutex
	producer    producer.Producer
	listener    ReadListener
	consumedEOF bool
	notifiedEOF bool
}

var (
	_ io.Reader     = (*Reader)(nil)
	_ io.ByteReader = (*Reader)(nil)
)

func New(session Session, upstream producer.Upstream, log *zap.Logger, opts ...producer.Opt) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("reader")
	async := producer.NewAsync(upstream, log, opts...)
	blocking := producer.NewBlocking(async)
	return &Reader{
		session:  session,
		async:    async,
		blocking: blocking,
		producer: blocking,
		log:      log,
	}
}

func (r *Reader) current() producer.Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.producer
}

// SetReadListener switches the reader to asynchronous mode. It may be
// called once per lifecycle and only after the session started async mode.
func (r *Reader) SetReadListener(l ReadListener) error {
	r.mu.Lock()
	switch {
	case r.listener != nil:
		r.mu.Unlock()
		return faults.Usage("read listener already set")
	case l == nil:
		r.mu.Unlock()
		return faults.Usage("nil read listener")
	case !r.session.IsAsyncStarted():
		r.mu.Unlock()
		return faults.Usage("async not started")
	}
	r.listener = l
	r.producer = r.async
	r.async.OnProducible(r.scheduleNotification)
	r.mu.Unlock()

	r.log.Debug("read listener set")
	// content may have arrived before the listener, e.g. a read raced the
	// switch to async mode
	if r.async.IsReady() {
		r.scheduleNotification()
	}
	return nil
}

func (r *Reader) scheduleNotification() {
	r.session.Execute(r.Run)
}

// Read implements io.Reader. It never returns 0, nil: an empty p is a usage
// fault, upstream failures come back as *faults.IOError.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, faults.Usage("zero length read")
	}

	prod := r.current()
	// a violation latches an error sentinel that the pull below returns
	_ = prod.CheckMinDataRate()

	c := prod.NextContent()
	if c == nil {
		return 0, faults.Usage("read on unready input")
	}

	if !c.IsSpecial() {
		n := c.Get(p)
		if c.IsEmpty() {
			prod.Reclaim(c)
		}
		if n == 0 {
			return 0, errNoContent
		}
		r.log.Debug("read produced bytes", zap.Int("n", n))
		return n, nil
	}

	if err := c.Err(); err != nil {
		r.log.Debug("read error", zap.Error(err))
		return 0, faults.AsIO(err)
	}

	if c.IsEOF() {
		r.mu.Lock()
		r.consumedEOF = true
		owed := r.listener != nil && !r.notifiedEOF
		r.mu.Unlock()

		r.log.Debug("read at EOF")
		if owed {
			r.scheduleNotification()
		}
		return 0, io.EOF
	}

	return 0, errNoContent
}

func (r *Reader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := r.Read(b[:])
	return b[0], err
}

// Run delivers one notification to the listener: OnDataAvailable,
// OnAllDataRead or OnError. OnAllDataRead fires at most once per lifecycle.
// Without a listener it only moves production forward and wakes a blocked
// Read.
func (r *Reader) Run() {
	r.mu.Lock()
	l := r.listener
	r.mu.Unlock()

	if l == nil {
		// never park here: pull through the async producer
		c := r.async.NextContent()
		r.log.Debug("running without a read listener", zap.Stringer("content", c))
		r.blocking.OnContentProducible()
		return
	}

	c := r.async.NextContent()
	if c == nil {
		// a read took the content after the wake, wait for the next one
		ready := r.async.IsReady()
		r.log.Debug("running without content", zap.Bool("ready", ready))
		if ready {
			r.scheduleNotification()
		}
		return
	}

	if !c.IsSpecial() {
		if err := l.OnDataAvailable(); err != nil {
			r.log.Debug("data available callback failed", zap.Error(err))
			l.OnError(err)
		}
		return
	}

	if err := c.Err(); err != nil {
		r.log.Debug("running has error", zap.Error(err))
		l.OnError(err)
		return
	}

	r.mu.Lock()
	notified := r.notifiedEOF
	r.notifiedEOF = true
	r.consumedEOF = true
	r.mu.Unlock()
	if notified {
		return
	}

	r.log.Debug("running at EOF")
	if err := l.OnAllDataRead(); err != nil {
		r.log.Debug("all data read callback failed", zap.Error(err))
		l.OnError(err)
	}
}

// IsReady reports whether Read would not block. In async mode a false
// result arranges for the listener to be notified later.
func (r *Reader) IsReady() bool {
	ready := r.current().IsReady()
	r.log.Debug("is ready", zap.Bool("ready", ready))
	return ready
}

func (r *Reader) IsFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consumedEOF
}

func (r *Reader) IsError() bool {
	return r.async.IsError()
}

func (r *Reader) IsAsync() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listener != nil
}

func (r *Reader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.consumedEOF:
		return StateFinished
	case r.async.IsError():
		return StateFailed
	case r.listener != nil:
		return StateAsyncArmed
	}
	return StateInitial
}

// HasContent and Available only look at content already held.
func (r *Reader) HasContent() bool { return r.async.HasContent() }

func (r *Reader) Available() int { return r.async.Available() }

// ContentReceived counts raw bytes produced by upstream.
func (r *Reader) ContentReceived() int64 { return r.async.RawContentArrived() }

// ConsumeAll discards unread content and reports whether the stream ended
// cleanly.
func (r *Reader) ConsumeAll() bool {
	r.log.Debug("consume all")
	if r.current().ConsumeAll(faults.ErrUnconsumed) {
		r.mu.Lock()
		r.consumedEOF = true
		r.mu.Unlock()
	}
	return r.IsFinished() && !r.IsError()
}

func (r *Reader) Interceptor() content.Interceptor { return r.async.Interceptor() }

// SetInterceptor replaces the current interceptor.
func (r *Reader) SetInterceptor(i content.Interceptor) {
	r.log.Debug("setting interceptor")
	r.async.SetInterceptor(i)
}

// AddInterceptor chains i after the current interceptor.
func (r *Reader) AddInterceptor(i content.Interceptor) {
	r.async.SetInterceptor(content.Chain(r.async.Interceptor(), i))
}

// Recycle resets the reader for the next request on the same connection.
// A Read parked in blocking mode returns a faults.ErrRecycled error.
func (r *Reader) Recycle() {
	r.log.Debug("recycle")
	r.blocking.Recycle()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.producer = r.blocking
	r.listener = nil
	r.consumedEOF = false
	r.notifiedEOF = false
}
