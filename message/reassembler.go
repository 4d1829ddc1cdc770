// Package message reassembles a sequence of frames into one logical
// message delivered to a single handler, pulling frames one at a time.
package message

import (
	"go.uber.org/zap"

	"github.com/ozontech/contentpipe/content"
	"github.com/ozontech/contentpipe/faults"
)

type Frame struct {
	Payload []byte
	Fin     bool // last frame of the message
}

func (f Frame) PayloadLength() int { return len(f.Payload) }

// Handler receives a complete message. The slice is only valid for the
// duration of the call on the single frame fast path.
type Handler func(payload []byte) error

// Demander asks upstream for n more frames.
type Demander interface {
	Demand(n int)
}

type DemanderFunc func(n int)

func (f DemanderFunc) Demand(n int) { f(n) }

type Opt interface {
	apply(*Reassembler)
}

// WithMaxSize limits the aggregate message size; 0 means unlimited.
type WithMaxSize int64

func (o WithMaxSize) apply(r *Reassembler) { r.maxSize = int64(o) }

// Reassembler is driven by one frame at a time: the next Accept happens
// only after the Demand issued by the previous one.
type Reassembler struct {
	handler  Handler
	demander Demander
	maxSize  int64
	log      *zap.Logger

	out        *Accumulator // nil until a message spans several frames
	discarding bool         // rest of a failed message
}

func New(handler Handler, demander Demander, log *zap.Logger, opts ...Opt) *Reassembler {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reassembler{
		handler:  handler,
		demander: demander,
		log:      log.Named("reassembler"),
	}
	for _, o := range opts {
		o.apply(r)
	}
	return r
}

// Accept takes one frame and the callback acknowledging it. Failures are
// reported through the callbacks of every frame held for the message.
func (r *Reassembler) Accept(frame Frame, cb content.Callback) {
	if cb == nil {
		cb = content.Noop
	}

	if r.discarding {
		r.discarding = !frame.Fin
		cb.Succeeded()
		r.demander.Demand(1)
		return
	}

	err := r.accept(frame, &cb)
	if err == nil {
		return
	}

	r.log.Debug("message failed", zap.Error(err), zap.Bool("fin", frame.Fin))
	if r.out != nil {
		r.out.Fail(err)
		r.out = nil
	}
	cb.Failed(err)
	r.discarding = !frame.Fin
	r.demander.Demand(1)
}

func (r *Reassembler) accept(frame Frame, cb *content.Callback) error {
	size := int64(r.out.Len() + frame.PayloadLength())
	if r.maxSize > 0 && size > r.maxSize {
		return &faults.SizeLimitError{What: "message", Size: size, Max: r.maxSize}
	}

	if frame.Fin && r.out == nil {
		payload := frame.Payload
		if payload == nil {
			payload = []byte{}
		}
		if err := r.handler(payload); err != nil {
			return err
		}
		(*cb).Succeeded()
		r.demander.Demand(1)
		return nil
	}

	if frame.PayloadLength() > 0 {
		if r.out == nil {
			r.out = &Accumulator{}
		}
		r.out.Add(frame.Payload, *cb)
	} else {
		(*cb).Succeeded()
	}
	// acknowledged through the accumulator from now on
	*cb = content.Noop

	if frame.Fin {
		if err := r.handler(r.out.Bytes()); err != nil {
			return err
		}
		r.out.Succeed()
		r.out = nil
		r.log.Debug("message delivered", zap.Int64("size", size))
	}
	r.demander.Demand(1)
	return nil
}

// Aggregating reports whether a multi-frame message is in progress.
func (r *Reassembler) Aggregating() bool { return r.out != nil }
