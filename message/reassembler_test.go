package message_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/ozontech/contentpipe/content"
	"github.com/ozontech/contentpipe/faults"
	"github.com/ozontech/contentpipe/message"
)

type ack struct {
	succeeded int
	failed    []error
}

func (a *ack) Succeeded()       { a.succeeded++ }
func (a *ack) Failed(err error) { a.failed = append(a.failed, err) }

func (a *ack) calls() int { return a.succeeded + len(a.failed) }

type harness struct {
	messages [][]byte
	demanded int
	err      error // returned by the handler
	r        *message.Reassembler
}

func newHarness(t *testing.T, opts ...message.Opt) *harness {
	h := &harness{}
	h.r = message.New(
		func(payload []byte) error {
			if h.err != nil {
				return h.err
			}
			h.messages = append(h.messages, append([]byte(nil), payload...))
			return nil
		},
		message.DemanderFunc(func(n int) { h.demanded += n }),
		zaptest.NewLogger(t),
		opts...,
	)
	return h
}

func (h *harness) accept(payload string, fin bool) *ack {
	cb := &ack{}
	h.r.Accept(message.Frame{Payload: []byte(payload), Fin: fin}, cb)
	return cb
}

func TestReassemblerSingleFrame(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	h := newHarness(t)

	cb := h.accept("hello", true)
	a.Equal([][]byte{[]byte("hello")}, h.messages)
	a.Equal(1, cb.succeeded)
	a.Empty(cb.failed)
	a.Equal(1, h.demanded)
	a.False(h.r.Aggregating(), "single frame must not allocate an accumulator")
}

func TestReassemblerConcat(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	h := newHarness(t)

	cb1 := h.accept("hel", false)
	a.True(h.r.Aggregating())
	a.Zero(cb1.calls(), "held until the message completes")
	a.Equal(1, h.demanded)

	cb2 := h.accept("lo", true)
	a.Equal([][]byte{[]byte("hello")}, h.messages)
	a.Equal(1, cb1.succeeded)
	a.Equal(1, cb2.succeeded)
	a.Equal(2, h.demanded)
	a.False(h.r.Aggregating())
}

func TestReassemblerEmptyFrames(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	h := newHarness(t)

	cb1 := h.accept("", false)
	a.Equal(1, cb1.succeeded)
	a.False(h.r.Aggregating())

	cb2 := h.accept("", true)
	a.Equal(1, cb2.succeeded)
	require.Len(t, h.messages, 1)
	a.Empty(h.messages[0])
	a.Equal(2, h.demanded)
}

func TestReassemblerMaxSize(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	h := newHarness(t, message.WithMaxSize(10))

	cb1 := h.accept("123456", false)
	cb2 := h.accept("12345", false)

	a.Empty(h.messages, "no partial payload")
	a.False(h.r.Aggregating(), "state reset")
	require.Len(t, cb1.failed, 1)
	require.Len(t, cb2.failed, 1)

	var limit *faults.SizeLimitError
	require.ErrorAs(t, cb2.failed[0], &limit)
	a.Equal(int64(11), limit.Size)
	a.Equal(int64(10), limit.Max)
	a.Zero(cb1.succeeded)
	a.Equal(2, h.demanded)

	// the rest of the failed message is dropped
	cb3 := h.accept("tail", true)
	a.Equal(1, cb3.succeeded)
	a.Empty(h.messages)
	a.Equal(3, h.demanded)

	cb4 := h.accept("next", true)
	a.Equal(1, cb4.succeeded)
	a.Equal([][]byte{[]byte("next")}, h.messages)
}

func TestReassemblerMaxSizeOnFinalFrame(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	h := newHarness(t, message.WithMaxSize(4))

	cb := h.accept("12345", true)
	require.Len(t, cb.failed, 1)
	a.Empty(h.messages)

	// not discarding: the failed frame was final
	h.accept("ok", true)
	a.Equal([][]byte{[]byte("ok")}, h.messages)
}

func TestReassemblerHandlerError(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	h := newHarness(t)
	h.err = errors.New("handler")

	cb1 := h.accept("a", false)
	cb2 := h.accept("b", true)

	a.Equal([]error{h.err}, cb1.failed)
	a.Equal([]error{h.err}, cb2.failed)
	a.Zero(cb1.succeeded + cb2.succeeded)
	a.Equal(2, h.demanded)

	cb3 := h.accept("c", true)
	a.Equal([]error{h.err}, cb3.failed)
	a.Equal(3, h.demanded)
}

func TestReassemblerNilCallback(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.r.Accept(message.Frame{Payload: []byte("x")}, nil)
	h.r.Accept(message.Frame{Payload: []byte("y"), Fin: true}, nil)
	assert.Equal(t, [][]byte{[]byte("xy")}, h.messages)
}

func TestReassemblerContentCallbacks(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	h := newHarness(t)

	var released int
	release := content.Release(func() { released++ })
	h.r.Accept(message.Frame{Payload: []byte("a")}, release)
	h.r.Accept(message.Frame{Payload: []byte("b"), Fin: true}, release)
	a.Equal(2, released)
}

func TestPropertyReassembly(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		msgs := rapid.SliceOfN(rapid.SliceOfN(rapid.SliceOf(rapid.Byte()), 1, 5), 1, 5).Draw(rt, "messages")
		h := newHarness(t)

		var acks []*ack
		var want [][]byte
		for _, frames := range msgs {
			var whole []byte
			for i, f := range frames {
				cb := &ack{}
				acks = append(acks, cb)
				h.r.Accept(message.Frame{Payload: f, Fin: i == len(frames)-1}, cb)
				whole = append(whole, f...)
			}
			if whole == nil {
				whole = []byte{}
			}
			want = append(want, whole)
		}

		if len(h.messages) != len(want) {
			rt.Fatalf("got %d messages, want %d", len(h.messages), len(want))
		}
		for i := range want {
			if string(h.messages[i]) != string(want[i]) {
				rt.Fatalf("message %d: got %q, want %q", i, h.messages[i], want[i])
			}
		}
		for i, cb := range acks {
			if cb.succeeded != 1 || len(cb.failed) != 0 {
				rt.Fatalf("frame %d acknowledged %d/%d times", i, cb.succeeded, len(cb.failed))
			}
		}
		if h.demanded != len(acks) {
			rt.Fatalf("demanded %d, want %d", h.demanded, len(acks))
		}
	})
}
