package message

import (
	"github.com/ozontech/contentpipe/content"
)

type entry struct {
	buf []byte
	cb  content.Callback
}

// Accumulator collects payload slices together with the callbacks that
// release them, so they can be acknowledged as one batch.
type Accumulator struct {
	entries []entry
	length  int
}

// Add keeps a reference to buf; cb is acknowledged by Succeed or Fail.
func (a *Accumulator) Add(buf []byte, cb content.Callback) {
	a.entries = append(a.entries, entry{buf, cb})
	a.length += len(buf)
}

func (a *Accumulator) Len() int {
	if a == nil {
		return 0
	}
	return a.length
}

// Bytes copies everything accumulated into one slice. Callbacks stay
// pending until Succeed or Fail.
func (a *Accumulator) Bytes() []byte {
	out := make([]byte, 0, a.length)
	for _, e := range a.entries {
		out = append(out, e.buf...)
	}
	return out
}

func (a *Accumulator) Succeed() {
	for _, e := range a.reset() {
		e.cb.Succeeded()
	}
}

func (a *Accumulator) Fail(err error) {
	for _, e := range a.reset() {
		e.cb.Failed(err)
	}
}

func (a *Accumulator) reset() []entry {
	entries := a.entries
	a.entries, a.length = nil, 0
	return entries
}
