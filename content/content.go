// Package content defines the unit flowing from an upstream producer to a
// reader: either a payload chunk or a sentinel (EOF, error).
//
// Payload units must be acknowledged once fully consumed, with Succeeded or
// Failed, so upstream can reclaim the buffer. Sentinels ignore
// acknowledgement.
package content

import (
	"fmt"

	"github.com/ozontech/contentpipe/faults"
)

type Kind uint8

const (
	KindPayload Kind = iota
	KindEOF
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindPayload:
		return "payload"
	case KindEOF:
		return "eof"
	case KindError:
		return "error"
	}
	return "unknown"
}

type Content struct {
	kind Kind
	buf  []byte
	eof  bool
	err  error
	ack  Callback

	// set for units built by Wrap: buffer and ack belong to delegate
	delegate *Content
}

// EOF is the shared end of stream sentinel.
var EOF = &Content{kind: KindEOF, eof: true}

func NewPayload(buf []byte, ack Callback) *Content {
	if buf == nil {
		buf = []byte{}
	}
	if ack == nil {
		ack = Noop
	}
	return &Content{kind: KindPayload, buf: buf, ack: ack}
}

func NewError(err error) *Content {
	if err == nil {
		panic("content: error sentinel without error")
	}
	return &Content{kind: KindError, err: err}
}

// Wrap returns a payload unit sharing c's buffer and read position that
// reports the given EOF flag. Acknowledging it acknowledges c.
func Wrap(c *Content, eof bool) *Content {
	if c.IsSpecial() {
		panic(faults.Usage("wrapping %s", c))
	}
	return &Content{kind: KindPayload, eof: eof, delegate: c}
}

func (c *Content) data() *[]byte {
	if c.delegate != nil {
		return c.delegate.data()
	}
	return &c.buf
}

func (c *Content) Kind() Kind { return c.kind }

func (c *Content) IsSpecial() bool { return c.kind != KindPayload }

// IsEOF on a payload is a hint that the EOF sentinel follows.
func (c *Content) IsEOF() bool { return c.eof }

func (c *Content) Err() error { return c.err }

func (c *Content) Remaining() int {
	if c.IsSpecial() {
		return 0
	}
	return len(*c.data())
}

func (c *Content) HasContent() bool { return c.Remaining() > 0 }

func (c *Content) IsEmpty() bool { return c.Remaining() == 0 }

// Bytes returns the unread bytes without consuming them.
func (c *Content) Bytes() []byte {
	if c.IsSpecial() {
		panic(faults.Usage("%s has no buffer", c))
	}
	return *c.data()
}

// Get copies up to len(p) unread bytes into p and consumes them.
func (c *Content) Get(p []byte) int {
	if c.IsSpecial() {
		panic(faults.Usage("%s has no buffer", c))
	}
	b := c.data()
	n := copy(p, *b)
	*b = (*b)[n:]
	return n
}

func (c *Content) Skip(n int) int {
	if c.IsSpecial() {
		return 0
	}
	b := c.data()
	n = min(n, len(*b))
	*b = (*b)[n:]
	return n
}

func (c *Content) Succeeded() {
	if c.delegate != nil {
		c.delegate.Succeeded()
		return
	}
	ack := c.ack
	c.ack = nil
	if ack != nil {
		ack.Succeeded()
	}
}

func (c *Content) Failed(err error) {
	if c.delegate != nil {
		c.delegate.Failed(err)
		return
	}
	ack := c.ack
	c.ack = nil
	if ack != nil {
		ack.Failed(err)
	}
}

func (c *Content) String() string {
	return fmt.Sprintf("%s@%p{remaining=%d,eof=%t,err=%v}", c.kind, c, c.Remaining(), c.eof, c.err)
}
