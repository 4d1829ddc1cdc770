// Package intercept holds ready-made content interceptors.
//
// A producer hands the same unit to its interceptors again while a later
// link has only partly consumed it, so every interceptor here acts on a
// unit the first time it sees it and passes repeats through untouched.
package intercept

import (
	"io"

	"github.com/ozontech/contentpipe/content"
	"github.com/ozontech/contentpipe/faults"
)

// latest remembers the unit seen last.
type latest struct {
	c *content.Content
}

func (l *latest) fresh(c *content.Content) bool {
	if c == l.c {
		return false
	}
	l.c = c
	return true
}

func (l *latest) Release() { l.c = nil }

// Limiter fails the stream once more than max bytes went through it.
type Limiter struct {
	latest
	max  int64
	seen int64
}

func Limit(max int64) *Limiter {
	return &Limiter{max: max}
}

func (l *Limiter) Intercept(c *content.Content) *content.Content {
	if !l.fresh(c) {
		return c
	}
	l.seen += int64(c.Remaining())
	if l.max > 0 && l.seen > l.max {
		return content.NewError(&faults.SizeLimitError{What: "body", Size: l.seen, Max: l.max})
	}
	return c
}

// Seen is the number of bytes counted so far.
func (l *Limiter) Seen() int64 { return l.seen }

// Release resets the count for the next request.
func (l *Limiter) Release() {
	l.latest.Release()
	l.seen = 0
}

type tee struct {
	latest
	w io.Writer
}

// Tee copies every payload to w before the reader sees it.
func Tee(w io.Writer) content.Interceptor {
	return &tee{w: w}
}

func (t *tee) Intercept(c *content.Content) *content.Content {
	if !t.fresh(c) {
		return c
	}
	if _, err := t.w.Write(c.Bytes()); err != nil {
		return content.NewError(err)
	}
	return c
}

type observer struct {
	latest
	fn func(n int)
}

// Observe reports the size of every payload to fn.
func Observe(fn func(n int)) content.Interceptor {
	return &observer{fn: fn}
}

func (o *observer) Intercept(c *content.Content) *content.Content {
	if o.fresh(c) {
		o.fn(c.Remaining())
	}
	return c
}
