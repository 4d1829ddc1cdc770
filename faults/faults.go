// Package faults holds the error taxonomy shared by the content pipeline and
// the message reassembler.
package faults

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	// ErrUsage marks illegal state transitions. Never retried.
	ErrUsage = errors.New("illegal state")
	// ErrRecycled is returned to a reader parked while its pipeline was recycled.
	ErrRecycled = fmt.Errorf("%w: pipeline recycled while blocked", ErrUsage)
	// ErrUnconsumed fails content discarded by consume-all.
	ErrUnconsumed = errors.New("unconsumed content")
)

func Usage(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUsage}, args...)...)
}

// IOError is how upstream failures reach a synchronous reader.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return "io: " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// AsIO returns err unchanged if it already is an IOError, otherwise wraps it.
func AsIO(err error) error {
	if err == nil {
		return nil
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &IOError{Err: err}
}

type SizeLimitError struct {
	What string
	Size int64
	Max  int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf(
		"%s too large: (actual) %s > (configured max) %s",
		e.What, humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Max)),
	)
}

type DataRateError struct {
	Rate    int64 // bytes per second
	Arrived int64
	Period  time.Duration
}

func (e *DataRateError) Error() string {
	return fmt.Sprintf(
		"content data rate < %s/s: %s arrived in %s",
		humanize.IBytes(uint64(e.Rate)), humanize.IBytes(uint64(e.Arrived)), e.Period,
	)
}
