package simple

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ozontech/contentpipe/report"
)

var _ report.Reporter = (*Reporter)(nil)

// Reporter prints throughput every interval and a total line on Close.
type Reporter struct {
	w        io.Writer
	interval time.Duration
	closeCh  chan struct{}

	start  time.Time
	chunks atomic.Uint64
	size   atomic.Uint64
	msgs   atomic.Uint64
	failed atomic.Uint64

	lastChunks uint64
	lastSize   uint64
	lastMsgs   uint64
	lastFailed uint64
	lastTime   time.Time
}

func New(w io.Writer, interval time.Duration) *Reporter {
	now := time.Now()
	if interval <= 0 {
		interval = time.Second
	}
	return &Reporter{
		w:        w,
		interval: interval,
		closeCh:  make(chan struct{}),
		start:    now,
		lastTime: now,
	}
}

func (a *Reporter) Run() error {
	t := time.NewTicker(a.interval)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			if err := a.report(now); err != nil {
				return err
			}
		case <-a.closeCh:
			return a.total()
		}
	}
}

func (a *Reporter) Close() error {
	close(a.closeCh)
	return nil
}

func (a *Reporter) Chunk(n int) {
	a.chunks.Add(1)
	a.size.Add(uint64(n))
}

func (a *Reporter) Message(_ int, err error) {
	if err != nil {
		a.failed.Add(1)
		return
	}
	a.msgs.Add(1)
}

func (a *Reporter) write(chunks, size, msgs, failed uint64, d time.Duration) error {
	miliSeconds := d.Milliseconds()
	var err error
	if miliSeconds > 0 {
		_, err = fmt.Fprintf(a.w,
			"chunks=%d size=%s msgs=%d failed=%d rate=%s/s msg/s=%.2f\n",
			chunks, humanize.Bytes(size), msgs, failed,
			humanize.Bytes(size*1000/uint64(miliSeconds)),
			float64(msgs+failed)*1000/float64(miliSeconds),
		)
	} else {
		_, err = fmt.Fprintf(a.w, "chunks=%d size=%s msgs=%d failed=%d\n", chunks, humanize.Bytes(size), msgs, failed)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func (a *Reporter) total() error {
	if _, err := fmt.Fprintln(a.w, "total"); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return a.write(a.chunks.Load(), a.size.Load(), a.msgs.Load(), a.failed.Load(), time.Since(a.start))
}

func (a *Reporter) report(now time.Time) error {
	chunks, size, msgs, failed := a.chunks.Load(), a.size.Load(), a.msgs.Load(), a.failed.Load()
	err := a.write(chunks-a.lastChunks, size-a.lastSize, msgs-a.lastMsgs, failed-a.lastFailed, now.Sub(a.lastTime))
	a.lastChunks, a.lastSize, a.lastMsgs, a.lastFailed, a.lastTime = chunks, size, msgs, failed, now
	return err
}
