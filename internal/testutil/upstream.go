// Package testutil provides a scripted upstream for pipeline tests.
package testutil

import (
	"sync"

	"github.com/ozontech/contentpipe/content"
)

// Upstream hands out pushed units one per Produce call and records every
// interaction. It panics if a second wake-up is registered while one is
// outstanding.
type Upstream struct {
	mu       sync.Mutex
	queue    []*content.Content
	wake     func()
	produced int
	needs    int
	acked    int
	failed   []error

	needCh chan struct{}
}

func NewUpstream() *Upstream {
	return &Upstream{needCh: make(chan struct{}, 64)}
}

// Push queues a payload whose acknowledgement is recorded.
func (u *Upstream) Push(chunks ...string) {
	for _, s := range chunks {
		u.PushContent(content.NewPayload([]byte(s), content.CallbackFuncs{
			OnSucceeded: u.onSucceeded,
			OnFailed:    u.onFailed,
		}))
	}
}

func (u *Upstream) PushContent(c *content.Content) {
	u.mu.Lock()
	u.queue = append(u.queue, c)
	wake := u.wake
	u.wake = nil
	u.mu.Unlock()

	if wake != nil {
		wake()
	}
}

func (u *Upstream) Produce() *content.Content {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.produced++
	if len(u.queue) == 0 {
		return nil
	}
	c := u.queue[0]
	u.queue = u.queue[1:]
	return c
}

func (u *Upstream) NeedContent(wake func()) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.queue) > 0 {
		return true
	}
	if u.wake != nil {
		panic("testutil: second outstanding demand")
	}
	u.needs++
	u.wake = wake
	select {
	case u.needCh <- struct{}{}:
	default:
	}
	return false
}

// Needed is signalled every time a wake-up is registered.
func (u *Upstream) Needed() <-chan struct{} { return u.needCh }

func (u *Upstream) onSucceeded() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.acked++
}

func (u *Upstream) onFailed(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.acked++
	u.failed = append(u.failed, err)
}

// Produced counts Produce calls, including those that returned nil.
func (u *Upstream) Produced() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.produced
}

func (u *Upstream) Needs() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.needs
}

// Acked counts acknowledged payloads, failed ones included.
func (u *Upstream) Acked() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.acked
}

func (u *Upstream) Failed() []error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]error(nil), u.failed...)
}
