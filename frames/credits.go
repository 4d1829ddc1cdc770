package frames

import "sync"

// credits counts frames the sink asked for.
type credits struct {
	n    uint32
	cond *sync.Cond
	ok   bool
}

func newCredits(n uint32) *credits {
	return &credits{
		n:    n,
		cond: sync.NewCond(&sync.Mutex{}),
		ok:   true,
	}
}

// Wait takes n credits, blocking until they are granted. False means the
// pump stopped.
func (c *credits) Wait(n uint32) bool {
	if n == 0 {
		return true
	}
	cond := c.cond

	cond.L.Lock()
	defer cond.L.Unlock()

	for n > c.n && c.ok {
		cond.Wait()
	}
	if !c.ok {
		return false
	}
	c.n -= n
	return true
}

func (c *credits) Add(n uint32) {
	c.cond.L.Lock()
	defer c.cond.L.Unlock()

	c.n += n
	c.cond.Broadcast()
}

func (c *credits) Available() uint32 {
	c.cond.L.Lock()
	defer c.cond.L.Unlock()
	return c.n
}

func (c *credits) Disable() {
	c.cond.L.Lock()
	defer c.cond.L.Unlock()

	c.ok = false
	c.cond.Broadcast()
}
