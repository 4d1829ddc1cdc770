package producer

import "sync"

// waiter parks a blocking reader until upstream signals that content may be
// available or the pipeline is recycled. Signals are counted so a wake-up
// arriving before wait is not lost.
type waiter struct {
	cond    *sync.Cond
	signals int
	// bumped by interrupt; a wait begun in an older generation returns false
	gen uint64
}

func newWaiter() *waiter {
	return &waiter{cond: sync.NewCond(&sync.Mutex{})}
}

// begin must be taken before demand is registered, so an interrupt landing
// between the demand and the wait is still observed.
func (w *waiter) begin() uint64 {
	w.cond.L.Lock()
	defer w.cond.L.Unlock()
	return w.gen
}

func (w *waiter) wait(gen uint64) bool {
	w.cond.L.Lock()
	defer w.cond.L.Unlock()

	for w.signals == 0 && gen == w.gen {
		w.cond.Wait()
	}
	if gen != w.gen {
		return false
	}
	w.signals--
	return true
}

func (w *waiter) signal() {
	w.cond.L.Lock()
	defer w.cond.L.Unlock()

	w.signals++
	w.cond.Broadcast()
}

// interrupt releases every parked wait with false and drops pending signals.
func (w *waiter) interrupt() {
	w.cond.L.Lock()
	defer w.cond.L.Unlock()

	w.gen++
	w.signals = 0
	w.cond.Broadcast()
}
