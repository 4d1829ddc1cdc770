package producer

import (
	"time"

	"github.com/ozontech/contentpipe/faults"
)

// rateMeter enforces a minimum content data rate measured from the first
// byte. Zero rate disables the check.
type rateMeter struct {
	rate   int64 // bytes per second
	window time.Duration
	now    func() time.Time

	firstByte time.Time
}

func (m *rateMeter) onBytes(n int) {
	if n > 0 && m.firstByte.IsZero() {
		m.firstByte = m.now()
	}
}

func (m *rateMeter) check(arrived int64) error {
	if m.rate <= 0 || m.firstByte.IsZero() {
		return nil
	}
	period := m.now().Sub(m.firstByte)
	if period <= 0 || period < m.window {
		return nil
	}
	minimum := m.rate * period.Milliseconds() / 1000
	if arrived >= minimum {
		return nil
	}
	return &faults.DataRateError{Rate: m.rate, Arrived: arrived, Period: period}
}

func (m *rateMeter) reset() {
	m.firstByte = time.Time{}
}
