package multi

import (
	"golang.org/x/sync/errgroup"

	"github.com/ozontech/contentpipe/report"
)

var _ report.Reporter = (*Multi)(nil)

// Multi fans every event out to nested reporters.
type Multi struct {
	nested []report.Reporter
}

func New(nested ...report.Reporter) *Multi {
	return &Multi{nested}
}

func (m *Multi) Run() error {
	g := new(errgroup.Group)
	for i := range m.nested {
		r := m.nested[i]
		g.Go(r.Run)
	}
	return g.Wait()
}

func (m *Multi) Close() error {
	g := new(errgroup.Group)
	for i := range m.nested {
		r := m.nested[i]
		g.Go(r.Close)
	}
	return g.Wait()
}

func (m *Multi) Chunk(n int) {
	for _, r := range m.nested {
		r.Chunk(n)
	}
}

func (m *Multi) Message(size int, err error) {
	for _, r := range m.nested {
		r.Message(size, err)
	}
}
