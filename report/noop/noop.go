package noop

import "github.com/ozontech/contentpipe/report"

var _ report.Reporter = (*Noop)(nil)

type Noop struct {
	close chan struct{}
}

func New() *Noop {
	return &Noop{make(chan struct{})}
}

func (m *Noop) Run() error {
	<-m.close
	return nil
}

func (m *Noop) Close() error {
	close(m.close)
	return nil
}

func (m *Noop) Chunk(int)          {}
func (m *Noop) Message(int, error) {}
