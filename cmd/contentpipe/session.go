package main

import (
	"context"
	"sync"
)

// session runs tasks one at a time on the goroutine calling run. Execute
// never blocks, so tasks may schedule more tasks.
type session struct {
	mu     sync.Mutex
	tasks  []func()
	notify chan struct{}
}

func newSession() *session {
	return &session{notify: make(chan struct{}, 1)}
}

func (s *session) IsAsyncStarted() bool { return true }

func (s *session) Execute(task func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *session) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.tasks) == 0 {
				s.mu.Unlock()
				break
			}
			task := s.tasks[0]
			s.tasks = s.tasks[1:]
			s.mu.Unlock()

			task()
		}
	}
}
