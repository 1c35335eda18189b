package session

import (
	"context"
	"sync"
)

// loop runs posted functions one at a time, in order. Posting never blocks,
// so callbacks may post more work.
type loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool

	// after runs once a batch of work has been processed.
	after func()
}

func newLoop() *loop {
	return &loop{wake: make(chan struct{}, 1)}
}

func (l *loop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.queue
	l.queue = nil
	return q
}

// drain runs queued work until the queue is empty.
func (l *loop) drain() int {
	n := 0
	for {
		q := l.take()
		if len(q) == 0 {
			return n
		}
		for _, fn := range q {
			fn()
			n++
		}
		if l.after != nil {
			l.after()
		}
	}
}

func (l *loop) run(ctx context.Context) error {
	for {
		l.drain()
		select {
		case <-ctx.Done():
			l.close()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *loop) close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
}
