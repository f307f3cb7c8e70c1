package adapters

import (
	"sync"

	"github.com/ctagard/dap-exthost/internal/dap"
)

// queue decouples producers from delivery so listeners never run on the
// goroutine that produced the message.
type queue struct {
	mu     sync.Mutex
	items  []dap.Message
	closed bool
	wake   chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

func (q *queue) push(m dap.Message) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.signal()
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run delivers queued messages in order until the queue is closed and empty.
func (q *queue) run(deliver func(dap.Message)) {
	for {
		q.mu.Lock()
		items, closed := q.items, q.closed
		q.items = nil
		q.mu.Unlock()

		for _, m := range items {
			deliver(m)
		}
		if len(items) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}
