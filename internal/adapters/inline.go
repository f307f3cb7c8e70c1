package adapters

import (
	"context"
	"errors"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/event"
)

// ErrStopped is returned when sending on a stopped connection.
var ErrStopped = errors.New("debug adapter connection is stopped")

// InlineAdapter connects to an Implementation in this process.
type InlineAdapter struct {
	emitters
	impl Implementation
	log  logr.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	sub     *event.Subscription
	queue   *queue
}

// NewInline wraps impl.
func NewInline(impl Implementation, log logr.Logger) *InlineAdapter {
	a := &InlineAdapter{impl: impl, log: log.WithName("inline"), queue: newQueue()}
	a.init()
	return a
}

func (a *InlineAdapter) Start(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	if a.stopped {
		return ErrStopped
	}
	a.started = true
	a.sub = a.impl.OnDidSendMessage(a.queue.push)
	go func() {
		a.queue.run(a.message.Fire)
		code := 0
		a.fireExit(Exit{Code: &code})
	}()
	return nil
}

func (a *InlineAdapter) Send(msg dap.Message) error {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	a.impl.HandleMessage(msg)
	return nil
}

func (a *InlineAdapter) Stop(context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	started := a.started
	a.mu.Unlock()

	a.sub.Dispose()
	a.impl.Dispose()
	a.queue.close()
	if !started {
		code := 0
		a.fireExit(Exit{Code: &code})
	}
	return nil
}
