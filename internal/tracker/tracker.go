// Package tracker lets observers witness the DAP traffic and lifecycle of a
// debug session.
//
// Trackers are produced per session by factories registered for a debug type
// (or "*" for every type). All trackers of a session are combined into one
// Multi that forwards each callback to every member in registration order.
package tracker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/session"
)

// DefaultTimeout bounds how long session start waits for tracker factories.
const DefaultTimeout = time.Second

// Wildcard matches every debug type.
const Wildcard = "*"

// Tracker observes one debug adapter connection.
type Tracker interface {
	// OnWillStartSession is called before the adapter connection is started.
	OnWillStartSession()
	// OnWillReceiveMessage is called with each message about to be delivered
	// to the adapter.
	OnWillReceiveMessage(msg dap.Message)
	// OnDidSendMessage is called with each message the adapter sent.
	OnDidSendMessage(msg dap.Message)
	// OnWillStopSession is called before the adapter connection is stopped.
	OnWillStopSession()
	// OnError is called when the connection reports an error.
	OnError(err error)
	// OnExit is called when the adapter exits. code is nil if unknown.
	OnExit(code *int, signal string)
}

// Base implements Tracker with no-op callbacks. Embed it to observe only a
// subset of the callbacks.
type Base struct{}

// OnWillStartSession does nothing.
func (Base) OnWillStartSession() {}

// OnWillReceiveMessage does nothing.
func (Base) OnWillReceiveMessage(dap.Message) {}

// OnDidSendMessage does nothing.
func (Base) OnDidSendMessage(dap.Message) {}

// OnWillStopSession does nothing.
func (Base) OnWillStopSession() {}

// OnError does nothing.
func (Base) OnError(error) {}

// OnExit does nothing.
func (Base) OnExit(*int, string) {}

// Close releases t if it holds resources, that is if it implements
// io.Closer. Trackers that never see their session end are closed this way.
func Close(t Tracker) {
	if c, ok := t.(io.Closer); ok {
		_ = c.Close()
	}
}

// Factory creates a tracker for a session. Returning a nil tracker means the
// factory does not want to observe the session.
type Factory interface {
	CreateTracker(ctx context.Context, s *session.Session) (Tracker, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, s *session.Session) (Tracker, error)

// CreateTracker calls f.
func (f FactoryFunc) CreateTracker(ctx context.Context, s *session.Session) (Tracker, error) {
	return f(ctx, s)
}

// Matches reports whether a factory registered for registeredType applies to
// sessions of debugType.
func Matches(registeredType, debugType string) bool {
	return registeredType == Wildcard || registeredType == debugType
}

// Resolve asks every factory for a tracker and combines the results. Each
// factory runs in its own goroutine; an error, a panic or a nil tracker is
// treated as no contribution. Factories that have not answered within
// timeout are dropped and the trackers they hand in later are closed.
// Resolve returns nil if no tracker results.
func Resolve(ctx context.Context, s *session.Session, factories []Factory, timeout time.Duration, log logr.Logger) Tracker {
	if len(factories) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// buffered so late factories never block
	results := make(chan answer, len(factories))
	for i, f := range factories {
		go func(i int, f Factory) {
			var t Tracker
			defer func() {
				if r := recover(); r != nil {
					log.Error(fmt.Errorf("panic: %v", r), "tracker factory panicked", "session", s.ID())
					t = nil
				}
				results <- answer{index: i, tracker: t}
			}()
			created, err := f.CreateTracker(ctx, s)
			if err != nil {
				log.V(1).Info("tracker factory failed", "session", s.ID(), "error", err.Error())
				return
			}
			t = created
		}(i, f)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	collected := make([]Tracker, len(factories))
	pending := len(factories)
wait:
	for pending > 0 {
		select {
		case r := <-results:
			collected[r.index] = r.tracker
			pending--
		case <-timer.C:
			log.Info("tracker factories did not answer in time", "session", s.ID(), "pending", pending, "timeout", timeout.String())
			break wait
		case <-ctx.Done():
			for _, t := range collected {
				Close(t)
			}
			go closeLate(results, pending)
			return nil
		}
	}
	if pending > 0 {
		go closeLate(results, pending)
	}

	var trackers []Tracker
	for _, t := range collected {
		if t != nil {
			trackers = append(trackers, t)
		}
	}
	if len(trackers) == 0 {
		return nil
	}
	return NewMulti(log, trackers...)
}

type answer struct {
	index   int
	tracker Tracker
}

// closeLate waits for the remaining factory answers and closes them.
func closeLate(results <-chan answer, pending int) {
	for ; pending > 0; pending-- {
		Close((<-results).tracker)
	}
}

// Multi forwards every callback to its members in order. A panicking member
// is logged and does not prevent delivery to the others.
type Multi struct {
	trackers []Tracker
	log      logr.Logger
	mu       sync.Mutex
}

// NewMulti combines trackers.
func NewMulti(log logr.Logger, trackers ...Tracker) *Multi {
	return &Multi{trackers: trackers, log: log}
}

// Len returns the number of member trackers.
func (m *Multi) Len() int { return len(m.trackers) }

// Trackers returns the member trackers.
func (m *Multi) Trackers() []Tracker { return m.trackers }

func (m *Multi) each(callback string, f func(Tracker)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.trackers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error(fmt.Errorf("panic: %v", r), "tracker callback panicked", "callback", callback, "tracker", i)
				}
			}()
			f(t)
		}()
	}
}

// OnWillStartSession forwards to every member.
func (m *Multi) OnWillStartSession() {
	m.each("onWillStartSession", func(t Tracker) { t.OnWillStartSession() })
}

// OnWillReceiveMessage forwards msg to every member.
func (m *Multi) OnWillReceiveMessage(msg dap.Message) {
	m.each("onWillReceiveMessage", func(t Tracker) { t.OnWillReceiveMessage(msg) })
}

// OnDidSendMessage forwards msg to every member.
func (m *Multi) OnDidSendMessage(msg dap.Message) {
	m.each("onDidSendMessage", func(t Tracker) { t.OnDidSendMessage(msg) })
}

// OnWillStopSession forwards to every member.
func (m *Multi) OnWillStopSession() {
	m.each("onWillStopSession", func(t Tracker) { t.OnWillStopSession() })
}

// OnError forwards err to every member.
func (m *Multi) OnError(err error) {
	m.each("onError", func(t Tracker) { t.OnError(err) })
}

// OnExit forwards the exit status to every member.
func (m *Multi) OnExit(code *int, signal string) {
	m.each("onExit", func(t Tracker) { t.OnExit(code, signal) })
}

// Close closes every member that holds resources.
func (m *Multi) Close() error {
	m.each("close", Close)
	return nil
}
