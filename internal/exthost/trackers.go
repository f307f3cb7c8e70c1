package exthost

import (
	"context"

	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/internal/tracker"
)

type trackerEntry struct {
	debugType string
	factory   tracker.Factory
}

// RegisterDebugAdapterTrackerFactory registers f for debugType, or for
// every type with tracker.Wildcard. Tracker factories stay local to the
// extension host.
func (s *Service) RegisterDebugAdapterTrackerFactory(debugType string, f tracker.Factory) *Disposable {
	if f == nil {
		return newDisposable(nil)
	}
	h := s.trackers.Register(&trackerEntry{debugType: debugType, factory: f})
	s.log.V(1).Info("registered tracker factory", "type", debugType, "handle", int(h))
	return newDisposable(func() { s.trackers.Release(h) })
}

func (s *Service) resolveTrackers(ctx context.Context, sess *session.Session) tracker.Tracker {
	var factories []tracker.Factory
	for _, e := range s.trackers.All() {
		if tracker.Matches(e.Value.debugType, sess.Type()) {
			factories = append(factories, e.Value.factory)
		}
	}
	return tracker.Resolve(ctx, sess, factories, s.trackerTimeout, s.log.WithName("tracker"))
}
