package breakpoints

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/event"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// Remote is the main-thread side of breakpoint synchronization.
type Remote interface {
	RegisterBreakpoints(ctx context.Context, dtos []types.BreakpointDTO) error
	UnregisterBreakpoints(ctx context.Context, sourceIDs, functionIDs, dataIDs []string) error
}

// ChangeEvent describes one batch of breakpoint changes.
type ChangeEvent struct {
	Added   []Breakpoint
	Removed []Breakpoint
	Changed []Breakpoint
}

// Empty reports whether the event carries no changes.
func (e ChangeEvent) Empty() bool {
	return len(e.Added) == 0 && len(e.Removed) == 0 && len(e.Changed) == 0
}

// Store is the authoritative set of breakpoints known to one extension host.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]Breakpoint
	order []string

	remote  Remote
	log     logr.Logger
	changed event.Emitter[ChangeEvent]
}

// NewStore creates an empty store that pushes local changes to remote.
func NewStore(remote Remote, log logr.Logger) *Store {
	return &Store{
		byID:   make(map[string]Breakpoint),
		remote: remote,
		log:    log.WithName("breakpoints"),
	}
}

// OnDidChange subscribes to change batches. A batch is never empty.
func (s *Store) OnDidChange(l func(ChangeEvent)) *event.Subscription {
	return s.changed.Subscribe(l)
}

// All returns the breakpoints in insertion order.
func (s *Store) All() []Breakpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Breakpoint, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Get returns the breakpoint with the given id.
func (s *Store) Get(id string) (Breakpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bp, ok := s.byID[id]
	return bp, ok
}

// Len returns the number of breakpoints.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Add inserts the breakpoints whose ids are not yet known, announces them and
// registers them with the main thread. Re-adding a known id is a no-op.
func (s *Store) Add(ctx context.Context, bps ...Breakpoint) error {
	s.mu.Lock()
	added := make([]Breakpoint, 0, len(bps))
	for _, bp := range bps {
		if bp == nil {
			continue
		}
		if s.insertLocked(bp) {
			added = append(added, bp)
		}
	}
	s.mu.Unlock()

	if len(added) == 0 {
		return nil
	}
	s.fire(ChangeEvent{Added: added})

	if s.remote == nil {
		return nil
	}
	if err := s.remote.RegisterBreakpoints(ctx, ToDTOs(added)); err != nil {
		return fmt.Errorf("failed to register breakpoints: %w", err)
	}
	return nil
}

// Remove deletes the breakpoints by id, announces the removal and unregisters
// them with the main thread, partitioned by variant.
func (s *Store) Remove(ctx context.Context, bps ...Breakpoint) error {
	s.mu.Lock()
	removed := make([]Breakpoint, 0, len(bps))
	for _, bp := range bps {
		if bp == nil {
			continue
		}
		if existing, ok := s.deleteLocked(bp.ID()); ok {
			removed = append(removed, existing)
		}
	}
	s.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	s.fire(ChangeEvent{Removed: removed})

	if s.remote == nil {
		return nil
	}
	var ids, fids, dids []string
	for _, bp := range removed {
		switch bp.Kind() {
		case KindSource:
			ids = append(ids, bp.ID())
		case KindFunction:
			fids = append(fids, bp.ID())
		case KindData:
			dids = append(dids, bp.ID())
		}
	}
	if err := s.remote.UnregisterBreakpoints(ctx, ids, fids, dids); err != nil {
		return fmt.Errorf("failed to unregister breakpoints: %w", err)
	}
	return nil
}

// RemoveByID removes breakpoints by id.
func (s *Store) RemoveByID(ctx context.Context, ids ...string) error {
	bps := make([]Breakpoint, 0, len(ids))
	for _, id := range ids {
		if bp, ok := s.Get(id); ok {
			bps = append(bps, bp)
		}
	}
	return s.Remove(ctx, bps...)
}

// ApplyRemoteDelta applies a delta announced by the main thread. Known added
// ids and unknown removed or changed ids are skipped. All effects of one call
// are reported in a single event; nothing is fired for an empty result.
func (s *Store) ApplyRemoteDelta(delta types.BreakpointsDelta) {
	var ev ChangeEvent

	s.mu.Lock()
	for _, dto := range delta.Added {
		bps := fromDTOs(dto)
		if bps == nil {
			s.log.V(1).Info("ignoring breakpoint with unknown type", "type", dto.Type)
		}
		for _, bp := range bps {
			if s.insertLocked(bp) {
				ev.Added = append(ev.Added, bp)
			}
		}
	}
	for _, id := range delta.Removed {
		if bp, ok := s.deleteLocked(id); ok {
			ev.Removed = append(ev.Removed, bp)
		}
	}
	for _, dto := range delta.Changed {
		if dto.ID == "" {
			continue
		}
		bp, ok := s.byID[dto.ID]
		if !ok {
			continue
		}
		if applyChange(bp, dto) {
			ev.Changed = append(ev.Changed, bp)
		} else {
			s.log.V(1).Info("ignoring breakpoint change of a different variant", "id", dto.ID, "kind", bp.Kind().String(), "type", dto.Type)
		}
	}
	s.mu.Unlock()

	if !ev.Empty() {
		s.fire(ev)
	}
}

func (s *Store) insertLocked(bp Breakpoint) bool {
	if _, exists := s.byID[bp.ID()]; exists {
		return false
	}
	s.byID[bp.ID()] = bp
	s.order = append(s.order, bp.ID())
	return true
}

func (s *Store) deleteLocked(id string) (Breakpoint, bool) {
	bp, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return bp, true
}

func (s *Store) fire(ev ChangeEvent) {
	s.log.V(1).Info("breakpoints changed", "added", len(ev.Added), "removed", len(ev.Removed), "changed", len(ev.Changed))
	s.changed.Fire(ev)
}
