package workbench

import (
	"context"
	stderrors "errors"
	"path"

	godap "github.com/google/go-dap"

	"github.com/ctagard/dap-exthost/pkg/types"
)

// RegisterBreakpoints records breakpoints of the host and pushes them to
// every configured session. sourceMulti DTOs are stored per line.
func (w *Workbench) RegisterBreakpoints(ctx context.Context, dtos []types.BreakpointDTO) error {
	w.bpMu.Lock()
	for _, dto := range dtos {
		if dto.Type != types.BreakpointSourceMulti {
			w.putBreakpointLocked(dto)
			continue
		}
		for _, l := range dto.Lines {
			w.putBreakpointLocked(types.BreakpointDTO{
				Type:         types.BreakpointSource,
				ID:           l.ID,
				Enabled:      l.Enabled,
				Condition:    l.Condition,
				HitCondition: l.HitCondition,
				LogMessage:   l.LogMessage,
				URI:          dto.URI,
				Line:         l.Line,
				Character:    l.Character,
			})
		}
	}
	w.bpMu.Unlock()
	return w.syncAll(ctx)
}

func (w *Workbench) putBreakpointLocked(dto types.BreakpointDTO) {
	if _, ok := w.bps[dto.ID]; !ok {
		w.bpOrder = append(w.bpOrder, dto.ID)
	}
	w.bps[dto.ID] = dto
}

// UnregisterBreakpoints forgets breakpoints by id and updates every
// configured session.
func (w *Workbench) UnregisterBreakpoints(ctx context.Context, sourceIDs, functionIDs, dataIDs []string) error {
	var ids []string
	ids = append(ids, sourceIDs...)
	ids = append(ids, functionIDs...)
	ids = append(ids, dataIDs...)

	w.bpMu.Lock()
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := w.bps[id]; ok {
			delete(w.bps, id)
			gone[id] = true
		}
	}
	order := w.bpOrder[:0]
	for _, id := range w.bpOrder {
		if !gone[id] {
			order = append(order, id)
		}
	}
	w.bpOrder = order
	w.bpMu.Unlock()

	for _, s := range w.liveSessions() {
		s.forgetBreakpoints(ids)
	}
	return w.syncAll(ctx)
}

// Breakpoints returns the registered breakpoints in registration order.
func (w *Workbench) Breakpoints() []types.BreakpointDTO {
	w.bpMu.RLock()
	defer w.bpMu.RUnlock()
	out := make([]types.BreakpointDTO, 0, len(w.bpOrder))
	for _, id := range w.bpOrder {
		out = append(out, w.bps[id])
	}
	return out
}

func (w *Workbench) liveSessions() []*Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Session, 0, len(w.sessions))
	for _, s := range w.sessions {
		out = append(out, s)
	}
	return out
}

func (w *Workbench) syncAll(ctx context.Context) error {
	var errs []error
	for _, s := range w.liveSessions() {
		if err := w.syncBreakpoints(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// syncBreakpoints sends the enabled breakpoints to the adapter of s. Sources
// that lost their last breakpoint get an empty list.
func (w *Workbench) syncBreakpoints(ctx context.Context, s *Session) error {
	s.bpMu.Lock()
	defer s.bpMu.Unlock()
	if !s.configured || s.State() == StateTerminated {
		return nil
	}

	var (
		sourceOrder []string
		bySource    = make(map[string][]types.BreakpointDTO)
		functions   []types.BreakpointDTO
		data        []types.BreakpointDTO
	)
	for _, bp := range w.Breakpoints() {
		if !bp.Enabled {
			continue
		}
		switch bp.Type {
		case types.BreakpointSource:
			if _, ok := bySource[bp.URI]; !ok {
				sourceOrder = append(sourceOrder, bp.URI)
			}
			bySource[bp.URI] = append(bySource[bp.URI], bp)
		case types.BreakpointFunction:
			functions = append(functions, bp)
		case types.BreakpointData:
			data = append(data, bp)
		}
	}
	for uri := range s.sentSources {
		if _, ok := bySource[uri]; !ok {
			sourceOrder = append(sourceOrder, uri)
		}
	}

	var errs []error
	for _, uri := range sourceOrder {
		bps := bySource[uri]
		ids := make([]string, len(bps))
		args := make([]godap.SourceBreakpoint, len(bps))
		for i, bp := range bps {
			ids[i] = bp.ID
			args[i] = godap.SourceBreakpoint{
				Line:         bp.Line + 1,
				Condition:    bp.Condition,
				HitCondition: bp.HitCondition,
				LogMessage:   bp.LogMessage,
			}
			if bp.Character > 0 {
				args[i].Column = bp.Character + 1
			}
		}
		// the router rewrites file URIs to native paths
		got, err := s.client.SetBreakpoints(ctx, godap.Source{Name: path.Base(uri), Path: uri}, args)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.recordBreakpoints(ids, got)
		if len(bps) == 0 {
			delete(s.sentSources, uri)
		} else {
			s.sentSources[uri] = true
		}
	}

	caps := s.client.Capabilities()
	if caps.SupportsFunctionBreakpoints && (len(functions) > 0 || s.sentFunctions) {
		ids := make([]string, len(functions))
		args := make([]godap.FunctionBreakpoint, len(functions))
		for i, bp := range functions {
			ids[i] = bp.ID
			args[i] = godap.FunctionBreakpoint{Name: bp.FunctionName, Condition: bp.Condition, HitCondition: bp.HitCondition}
		}
		if got, err := s.client.SetFunctionBreakpoints(ctx, args); err != nil {
			errs = append(errs, err)
		} else {
			s.recordBreakpoints(ids, got)
			s.sentFunctions = len(functions) > 0
		}
	}
	if caps.SupportsDataBreakpoints && (len(data) > 0 || s.sentData) {
		ids := make([]string, len(data))
		args := make([]godap.DataBreakpoint, len(data))
		for i, bp := range data {
			ids[i] = bp.ID
			args[i] = godap.DataBreakpoint{DataId: bp.DataID, Condition: bp.Condition, HitCondition: bp.HitCondition}
		}
		if got, err := s.client.SetDataBreakpoints(ctx, args); err != nil {
			errs = append(errs, err)
		} else {
			s.recordBreakpoints(ids, got)
			s.sentData = len(data) > 0
		}
	}
	return stderrors.Join(errs...)
}
