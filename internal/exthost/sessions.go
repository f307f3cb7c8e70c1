package exthost

import (
	"context"

	"github.com/ctagard/dap-exthost/internal/breakpoints"
	"github.com/ctagard/dap-exthost/internal/event"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// AcceptDebugSessionStarted caches the session announced by the main thread
// and fires OnDidStartDebugSession.
func (s *Service) AcceptDebugSessionStarted(ctx context.Context, dto types.SessionDTO) (Result[*session.Session], error) {
	sess, _, err := s.session(ctx, dto)
	if ctx.Err() != nil {
		return cancelled[*session.Session](), nil
	}
	if err != nil {
		return Result[*session.Session]{}, err
	}
	s.log.V(1).Info("debug session started", "session", sess.ID(), "type", sess.Type())
	s.onDidStart.Fire(sess)
	return done(sess), nil
}

// AcceptDebugSessionTerminated forgets the session and fires
// OnDidTerminateDebugSession. Unknown ids, including a repeated termination,
// are ignored.
func (s *Service) AcceptDebugSessionTerminated(dto types.SessionDTO) {
	sess, ok := s.sessions.Remove(dto.ID)
	if !ok {
		return
	}
	s.log.V(1).Info("debug session terminated", "session", sess.ID())
	s.onDidTerminate.Fire(sess)
}

// AcceptDebugSessionActiveChanged makes the session described by dto the
// active one. A nil dto means no session is active.
func (s *Service) AcceptDebugSessionActiveChanged(ctx context.Context, dto *types.SessionDTO) (Result[*session.Session], error) {
	var sess *session.Session
	if dto != nil {
		var err error
		sess, _, err = s.session(ctx, *dto)
		if ctx.Err() != nil {
			return cancelled[*session.Session](), nil
		}
		if err != nil {
			return Result[*session.Session]{}, err
		}
	}

	s.mu.Lock()
	s.active = sess
	s.mu.Unlock()
	s.onDidChangeActive.Fire(sess)
	return done(sess), nil
}

// AcceptDebugSessionNameChanged applies a rename made on the main thread.
func (s *Service) AcceptDebugSessionNameChanged(dto types.SessionDTO, name string) {
	if !s.sessions.AcceptNameChanged(dto.ID, name) {
		s.log.V(1).Info("rename of unknown session ignored", "session", dto.ID)
	}
}

// AcceptDebugSessionCustomEvent fires OnDidReceiveDebugSessionCustomEvent for
// a non-standard DAP event.
func (s *Service) AcceptDebugSessionCustomEvent(ctx context.Context, dto types.SessionDTO, name string, body interface{}) (Result[CustomEvent], error) {
	sess, _, err := s.session(ctx, dto)
	if ctx.Err() != nil {
		return cancelled[CustomEvent](), nil
	}
	if err != nil {
		return Result[CustomEvent]{}, err
	}
	ev := CustomEvent{Session: sess, Event: name, Body: body}
	s.onDidReceiveCustom.Fire(ev)
	return done(ev), nil
}

// ActiveDebugSession returns the active session, or nil.
func (s *Service) ActiveDebugSession() *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// StartDebugging asks the main thread to start a session. folderURI may be
// empty.
func (s *Service) StartDebugging(ctx context.Context, folderURI string, nameOrConfig NameOrConfig, opts types.StartDebuggingOptions) (bool, error) {
	return s.main.StartDebugging(ctx, folderURI, nameOrConfig, opts)
}

// StopDebugging asks the main thread to stop sess, or the active session if
// sess is nil.
func (s *Service) StopDebugging(ctx context.Context, sess *session.Session) error {
	id := ""
	if sess != nil {
		id = sess.ID()
	}
	return s.main.StopDebugging(ctx, id)
}

// OnDidStartDebugSession subscribes l to sessions whose adapter has started.
func (s *Service) OnDidStartDebugSession(l func(*session.Session)) *event.Subscription {
	return s.onDidStart.Subscribe(l)
}

// OnDidTerminateDebugSession subscribes l to sessions that have ended.
func (s *Service) OnDidTerminateDebugSession(l func(*session.Session)) *event.Subscription {
	return s.onDidTerminate.Subscribe(l)
}

// OnDidChangeActiveDebugSession subscribes l to active session changes. l
// receives nil when no session is active.
func (s *Service) OnDidChangeActiveDebugSession(l func(*session.Session)) *event.Subscription {
	return s.onDidChangeActive.Subscribe(l)
}

// OnDidReceiveDebugSessionCustomEvent subscribes l to custom DAP events
// forwarded by the main thread.
func (s *Service) OnDidReceiveDebugSessionCustomEvent(l func(CustomEvent)) *event.Subscription {
	return s.onDidReceiveCustom.Subscribe(l)
}

// AcceptBreakpointsDelta applies breakpoint changes made on the main thread.
func (s *Service) AcceptBreakpointsDelta(delta types.BreakpointsDelta) {
	s.breakpoints.ApplyRemoteDelta(delta)
}

// AddBreakpoints adds bps and registers them with the main thread.
func (s *Service) AddBreakpoints(ctx context.Context, bps ...breakpoints.Breakpoint) error {
	return s.breakpoints.Add(ctx, bps...)
}

// RemoveBreakpoints removes bps and unregisters them from the main thread.
func (s *Service) RemoveBreakpoints(ctx context.Context, bps ...breakpoints.Breakpoint) error {
	return s.breakpoints.Remove(ctx, bps...)
}

// OnDidChangeBreakpoints subscribes to breakpoint changes from either side.
func (s *Service) OnDidChangeBreakpoints(l func(breakpoints.ChangeEvent)) *event.Subscription {
	return s.breakpoints.OnDidChange(l)
}
