package exthost

import (
	"context"

	"github.com/ctagard/dap-exthost/internal/errors"
	"github.com/ctagard/dap-exthost/internal/event"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// Focus is the thread or stack frame that has debugging focus. FrameID is
// only meaningful for types.FocusStackFrame.
type Focus struct {
	Kind     string
	Session  *session.Session
	ThreadID int
	FrameID  int
}

// AcceptStackFrameFocus replaces the current focus. A nil dto clears it.
// A cancelled ctx leaves the focus as it is.
func (s *Service) AcceptStackFrameFocus(ctx context.Context, dto *types.FocusDTO) error {
	if ctx.Err() != nil {
		return nil
	}
	var focus *Focus
	if dto != nil {
		sess, ok := s.sessions.Get(dto.SessionID)
		if !ok {
			return errors.NoFocusSession(dto.SessionID)
		}
		switch dto.Kind {
		case types.FocusThread:
			focus = &Focus{Kind: dto.Kind, Session: sess, ThreadID: dto.ThreadID}
		case types.FocusStackFrame:
			focus = &Focus{Kind: dto.Kind, Session: sess, ThreadID: dto.ThreadID, FrameID: dto.FrameID}
		default:
			return errors.InvalidParameter("kind", dto.Kind, "'thread' or 'stackFrame'")
		}
	}

	s.mu.Lock()
	s.focus = focus
	s.mu.Unlock()
	s.onDidChangeFocus.Fire(focus)
	return nil
}

// StackFrameFocus returns the current focus, or nil.
func (s *Service) StackFrameFocus() *Focus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focus
}

// OnDidChangeStackFrameFocus subscribes l to focus changes. l receives nil
// when the focus is cleared.
func (s *Service) OnDidChangeStackFrameFocus(l func(*Focus)) *event.Subscription {
	return s.onDidChangeFocus.Subscribe(l)
}
