package workbench

import (
	"context"
	"encoding/json"

	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/exthost"
	"github.com/ctagard/dap-exthost/internal/handles"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// standardEvents are the events defined by the protocol. Anything else is
// forwarded to the host as a custom event.
var standardEvents = map[string]bool{
	"initialized":    true,
	"stopped":        true,
	"continued":      true,
	"exited":         true,
	"terminated":     true,
	"thread":         true,
	"output":         true,
	"breakpoint":     true,
	"module":         true,
	"loadedSource":   true,
	"process":        true,
	"capabilities":   true,
	"progressStart":  true,
	"progressUpdate": true,
	"progressEnd":    true,
	"invalidated":    true,
	"memory":         true,
}

func (w *Workbench) sessionFor(h handles.Handle) (*Session, bool) {
	return w.adapters.Resolve(h)
}

// AcceptDAMessage receives a message of the adapter bound to h.
func (w *Workbench) AcceptDAMessage(h handles.Handle, msg dap.Message) {
	s, ok := w.sessionFor(h)
	if !ok {
		w.log.V(1).Info("message for unknown adapter", "handle", int(h))
		return
	}
	s.client.Dispatch(msg)
}

// AcceptDAError records an adapter error on its session.
func (w *Workbench) AcceptDAError(h handles.Handle, name, message, stack string) {
	s, ok := w.sessionFor(h)
	if !ok {
		return
	}
	w.log.Info("debug adapter error", "session", s.ID, "name", name, "message", message)
	s.setError(message)
}

// AcceptDAExit ends the session of an adapter that exited.
func (w *Workbench) AcceptDAExit(h handles.Handle, code *int, signal string) {
	s, ok := w.sessionFor(h)
	if !ok {
		return
	}
	s.setExit(code)
	w.log.V(1).Info("debug adapter exited", "session", s.ID, "signal", signal)
	w.teardown(s)
}

// onAdapterMessage handles events and reverse requests. It runs on the
// delivery goroutine of the adapter, so anything that waits for the adapter
// is started on a new goroutine.
func (w *Workbench) onAdapterMessage(s *Session, msg dap.Message) {
	if msg.Kind() == dap.KindRequest {
		go w.reverseRequest(s, msg)
		return
	}

	ev := msg.Event()
	switch ev {
	case "stopped":
		s.setState(StateStopped)
		threadID := int(msg.Get("body.threadId").Int())
		w.focus(s, &types.FocusDTO{Kind: types.FocusThread, SessionID: s.ID, ThreadID: threadID})
		go w.focusTopFrame(s, threadID)
	case "continued":
		s.setState(StateRunning)
	case "output":
		s.appendOutput(OutputLine{
			Category: msg.Get("body.category").String(),
			Output:   msg.Get("body.output").String(),
		})
	case "breakpoint":
		bp := msg.Get("body.breakpoint")
		s.updateBreakpoint(int(bp.Get("id").Int()), json.RawMessage(bp.Raw))
	case "exited":
		code := int(msg.Get("body.exitCode").Int())
		s.setExit(&code)
	case "terminated":
		if msg.Get("body.restart").Exists() {
			w.log.V(1).Info("adapter requested a restart; ending the session instead", "session", s.ID)
		}
		go w.shutdown(context.Background(), s)
	default:
		if !standardEvents[ev] {
			w.customEvent(s, ev, msg.Body())
		}
	}
}

func (w *Workbench) focus(s *Session, dto *types.FocusDTO) {
	host, err := w.service()
	if err != nil {
		return
	}
	if err := host.AcceptStackFrameFocus(context.Background(), dto); err != nil {
		w.log.V(1).Info("focus not accepted", "session", s.ID, "error", err.Error())
	}
}

// focusTopFrame moves the focus from the stopped thread to its top frame.
func (w *Workbench) focusTopFrame(s *Session, threadID int) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	resp, err := s.client.Request(ctx, "stackTrace", map[string]interface{}{"threadId": threadID, "levels": 1})
	if err != nil {
		w.log.V(1).Info("cannot read top frame", "session", s.ID, "error", err.Error())
		return
	}
	frame := resp.Get("body.stackFrames.0.id")
	if !frame.Exists() || s.State() != StateStopped {
		return
	}
	w.focus(s, &types.FocusDTO{
		Kind:      types.FocusStackFrame,
		SessionID: s.ID,
		ThreadID:  threadID,
		FrameID:   int(frame.Int()),
	})
}

func (w *Workbench) customEvent(s *Session, name string, raw json.RawMessage) {
	host, err := w.service()
	if err != nil {
		return
	}
	var body interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			w.log.V(1).Info("undecodable custom event body", "event", name, "error", err.Error())
		}
	}
	if _, err := host.AcceptDebugSessionCustomEvent(context.Background(), s.DTO(), name, body); err != nil {
		w.log.Error(err, "failed to deliver custom event", "session", s.ID, "event", name)
	}
}

// reverseRequest answers requests the adapter sends to the client.
func (w *Workbench) reverseRequest(s *Session, req dap.Message) {
	var err error
	switch req.Command() {
	case "runInTerminal":
		err = w.runInTerminal(s, req)
	case "startDebugging":
		err = w.startChild(s, req)
	default:
		err = s.client.Respond(req, false, "unsupported reverse request", nil)
	}
	if err != nil {
		w.log.Error(err, "failed to answer reverse request", "session", s.ID, "command", req.Command())
	}
}

func (w *Workbench) runInTerminal(s *Session, req dap.Message) error {
	host, err := w.service()
	if err != nil {
		return s.client.Respond(req, false, err.Error(), nil)
	}
	var args types.RunInTerminalArgs
	if err := json.Unmarshal(req.Arguments(), &args); err != nil {
		return s.client.Respond(req, false, "invalid runInTerminal arguments", nil)
	}
	pid, ok := host.RunInTerminal(context.Background(), args, s.ID)
	if !ok {
		return s.client.Respond(req, false, "runInTerminal is not supported", nil)
	}
	return s.client.Respond(req, true, "", map[string]int{"processId": pid})
}

// startChild launches the child session an adapter asks for. The child's
// lifecycle follows its parent.
func (w *Workbench) startChild(s *Session, req dap.Message) error {
	var args struct {
		Configuration types.DebugConfiguration `json:"configuration"`
		Request       string                   `json:"request"`
	}
	if err := json.Unmarshal(req.Arguments(), &args); err != nil || args.Configuration == nil {
		return s.client.Respond(req, false, "invalid startDebugging arguments", nil)
	}
	cfg := args.Configuration
	if args.Request != "" {
		cfg["request"] = args.Request
	}
	if cfg.Type() == "" {
		cfg["type"] = s.Type
	}
	if err := s.client.Respond(req, true, "", nil); err != nil {
		return err
	}

	opts := types.StartDebuggingOptions{ParentSessionID: s.ID, LifecycleManagedByParent: true}
	if _, err := w.Start(context.Background(), s.FolderURI, exthost.NameOrConfig{Config: cfg}, opts); err != nil {
		w.log.Error(err, "child session failed to start", "parent", s.ID)
	}
	return nil
}
