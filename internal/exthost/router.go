package exthost

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/adapters"
	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/errors"
	"github.com/ctagard/dap-exthost/internal/event"
	"github.com/ctagard/dap-exthost/internal/handles"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/internal/sign"
	"github.com/ctagard/dap-exthost/internal/tracker"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// handshakeCommand is the one request the router answers itself.
const handshakeCommand = "handshake"

type routerState int

const (
	stateIdle routerState = iota
	stateStarting
	stateActive
	stateStopping
	stateStopped
)

func (s routerState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStarting:
		return "starting"
	case stateActive:
		return "active"
	case stateStopping:
		return "stopping"
	case stateStopped:
		return "stopped"
	}
	return fmt.Sprintf("routerState(%d)", int(s))
}

// router relays DAP traffic between the main thread and one adapter.
type router struct {
	handle  handles.Handle
	session *session.Session
	adapter adapters.Adapter
	tracker tracker.Tracker
	main    MainThread
	signer  sign.Signer
	log     logr.Logger

	// ctx bounds signing calls; cancelled when the adapter goes away
	ctx    context.Context
	cancel context.CancelFunc

	// sendMu keeps main thread messages in order across activation
	sendMu sync.Mutex

	mu      sync.Mutex
	state   routerState
	pending []dap.Message
	subs    []*event.Subscription
	// released is called once when the router leaves the registry
	released func()
}

func (r *router) setState(to routerState) routerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	from := r.state
	r.state = to
	return from
}

// currentTracker is nil until tracker resolution has finished.
func (r *router) currentTracker() tracker.Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracker
}

func (r *router) currentState() routerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// StartDASession connects an adapter for the session described by dto and
// binds it to h, the handle chosen by the main thread. It returns once the
// adapter connection has started. Messages sent to h before then are held
// back and delivered in order once the router is active.
func (s *Service) StartDASession(ctx context.Context, h handles.Handle, dto types.SessionDTO) (Result[*session.Session], error) {
	if _, bound := s.routers.Resolve(h); bound {
		return Result[*session.Session]{}, errors.InvalidParameter("handle", int(h), "a handle without a running adapter")
	}

	sess, undo, err := s.session(ctx, dto)
	if ctx.Err() != nil {
		return cancelled[*session.Session](), nil
	}
	if err != nil {
		return Result[*session.Session]{}, err
	}

	d, release, err := s.resolveDescriptor(ctx, sess)
	if ctx.Err() != nil {
		release()
		undo()
		return cancelled[*session.Session](), nil
	}
	if err != nil {
		release()
		return Result[*session.Session]{}, err
	}
	if d == nil {
		return Result[*session.Session]{}, errors.DescriptorNotFound(sess.Type())
	}

	log := s.log.WithName("router").WithValues("handle", int(h), "session", sess.ID())
	adapter, err := adapters.Create(d, s.streams, log)
	if err != nil {
		release()
		log.V(1).Info("cannot create adapter", "descriptor", d.Type, "error", err.Error())
		return Result[*session.Session]{}, errors.AdapterCreateFailed(sess.Type(), d.Type)
	}

	r := &router{
		handle:  h,
		session: sess,
		adapter: adapter,
		main:    s.main,
		signer:  s.signer,
		log:     log,
		state:   stateStarting,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.released = func() { s.routers.ReleaseIf(h, func(v *router) bool { return v == r }) }
	if !s.routers.BindNew(h, r) {
		r.cancel()
		release()
		return Result[*session.Session]{}, errors.InvalidParameter("handle", int(h), "a handle without a running adapter")
	}

	tr := s.resolveTrackers(ctx, sess)
	if ctx.Err() != nil {
		r.detach()
		tracker.Close(tr)
		release()
		undo()
		return cancelled[*session.Session](), nil
	}

	r.mu.Lock()
	r.tracker = tr
	r.subs = append(r.subs,
		adapter.OnMessage(r.fromAdapter),
		adapter.OnError(r.adapterError),
		adapter.OnExit(r.adapterExit),
	)
	r.mu.Unlock()

	if tr != nil {
		tr.OnWillStartSession()
	}
	if err := adapter.Start(ctx); err != nil {
		r.detach()
		tracker.Close(tr)
		release()
		if ctx.Err() != nil {
			undo()
			return cancelled[*session.Session](), nil
		}
		return Result[*session.Session]{}, err
	}

	if !r.activate() {
		// stopped while starting
		log.V(1).Info("debug adapter stopped before it became active")
		if r.currentState() == stateStopping {
			if tr != nil {
				tr.OnWillStopSession()
			}
			if err := adapter.Stop(ctx); err != nil {
				log.Error(err, "cannot stop debug adapter")
			}
		}
		return done(sess), nil
	}
	log.Info("debug adapter started", "type", sess.Type(), "descriptor", d.Type)
	return done(sess), nil
}

// SendDAMessage delivers msg from the main thread to the adapter bound to h.
// Unknown handles are ignored: the adapter may be gone already.
func (s *Service) SendDAMessage(h handles.Handle, msg dap.Message) error {
	r, ok := s.routers.Resolve(h)
	if !ok {
		return nil
	}
	return r.toAdapter(msg)
}

// StopDASession stops the adapter bound to h. The handle is released at
// once; the exit of the adapter is still reported through AcceptDAExit.
func (s *Service) StopDASession(ctx context.Context, h handles.Handle) error {
	r, ok := s.routers.Release(h)
	if !ok {
		return nil
	}
	r.mu.Lock()
	from := r.state
	if from != stateStopped {
		r.state = stateStopping
	}
	r.pending = nil
	r.mu.Unlock()
	switch from {
	case stateStopped:
		return nil
	case stateStarting:
		// StartDASession stops the adapter once its start returns
		return nil
	}
	if t := r.currentTracker(); t != nil {
		t.OnWillStopSession()
	}
	r.log.V(1).Info("stopping debug adapter")
	return r.adapter.Stop(ctx)
}

// activate moves a starting router to active and flushes what the main
// thread sent in the meantime. It reports false when the router was stopped
// before its adapter started.
func (r *router) activate() bool {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	active := r.state == stateStarting
	if active {
		r.state = stateActive
	}
	r.mu.Unlock()

	if !active {
		return false
	}
	for _, msg := range pending {
		if err := r.deliver(msg); err != nil {
			r.log.Error(err, "cannot deliver held message", "command", msg.Command())
		}
	}
	return true
}

func (r *router) toAdapter(msg dap.Message) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.Lock()
	state := r.state
	if state == stateStarting {
		r.pending = append(r.pending, msg)
	}
	r.mu.Unlock()

	if state != stateActive {
		if state == stateStarting {
			r.log.V(1).Info("holding message until the adapter has started", "command", msg.Command())
		}
		return nil
	}
	return r.deliver(msg)
}

func (r *router) deliver(msg dap.Message) error {
	out, err := dap.ToAdapterPaths(msg)
	if err != nil {
		r.log.Error(err, "path translation failed", "command", msg.Command())
		out = msg
	}
	if t := r.currentTracker(); t != nil {
		t.OnWillReceiveMessage(out)
	}
	return r.adapter.Send(out)
}

func (r *router) fromAdapter(msg dap.Message) {
	if msg.IsRequest(handshakeCommand) {
		r.handshake(msg)
		return
	}
	if t := r.currentTracker(); t != nil {
		t.OnDidSendMessage(msg)
	}
	out, err := dap.ToClientPaths(msg)
	if err != nil {
		r.log.Error(err, "path translation failed", "kind", msg.Kind())
		out = msg
	}
	r.main.AcceptDAMessage(r.handle, out)
}

// handshake answers a handshake request by signing arguments.value. Failures
// become a failed response so the adapter always gets an answer.
func (r *router) handshake(req dap.Message) {
	var (
		resp dap.Message
		err  error
	)
	if r.signer == nil {
		resp, err = dap.NewResponse(req, 0, false, "no signer", nil)
	} else if sig, signErr := r.signer.Sign(r.ctx, req.Get("arguments.value").String()); signErr != nil {
		r.log.Error(errors.SigningFailed(signErr), "handshake failed")
		resp, err = dap.NewResponse(req, 0, false, signErr.Error(), nil)
	} else {
		resp, err = dap.NewResponse(req, 0, true, "", map[string]string{"signature": sig})
	}
	if err != nil {
		r.log.Error(err, "cannot build handshake response")
		return
	}

	if t := r.currentTracker(); t != nil {
		t.OnWillReceiveMessage(resp)
	}
	if err := r.adapter.Send(resp); err != nil {
		r.log.Error(err, "cannot send handshake response")
	}
}

func (r *router) adapterError(err error) {
	r.log.Error(err, "debug adapter error")
	if t := r.currentTracker(); t != nil {
		t.OnError(err)
	}
	name := string(errors.CodeOf(err))
	if name == "" {
		name = "Error"
	}
	r.main.AcceptDAError(r.handle, name, err.Error(), "")
}

func (r *router) adapterExit(x adapters.Exit) {
	r.setState(stateStopped)
	if x.Code != nil {
		r.log.Info("debug adapter exited", "code", *x.Code, "signal", x.Signal)
	} else {
		r.log.Info("debug adapter exited", "signal", x.Signal)
	}
	if t := r.currentTracker(); t != nil {
		t.OnExit(x.Code, x.Signal)
	}
	r.main.AcceptDAExit(r.handle, x.Code, x.Signal)
	r.detach()
}

// detach releases the handle and drops every listener. Safe to call twice.
func (r *router) detach() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.pending = nil
	r.state = stateStopped
	release := r.released
	r.released = nil
	r.mu.Unlock()

	if release != nil {
		release()
	}
	for _, sub := range subs {
		sub.Dispose()
	}
	r.cancel()
}
