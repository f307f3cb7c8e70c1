package workbench

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/errors"
	"github.com/ctagard/dap-exthost/internal/exthost"
	"github.com/ctagard/dap-exthost/pkg/types"
)

const (
	// initializedTimeout bounds the wait for the adapter's initialized event.
	initializedTimeout = 10 * time.Second
	// disconnectTimeout bounds a graceful disconnect before the adapter is
	// stopped.
	disconnectTimeout = 3 * time.Second
)

// StartDebugging resolves the configuration, announces a new session to the
// host, connects its adapter and runs the DAP launch sequence. It returns
// false without error when a provider aborts the launch or ctx is cancelled
// while resolving.
func (w *Workbench) StartDebugging(ctx context.Context, folderURI string, nameOrConfig exthost.NameOrConfig, opts types.StartDebuggingOptions) (bool, error) {
	_, err := w.Start(ctx, folderURI, nameOrConfig, opts)
	if err == errAborted {
		return false, nil
	}
	return err == nil, err
}

var errAborted = errors.Wrap(errors.CodeConfigInvalid, "launch aborted by a configuration provider", "", nil)

// Start is StartDebugging returning the new session.
func (w *Workbench) Start(ctx context.Context, folderURI string, nameOrConfig exthost.NameOrConfig, opts types.StartDebuggingOptions) (*Session, error) {
	host, err := w.service()
	if err != nil {
		return nil, err
	}

	cfg, err := w.resolveConfiguration(ctx, host, folderURI, nameOrConfig)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.maxSessions > 0 && len(w.sessions) >= w.maxSessions {
		w.mu.Unlock()
		return nil, errors.SessionLimitReached(w.maxSessions)
	}
	s := newSession(uuid.NewString(), cfg, folderURI, opts)
	s.Handle = w.adapters.Allocate()
	w.adapters.Bind(s.Handle, s)
	w.sessions[s.ID] = s
	w.mu.Unlock()

	h := s.Handle
	s.client = dap.NewClient(func(msg dap.Message) error {
		return host.SendDAMessage(h, msg)
	}, w.log.WithValues("session", s.ID))
	s.client.SetEventHandler(func(msg dap.Message) { w.onAdapterMessage(s, msg) })

	log := w.log.WithValues("session", s.ID, "type", s.Type, "name", s.Name())
	log.Info("starting debug session")

	fail := func(err error) (*Session, error) {
		log.Error(err, "debug session failed to start")
		s.setError(err.Error())
		if err := host.StopDASession(context.Background(), h); err != nil {
			log.V(1).Info("failed to stop debug adapter", "error", err.Error())
		}
		w.teardown(s)
		return nil, err
	}

	if res, err := host.AcceptDebugSessionStarted(ctx, s.DTO()); err != nil {
		return fail(err)
	} else if res.Cancelled {
		return fail(ctx.Err())
	}
	res, err := host.StartDASession(ctx, h, s.DTO())
	if err != nil {
		return fail(err)
	}
	if res.Cancelled {
		return fail(ctx.Err())
	}

	if err := w.launch(ctx, s); err != nil {
		return fail(err)
	}

	w.mu.Lock()
	w.activeID = s.ID
	w.mu.Unlock()
	dto := s.DTO()
	if _, err := host.AcceptDebugSessionActiveChanged(ctx, &dto); err != nil {
		log.Error(err, "failed to announce the active session")
	}
	log.Info("debug session started")
	return s, nil
}

// resolveConfiguration runs the provider chain: lookup by name, resolve,
// substitute variables, resolve again with substituted variables.
func (w *Workbench) resolveConfiguration(ctx context.Context, host *exthost.Service, folderURI string, noc exthost.NameOrConfig) (types.DebugConfiguration, error) {
	var cfg types.DebugConfiguration
	if noc.IsName() {
		var err error
		if cfg, err = w.findConfiguration(ctx, folderURI, noc.Name); err != nil {
			return nil, err
		}
	} else {
		cfg = noc.Config.Clone()
	}

	debugType := cfg.Type()
	for _, p := range w.providersFor(debugType, func(p providerInfo) bool { return p.hasResolve }) {
		res, err := host.ResolveDebugConfiguration(ctx, p.handle, folderURI, cfg)
		if cfg, err = w.checkResolved(ctx, res, err); err != nil {
			return nil, err
		}
	}

	res, err := host.SubstituteVariables(ctx, folderURI, cfg)
	if errors.Is(err, errors.CodeNotSupported) {
		res, err = exthost.Result[types.DebugConfiguration]{Value: cfg}, nil
	}
	if cfg, err = w.checkResolved(ctx, res, err); err != nil {
		return nil, err
	}

	for _, p := range w.providersFor(debugType, func(p providerInfo) bool { return p.hasResolve2 }) {
		res, err := host.ResolveDebugConfigurationWithSubstitutedVariables(ctx, p.handle, folderURI, cfg)
		if cfg, err = w.checkResolved(ctx, res, err); err != nil {
			return nil, err
		}
	}

	if cfg.Type() == "" {
		return nil, errors.ConfigInvalid(cfg.Name(), "configuration type is required")
	}
	return cfg, nil
}

func (w *Workbench) checkResolved(ctx context.Context, res exthost.Result[types.DebugConfiguration], err error) (types.DebugConfiguration, error) {
	switch {
	case err != nil:
		return nil, err
	case res.Cancelled:
		return nil, ctx.Err()
	case res.Value == nil:
		return nil, errAborted
	}
	return res.Value, nil
}

func (w *Workbench) findConfiguration(ctx context.Context, folderURI, name string) (types.DebugConfiguration, error) {
	configs, err := w.Configurations(ctx, folderURI)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Name() == name {
			return cfg, nil
		}
		names = append(names, cfg.Name())
	}
	return nil, errors.ConfigNotFound(name, names)
}

// launch runs initialize, launch or attach, the breakpoint push and
// configurationDone.
func (w *Workbench) launch(ctx context.Context, s *Session) error {
	caps, err := s.client.Initialize(ctx, w.clientID, w.clientName, s.Type)
	if err != nil {
		return err
	}

	request := s.Config.Request()
	if request == "" {
		request = "launch"
	}
	args := s.Config.Clone()
	args["__sessionId"] = s.ID
	if s.Options.NoDebug {
		args["noDebug"] = true
	}

	// adapters may send initialized before or after answering launch
	seq, respCh, err := s.client.RequestAsync(request, args)
	if err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(ctx, initializedTimeout)
	err = s.client.WaitInitialized(initCtx)
	cancel()
	if err != nil {
		if _, lerr := s.client.Wait(ctx, request, seq, respCh); lerr != nil {
			return lerr
		}
		return err
	}

	s.bpMu.Lock()
	s.configured = true
	s.bpMu.Unlock()
	if err := w.syncBreakpoints(ctx, s); err != nil {
		w.log.Error(err, "failed to set breakpoints", "session", s.ID)
	}

	if caps.SupportsConfigurationDoneRequest {
		if err := s.client.ConfigurationDone(ctx); err != nil {
			return err
		}
	}

	if _, err := s.client.Wait(ctx, request, seq, respCh); err != nil {
		return err
	}
	if s.State() == StateInitializing {
		s.setState(StateRunning)
	}
	return nil
}

// StopDebugging disconnects the session, or the active one for "", and
// stops its adapter.
func (w *Workbench) StopDebugging(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		w.mu.RLock()
		sessionID = w.activeID
		w.mu.RUnlock()
	}
	s, ok := w.Session(sessionID)
	if !ok {
		return errors.SessionNotFound(sessionID)
	}
	w.shutdown(ctx, s)
	return nil
}

// shutdown asks the adapter to disconnect, then stops it and tears the
// session down. Only the first call has an effect.
func (w *Workbench) shutdown(ctx context.Context, s *Session) {
	if s.State() == StateTerminated {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, disconnectTimeout)
	terminate := s.Config.Request() != "attach"
	if err := s.client.Disconnect(dctx, terminate); err != nil {
		w.log.V(1).Info("disconnect failed", "session", s.ID, "error", err.Error())
	}
	cancel()

	if host, err := w.service(); err == nil {
		if err := host.StopDASession(ctx, s.Handle); err != nil {
			w.log.Error(err, "failed to stop debug adapter", "session", s.ID)
		}
	}
	w.teardown(s)
}

// teardown forgets the session and tells the host it terminated. Children
// whose lifecycle is managed by s are stopped too.
func (w *Workbench) teardown(s *Session) {
	s.finishOnce.Do(func() {
		w.mu.Lock()
		delete(w.sessions, s.ID)
		w.adapters.Release(s.Handle)
		wasActive := w.activeID == s.ID
		if wasActive {
			w.activeID = ""
		}
		var children []*Session
		for _, c := range w.sessions {
			if c.ParentID == s.ID && c.Options.LifecycleManagedByParent {
				children = append(children, c)
			}
		}
		w.mu.Unlock()

		s.mu.Lock()
		s.state = StateTerminated
		s.mu.Unlock()
		if s.client != nil {
			s.client.Close()
		}

		if host, err := w.service(); err == nil {
			host.AcceptDebugSessionTerminated(s.DTO())
			if wasActive {
				if _, err := host.AcceptDebugSessionActiveChanged(context.Background(), nil); err != nil {
					w.log.Error(err, "failed to clear the active session")
				}
			}
		}
		close(s.done)
		w.log.Info("debug session terminated", "session", s.ID)

		for _, c := range children {
			go w.shutdown(context.Background(), c)
		}
	})
}

// Session returns a live session by id.
func (w *Workbench) Session(id string) (*Session, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sessions[id]
	return s, ok
}

// ActiveSession returns the session that started last, if still running.
func (w *Workbench) ActiveSession() (*Session, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sessions[w.activeID]
	return s, ok
}

// Sessions lists live sessions in start order.
func (w *Workbench) Sessions() []Info {
	w.mu.RLock()
	sessions := make([]*Session, 0, len(w.sessions))
	for _, s := range w.sessions {
		sessions = append(sessions, s)
	}
	active := w.activeID
	w.mu.RUnlock()

	infos := make([]Info, len(sessions))
	for i, s := range sessions {
		infos[i] = s.Info()
		infos[i].Active = s.ID == active
	}
	sortInfos(infos)
	return infos
}
