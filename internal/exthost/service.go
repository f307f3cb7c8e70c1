// Package exthost is the extension-host side of debugging.
//
// A Service owns the sessions, breakpoints and registrations of one host and
// answers the calls of its MainThread: it resolves debug configurations and
// adapter descriptors through registered providers and factories, and routes
// DAP traffic between the main thread and adapter connections.
//
// NewService builds the main variant, which can spawn executables, dial
// servers and pipes, and sign handshakes. NewWorkerService builds the worker
// variant, which only runs in-process adapters. The two never share state.
package exthost

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/breakpoints"
	"github.com/ctagard/dap-exthost/internal/contributions"
	"github.com/ctagard/dap-exthost/internal/event"
	"github.com/ctagard/dap-exthost/internal/handles"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/internal/sign"
	"github.com/ctagard/dap-exthost/internal/tracker"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// VariableResolver expands ${...} references in a configuration.
type VariableResolver interface {
	SubstituteVariables(ctx context.Context, folder *session.WorkspaceFolder, cfg types.DebugConfiguration) (types.DebugConfiguration, error)
}

// Options configure a Service. Sessions and Breakpoints are created fresh
// when nil.
type Options struct {
	MainThread    MainThread
	Contributions *contributions.Registry
	Folders       session.FolderResolver
	Variables     VariableResolver
	// Signer answers handshake requests. Ignored by the worker variant.
	Signer         sign.Signer
	TrackerTimeout time.Duration
	Log            logr.Logger

	Sessions    *session.Registry
	Breakpoints *breakpoints.Store
}

// Result is the outcome of a cancellable call. A cancelled result carries
// the zero Value and no state was changed.
type Result[T any] struct {
	Value     T
	Cancelled bool
}

func cancelled[T any]() Result[T] { return Result[T]{Cancelled: true} }

func done[T any](v T) Result[T] { return Result[T]{Value: v} }

// CustomEvent is a non-standard DAP event reported for a session.
type CustomEvent struct {
	Session *session.Session
	Event   string
	Body    interface{}
}

// Disposable undoes a registration. Dispose is idempotent.
type Disposable struct {
	once sync.Once
	fn   func()
}

func newDisposable(fn func()) *Disposable { return &Disposable{fn: fn} }

func (d *Disposable) Dispose() {
	if d == nil || d.fn == nil {
		return
	}
	d.once.Do(d.fn)
}

// Service is the debug service of one extension host.
type Service struct {
	main          MainThread
	contributions *contributions.Registry
	folders       session.FolderResolver
	variables     VariableResolver
	signer        sign.Signer
	log           logr.Logger

	// worker hosts can only run inline adapters and have no package fallback
	streams            bool
	executableFallback bool
	trackerTimeout     time.Duration

	sessions    *session.Registry
	breakpoints *breakpoints.Store

	providers       *handles.Registry[*providerEntry]
	factories       *handles.Registry[*factoryEntry]
	trackers        *handles.Registry[*trackerEntry]
	routers         *handles.Registry[*router]
	factoryTypeLock sync.Mutex

	mu     sync.RWMutex
	active *session.Session
	focus  *Focus

	onDidStart         event.Emitter[*session.Session]
	onDidTerminate     event.Emitter[*session.Session]
	onDidChangeActive  event.Emitter[*session.Session]
	onDidReceiveCustom event.Emitter[CustomEvent]
	onDidChangeFocus   event.Emitter[*Focus]

	console    *DebugConsole
	contribSub *event.Subscription
}

// NewService creates the main extension-host debug service.
func NewService(opts Options) *Service {
	s := newService(opts, "exthost")
	s.streams = true
	s.executableFallback = true
	s.signer = opts.Signer
	s.RegisterAllDebugTypes()
	return s
}

// NewWorkerService creates the worker variant: inline adapters only, no
// package executables and no handshake signer.
func NewWorkerService(opts Options) *Service {
	s := newService(opts, "worker-exthost")
	s.RegisterAllDebugTypes()
	return s
}

func newService(opts Options, name string) *Service {
	log := opts.Log.WithName(name)
	timeout := opts.TrackerTimeout
	if timeout <= 0 {
		timeout = tracker.DefaultTimeout
	}

	s := &Service{
		main:           opts.MainThread,
		contributions:  opts.Contributions,
		folders:        opts.Folders,
		variables:      opts.Variables,
		log:            log,
		trackerTimeout: timeout,
		sessions:       opts.Sessions,
		breakpoints:    opts.Breakpoints,
		providers:      handles.New[*providerEntry](),
		factories:      handles.New[*factoryEntry](),
		trackers:       handles.New[*trackerEntry](),
		routers:        handles.New[*router](),
	}
	if s.sessions == nil {
		s.sessions = session.NewRegistry(opts.MainThread, opts.Folders, log)
	}
	if s.breakpoints == nil {
		s.breakpoints = breakpoints.NewStore(opts.MainThread, log)
	}
	s.console = &DebugConsole{main: opts.MainThread}

	if s.contributions != nil {
		s.contribSub = s.contributions.OnDidChange(s.RegisterAllDebugTypes)
	}
	return s
}

// Close stops every adapter connection, waiting for each to exit until ctx
// is done, and detaches from the contribution registry.
func (s *Service) Close(ctx context.Context) {
	s.contribSub.Dispose()
	for _, e := range s.routers.All() {
		if err := s.StopDASession(ctx, e.Handle); err != nil {
			s.log.Error(err, "failed to stop debug adapter", "handle", int(e.Handle))
			continue
		}
		select {
		case <-e.Value.adapter.Done():
		case <-ctx.Done():
			return
		}
	}
}

// RegisterAllDebugTypes announces the debug types of every main debugger
// contribution.
func (s *Service) RegisterAllDebugTypes() {
	if s.contributions == nil {
		return
	}
	s.main.RegisterDebugTypes(s.contributions.DebugTypes())
}

// Sessions exposes the session registry of this host.
func (s *Service) Sessions() *session.Registry { return s.sessions }

// Breakpoints exposes the breakpoint store of this host.
func (s *Service) Breakpoints() *breakpoints.Store { return s.breakpoints }

// IsWorker reports whether s is the worker variant.
func (s *Service) IsWorker() bool { return !s.streams }
