// Package workbench is the main-thread side of debugging, run in process.
//
// A Workbench implements exthost.MainThread. It owns the debug sessions the
// user starts: it resolves their configurations through the providers the
// extension host registered, assigns session ids, asks the host to connect an
// adapter and then drives the adapter with a DAP client whose traffic flows
// through the host's message router. Breakpoints registered by the host are
// pushed to every configured session.
package workbench

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/errors"
	"github.com/ctagard/dap-exthost/internal/exthost"
	"github.com/ctagard/dap-exthost/internal/handles"
	"github.com/ctagard/dap-exthost/pkg/types"
)

const (
	defaultClientID   = "dap-exthost"
	defaultClientName = "dap-exthost"
)

// Options configure a Workbench.
type Options struct {
	// MaxSessions bounds concurrently running sessions; 0 means unbounded.
	MaxSessions int
	ClientID    string
	ClientName  string
	Log         logr.Logger
}

type providerInfo struct {
	handle                             handles.Handle
	debugType                          string
	trigger                            types.ProviderTriggerKind
	hasProvide, hasResolve, hasResolve2 bool
}

// Workbench hosts debug sessions on behalf of one extension host.
type Workbench struct {
	log         logr.Logger
	maxSessions int
	clientID    string
	clientName  string

	hostMu sync.RWMutex
	host   *exthost.Service

	mu         sync.RWMutex
	sessions   map[string]*Session
	adapters   *handles.Registry[*Session]
	activeID   string
	debugTypes []string
	providers  map[handles.Handle]providerInfo
	factories  map[handles.Handle]string

	bpMu    sync.RWMutex
	bpOrder []string
	bps     map[string]types.BreakpointDTO

	consoleMu sync.Mutex
	console   strings.Builder
}

var _ exthost.MainThread = (*Workbench)(nil)

// New creates a workbench. Attach must be called before sessions can start.
func New(opts Options) *Workbench {
	w := &Workbench{
		log:         opts.Log.WithName("workbench"),
		maxSessions: opts.MaxSessions,
		clientID:    opts.ClientID,
		clientName:  opts.ClientName,
		sessions:    make(map[string]*Session),
		adapters:    handles.New[*Session](),
		providers:   make(map[handles.Handle]providerInfo),
		factories:   make(map[handles.Handle]string),
		bps:         make(map[string]types.BreakpointDTO),
	}
	if w.clientID == "" {
		w.clientID = defaultClientID
	}
	if w.clientName == "" {
		w.clientName = defaultClientName
	}
	return w
}

// Attach connects the workbench to the extension host it serves.
func (w *Workbench) Attach(host *exthost.Service) {
	w.hostMu.Lock()
	defer w.hostMu.Unlock()
	w.host = host
}

func (w *Workbench) service() (*exthost.Service, error) {
	w.hostMu.RLock()
	defer w.hostMu.RUnlock()
	if w.host == nil {
		return nil, errors.NotSupported("debugging without an extension host")
	}
	return w.host, nil
}

// RegisterDebugTypes records the debug types the host can launch.
func (w *Workbench) RegisterDebugTypes(debugTypes []string) {
	w.mu.Lock()
	w.debugTypes = append([]string(nil), debugTypes...)
	w.mu.Unlock()
	w.log.V(1).Info("debug types registered", "types", debugTypes)
}

// DebugTypes returns the most recently registered debug types.
func (w *Workbench) DebugTypes() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.debugTypes...)
}

func (w *Workbench) RegisterDebugConfigurationProvider(debugType string, trigger types.ProviderTriggerKind, hasProvide, hasResolve, hasResolveWithSubstitutedVariables bool, h handles.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.providers[h] = providerInfo{
		handle:      h,
		debugType:   debugType,
		trigger:     trigger,
		hasProvide:  hasProvide,
		hasResolve:  hasResolve,
		hasResolve2: hasResolveWithSubstitutedVariables,
	}
}

func (w *Workbench) UnregisterDebugConfigurationProvider(h handles.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.providers, h)
}

func (w *Workbench) RegisterDebugAdapterDescriptorFactory(debugType string, h handles.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.factories[h] = debugType
}

func (w *Workbench) UnregisterDebugAdapterDescriptorFactory(h handles.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.factories, h)
}

// HasDescriptorFactory reports whether the host registered a factory for
// debugType.
func (w *Workbench) HasDescriptorFactory(debugType string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, t := range w.factories {
		if t == debugType {
			return true
		}
	}
	return false
}

// providersFor returns matching providers in registration order. Providers
// for debugType come before wildcard ones.
func (w *Workbench) providersFor(debugType string, want func(providerInfo) bool) []providerInfo {
	w.mu.RLock()
	var exact, wildcard []providerInfo
	for _, p := range w.providers {
		if !want(p) {
			continue
		}
		switch p.debugType {
		case debugType:
			exact = append(exact, p)
		case "*":
			wildcard = append(wildcard, p)
		}
	}
	w.mu.RUnlock()

	byHandle := func(ps []providerInfo) {
		sort.Slice(ps, func(i, j int) bool { return ps[i].handle < ps[j].handle })
	}
	byHandle(exact)
	byHandle(wildcard)
	return append(exact, wildcard...)
}

// allProviders returns every provider that can provide configurations, in
// registration order.
func (w *Workbench) allProviders() []providerInfo {
	w.mu.RLock()
	var out []providerInfo
	for _, p := range w.providers {
		if p.hasProvide {
			out = append(out, p)
		}
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].handle < out[j].handle })
	return out
}

// Configurations collects the configurations of every provider for the
// folder. Providers that yield nothing are skipped.
func (w *Workbench) Configurations(ctx context.Context, folderURI string) ([]types.DebugConfiguration, error) {
	host, err := w.service()
	if err != nil {
		return nil, err
	}
	var out []types.DebugConfiguration
	for _, p := range w.allProviders() {
		res, err := host.ProvideDebugConfigurations(ctx, p.handle, folderURI)
		if errors.Is(err, errors.CodeNothingProvided) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if res.Cancelled {
			return nil, ctx.Err()
		}
		out = append(out, res.Value...)
	}
	return out, nil
}

// AppendDebugConsole appends output of the host to the debug console.
func (w *Workbench) AppendDebugConsole(value string) {
	w.consoleMu.Lock()
	defer w.consoleMu.Unlock()
	w.console.WriteString(value)
}

// ConsoleOutput returns everything appended to the debug console.
func (w *Workbench) ConsoleOutput() string {
	w.consoleMu.Lock()
	defer w.consoleMu.Unlock()
	return w.console.String()
}

// SessionCached is informational: the host caches every session it sees.
func (w *Workbench) SessionCached(sessionID string) {
	w.log.V(1).Info("session cached by extension host", "session", sessionID)
}

// SetDebugSessionName renames a session at the request of the host.
func (w *Workbench) SetDebugSessionName(sessionID, name string) {
	if s, ok := w.Session(sessionID); ok {
		s.setName(name)
	}
}

// CustomDebugAdapterRequest sends an arbitrary request to the adapter of a
// session and returns the response body.
func (w *Workbench) CustomDebugAdapterRequest(ctx context.Context, sessionID, command string, args interface{}) (json.RawMessage, error) {
	s, ok := w.Session(sessionID)
	if !ok {
		return nil, errors.SessionNotFound(sessionID)
	}
	resp, err := s.client.Request(ctx, command, args)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// GetDebugProtocolBreakpoint returns the adapter's last report on the
// breakpoint, or nil when the adapter has not seen it.
func (w *Workbench) GetDebugProtocolBreakpoint(_ context.Context, sessionID, breakpointID string) (json.RawMessage, error) {
	s, ok := w.Session(sessionID)
	if !ok {
		return nil, errors.SessionNotFound(sessionID)
	}
	return s.adapterBreakpoint(breakpointID), nil
}
