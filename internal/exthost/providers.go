package exthost

import (
	"context"

	"github.com/ctagard/dap-exthost/internal/errors"
	"github.com/ctagard/dap-exthost/internal/handles"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// ConfigurationProvider supplies and resolves debug configurations. Any of
// the functions may be nil; the main thread is told which ones exist.
//
// A resolver returning a nil configuration aborts the launch.
type ConfigurationProvider struct {
	ProvideDebugConfigurations                        func(ctx context.Context, folder *session.WorkspaceFolder) ([]types.DebugConfiguration, error)
	ResolveDebugConfiguration                         func(ctx context.Context, folder *session.WorkspaceFolder, cfg types.DebugConfiguration) (types.DebugConfiguration, error)
	ResolveDebugConfigurationWithSubstitutedVariables func(ctx context.Context, folder *session.WorkspaceFolder, cfg types.DebugConfiguration) (types.DebugConfiguration, error)
}

type providerEntry struct {
	debugType string
	provider  *ConfigurationProvider
}

// RegisterDebugConfigurationProvider registers p for debugType. A nil
// provider is ignored and yields a no-op Disposable.
func (s *Service) RegisterDebugConfigurationProvider(debugType string, p *ConfigurationProvider, trigger types.ProviderTriggerKind) *Disposable {
	if p == nil {
		return newDisposable(nil)
	}
	h := s.providers.Register(&providerEntry{debugType: debugType, provider: p})
	s.main.RegisterDebugConfigurationProvider(debugType, trigger,
		p.ProvideDebugConfigurations != nil,
		p.ResolveDebugConfiguration != nil,
		p.ResolveDebugConfigurationWithSubstitutedVariables != nil,
		h)
	s.log.V(1).Info("registered configuration provider", "type", debugType, "handle", int(h))

	return newDisposable(func() {
		s.providers.Release(h)
		s.main.UnregisterDebugConfigurationProvider(h)
	})
}

func (s *Service) provider(h handles.Handle) (*ConfigurationProvider, error) {
	e, ok := s.providers.Resolve(h)
	if !ok {
		return nil, errors.ProviderNotFound(int(h))
	}
	return e.provider, nil
}

// ProvideDebugConfigurations asks the provider behind h for initial
// configurations.
func (s *Service) ProvideDebugConfigurations(ctx context.Context, h handles.Handle, folderURI string) (Result[[]types.DebugConfiguration], error) {
	p, err := s.provider(h)
	if err != nil {
		return Result[[]types.DebugConfiguration]{}, err
	}
	if p.ProvideDebugConfigurations == nil {
		return Result[[]types.DebugConfiguration]{}, errors.ProviderMethodMissing("provideDebugConfigurations")
	}
	folder, err := s.sessions.ResolveFolder(ctx, folderURI)
	if ctx.Err() != nil {
		return cancelled[[]types.DebugConfiguration](), nil
	}
	if err != nil {
		return Result[[]types.DebugConfiguration]{}, err
	}

	configs, err := p.ProvideDebugConfigurations(ctx, folder)
	if ctx.Err() != nil {
		return cancelled[[]types.DebugConfiguration](), nil
	}
	if err != nil {
		return Result[[]types.DebugConfiguration]{}, err
	}
	if configs == nil {
		return Result[[]types.DebugConfiguration]{}, errors.NothingProvided("provideDebugConfigurations")
	}
	return done(configs), nil
}

// ResolveDebugConfiguration lets the provider behind h fill in or veto cfg
// before variables are substituted.
func (s *Service) ResolveDebugConfiguration(ctx context.Context, h handles.Handle, folderURI string, cfg types.DebugConfiguration) (Result[types.DebugConfiguration], error) {
	p, err := s.provider(h)
	if err != nil {
		return Result[types.DebugConfiguration]{}, err
	}
	if p.ResolveDebugConfiguration == nil {
		return Result[types.DebugConfiguration]{}, errors.ProviderMethodMissing("resolveDebugConfiguration")
	}
	return s.resolveWith(ctx, folderURI, cfg, p.ResolveDebugConfiguration)
}

// ResolveDebugConfigurationWithSubstitutedVariables is the second resolve
// pass, after variable substitution.
func (s *Service) ResolveDebugConfigurationWithSubstitutedVariables(ctx context.Context, h handles.Handle, folderURI string, cfg types.DebugConfiguration) (Result[types.DebugConfiguration], error) {
	p, err := s.provider(h)
	if err != nil {
		return Result[types.DebugConfiguration]{}, err
	}
	if p.ResolveDebugConfigurationWithSubstitutedVariables == nil {
		return Result[types.DebugConfiguration]{}, errors.ProviderMethodMissing("resolveDebugConfigurationWithSubstitutedVariables")
	}
	return s.resolveWith(ctx, folderURI, cfg, p.ResolveDebugConfigurationWithSubstitutedVariables)
}

func (s *Service) resolveWith(
	ctx context.Context,
	folderURI string,
	cfg types.DebugConfiguration,
	resolve func(context.Context, *session.WorkspaceFolder, types.DebugConfiguration) (types.DebugConfiguration, error),
) (Result[types.DebugConfiguration], error) {
	folder, err := s.sessions.ResolveFolder(ctx, folderURI)
	if ctx.Err() != nil {
		return cancelled[types.DebugConfiguration](), nil
	}
	if err != nil {
		return Result[types.DebugConfiguration]{}, err
	}
	// providers get their own copy so a cancelled call leaves cfg untouched
	resolved, err := resolve(ctx, folder, cfg.Clone())
	if ctx.Err() != nil {
		return cancelled[types.DebugConfiguration](), nil
	}
	if err != nil {
		return Result[types.DebugConfiguration]{}, err
	}
	return done(resolved), nil
}

// SubstituteVariables expands ${...} references in cfg relative to the
// folder.
func (s *Service) SubstituteVariables(ctx context.Context, folderURI string, cfg types.DebugConfiguration) (Result[types.DebugConfiguration], error) {
	if s.variables == nil {
		return Result[types.DebugConfiguration]{}, errors.NotSupported("substituteVariables")
	}
	folder, err := s.sessions.ResolveFolder(ctx, folderURI)
	if ctx.Err() != nil {
		return cancelled[types.DebugConfiguration](), nil
	}
	if err != nil {
		return Result[types.DebugConfiguration]{}, err
	}
	out, err := s.variables.SubstituteVariables(ctx, folder, cfg.Clone())
	if ctx.Err() != nil {
		return cancelled[types.DebugConfiguration](), nil
	}
	if err != nil {
		return Result[types.DebugConfiguration]{}, err
	}
	return done(out), nil
}

// RunInTerminal is not available in this host; it always reports ok=false.
func (s *Service) RunInTerminal(_ context.Context, args types.RunInTerminalArgs, sessionID string) (pid int, ok bool) {
	s.log.V(1).Info("runInTerminal is not supported", "session", sessionID, "cwd", args.Cwd)
	return 0, false
}

// ConfigurationProviders returns the handles registered for debugType, in
// registration order.
func (s *Service) ConfigurationProviders(debugType string) []handles.Handle {
	var out []handles.Handle
	for _, e := range s.providers.All() {
		if e.Value.debugType == debugType || e.Value.debugType == "*" {
			out = append(out, e.Handle)
		}
	}
	return out
}
