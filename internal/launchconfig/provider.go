package launchconfig

import (
	"context"
	stderrors "errors"
	"os"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/errors"
	"github.com/ctagard/dap-exthost/internal/exthost"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// Provider serves launch.json configurations to the extension host and
// substitutes ${...} variables in them.
//
// The file is read on every call so edits take effect on the next launch.
// Without an explicit path, <folder>/.vscode/launch.json is used.
type Provider struct {
	path string
	log  logr.Logger

	mu     sync.RWMutex
	inputs map[string]string
}

// NewProvider creates a provider. path may be empty.
func NewProvider(path string, log logr.Logger) *Provider {
	return &Provider{
		path:   path,
		log:    log.WithName("launch.json"),
		inputs: make(map[string]string),
	}
}

// SetInputs records values for ${input:} variables. They take precedence
// over input defaults declared in launch.json.
func (p *Provider) SetInputs(values map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range values {
		p.inputs[k] = v
	}
}

// Path returns the launch.json location for folder.
func (p *Provider) Path(folder *session.WorkspaceFolder) string {
	if p.path != "" {
		return p.path
	}
	if folder == nil {
		return ""
	}
	return PathInFolder(folder.Path())
}

// Load reads launch.json for folder. A missing file yields an empty
// LaunchJSON.
func (p *Provider) Load(folder *session.WorkspaceFolder) (*LaunchJSON, error) {
	path := p.Path(folder)
	if path == "" {
		return &LaunchJSON{}, nil
	}
	lj, err := LoadFromPath(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return &LaunchJSON{}, nil
		}
		return nil, err
	}
	for _, e := range ValidateLaunchJSON(lj) {
		p.log.Info("invalid launch.json entry", "path", path, "problem", e.Error())
	}
	return lj, nil
}

// ConfigurationProvider adapts p for registration with the extension host.
// It is registered for every debug type.
func (p *Provider) ConfigurationProvider() *exthost.ConfigurationProvider {
	return &exthost.ConfigurationProvider{
		ProvideDebugConfigurations: p.ProvideDebugConfigurations,
		ResolveDebugConfiguration:  p.ResolveDebugConfiguration,
	}
}

// ProvideDebugConfigurations returns the configurations declared in
// launch.json.
func (p *Provider) ProvideDebugConfigurations(_ context.Context, folder *session.WorkspaceFolder) ([]types.DebugConfiguration, error) {
	lj, err := p.Load(folder)
	if err != nil {
		return nil, err
	}
	out := make([]types.DebugConfiguration, len(lj.Configurations))
	for i, cfg := range lj.Configurations {
		out[i] = cfg.Clone()
	}
	return out, nil
}

// ResolveDebugConfiguration fills in the defaults every launch needs: a
// request of "launch" and a name derived from the type. A configuration
// without a type cannot be launched.
func (p *Provider) ResolveDebugConfiguration(_ context.Context, _ *session.WorkspaceFolder, cfg types.DebugConfiguration) (types.DebugConfiguration, error) {
	if cfg.Type() == "" {
		return nil, errors.ConfigInvalid(cfg.Name(), "configuration type is required")
	}
	if cfg.Request() == "" {
		cfg["request"] = "launch"
	}
	if cfg.Name() == "" {
		cfg["name"] = cfg.Type()
	}
	return cfg, nil
}

// SubstituteVariables expands ${...} references relative to folder.
// ${input:} values come from SetInputs, then from input defaults in
// launch.json.
func (p *Provider) SubstituteVariables(_ context.Context, folder *session.WorkspaceFolder, cfg types.DebugConfiguration) (types.DebugConfiguration, error) {
	inputs := make(map[string]string)
	if lj, err := p.Load(folder); err == nil {
		for _, in := range lj.Inputs {
			if in.Default != "" {
				inputs[in.ID] = in.Default
			}
		}
	}
	p.mu.RLock()
	for k, v := range p.inputs {
		inputs[k] = v
	}
	p.mu.RUnlock()

	rctx := &ResolutionContext{InputValues: inputs}
	if folder != nil {
		rctx.WorkspaceFolder = folder.Path()
	} else if p.path != "" {
		rctx.WorkspaceFolder = GetWorkspaceFolder(p.path)
	}
	return Substitute(cfg, rctx)
}
