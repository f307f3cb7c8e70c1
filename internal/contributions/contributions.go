// Package contributions holds the static debugger metadata declared by
// extensions: which debug types exist, who may register factories for them,
// and the executable to fall back to when no factory is registered.
package contributions

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/event"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// Debugger is one debugger contribution of an extension.
type Debugger struct {
	Type        string   `json:"type"`
	Label       string   `json:"label,omitempty"`
	Program     string   `json:"program,omitempty"`
	Args        []string `json:"args,omitempty"`
	Runtime     string   `json:"runtime,omitempty"`
	RuntimeArgs []string `json:"runtimeArgs,omitempty"`
	Languages   []string `json:"languages,omitempty"`
}

// main contributions introduce a debug type; others only extend one.
func (d Debugger) isMain() bool {
	return d.Type != "" && (d.Label != "" || d.Program != "" || d.Runtime != "")
}

// Extension groups the debuggers contributed by one extension.
type Extension struct {
	ID        string     `json:"id"`
	Debuggers []Debugger `json:"debuggers"`
}

// Manifest is the on-disk contribution file.
type Manifest struct {
	Extensions []Extension `json:"extensions"`
}

// ReadManifest decodes a manifest file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contributions: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse contributions %s: %w", path, err)
	}
	return &m, nil
}

// Registry is the set of known extensions. Fixed extensions (the built-in
// debuggers) survive reloads of the manifest.
type Registry struct {
	mu       sync.RWMutex
	fixed    []Extension
	loaded   []Extension
	log      logr.Logger
	onChange event.Emitter[struct{}]
}

// NewRegistry creates a registry seeded with fixed extensions.
func NewRegistry(log logr.Logger, fixed ...Extension) *Registry {
	return &Registry{fixed: fixed, log: log.WithName("contributions")}
}

// OnDidChange fires after the set of extensions changed.
func (r *Registry) OnDidChange(l func()) *event.Subscription {
	return r.onChange.Subscribe(func(struct{}) { l() })
}

// Replace swaps the loaded extensions and fires a change.
func (r *Registry) Replace(m *Manifest) {
	r.mu.Lock()
	if m == nil {
		r.loaded = nil
	} else {
		r.loaded = append([]Extension(nil), m.Extensions...)
	}
	r.mu.Unlock()
	r.onChange.Fire(struct{}{})
}

// Load reads path and replaces the loaded extensions with its content.
func (r *Registry) Load(path string) error {
	m, err := ReadManifest(path)
	if err != nil {
		return err
	}
	r.Replace(m)
	r.log.V(1).Info("loaded contributions", "path", path, "extensions", len(m.Extensions))
	return nil
}

func (r *Registry) extensions() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Extension, 0, len(r.fixed)+len(r.loaded))
	all = append(all, r.fixed...)
	return append(all, r.loaded...)
}

// Extensions returns every known extension, fixed ones first.
func (r *Registry) Extensions() []Extension {
	return r.extensions()
}

// DebugTypes returns the sorted, distinct types of all main contributions.
func (r *Registry) DebugTypes() []string {
	seen := make(map[string]struct{})
	for _, ext := range r.extensions() {
		for _, d := range ext.Debuggers {
			if d.isMain() {
				seen[d.Type] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DefinesDebugType reports whether extensionID declares debugType with both
// a type and a label, which is what entitles it to a descriptor factory.
func (r *Registry) DefinesDebugType(extensionID, debugType string) bool {
	for _, ext := range r.extensions() {
		if ext.ID != extensionID {
			continue
		}
		for _, d := range ext.Debuggers {
			if d.Type == debugType && d.Label != "" {
				return true
			}
		}
	}
	return false
}

// ExecutableFor builds the executable descriptor declared for debugType, or
// nil when no contribution names a program or runtime for it.
func (r *Registry) ExecutableFor(debugType string) *types.AdapterDescriptorDTO {
	for _, ext := range r.extensions() {
		for _, d := range ext.Debuggers {
			if d.Type != debugType {
				continue
			}
			switch {
			case d.Runtime != "":
				args := append([]string(nil), d.RuntimeArgs...)
				if d.Program != "" {
					args = append(args, d.Program)
				}
				return &types.AdapterDescriptorDTO{
					Type:    types.DescriptorExecutable,
					Command: d.Runtime,
					Args:    append(args, d.Args...),
				}
			case d.Program != "":
				return &types.AdapterDescriptorDTO{
					Type:    types.DescriptorExecutable,
					Command: d.Program,
					Args:    append([]string(nil), d.Args...),
				}
			}
		}
	}
	return nil
}

// Languages returns the languages declared for debugType.
func (r *Registry) Languages(debugType string) []string {
	var out []string
	for _, ext := range r.extensions() {
		for _, d := range ext.Debuggers {
			if d.Type == debugType {
				out = append(out, d.Languages...)
			}
		}
	}
	return out
}
