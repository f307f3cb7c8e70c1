// Package launchconfig provides support for VS Code launch.json debug configurations.
//
// It discovers and loads launch.json files, expands ${...} variables and
// exposes both as a debug configuration provider for the extension host.
package launchconfig

import (
	"github.com/ctagard/dap-exthost/pkg/types"
)

// LaunchJSON represents a VS Code launch.json file structure.
type LaunchJSON struct {
	Version        string                     `json:"version"`
	Configurations []types.DebugConfiguration `json:"configurations"`
	Compounds      []CompoundConfig           `json:"compounds,omitempty"`
	Inputs         []InputConfig              `json:"inputs,omitempty"`
}

// CompoundConfig represents a compound configuration that launches multiple debug sessions.
type CompoundConfig struct {
	Name           string              `json:"name"`
	Configurations []string            `json:"configurations"`
	PreLaunchTask  string              `json:"preLaunchTask,omitempty"`
	StopAll        bool                `json:"stopAll,omitempty"`
	Presentation   *PresentationConfig `json:"presentation,omitempty"`
}

// InputConfig represents a user input variable definition.
type InputConfig struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"` // "promptString", "pickString", "command"
	Description string      `json:"description,omitempty"`
	Default     string      `json:"default,omitempty"`
	Options     []string    `json:"options,omitempty"` // For pickString
	Command     string      `json:"command,omitempty"` // For command type
	Args        interface{} `json:"args,omitempty"`
}

// PresentationConfig controls how the configuration appears in VS Code UI.
type PresentationConfig struct {
	Hidden bool   `json:"hidden,omitempty"`
	Group  string `json:"group,omitempty"`
	Order  int    `json:"order,omitempty"`
}

// ResolutionContext provides context for variable resolution.
type ResolutionContext struct {
	WorkspaceFolder string            // Root folder of the workspace
	CurrentFile     string            // Currently active file (for ${file} variables)
	LineNumber      int               // Current line number (for ${lineNumber})
	SelectedText    string            // Currently selected text (for ${selectedText})
	InputValues     map[string]string // Pre-provided values for ${input:} variables
	EnvOverrides    map[string]string // Override environment variables
}

// ConfigurationInfo provides summary information about a configuration.
type ConfigurationInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Request string `json:"request"`
}

// CompoundInfo provides summary information about a compound configuration.
type CompoundInfo struct {
	Name           string   `json:"name"`
	Configurations []string `json:"configurations"`
	StopAll        bool     `json:"stopAll"`
}
