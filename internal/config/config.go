// Package config provides configuration management for the dap-exthost server.
//
// Configuration controls:
//   - Variant (main vs worker): which coordinator flavour is constructed
//   - Workspace and launch.json discovery
//   - Debugger contribution manifest and whether it is watched for changes
//   - Tracker factory timeout and Lua tracker scripts
//   - Handshake signing key and breakpoint database location
//   - Language-specific adapter settings: paths and flags for each debugger
//
// Configuration can be loaded from a JSON file or use sensible defaults.
// Command line flags are applied on top by cmd/dap-exthost.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Variant selects the coordinator flavour.
type Variant string

const (
	// VariantMain can spawn executables, connect sockets and sign handshakes.
	VariantMain Variant = "main"
	// VariantWorker only runs in-process adapters.
	VariantWorker Variant = "worker"
)

// Config holds the server configuration
type Config struct {
	Variant Variant `json:"variant"`

	// Workspace root; launch.json defaults to <workspace>/.vscode/launch.json
	Workspace  string `json:"workspace"`
	LaunchJSON string `json:"launchJson"`

	// Extension manifest declaring debugger contributions, merged with the
	// built-in debuggers
	Contributions      string `json:"contributions"`
	WatchContributions bool   `json:"watchContributions"`

	TrackerTimeout Duration `json:"trackerTimeout"`
	LuaTrackers    []string `json:"luaTrackers"`

	SigningKey   string `json:"signingKey"`
	BreakpointDB string `json:"breakpointDb"`

	LogLevel string `json:"logLevel"`

	// Language-specific adapter configs
	Adapters AdapterConfigs `json:"adapters"`

	// Limits for safety
	MaxSessions int `json:"maxSessions"`
}

// Duration is a time.Duration that reads "1500ms" style strings or a number
// of milliseconds from JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// AdapterConfigs holds configuration for each language adapter
type AdapterConfigs struct {
	Go     DelveConfig   `json:"go"`
	Python DebugpyConfig `json:"python"`
	Node   NodeConfig    `json:"node"`
	LLDB   LLDBConfig    `json:"lldb"`
	GDB    GDBConfig     `json:"gdb"`
}

// DelveConfig holds Delve-specific configuration
type DelveConfig struct {
	Path       string `json:"path"`
	BuildFlags string `json:"buildFlags"`
}

// DebugpyConfig holds debugpy-specific configuration
type DebugpyConfig struct {
	PythonPath string `json:"pythonPath"`
}

// NodeConfig holds Node.js-specific configuration
type NodeConfig struct {
	NodePath    string `json:"nodePath"`
	JsDebugPath string `json:"jsDebugPath"` // Path to vscode-js-debug's dapDebugServer.js
}

// LLDBConfig holds LLDB-specific configuration
type LLDBConfig struct {
	Path string `json:"path"` // Path to lldb-dap binary (formerly lldb-vscode)
}

// GDBConfig holds GDB-specific configuration
type GDBConfig struct {
	Path string `json:"path"` // Path to gdb binary (requires GDB 14.1+ for DAP support)
}

// findLLDBDap searches for lldb-dap in common locations across platforms
func findLLDBDap() string {
	if path, err := exec.LookPath("lldb-dap"); err == nil {
		return path
	}

	locations := []string{
		"/Library/Developer/CommandLineTools/usr/bin/lldb-dap",
		"/Applications/Xcode.app/Contents/Developer/usr/bin/lldb-dap",
		"/opt/homebrew/bin/lldb-dap",
		"/usr/local/bin/lldb-dap",
		"/usr/bin/lldb-dap",
		"/usr/lib/llvm-18/bin/lldb-dap",
		"/usr/lib/llvm-17/bin/lldb-dap",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	// pre-LLVM 16 name
	if path, err := exec.LookPath("lldb-vscode"); err == nil {
		return path
	}
	return "lldb-dap"
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Variant:        VariantMain,
		TrackerTimeout: Duration(time.Second),
		LogLevel:       "info",
		MaxSessions:    10,
		Adapters: AdapterConfigs{
			Go: DelveConfig{
				Path: "dlv",
			},
			Python: DebugpyConfig{
				PythonPath: "python3",
			},
			Node: NodeConfig{
				NodePath: "node",
			},
			LLDB: LLDBConfig{
				Path: findLLDBDap(),
			},
			GDB: GDBConfig{
				Path: "gdb",
			},
		},
	}
}

// LoadConfig loads configuration from a JSON file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values that JSON decoding alone cannot.
func (c *Config) Validate() error {
	switch c.Variant {
	case VariantMain, VariantWorker:
	default:
		return fmt.Errorf("invalid variant %q: must be %q or %q", c.Variant, VariantMain, VariantWorker)
	}
	if c.TrackerTimeout < 0 {
		return fmt.Errorf("trackerTimeout must not be negative")
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("maxSessions must not be negative")
	}
	return nil
}

// IsWorker reports whether the worker coordinator should be built.
func (c *Config) IsWorker() bool {
	return c.Variant == VariantWorker
}

// LaunchJSONPath returns the launch.json location, derived from the
// workspace when not set explicitly.
func (c *Config) LaunchJSONPath() string {
	if c.LaunchJSON != "" {
		return c.LaunchJSON
	}
	if c.Workspace == "" {
		return ""
	}
	return c.Workspace + string(os.PathSeparator) + ".vscode" + string(os.PathSeparator) + "launch.json"
}
