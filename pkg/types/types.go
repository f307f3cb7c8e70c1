// Package types defines the wire shapes exchanged between the extension-host
// side of the debug service and the main thread that owns the UI.
//
// This package provides type definitions for:
//   - DebugConfiguration: the free-form launch/attach configuration record
//   - SessionDTO: the announcement of a debug session
//   - BreakpointDTO and BreakpointsDelta: breakpoint synchronization
//   - AdapterDescriptorDTO: how to reach a debug adapter
//   - FocusDTO: thread or stack-frame focus
//   - StartDebuggingOptions: options forwarded with a start request
//
// All DTOs are plain data and safe to marshal with encoding/json.
package types

// DebugConfiguration is an arbitrary key/value debug configuration.
// The "type", "name" and "request" keys are always strings when present.
type DebugConfiguration map[string]interface{}

// Type returns the debug type of the configuration.
func (c DebugConfiguration) Type() string {
	s, _ := c["type"].(string)
	return s
}

// Name returns the display name of the configuration.
func (c DebugConfiguration) Name() string {
	s, _ := c["name"].(string)
	return s
}

// Request returns "launch" or "attach".
func (c DebugConfiguration) Request() string {
	s, _ := c["request"].(string)
	return s
}

// DebugServer returns the port of the "debugServer" attribute. Only numeric
// values count, a string port is ignored.
func (c DebugConfiguration) DebugServer() (int, bool) {
	switch v := c["debugServer"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Clone returns a deep copy of the configuration. Nested JSON objects and
// arrays are copied too, so the copy can be changed without touching c.
func (c DebugConfiguration) Clone() DebugConfiguration {
	out := make(DebugConfiguration, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	case DebugConfiguration:
		return v.Clone()
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, e := range v {
			out[k] = e
		}
		return out
	case []string:
		return append([]string(nil), v...)
	}
	return v
}

// SessionDTO announces a debug session across the boundary.
type SessionDTO struct {
	ID            string             `json:"id"`
	Type          string             `json:"type"`
	Name          string             `json:"name"`
	FolderURI     string             `json:"folderUri,omitempty"`
	Configuration DebugConfiguration `json:"configuration"`
	ParentID      string             `json:"parent,omitempty"`
}

// Breakpoint DTO tags.
const (
	BreakpointSourceMulti = "sourceMulti"
	BreakpointSource      = "source"
	BreakpointFunction    = "function"
	BreakpointData        = "data"
)

// SourceLineDTO is one line of a sourceMulti breakpoint DTO.
type SourceLineDTO struct {
	ID           string `json:"id"`
	Enabled      bool   `json:"enabled"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
	LogMessage   string `json:"logMessage,omitempty"`
	Line         int    `json:"line"`
	Character    int    `json:"character"`
}

// BreakpointDTO is a variant-tagged breakpoint. Which fields are meaningful
// depends on Type:
//   - sourceMulti: URI, Lines
//   - source: ID, URI, Line, Character and the condition fields
//   - function: ID, FunctionName and the condition fields
//   - data: ID, Label, DataID, CanPersist and the condition fields
type BreakpointDTO struct {
	Type         string `json:"type"`
	ID           string `json:"id,omitempty"`
	Enabled      bool   `json:"enabled"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
	LogMessage   string `json:"logMessage,omitempty"`

	URI       string          `json:"uri,omitempty"`
	Line      int             `json:"line,omitempty"`
	Character int             `json:"character,omitempty"`
	Lines     []SourceLineDTO `json:"lines,omitempty"`

	FunctionName string `json:"functionName,omitempty"`

	Label      string `json:"label,omitempty"`
	DataID     string `json:"dataId,omitempty"`
	CanPersist bool   `json:"canPersist,omitempty"`
}

// BreakpointsDelta is an incremental breakpoint update from the main thread.
type BreakpointsDelta struct {
	Added   []BreakpointDTO `json:"added,omitempty"`
	Removed []string        `json:"removed,omitempty"`
	Changed []BreakpointDTO `json:"changed,omitempty"`
}

// Adapter descriptor tags.
const (
	DescriptorExecutable     = "executable"
	DescriptorServer         = "server"
	DescriptorPipeServer     = "pipeServer"
	DescriptorImplementation = "implementation"
)

// ExecutableOptions are the spawn options of an executable descriptor.
type ExecutableOptions struct {
	Env map[string]string `json:"env,omitempty"`
	Cwd string            `json:"cwd,omitempty"`
}

// AdapterDescriptorDTO is the serializable form of an adapter descriptor.
// The implementation variant never crosses a process boundary and carries no
// payload here; the in-process object travels next to the DTO.
type AdapterDescriptorDTO struct {
	Type    string             `json:"type"`
	Command string             `json:"command,omitempty"`
	Args    []string           `json:"args,omitempty"`
	Options *ExecutableOptions `json:"options,omitempty"`
	Port    int                `json:"port,omitempty"`
	Host    string             `json:"host,omitempty"`
	Path    string             `json:"path,omitempty"`
}

// Focus kinds.
const (
	FocusThread     = "thread"
	FocusStackFrame = "stackFrame"
)

// FocusDTO reports which thread or stack frame has debugging focus.
type FocusDTO struct {
	Kind      string `json:"kind"`
	SessionID string `json:"sessionId,omitempty"`
	ThreadID  int    `json:"threadId,omitempty"`
	FrameID   int    `json:"frameId,omitempty"`
}

// Debug console modes for child sessions.
const (
	ReplSeparate        = "separate"
	ReplMergeWithParent = "mergeWithParent"
)

// StartDebuggingOptions accompany a start-debugging request.
type StartDebuggingOptions struct {
	ParentSessionID          string `json:"parentSessionID,omitempty"`
	LifecycleManagedByParent bool   `json:"lifecycleManagedByParent,omitempty"`
	Repl                     string `json:"repl,omitempty"`
	NoDebug                  bool   `json:"noDebug,omitempty"`
	Compact                  bool   `json:"compact,omitempty"`
	SuppressSaveBeforeStart  bool   `json:"suppressSaveBeforeStart,omitempty"`
	SuppressDebugStatusbar   bool   `json:"suppressDebugStatusbar,omitempty"`
	SuppressDebugToolbar     bool   `json:"suppressDebugToolbar,omitempty"`
	SuppressDebugView        bool   `json:"suppressDebugView,omitempty"`
}

// ProviderTriggerKind tells when a configuration provider is consulted.
type ProviderTriggerKind int

const (
	// TriggerInitial providers fill an initial launch.json.
	TriggerInitial ProviderTriggerKind = 1
	// TriggerDynamic providers contribute configurations on demand.
	TriggerDynamic ProviderTriggerKind = 2
)

// RunInTerminalArgs mirrors the DAP runInTerminal arguments.
type RunInTerminalArgs struct {
	Kind  string            `json:"kind,omitempty"`
	Title string            `json:"title,omitempty"`
	Cwd   string            `json:"cwd"`
	Args  []string          `json:"args"`
	Env   map[string]string `json:"env,omitempty"`
}
