package exthost

import (
	"context"

	"github.com/ctagard/dap-exthost/internal/breakpoints"
	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/handles"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// MainThread is the coordinator on the other side of the boundary. Every
// call carries plain data or handles, never local objects.
type MainThread interface {
	session.Remote
	breakpoints.Remote

	RegisterDebugTypes(debugTypes []string)

	StartDebugging(ctx context.Context, folderURI string, nameOrConfig NameOrConfig, opts types.StartDebuggingOptions) (bool, error)
	// StopDebugging stops sessionID, or the active session when it is "".
	StopDebugging(ctx context.Context, sessionID string) error

	RegisterDebugConfigurationProvider(debugType string, trigger types.ProviderTriggerKind, hasProvide, hasResolve, hasResolveWithSubstitutedVariables bool, handle handles.Handle)
	UnregisterDebugConfigurationProvider(handle handles.Handle)
	RegisterDebugAdapterDescriptorFactory(debugType string, handle handles.Handle)
	UnregisterDebugAdapterDescriptorFactory(handle handles.Handle)

	AcceptDAMessage(handle handles.Handle, msg dap.Message)
	AcceptDAError(handle handles.Handle, name, message, stack string)
	AcceptDAExit(handle handles.Handle, code *int, signal string)

	AppendDebugConsole(value string)
}

// NameOrConfig names a launch configuration or carries one inline.
type NameOrConfig struct {
	Name   string
	Config types.DebugConfiguration
}

// IsName reports whether a configuration is referenced by name.
func (n NameOrConfig) IsName() bool { return n.Config == nil }
