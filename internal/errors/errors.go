// Package errors provides structured error types for the debug extension host.
// Every error carries a machine-readable code and, where useful, a hint that
// tells the caller how to recover. Registration and configuration problems are
// returned to the caller synchronously; adapter lifecycle problems are reported
// through callbacks and never surface here.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Registration errors
	CodeDuplicateFactory    ErrorCode = "DUPLICATE_FACTORY"
	CodeUnauthorizedFactory ErrorCode = "UNAUTHORIZED_FACTORY"

	// Provider and factory lookups
	CodeProviderNotFound      ErrorCode = "PROVIDER_NOT_FOUND"
	CodeProviderMethodMissing ErrorCode = "PROVIDER_METHOD_MISSING"
	CodeNothingProvided       ErrorCode = "NOTHING_PROVIDED"
	CodeFactoryNotFound       ErrorCode = "FACTORY_NOT_FOUND"
	CodeDescriptorNotFound    ErrorCode = "DESCRIPTOR_NOT_FOUND"

	// Session errors
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"
	CodeNoFocusSession      ErrorCode = "NO_FOCUS_SESSION"

	// Adapter errors
	CodeAdapterCreateFailed  ErrorCode = "ADAPTER_CREATE_FAILED"
	CodeAdapterSpawnFailed   ErrorCode = "ADAPTER_SPAWN_FAILED"
	CodeAdapterConnectFailed ErrorCode = "ADAPTER_CONNECT_FAILED"

	// DAP protocol errors
	CodeDAPRequestFailed ErrorCode = "DAP_REQUEST_FAILED"
	CodeDAPTimeout       ErrorCode = "DAP_TIMEOUT"
	CodeSigningFailed    ErrorCode = "SIGNING_FAILED"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeInvalidJSON      ErrorCode = "INVALID_JSON"
	CodeInvalidSource    ErrorCode = "INVALID_SOURCE"

	// Configuration errors
	CodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	CodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
	CodeMissingInputs  ErrorCode = "MISSING_INPUTS"

	CodeNotSupported ErrorCode = "NOT_SUPPORTED"
	CodeUnknown      ErrorCode = "UNKNOWN_ERROR"
)

// DebugError is a structured error type that includes a code, a message and
// an optional hint on how to fix the problem.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the debug type, the handle)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// --- Registration Errors ---

// DuplicateFactory is returned when a second descriptor factory is registered
// for a debug type.
func DuplicateFactory(debugType string) *DebugError {
	return &DebugError{
		Code:    CodeDuplicateFactory,
		Message: fmt.Sprintf("a debug adapter descriptor factory can only be registered once per type; '%s' already has one", debugType),
		Hint:    "Dispose the existing registration before registering a new factory.",
		Details: map[string]interface{}{"type": debugType},
	}
}

// UnauthorizedFactory is returned when a descriptor factory is registered by an
// extension that does not define the debugger.
func UnauthorizedFactory(extensionID, debugType string) *DebugError {
	return &DebugError{
		Code:    CodeUnauthorizedFactory,
		Message: fmt.Sprintf("a debug adapter descriptor factory can only be registered from the extension that defines the '%s' debugger", debugType),
		Hint:    "Add a debugger contribution with both 'type' and 'label' to the extension manifest.",
		Details: map[string]interface{}{"extension": extensionID, "type": debugType},
	}
}

// --- Lookup Errors ---

// ProviderNotFound is returned when a configuration provider handle is unknown.
func ProviderNotFound(handle int) *DebugError {
	return &DebugError{
		Code:    CodeProviderNotFound,
		Message: "no debug configuration provider found",
		Hint:    "The provider may have been disposed while the request was in flight.",
		Details: map[string]interface{}{"handle": handle},
	}
}

// ProviderMethodMissing is returned when a provider lacks the requested method.
func ProviderMethodMissing(method string) *DebugError {
	return &DebugError{
		Code:    CodeProviderMethodMissing,
		Message: fmt.Sprintf("debug configuration provider has no method %s", method),
		Details: map[string]interface{}{"method": method},
	}
}

// NothingProvided is returned when a provider returns no configurations.
func NothingProvided(method string) *DebugError {
	return &DebugError{
		Code:    CodeNothingProvided,
		Message: fmt.Sprintf("nothing returned from debug configuration provider %s", method),
	}
}

// FactoryNotFound is returned when a descriptor factory handle is unknown.
func FactoryNotFound(handle int) *DebugError {
	return &DebugError{
		Code:    CodeFactoryNotFound,
		Message: "no adapter descriptor factory found for handle",
		Details: map[string]interface{}{"handle": handle},
	}
}

// DescriptorNotFound is returned when no descriptor could be produced.
func DescriptorNotFound(debugType string) *DebugError {
	return &DebugError{
		Code:    CodeDescriptorNotFound,
		Message: fmt.Sprintf("couldn't find a debug adapter descriptor for debug type '%s'", debugType),
		Hint:    "The extension contributing the debugger might have failed to activate, or the contribution has no program.",
		Details: map[string]interface{}{"type": debugType},
	}
}

// --- Session Errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use debug_sessions to see known sessions, or use debug_start to create a new session.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use debug_stop to terminate an existing session before creating a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// NoFocusSession is returned when a focus update names an unknown session.
func NoFocusSession(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeNoFocusSession,
		Message: "no debug session found for debug focus context",
		Details: map[string]interface{}{"sessionId": sessionID},
	}
}

// --- Adapter Errors ---

// AdapterCreateFailed is returned when a descriptor cannot be turned into a
// running adapter connection.
func AdapterCreateFailed(debugType, descriptorType string) *DebugError {
	return &DebugError{
		Code:    CodeAdapterCreateFailed,
		Message: fmt.Sprintf("couldn't create a debug adapter for type '%s'", debugType),
		Hint:    fmt.Sprintf("Descriptors of kind '%s' are not supported by this host.", descriptorType),
		Details: map[string]interface{}{"type": debugType, "descriptor": descriptorType},
	}
}

// AdapterSpawnFailed creates an error when adapter spawn fails
func AdapterSpawnFailed(command string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterSpawnFailed,
		Message: fmt.Sprintf("failed to spawn debug adapter %s: %v", command, err),
		Hint:    "Ensure the debug adapter is installed. For Go: install Delve (go install github.com/go-delve/delve/cmd/dlv@latest). For Python: install debugpy (pip install debugpy).",
		Cause:   err,
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// AdapterConnectFailed creates an error when connecting to adapter fails
func AdapterConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterConnectFailed,
		Message: fmt.Sprintf("failed to connect to debug adapter at %s: %v", address, err),
		Hint:    "The debug adapter may have failed to start or crashed.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// --- DAP Protocol Errors ---

// DAPRequestFailed wraps an unsuccessful DAP response.
func DAPRequestFailed(command, message string) *DebugError {
	return &DebugError{
		Code:    CodeDAPRequestFailed,
		Message: fmt.Sprintf("%s request failed: %s", command, message),
		Details: map[string]interface{}{"command": command},
	}
}

// DAPTimeout creates an error for DAP timeouts
func DAPTimeout(operation string, timeoutSeconds int) *DebugError {
	return &DebugError{
		Code:    CodeDAPTimeout,
		Message: fmt.Sprintf("%s timed out after %d seconds", operation, timeoutSeconds),
		Hint:    "The debug adapter did not answer in time. It may be stuck or waiting for input.",
		Details: map[string]interface{}{
			"operation":      operation,
			"timeoutSeconds": timeoutSeconds,
		},
	}
}

// SigningFailed is the failure message of a handshake response.
func SigningFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeSigningFailed,
		Message: err.Error(),
		Cause:   err,
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// InvalidJSON creates an error for JSON parsing failures
func InvalidJSON(paramName string, err error, example string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidJSON,
		Message: fmt.Sprintf("invalid JSON in parameter '%s': %v", paramName, err),
		Hint:    fmt.Sprintf("Provide valid JSON. Example: %s", example),
		Cause:   err,
		Details: map[string]interface{}{
			"parameter": paramName,
			"example":   example,
		},
	}
}

// InvalidSource is returned when a DAP source has neither a path nor a
// source reference.
func InvalidSource() *DebugError {
	return &DebugError{
		Code:    CodeInvalidSource,
		Message: "cannot create uri from DAP 'source' object; properties 'path' and 'sourceReference' are both missing",
	}
}

// --- Configuration Errors ---

// ConfigNotFound creates an error for missing launch.json configurations
func ConfigNotFound(configName string, availableConfigs []string) *DebugError {
	var hint string
	if len(availableConfigs) > 0 {
		hint = fmt.Sprintf("Available configurations: %s", strings.Join(availableConfigs, ", "))
	} else {
		hint = "No configurations found in launch.json. Create a launch configuration first."
	}

	return &DebugError{
		Code:    CodeConfigNotFound,
		Message: fmt.Sprintf("configuration '%s' not found in launch.json", configName),
		Hint:    hint,
		Details: map[string]interface{}{
			"configName":       configName,
			"availableConfigs": availableConfigs,
		},
	}
}

// ConfigInvalid creates an error for invalid configuration
func ConfigInvalid(configName, reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", configName, reason),
		Hint:    "Check the launch.json file for syntax errors and ensure all required fields are present.",
		Details: map[string]interface{}{
			"configName": configName,
			"reason":     reason,
		},
	}
}

// MissingInputs creates an error for missing input values
func MissingInputs(inputs []string) *DebugError {
	return &DebugError{
		Code:    CodeMissingInputs,
		Message: fmt.Sprintf("missing required input values: %s", strings.Join(inputs, ", ")),
		Hint:    "Provide the missing values as a JSON object, e.g., {\"inputName\": \"value\"}",
		Details: map[string]interface{}{
			"missingInputs": inputs,
		},
	}
}

// NotSupported is returned for operations this host does not implement.
func NotSupported(operation string) *DebugError {
	return &DebugError{
		Code:    CodeNotSupported,
		Message: fmt.Sprintf("%s is not supported", operation),
	}
}

// --- Helpers ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    CodeUnknown,
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}

// CodeOf returns the code of the first DebugError in err's chain, or the
// empty code if there is none.
func CodeOf(err error) ErrorCode {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
