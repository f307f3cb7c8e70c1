package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the session, breakpoint and console tools
func (s *Server) registerTools() {
	// Sessions
	s.registerDebugStart()
	s.registerDebugStop()
	s.registerDebugSessions()
	s.registerDebugCustomRequest()
	s.registerDebugListConfigs()

	// Breakpoints
	s.registerBreakpointAdd()
	s.registerBreakpointRemove()
	s.registerBreakpointList()

	s.registerDebugConsoleAppend()
	s.registerDebugSourceURI()
}

// Session Tools

func (s *Server) registerDebugStart() {
	tool := mcp.NewTool("debug_start",
		mcp.WithDescription("Start a debug session. Reference a launch.json configuration by configName, a launch.json compound by compoundName, OR pass a complete configuration as JSON in config. Configuration providers resolve the configuration and ${...} variables are substituted before the debug adapter is started. Returns the session id needed by the other tools."),
		mcp.WithString("configName",
			mcp.Description("Name of a configuration in launch.json (or one contributed by a configuration provider)."),
		),
		mcp.WithString("compoundName",
			mcp.Description("Name of a compound in launch.json. Starts every configuration it lists."),
		),
		mcp.WithString("config",
			mcp.Description(`Inline debug configuration as a JSON object. Example: {"type": "go", "request": "launch", "name": "Run", "program": "${workspaceFolder}"}`),
		),
		mcp.WithString("folder",
			mcp.Description("Workspace folder path used for launch.json discovery and ${workspaceFolder}. Defaults to the first workspace folder."),
		),
		mcp.WithString("inputValues",
			mcp.Description(`JSON object with values for ${input:} variables in launch.json. Example: {"testFile": "test_main.py"}`),
		),
		mcp.WithBoolean("noDebug",
			mcp.Description("Run the program without debugging (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStart)
}

func (s *Server) registerDebugStop() {
	tool := mcp.NewTool("debug_stop",
		mcp.WithDescription("Stop a debug session: disconnects the adapter (terminating launched programs) and ends child sessions it manages."),
		mcp.WithString("sessionId",
			mcp.Description("Session to stop. Defaults to the active session."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStop)
}

func (s *Server) registerDebugSessions() {
	tool := mcp.NewTool("debug_sessions",
		mcp.WithDescription("List debug sessions with their state, or show one session including its most recent program output."),
		mcp.WithString("sessionId",
			mcp.Description("Show only this session, with output."),
		),
		mcp.WithNumber("outputLines",
			mcp.Description("Number of output lines to return for a single session (default: 50)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugSessions)
}

func (s *Server) registerDebugCustomRequest() {
	tool := mcp.NewTool("debug_custom_request",
		mcp.WithDescription("Send any Debug Adapter Protocol request (threads, stackTrace, scopes, variables, evaluate, continue, next, ...) to a session's debug adapter and return the response body."),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("DAP command name, e.g. 'threads' or 'evaluate'"),
		),
		mcp.WithString("arguments",
			mcp.Description(`Request arguments as a JSON object. Example: {"expression": "x + 1", "frameId": 1000}`),
		),
		mcp.WithString("sessionId",
			mcp.Description("Target session. Defaults to the active session."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugCustomRequest)
}

func (s *Server) registerDebugListConfigs() {
	tool := mcp.NewTool("debug_list_configs",
		mcp.WithDescription("List the debug configurations available for a workspace folder: launch.json entries, compounds and configurations contributed by configuration providers."),
		mcp.WithString("folder",
			mcp.Description("Workspace folder path. Defaults to the first workspace folder."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugListConfigs)
}

// Breakpoint Tools

func (s *Server) registerBreakpointAdd() {
	tool := mcp.NewTool("breakpoint_add",
		mcp.WithDescription("Add a breakpoint. It is sent to every running session and to sessions started later."),
		mcp.WithString("kind",
			mcp.Description("Breakpoint kind: 'source' (default), 'function' or 'data'"),
		),
		mcp.WithString("path",
			mcp.Description("Source file path or file:// URI (source breakpoints)"),
		),
		mcp.WithNumber("line",
			mcp.Description("1-based line number (source breakpoints)"),
		),
		mcp.WithNumber("column",
			mcp.Description("1-based column (optional, source breakpoints)"),
		),
		mcp.WithString("functionName",
			mcp.Description("Function name (function breakpoints)"),
		),
		mcp.WithString("dataId",
			mcp.Description("Data id from a dataBreakpointInfo response (data breakpoints)"),
		),
		mcp.WithString("label",
			mcp.Description("Display label (data breakpoints)"),
		),
		mcp.WithBoolean("canPersist",
			mcp.Description("Whether the data breakpoint survives restarts (data breakpoints)"),
		),
		mcp.WithString("condition",
			mcp.Description("Expression that must be true for the breakpoint to hit"),
		),
		mcp.WithString("hitCondition",
			mcp.Description("Hit count condition, e.g. '>= 3'"),
		),
		mcp.WithString("logMessage",
			mcp.Description("Log this message instead of stopping (logpoint). Supports {expression} interpolation."),
		),
		mcp.WithBoolean("enabled",
			mcp.Description("Whether the breakpoint is enabled (default: true)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleBreakpointAdd)
}

func (s *Server) registerBreakpointRemove() {
	tool := mcp.NewTool("breakpoint_remove",
		mcp.WithDescription("Remove breakpoints by id, or all breakpoints."),
		mcp.WithString("ids",
			mcp.Description("Comma-separated breakpoint ids"),
		),
		mcp.WithBoolean("all",
			mcp.Description("Remove every breakpoint"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleBreakpointRemove)
}

func (s *Server) registerBreakpointList() {
	tool := mcp.NewTool("breakpoint_list",
		mcp.WithDescription("List breakpoints. With a session, each entry includes the adapter's view (verified, resolved line, message)."),
		mcp.WithString("sessionId",
			mcp.Description("Session whose adapter view to include. Defaults to the active session."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleBreakpointList)
}

// Miscellaneous Tools

func (s *Server) registerDebugConsoleAppend() {
	tool := mcp.NewTool("debug_console_append",
		mcp.WithDescription("Append text to the debug console."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to append"),
		),
		mcp.WithBoolean("newline",
			mcp.Description("Terminate the text with a newline (default: true)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugConsoleAppend)
}

func (s *Server) registerDebugSourceURI() {
	tool := mcp.NewTool("debug_source_uri",
		mcp.WithDescription("Convert a DAP source (path and/or sourceReference) to a URI. Sources served by the adapter become debug: URIs, files become file:// URIs."),
		mcp.WithString("path",
			mcp.Description("Source path"),
		),
		mcp.WithNumber("sourceReference",
			mcp.Description("Source reference from a stackTrace or loadedSources response"),
		),
		mcp.WithString("sessionId",
			mcp.Description("Session the source reference belongs to"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugSourceURI)
}
