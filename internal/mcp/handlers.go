package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	godap "github.com/google/go-dap"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/dap-exthost/internal/breakpoints"
	"github.com/ctagard/dap-exthost/internal/errors"
	"github.com/ctagard/dap-exthost/internal/exthost"
	"github.com/ctagard/dap-exthost/internal/launchconfig"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/internal/workbench"
	"github.com/ctagard/dap-exthost/pkg/types"
)

const defaultOutputLines = 50

// Session Handlers

func (s *Server) handleDebugStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folderURI := s.folderURI(request)

	if raw := request.GetString("inputValues", ""); raw != "" {
		var inputs map[string]string
		if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
			return errorResult(errors.InvalidJSON("inputValues", err, `{"port": "8080"}`))
		}
		s.launch.SetInputs(inputs)
	}

	opts := types.StartDebuggingOptions{NoDebug: request.GetBool("noDebug", false)}

	if compound := request.GetString("compoundName", ""); compound != "" {
		return s.startCompound(ctx, folderURI, compound, opts)
	}

	noc, err := nameOrConfig(request)
	if err != nil {
		return errorResult(err)
	}
	sess, err := s.wb.Start(ctx, folderURI, noc, opts)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(sess.Info())
}

func nameOrConfig(request mcp.CallToolRequest) (exthost.NameOrConfig, error) {
	if name := request.GetString("configName", ""); name != "" {
		return exthost.NameOrConfig{Name: name}, nil
	}
	raw := request.GetString("config", "")
	if raw == "" {
		return exthost.NameOrConfig{}, errors.MissingParameter("configName",
			"Provide configName to use a launch.json configuration, or config with an inline configuration. Use debug_list_configs to see what is available.")
	}
	var cfg types.DebugConfiguration
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return exthost.NameOrConfig{}, errors.InvalidJSON("config", err, `{"type": "go", "request": "launch", "name": "Run", "program": "${workspaceFolder}"}`)
	}
	return exthost.NameOrConfig{Config: cfg}, nil
}

// startCompound starts every configuration of a launch.json compound. When
// one fails the sessions already started are stopped.
func (s *Server) startCompound(ctx context.Context, folderURI, name string, opts types.StartDebuggingOptions) (*mcp.CallToolResult, error) {
	lj, err := s.loadLaunchJSON(ctx, folderURI)
	if err != nil {
		return errorResult(err)
	}
	compound, err := launchconfig.FindCompound(lj, name)
	if err != nil {
		return errorResult(errors.ConfigNotFound(name, compoundNames(lj)))
	}

	var started []workbench.Info
	for _, cfgName := range compound.Configurations {
		sess, err := s.wb.Start(ctx, folderURI, exthost.NameOrConfig{Name: cfgName}, opts)
		if err != nil {
			for _, info := range started {
				_ = s.wb.StopDebugging(ctx, info.ID)
			}
			return errorResult(errors.Wrap(errors.CodeConfigInvalid,
				fmt.Sprintf("compound %q: configuration %q failed to start", name, cfgName), "", err))
		}
		started = append(started, sess.Info())
	}
	return jsonResult(map[string]interface{}{
		"compound": name,
		"sessions": started,
	})
}

func compoundNames(lj *launchconfig.LaunchJSON) []string {
	names := make([]string, 0, len(lj.Compounds))
	for _, c := range lj.Compounds {
		names = append(names, c.Name)
	}
	return names
}

func (s *Server) handleDebugStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("sessionId", "")
	if id == "" {
		active, ok := s.wb.ActiveSession()
		if !ok {
			return errorResult(errors.MissingParameter("sessionId", "No session is active. Use debug_sessions to list sessions."))
		}
		id = active.ID
	}
	if err := s.wb.StopDebugging(ctx, id); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]interface{}{
		"sessionId": id,
		"status":    "stopped",
	})
}

func (s *Server) handleDebugSessions(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("sessionId", "")
	if id == "" {
		return jsonResult(map[string]interface{}{
			"sessions": s.wb.Sessions(),
		})
	}

	sess, ok := s.wb.Session(id)
	if !ok {
		return errorResult(errors.SessionNotFound(id))
	}
	n := request.GetInt("outputLines", defaultOutputLines)
	output := sess.Output()
	if n >= 0 && len(output) > n {
		output = output[len(output)-n:]
	}
	return jsonResult(map[string]interface{}{
		"session": sess.Info(),
		"output":  output,
	})
}

func (s *Server) handleDebugCustomRequest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := request.RequireString("command")
	if err != nil {
		return errorResult(errors.MissingParameter("command", "Provide a DAP command name such as 'threads' or 'evaluate'."))
	}

	var args interface{}
	if raw := request.GetString("arguments", ""); raw != "" {
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return errorResult(errors.InvalidJSON("arguments", err, `{"expression": "x", "frameId": 1000}`))
		}
		args = m
	}

	sess, err := s.hostSession(request)
	if err != nil {
		return errorResult(err)
	}
	body, err := sess.CustomRequest(ctx, command, args)
	if err != nil {
		return errorResult(err)
	}
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (s *Server) handleDebugListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folderURI := s.folderURI(request)
	folder, err := s.folders.ResolveWorkspaceFolder(ctx, folderURI)
	if err != nil {
		return errorResult(err)
	}
	lj, err := s.launch.Load(folder)
	if err != nil {
		return errorResult(errors.Wrap(errors.CodeConfigInvalid, "failed to load launch.json", "Check launch.json for syntax errors.", err))
	}

	configs, err := s.wb.Configurations(ctx, folderURI)
	if err != nil {
		return errorResult(err)
	}
	infos := make([]launchconfig.ConfigurationInfo, 0, len(configs))
	for _, cfg := range configs {
		infos = append(infos, launchconfig.ConfigurationInfo{Name: cfg.Name(), Type: cfg.Type(), Request: cfg.Request()})
	}

	result := map[string]interface{}{
		"configPath":     s.launch.Path(folder),
		"configurations": infos,
		"debugTypes":     s.wb.DebugTypes(),
	}
	if len(lj.Compounds) > 0 {
		result["compounds"] = launchconfig.ListCompounds(lj)
	}
	if problems := launchconfig.ValidateLaunchJSON(lj); len(problems) > 0 {
		warnings := make([]string, len(problems))
		for i, e := range problems {
			warnings[i] = e.Error()
		}
		result["validationWarnings"] = warnings
	}
	return jsonResult(result)
}

// Breakpoint Handlers

func (s *Server) handleBreakpointAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := breakpoints.Options{
		Enabled:      request.GetBool("enabled", true),
		Condition:    request.GetString("condition", ""),
		HitCondition: request.GetString("hitCondition", ""),
		LogMessage:   request.GetString("logMessage", ""),
	}

	var bp breakpoints.Breakpoint
	switch kind := request.GetString("kind", types.BreakpointSource); kind {
	case types.BreakpointSource:
		path := request.GetString("path", "")
		if path == "" {
			return errorResult(errors.MissingParameter("path", "Provide the source file path of the breakpoint."))
		}
		line := request.GetInt("line", 0)
		if line < 1 {
			return errorResult(errors.InvalidParameter("line", line, "a 1-based line number"))
		}
		loc := breakpoints.Location{URI: toURI(path), Line: line - 1}
		if col := request.GetInt("column", 0); col > 0 {
			loc.Character = col - 1
		}
		bp = breakpoints.NewSourceBreakpoint(loc, opts)
	case types.BreakpointFunction:
		name := request.GetString("functionName", "")
		if name == "" {
			return errorResult(errors.MissingParameter("functionName", "Provide the function to break on, e.g. 'main.main'."))
		}
		bp = breakpoints.NewFunctionBreakpoint(name, opts)
	case types.BreakpointData:
		dataID := request.GetString("dataId", "")
		if dataID == "" {
			return errorResult(errors.MissingParameter("dataId", "Request dataBreakpointInfo with debug_custom_request to get a data id."))
		}
		label := request.GetString("label", dataID)
		bp = breakpoints.NewDataBreakpoint(label, dataID, request.GetBool("canPersist", false), opts)
	default:
		return errorResult(errors.InvalidParameter("kind", kind, "'source', 'function' or 'data'"))
	}

	if err := s.host.AddBreakpoints(ctx, bp); err != nil {
		return errorResult(err)
	}
	return jsonResult(describeBreakpoint(bp))
}

func (s *Server) handleBreakpointRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store := s.host.Breakpoints()

	var ids []string
	if request.GetBool("all", false) {
		for _, bp := range store.All() {
			ids = append(ids, bp.ID())
		}
	} else {
		for _, id := range strings.Split(request.GetString("ids", ""), ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return errorResult(errors.MissingParameter("ids", "Provide breakpoint ids from breakpoint_list, or set all=true."))
		}
	}

	before := store.Len()
	if err := store.RemoveByID(ctx, ids...); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]interface{}{
		"removed":   before - store.Len(),
		"remaining": store.Len(),
	})
}

func (s *Server) handleBreakpointList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var sess *session.Session
	if request.GetString("sessionId", "") != "" || s.host.ActiveDebugSession() != nil {
		var err error
		if sess, err = s.hostSession(request); err != nil {
			return errorResult(err)
		}
	}

	all := s.host.Breakpoints().All()
	out := make([]map[string]interface{}, 0, len(all))
	for _, bp := range all {
		entry := describeBreakpoint(bp)
		if sess != nil {
			if raw, err := sess.GetDebugProtocolBreakpoint(ctx, bp); err == nil && len(raw) > 0 {
				entry["adapter"] = json.RawMessage(raw)
			}
		}
		out = append(out, entry)
	}

	result := map[string]interface{}{"breakpoints": out}
	if sess != nil {
		result["sessionId"] = sess.ID()
	}
	return jsonResult(result)
}

// describeBreakpoint reports positions 1-based, the way they were entered.
func describeBreakpoint(bp breakpoints.Breakpoint) map[string]interface{} {
	m := map[string]interface{}{
		"id":      bp.ID(),
		"kind":    bp.Kind().String(),
		"enabled": bp.Enabled(),
	}
	if c := bp.Condition(); c != "" {
		m["condition"] = c
	}
	if c := bp.HitCondition(); c != "" {
		m["hitCondition"] = c
	}
	if c := bp.LogMessage(); c != "" {
		m["logMessage"] = c
	}
	switch b := bp.(type) {
	case *breakpoints.SourceBreakpoint:
		loc := b.Location()
		m["uri"] = loc.URI
		m["line"] = loc.Line + 1
		if loc.Character > 0 {
			m["column"] = loc.Character + 1
		}
	case *breakpoints.FunctionBreakpoint:
		m["functionName"] = b.FunctionName()
	case *breakpoints.DataBreakpoint:
		m["dataId"] = b.DataID()
		m["label"] = b.Label()
		m["canPersist"] = b.CanPersist()
	}
	return m
}

// Miscellaneous Handlers

func (s *Server) handleDebugConsoleAppend(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return errorResult(errors.MissingParameter("text", "Provide the text to append."))
	}
	console := s.host.ActiveDebugConsole()
	if request.GetBool("newline", true) {
		console.AppendLine(text)
	} else {
		console.Append(text)
	}
	return jsonResult(map[string]interface{}{
		"consoleLength": len(s.wb.ConsoleOutput()),
	})
}

func (s *Server) handleDebugSourceURI(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src := godap.Source{
		Path:            request.GetString("path", ""),
		SourceReference: request.GetInt("sourceReference", 0),
	}

	var sess *session.Session
	if id := request.GetString("sessionId", ""); id != "" {
		var ok bool
		if sess, ok = s.host.Sessions().Get(id); !ok {
			return errorResult(errors.SessionNotFound(id))
		}
	}

	uri, err := exthost.AsDebugSourceURI(src, sess)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]interface{}{"uri": uri})
}

// Helpers

// hostSession returns the extension-host view of the requested session, or
// of the active one.
func (s *Server) hostSession(request mcp.CallToolRequest) (*session.Session, error) {
	id := request.GetString("sessionId", "")
	if id == "" {
		if active := s.host.ActiveDebugSession(); active != nil {
			return active, nil
		}
		return nil, errors.MissingParameter("sessionId", "No session is active. Provide the sessionId returned by debug_start.")
	}
	sess, ok := s.host.Sessions().Get(id)
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	return sess, nil
}

// folderURI maps the folder argument to a workspace folder URI, defaulting
// to the first workspace folder. A folder outside the workspace is added to
// it.
func (s *Server) folderURI(request mcp.CallToolRequest) string {
	folder := request.GetString("folder", "")
	if folder == "" {
		return s.folders.DefaultURI()
	}
	if strings.HasPrefix(folder, "file://") {
		folder = session.URIToPath(folder)
	}
	return s.folders.Add(folder)
}

func (s *Server) loadLaunchJSON(ctx context.Context, folderURI string) (*launchconfig.LaunchJSON, error) {
	folder, err := s.folders.ResolveWorkspaceFolder(ctx, folderURI)
	if err != nil {
		return nil, err
	}
	return s.launch.Load(folder)
}

func toURI(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return session.PathToURI(path)
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// errorResult reports err to the client as a tool error rather than a
// protocol failure.
func errorResult(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}
