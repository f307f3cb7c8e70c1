package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	godap "github.com/google/go-dap"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ctagard/dap-exthost/internal/adapters"
	"github.com/ctagard/dap-exthost/internal/contributions"
	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/event"
	"github.com/ctagard/dap-exthost/internal/exthost"
	"github.com/ctagard/dap-exthost/internal/launchconfig"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/internal/workbench"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// echoAdapter answers the requests a launch needs, echoes evaluate
// expressions back and reports output for the program it "runs".
type echoAdapter struct {
	out event.Emitter[dap.Message]
	mu  sync.Mutex
	seq int
}

func (a *echoAdapter) OnDidSendMessage(l func(dap.Message)) *event.Subscription {
	return a.out.Subscribe(l)
}

func (a *echoAdapter) Dispose() {}

func (a *echoAdapter) next() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	return a.seq
}

func (a *echoAdapter) reply(req dap.Message, body interface{}) {
	resp, err := dap.NewResponse(req, a.next(), true, "", body)
	if err != nil {
		panic(err)
	}
	a.out.Fire(resp)
}

func (a *echoAdapter) emit(name string, body interface{}) {
	ev, err := dap.NewEvent(a.next(), name, body)
	if err != nil {
		panic(err)
	}
	a.out.Fire(ev)
}

func (a *echoAdapter) HandleMessage(msg dap.Message) {
	if msg.Kind() != dap.KindRequest {
		return
	}
	switch msg.Command() {
	case "initialize":
		a.reply(msg, godap.Capabilities{SupportsConfigurationDoneRequest: true})
		a.emit("initialized", nil)
	case "launch":
		a.reply(msg, nil)
		a.emit("output", map[string]string{"category": "stdout", "output": "running " + msg.Get("arguments.program").String() + "\n"})
	case "setBreakpoints":
		n := len(msg.Get("arguments.breakpoints").Array())
		bps := make([]godap.Breakpoint, n)
		for i := range bps {
			bps[i] = godap.Breakpoint{Id: i + 1, Verified: true, Line: int(msg.Get("arguments.breakpoints." + itoa(i) + ".line").Int())}
		}
		a.reply(msg, godap.SetBreakpointsResponseBody{Breakpoints: bps})
	case "evaluate":
		a.reply(msg, map[string]interface{}{"result": msg.Get("arguments.expression").String(), "variablesReference": 0})
	case "disconnect":
		a.reply(msg, nil)
		a.emit("terminated", nil)
	default:
		a.reply(msg, nil)
	}
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

type fixture struct {
	server *Server
	wb     *workbench.Workbench
	host   *exthost.Service
	root   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".vscode"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".vscode", "launch.json"), []byte(`{
		"version": "0.2.0",
		"configurations": [
			{"type": "echo", "request": "launch", "name": "App", "program": "${workspaceFolder}/app"},
			{"type": "echo", "request": "launch", "name": "Worker", "program": "${workspaceFolder}/${input:worker}"}
		],
		"compounds": [{"name": "All", "configurations": ["App", "Worker"]}],
		"inputs": [{"id": "worker", "type": "promptString", "default": "worker"}]
	}`), 0o644))

	folders := workbench.NewFolders(root)
	launch := launchconfig.NewProvider("", logr.Discard())
	wb := workbench.New(workbench.Options{Log: logr.Discard()})
	host := exthost.NewService(exthost.Options{
		MainThread: wb,
		Contributions: contributions.NewRegistry(logr.Discard(), contributions.Extension{
			ID:        "acme.echo",
			Debuggers: []contributions.Debugger{{Type: "echo", Label: "Echo"}},
		}),
		Folders:   folders,
		Variables: launch,
		Log:       logr.Discard(),
	})
	wb.Attach(host)
	host.RegisterDebugConfigurationProvider("*", launch.ConfigurationProvider(), types.TriggerInitial)
	_, err := host.RegisterDebugAdapterDescriptorFactory("acme.echo", "echo",
		exthost.DescriptorFactoryFunc(func(context.Context, *session.Session, *adapters.Descriptor) (*adapters.Descriptor, error) {
			return adapters.Inline(&echoAdapter{}), nil
		}))
	require.NoError(t, err)

	s := NewServer(Options{Workbench: wb, Host: host, Launch: launch, Folders: folders, Version: "test", Log: logr.Discard()})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close(ctx)
		host.Close(ctx)
	})
	return &fixture{server: s, wb: wb, host: host, root: root}
}

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// call runs a tool handler and returns its text and whether it failed.
func call(t *testing.T, h handler, args map[string]interface{}) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func mustCall(t *testing.T, h handler, args map[string]interface{}) gjson.Result {
	t.Helper()
	text, failed := call(t, h, args)
	require.False(t, failed, text)
	return gjson.Parse(text)
}

func TestStartByNameAndStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.server

	started := mustCall(t, s.handleDebugStart, map[string]interface{}{"configName": "App"})
	id := started.Get("id").String()
	require.NotEmpty(t, id)
	assert.Equal(t, "App", started.Get("name").String())
	assert.Equal(t, "running", started.Get("state").String())

	list := mustCall(t, s.handleDebugSessions, nil)
	require.Len(t, list.Get("sessions").Array(), 1)
	assert.True(t, list.Get("sessions.0.active").Bool())

	require.Eventually(t, func() bool {
		one := mustCall(t, s.handleDebugSessions, map[string]interface{}{"sessionId": id})
		return one.Get("output.0.output").String() == "running "+filepath.Join(f.root, "app")+"\n"
	}, 5*time.Second, 10*time.Millisecond)

	stopped := mustCall(t, s.handleDebugStop, nil)
	assert.Equal(t, id, stopped.Get("sessionId").String())
	assert.Empty(t, f.wb.Sessions())

	text, failed := call(t, s.handleDebugStop, map[string]interface{}{"sessionId": id})
	assert.True(t, failed)
	assert.Contains(t, text, "SESSION_NOT_FOUND")
}

func TestStartInlineConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	started := mustCall(t, f.server.handleDebugStart, map[string]interface{}{
		"config": `{"type": "echo", "request": "launch", "name": "Inline", "program": "/bin/true"}`,
	})
	assert.Equal(t, "Inline", started.Get("name").String())
	assert.Equal(t, "echo", started.Get("type").String())

	text, failed := call(t, f.server.handleDebugStart, map[string]interface{}{"config": `{not json`})
	assert.True(t, failed)
	assert.Contains(t, text, "INVALID_JSON")

	text, failed = call(t, f.server.handleDebugStart, nil)
	assert.True(t, failed)
	assert.Contains(t, text, "MISSING_PARAMETER")

	text, failed = call(t, f.server.handleDebugStart, map[string]interface{}{"configName": "Nope"})
	assert.True(t, failed)
	assert.Contains(t, text, "CONFIG_NOT_FOUND")
}

func TestStartCompound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res := mustCall(t, f.server.handleDebugStart, map[string]interface{}{
		"compoundName": "All",
		"inputValues":  `{"worker": "jobs"}`,
	})
	assert.Equal(t, "All", res.Get("compound").String())
	sessions := res.Get("sessions").Array()
	require.Len(t, sessions, 2)
	assert.Equal(t, "App", sessions[0].Get("name").String())
	assert.Equal(t, "Worker", sessions[1].Get("name").String())

	worker := f.wb.Sessions()[1]
	s, ok := f.wb.Session(worker.ID)
	require.True(t, ok)
	require.Eventually(t, func() bool { return len(s.Output()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "running "+filepath.Join(f.root, "jobs")+"\n", s.Output()[0].Output)

	text, failed := call(t, f.server.handleDebugStart, map[string]interface{}{"compoundName": "Missing"})
	assert.True(t, failed)
	assert.Contains(t, text, "CONFIG_NOT_FOUND")
}

func TestCustomRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.server

	text, failed := call(t, s.handleDebugCustomRequest, map[string]interface{}{"command": "threads"})
	assert.True(t, failed)
	assert.Contains(t, text, "MISSING_PARAMETER")

	mustCall(t, s.handleDebugStart, map[string]interface{}{"configName": "App"})
	res := mustCall(t, s.handleDebugCustomRequest, map[string]interface{}{
		"command":   "evaluate",
		"arguments": `{"expression": "1 + 2"}`,
	})
	assert.Equal(t, "1 + 2", res.Get("result").String())

	res = mustCall(t, s.handleDebugCustomRequest, map[string]interface{}{"command": "pause"})
	assert.Equal(t, "{}", res.Raw)

	text, failed = call(t, s.handleDebugCustomRequest, map[string]interface{}{"command": "threads", "sessionId": "missing"})
	assert.True(t, failed)
	assert.Contains(t, text, "SESSION_NOT_FOUND")
}

func TestListConfigs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res := mustCall(t, f.server.handleDebugListConfigs, nil)
	assert.Equal(t, filepath.Join(f.root, ".vscode", "launch.json"), res.Get("configPath").String())
	names := []string{}
	for _, c := range res.Get("configurations").Array() {
		names = append(names, c.Get("name").String())
	}
	assert.Equal(t, []string{"App", "Worker"}, names)
	assert.Equal(t, "All", res.Get("compounds.0.name").String())
	assert.Contains(t, res.Get("debugTypes").String(), "echo")
	assert.False(t, res.Get("validationWarnings").Exists())

	other := t.TempDir()
	res = mustCall(t, f.server.handleDebugListConfigs, map[string]interface{}{"folder": other})
	assert.Empty(t, res.Get("configurations").Array())
	assert.Len(t, f.server.folders.All(), 2)
}

func TestBreakpointTools(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.server
	file := filepath.Join(f.root, "main.go")

	src := mustCall(t, s.handleBreakpointAdd, map[string]interface{}{"path": file, "line": float64(12), "condition": "n > 2"})
	assert.Equal(t, "source", src.Get("kind").String())
	assert.Equal(t, int64(12), src.Get("line").Int())
	assert.Equal(t, session.PathToURI(file), src.Get("uri").String())
	assert.Equal(t, "n > 2", src.Get("condition").String())

	fn := mustCall(t, s.handleBreakpointAdd, map[string]interface{}{"kind": "function", "functionName": "main.run"})
	assert.Equal(t, "main.run", fn.Get("functionName").String())

	data := mustCall(t, s.handleBreakpointAdd, map[string]interface{}{"kind": "data", "dataId": "x@0x1", "canPersist": true})
	assert.Equal(t, "x@0x1", data.Get("label").String())

	for _, bad := range []map[string]interface{}{
		{"line": float64(3)},
		{"path": file, "line": float64(0)},
		{"kind": "function"},
		{"kind": "data"},
		{"kind": "exception"},
	} {
		_, failed := call(t, s.handleBreakpointAdd, bad)
		assert.True(t, failed, "%v", bad)
	}

	list := mustCall(t, s.handleBreakpointList, nil)
	assert.Len(t, list.Get("breakpoints").Array(), 3)
	assert.False(t, list.Get("sessionId").Exists())

	mustCall(t, s.handleDebugStart, map[string]interface{}{"configName": "App"})
	list = mustCall(t, s.handleBreakpointList, nil)
	var adapterView gjson.Result
	for _, bp := range list.Get("breakpoints").Array() {
		if bp.Get("id").String() == src.Get("id").String() {
			adapterView = bp.Get("adapter")
		}
	}
	require.True(t, adapterView.Exists())
	assert.True(t, adapterView.Get("verified").Bool())
	assert.Equal(t, int64(12), adapterView.Get("line").Int())

	removed := mustCall(t, s.handleBreakpointRemove, map[string]interface{}{"ids": fn.Get("id").String() + ", unknown"})
	assert.Equal(t, int64(1), removed.Get("removed").Int())
	assert.Equal(t, int64(2), removed.Get("remaining").Int())

	removed = mustCall(t, s.handleBreakpointRemove, map[string]interface{}{"all": true})
	assert.Equal(t, int64(2), removed.Get("removed").Int())
	assert.Empty(t, f.wb.Breakpoints())

	_, failed := call(t, s.handleBreakpointRemove, nil)
	assert.True(t, failed)
}

func TestConsoleAndSourceURI(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.server

	mustCall(t, s.handleDebugConsoleAppend, map[string]interface{}{"text": "hello", "newline": false})
	res := mustCall(t, s.handleDebugConsoleAppend, map[string]interface{}{"text": " world"})
	assert.Equal(t, int64(len("hello world\n")), res.Get("consoleLength").Int())
	assert.Equal(t, "hello world\n", f.wb.ConsoleOutput())

	res = mustCall(t, s.handleDebugSourceURI, map[string]interface{}{"path": "/src/a b.go"})
	assert.Equal(t, "file:///src/a%20b.go", res.Get("uri").String())

	res = mustCall(t, s.handleDebugSourceURI, map[string]interface{}{"path": "gen.js", "sourceReference": float64(7)})
	assert.Equal(t, "debug:gen.js?ref=7", res.Get("uri").String())

	_, failed := call(t, s.handleDebugSourceURI, nil)
	assert.True(t, failed)

	_, failed = call(t, s.handleDebugSourceURI, map[string]interface{}{"path": "x", "sessionId": "nope"})
	assert.True(t, failed)
}
