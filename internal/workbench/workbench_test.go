package workbench

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-exthost/internal/breakpoints"
	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/errors"
	"github.com/ctagard/dap-exthost/internal/exthost"
	"github.com/ctagard/dap-exthost/internal/launchconfig"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/pkg/types"
)

const wait = 5 * time.Second

func start(t *testing.T, h *harness, noc exthost.NameOrConfig) (*Session, *mockAdapter) {
	t.Helper()
	s, err := h.wb.Start(context.Background(), "", noc, types.StartDebuggingOptions{})
	require.NoError(t, err)
	return s, h.nextMock(t)
}

func TestStartRunsTheLaunchSequence(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})
	ctx := context.Background()

	bp := breakpoints.NewSourceBreakpoint(breakpoints.Location{URI: "file:///tmp/app/main.go", Line: 9}, breakpoints.Options{Enabled: true})
	require.NoError(t, h.host.AddBreakpoints(ctx, bp))

	s, mock := start(t, h, mockConfig(nil))

	assert.Equal(t, []string{"initialize", "launch", "setBreakpoints", "configurationDone"}, mock.commands())

	launch := mock.lastRequest("launch")
	assert.Equal(t, s.ID, launch.Get("arguments.__sessionId").String())
	assert.Equal(t, "/tmp/app", launch.Get("arguments.program").String())

	set := mock.lastRequest("setBreakpoints")
	assert.Equal(t, "/tmp/app/main.go", set.Get("arguments.source.path").String())
	assert.Equal(t, int64(10), set.Get("arguments.breakpoints.0.line").Int())

	assert.Equal(t, StateRunning, s.State())
	infos := h.wb.Sessions()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Active)
	assert.Equal(t, "Mock", infos[0].Name)

	active := h.host.ActiveDebugSession()
	require.NotNil(t, active)
	assert.Equal(t, s.ID, active.ID())

	raw, err := active.GetDebugProtocolBreakpoint(ctx, bp)
	require.NoError(t, err)
	var got struct {
		Verified bool `json:"verified"`
		Line     int  `json:"line"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.True(t, got.Verified)
	assert.Equal(t, 10, got.Line)
}

func TestBreakpointChangesReachRunningSessions(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})
	ctx := context.Background()
	_, mock := start(t, h, mockConfig(nil))

	fn := breakpoints.NewFunctionBreakpoint("main.run", breakpoints.Options{Enabled: true})
	require.NoError(t, h.host.AddBreakpoints(ctx, fn))
	msg := mock.waitFor(t, isRequest("setFunctionBreakpoints"))
	assert.Equal(t, "main.run", msg.Get("arguments.breakpoints.0.name").String())

	src := breakpoints.NewSourceBreakpoint(breakpoints.Location{URI: "file:///tmp/app/a.go", Line: 0, Character: 4}, breakpoints.Options{Enabled: true, Condition: "x > 1"})
	require.NoError(t, h.host.AddBreakpoints(ctx, src))
	msg = mock.waitFor(t, isRequest("setBreakpoints"))
	assert.Equal(t, int64(1), msg.Get("arguments.breakpoints.0.line").Int())
	assert.Equal(t, int64(5), msg.Get("arguments.breakpoints.0.column").Int())
	assert.Equal(t, "x > 1", msg.Get("arguments.breakpoints.0.condition").String())

	require.NoError(t, h.host.RemoveBreakpoints(ctx, fn, src))
	seen := map[string]dap.Message{}
	for len(seen) < 2 {
		msg := mock.waitFor(t, func(m dap.Message) bool {
			return m.IsRequest("setBreakpoints") || m.IsRequest("setFunctionBreakpoints")
		})
		seen[msg.Command()] = msg
	}
	assert.Empty(t, seen["setBreakpoints"].Get("arguments.breakpoints").Array())
	assert.Equal(t, "/tmp/app/a.go", seen["setBreakpoints"].Get("arguments.source.path").String())
	assert.Empty(t, seen["setFunctionBreakpoints"].Get("arguments.breakpoints").Array())
	assert.Empty(t, h.wb.Breakpoints())
}

func TestStartByNameRunsProviders(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".vscode"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".vscode", "launch.json"), []byte(`{
		"version": "0.2.0",
		"configurations": [
			{"type": "mock", "request": "launch", "name": "Run", "program": "${workspaceFolder}/bin/app", "port": "${input:port}"}
		],
		"inputs": [{"id": "port", "type": "promptString", "default": "4711"}]
	}`), 0o644))

	folders := NewFolders(root)
	launch := launchconfig.NewProvider("", logr.Discard())
	h := newHarness(t, Options{}, exthost.Options{Folders: folders, Variables: launch})
	h.host.RegisterDebugConfigurationProvider("*", launch.ConfigurationProvider(), types.TriggerInitial)
	h.host.RegisterDebugConfigurationProvider("mock", &exthost.ConfigurationProvider{
		ResolveDebugConfigurationWithSubstitutedVariables: func(_ context.Context, _ *session.WorkspaceFolder, cfg types.DebugConfiguration) (types.DebugConfiguration, error) {
			cfg["resolvedBy"] = "mock"
			return cfg, nil
		},
	}, types.TriggerDynamic)

	configs, err := h.wb.Configurations(context.Background(), folders.DefaultURI())
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "Run", configs[0].Name())

	s, err := h.wb.Start(context.Background(), folders.DefaultURI(), exthost.NameOrConfig{Name: "Run"}, types.StartDebuggingOptions{})
	require.NoError(t, err)
	mock := h.nextMock(t)

	args := mock.lastRequest("launch")
	assert.Equal(t, filepath.Join(root, "bin", "app"), args.Get("arguments.program").String())
	assert.Equal(t, "4711", args.Get("arguments.port").String())
	assert.Equal(t, "mock", args.Get("arguments.resolvedBy").String())
	assert.Equal(t, "Run", s.Name())

	_, err = h.wb.Start(context.Background(), folders.DefaultURI(), exthost.NameOrConfig{Name: "Missing"}, types.StartDebuggingOptions{})
	assert.True(t, errors.Is(err, errors.CodeConfigNotFound))
}

func TestProviderCanAbortLaunch(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})
	h.host.RegisterDebugConfigurationProvider("mock", &exthost.ConfigurationProvider{
		ResolveDebugConfiguration: func(context.Context, *session.WorkspaceFolder, types.DebugConfiguration) (types.DebugConfiguration, error) {
			return nil, nil
		},
	}, types.TriggerInitial)

	ok, err := h.host.StartDebugging(context.Background(), "", mockConfig(nil), types.StartDebuggingOptions{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, h.wb.Sessions())
}

func TestStartRejectsConfigurationWithoutType(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})

	_, err := h.wb.Start(context.Background(), "", exthost.NameOrConfig{Config: types.DebugConfiguration{"name": "x"}}, types.StartDebuggingOptions{})
	assert.True(t, errors.Is(err, errors.CodeConfigInvalid))
}

func TestLaunchFailureTearsDown(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})

	_, err := h.wb.Start(context.Background(), "", mockConfig(map[string]interface{}{"fail": true}), types.StartDebuggingOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot launch program")
	assert.Empty(t, h.wb.Sessions())
	assert.Equal(t, 0, h.host.Sessions().Len())
	assert.Nil(t, h.host.ActiveDebugSession())
}

func TestSessionLimit(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{MaxSessions: 1}, exthost.Options{})
	start(t, h, mockConfig(nil))

	_, err := h.wb.Start(context.Background(), "", mockConfig(nil), types.StartDebuggingOptions{})
	assert.True(t, errors.Is(err, errors.CodeSessionLimitReached))
}

func TestStopDebugging(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})
	ctx := context.Background()

	terminated := make(chan *session.Session, 1)
	h.host.OnDidTerminateDebugSession(func(s *session.Session) { terminated <- s })

	s, mock := start(t, h, mockConfig(nil))
	require.NoError(t, h.host.StopDebugging(ctx, nil))

	disconnect := mock.lastRequest("disconnect")
	require.NotNil(t, disconnect)
	assert.True(t, disconnect.Get("arguments.terminateDebuggee").Bool())

	select {
	case <-s.Done():
	case <-time.After(wait):
		t.Fatal("session did not finish")
	}
	select {
	case got := <-terminated:
		assert.Equal(t, s.ID, got.ID())
	case <-time.After(wait):
		t.Fatal("terminate event not fired")
	}

	assert.Equal(t, StateTerminated, s.State())
	assert.Empty(t, h.wb.Sessions())
	assert.Nil(t, h.host.ActiveDebugSession())

	err := h.wb.StopDebugging(ctx, "nope")
	assert.True(t, errors.Is(err, errors.CodeSessionNotFound))
}

func TestTerminatedEventEndsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})
	s, mock := start(t, h, mockConfig(nil))

	mock.event("terminated", nil)
	select {
	case <-s.Done():
	case <-time.After(wait):
		t.Fatal("session did not finish")
	}
	assert.NotNil(t, mock.lastRequest("disconnect"))
	_, ok := h.wb.Session(s.ID)
	assert.False(t, ok)
}

func TestStoppedEventMovesFocus(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})

	frames := make(chan *exthost.Focus, 4)
	h.host.OnDidChangeStackFrameFocus(func(f *exthost.Focus) {
		if f != nil && f.Kind == types.FocusStackFrame {
			frames <- f
		}
	})

	s, _ := start(t, h, mockConfig(map[string]interface{}{"stopOnEntry": true}))

	select {
	case f := <-frames:
		assert.Equal(t, s.ID, f.Session.ID())
		assert.Equal(t, 1, f.ThreadID)
		assert.Equal(t, 1000, f.FrameID)
	case <-time.After(wait):
		t.Fatal("no stack frame focus")
	}
	assert.Equal(t, StateStopped, s.State())

	focus := h.host.StackFrameFocus()
	require.NotNil(t, focus)
	assert.Equal(t, 1000, focus.FrameID)
}

func TestEventsAreForwarded(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})

	custom := make(chan exthost.CustomEvent, 4)
	h.host.OnDidReceiveDebugSessionCustomEvent(func(ev exthost.CustomEvent) { custom <- ev })

	s, mock := start(t, h, mockConfig(nil))
	mock.event("output", map[string]interface{}{"category": "stdout", "output": "hello\n"})
	mock.event("progressReport", map[string]interface{}{"percent": 50})
	mock.event("exited", map[string]interface{}{"exitCode": 3})

	select {
	case ev := <-custom:
		assert.Equal(t, "progressReport", ev.Event)
		assert.Equal(t, s.ID, ev.Session.ID())
		body, ok := ev.Body.(map[string]interface{})
		require.True(t, ok)
		assert.EqualValues(t, 50, body["percent"])
	case <-time.After(wait):
		t.Fatal("custom event not forwarded")
	}

	require.Eventually(t, func() bool { return s.Info().ExitCode != nil }, wait, 10*time.Millisecond)
	assert.Equal(t, 3, *s.Info().ExitCode)
	assert.Equal(t, []OutputLine{{Category: "stdout", Output: "hello\n"}}, s.Output())
	assert.Len(t, custom, 0)
}

func TestCustomRequestThroughSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})
	ctx := context.Background()
	s, mock := start(t, h, mockConfig(nil))

	sess, ok := h.host.Sessions().Get(s.ID)
	require.True(t, ok)
	body, err := sess.CustomRequest(ctx, "evaluate", map[string]interface{}{"expression": "6*7"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"42","variablesReference":0}`, string(body))
	assert.Equal(t, "6*7", mock.lastRequest("evaluate").Get("arguments.expression").String())

	_, err = sess.CustomRequest(ctx, "restartFrame", nil)
	assert.Error(t, err)

	_, err = h.wb.CustomDebugAdapterRequest(ctx, "nope", "threads", nil)
	assert.True(t, errors.Is(err, errors.CodeSessionNotFound))
}

func TestSessionRename(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})
	s, _ := start(t, h, mockConfig(nil))

	sess, ok := h.host.Sessions().Get(s.ID)
	require.True(t, ok)
	sess.SetName("Renamed")
	require.Eventually(t, func() bool { return s.Name() == "Renamed" }, wait, 10*time.Millisecond)
}

func TestReverseRequests(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})
	ctx := context.Background()
	parent, mock := start(t, h, mockConfig(nil))

	mock.request("runInTerminal", map[string]interface{}{"cwd": "/tmp", "args": []string{"app"}})
	resp := mock.waitFor(t, func(m dap.Message) bool {
		return m.Kind() == dap.KindResponse && m.Command() == "runInTerminal"
	})
	assert.False(t, resp.Success())

	mock.request("startDebugging", map[string]interface{}{
		"request":       "attach",
		"configuration": map[string]interface{}{"name": "Child", "port": 9229},
	})
	resp = mock.waitFor(t, func(m dap.Message) bool {
		return m.Kind() == dap.KindResponse && m.Command() == "startDebugging"
	})
	assert.True(t, resp.Success())

	child := h.nextMock(t)
	require.Eventually(t, func() bool { return len(h.wb.Sessions()) == 2 }, wait, 10*time.Millisecond)
	assert.Equal(t, int64(9229), child.lastRequest("attach").Get("arguments.port").Int())

	var childID string
	for _, info := range h.wb.Sessions() {
		if info.ID != parent.ID {
			childID = info.ID
			assert.Equal(t, parent.ID, info.ParentID)
			assert.Equal(t, "mock", info.Type)
		}
	}
	sess, ok := h.host.Sessions().Get(childID)
	require.True(t, ok)
	require.NotNil(t, sess.Parent())
	assert.Equal(t, parent.ID, sess.Parent().ID())

	mock.request("openBrowser", nil)
	resp = mock.waitFor(t, func(m dap.Message) bool {
		return m.Kind() == dap.KindResponse && m.Command() == "openBrowser"
	})
	assert.False(t, resp.Success())

	require.NoError(t, h.wb.StopDebugging(ctx, parent.ID))
	require.Eventually(t, func() bool { return len(h.wb.Sessions()) == 0 }, wait, 10*time.Millisecond)
	// attached children are disconnected without terminating the debuggee
	assert.False(t, child.lastRequest("disconnect").Get("arguments.terminateDebuggee").Bool())
}

func TestDebugConsole(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})

	h.host.ActiveDebugConsole().Append("a")
	h.host.ActiveDebugConsole().AppendLine("b")
	assert.Equal(t, "ab\n", h.wb.ConsoleOutput())
}

func TestDebugTypesAndFactories(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{}, exthost.Options{})

	assert.Contains(t, h.wb.DebugTypes(), "mock")
	assert.True(t, h.wb.HasDescriptorFactory("mock"))
	assert.False(t, h.wb.HasDescriptorFactory("python"))
}

func TestWithoutHost(t *testing.T) {
	t.Parallel()
	wb := New(Options{Log: logr.Discard()})

	_, err := wb.Start(context.Background(), "", mockConfig(nil), types.StartDebuggingOptions{})
	assert.True(t, errors.Is(err, errors.CodeNotSupported))
}

func TestFolders(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	f := NewFolders(root, filepath.Join(root, "other"))

	require.Len(t, f.All(), 2)
	folder, err := f.ResolveWorkspaceFolder(context.Background(), f.DefaultURI())
	require.NoError(t, err)
	require.NotNil(t, folder)
	assert.Equal(t, root, folder.Path())
	assert.Equal(t, 0, folder.Index)

	folder, err = f.ResolveWorkspaceFolder(context.Background(), "file:///elsewhere")
	require.NoError(t, err)
	assert.Nil(t, folder)

	assert.Equal(t, f.DefaultURI(), f.Add(root))
	assert.Len(t, f.All(), 2)
	uri := f.Add(filepath.Join(root, "third"))
	folder, err = f.ResolveWorkspaceFolder(context.Background(), uri)
	require.NoError(t, err)
	require.NotNil(t, folder)
	assert.Equal(t, 2, folder.Index)
	assert.Equal(t, "third", folder.Name)

	assert.Equal(t, "", NewFolders().DefaultURI())
}
