package adapters

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-exthost/internal/config"
	"github.com/ctagard/dap-exthost/internal/contributions"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/pkg/types"
)

func newSession(t *testing.T, debugType string, cfg types.DebugConfiguration) *session.Session {
	t.Helper()
	reg := session.NewRegistry(nil, nil, logr.Discard())
	s, err := reg.GetOrCreate(context.Background(), types.SessionDTO{ID: "S1", Type: debugType, Configuration: cfg})
	require.NoError(t, err)
	return s
}

func TestBuiltinContribution(t *testing.T) {
	t.Parallel()

	cfg := config.AdapterConfigs{LLDB: config.LLDBConfig{Path: "/opt/lldb-dap"}}
	reg := contributions.NewRegistry(logr.Discard(), BuiltinContribution(cfg))

	assert.Equal(t, []string{"debugpy", "gdb", "go", "lldb", "pwa-node"}, reg.DebugTypes())
	for _, f := range BuiltinFactories(cfg, logr.Discard()) {
		assert.True(t, reg.DefinesDebugType(BuiltinExtensionID, f.DebugType()), f.DebugType())
		assert.Nil(t, reg.ExecutableFor(f.DebugType()), "factory types have no static executable")
	}

	lldb := reg.ExecutableFor("lldb")
	require.NotNil(t, lldb)
	assert.Equal(t, "/opt/lldb-dap", lldb.Command)

	gdb := reg.ExecutableFor("gdb")
	require.NotNil(t, gdb)
	assert.Equal(t, "gdb", gdb.Command)
	assert.Contains(t, gdb.Args, "--interpreter=dap")
}

func TestDelveCommand(t *testing.T) {
	t.Parallel()

	cmd := delveCommand("dlv", "-race", newSession(t, "go", nil), 4711)
	assert.Equal(t, []string{"dlv", "dap", "--listen", "127.0.0.1:4711", "--build-flags", "-race"}, cmd.Args)

	cmd = delveCommand("dlv", "", newSession(t, "go", types.DebugConfiguration{"buildFlags": "-tags=x"}), 1)
	assert.Equal(t, []string{"dlv", "dap", "--listen", "127.0.0.1:1", "--build-flags", "-tags=x"}, cmd.Args)
}

func TestPythonPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "python3", pythonPath(newSession(t, "debugpy", nil), "python3"))
	assert.Equal(t, "/venv/bin/python", pythonPath(newSession(t, "debugpy", types.DebugConfiguration{"python": "/venv/bin/python"}), "python3"))
	assert.Equal(t, "/p", pythonPath(newSession(t, "debugpy", types.DebugConfiguration{"pythonPath": "/p"}), "python3"))
}

func TestDebugpyVenv(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pyvenv.cfg"), nil, 0o600))
	python := filepath.Join(root, "bin", "python")

	assert.Equal(t, root, venvRoot(python))
	cmd := debugpyCommand(python, 5678)
	assert.Contains(t, cmd.Env, "VIRTUAL_ENV="+root)
	assert.Equal(t, []string{python, "-m", "debugpy.adapter", "--host", "127.0.0.1", "--port", "5678"}, cmd.Args)

	assert.Equal(t, "", venvRoot("/usr/bin/python3"))
}

func TestJSDebugRequiresPath(t *testing.T) {
	t.Parallel()

	f := NewJSDebugFactory(config.NodeConfig{}, logr.Discard())
	_, err := f.CreateDebugAdapterDescriptor(context.Background(), newSession(t, "pwa-node", nil), nil)
	assert.ErrorContains(t, err, "jsDebugPath")
}

func TestServerFactorySpawnAndRelease(t *testing.T) {
	t.Parallel()
	if _, err := os.Stat("/bin/sleep"); err != nil {
		t.Skip("needs /bin/sleep")
	}

	var gotPort int
	f := newServerFactory("sleepy", logr.Discard(), func(_ *session.Session, port int) (*exec.Cmd, error) {
		gotPort = port
		return exec.Command("/bin/sleep", "30"), nil
	})
	defer f.Close()

	d, err := f.CreateDebugAdapterDescriptor(context.Background(), newSession(t, "sleepy", nil), nil)
	require.NoError(t, err)
	assert.Equal(t, types.DescriptorServer, d.Type)
	assert.Equal(t, gotPort, d.Port)
	assert.Equal(t, "127.0.0.1", d.Host)

	f.mu.Lock()
	cmd := f.procs["S1"]
	f.mu.Unlock()
	require.NotNil(t, cmd)

	f.Release("S1")
	f.mu.Lock()
	assert.Empty(t, f.procs)
	f.mu.Unlock()
	// releasing again is a no-op
	f.Release("S1")
}

func TestServerFactoryCancelled(t *testing.T) {
	t.Parallel()

	f := NewDelveFactory(config.DelveConfig{}, logr.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.CreateDebugAdapterDescriptor(ctx, newSession(t, "go", nil), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
