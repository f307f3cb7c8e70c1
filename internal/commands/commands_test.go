package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ctagard/dap-exthost/internal/breakpoints"
	"github.com/ctagard/dap-exthost/internal/config"
	"github.com/ctagard/dap-exthost/internal/logger"
	"github.com/ctagard/dap-exthost/internal/version"
)

const launchJSON = `{
	"version": "0.2.0",
	"configurations": [
		{"type": "go", "request": "launch", "name": "Server", "program": "${workspaceFolder}/cmd/server"},
		{"type": "debugpy", "request": "attach", "name": "Worker", "connect": {"port": 5678}}
	],
	"compounds": [
		{"name": "Both", "configurations": ["Server", "Worker"]}
	]
}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, err := NewRootCmd(logger.NewWithWriter("test", io.Discard))
	require.NoError(t, err)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".vscode"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vscode", "launch.json"), []byte(launchJSON), 0o644))
	return dir
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.Version, gjson.Get(out, "version").String())
}

func TestConfigsCommand(t *testing.T) {
	t.Parallel()

	dir := writeWorkspace(t)
	out, err := execute(t, "configs", "--workspace", dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, ".vscode", "launch.json"), gjson.Get(out, "configPath").String())
	assert.Equal(t, []interface{}{"Server", "Worker"}, gjson.Get(out, "configurations.#.name").Value())
	assert.Equal(t, "attach", gjson.Get(out, "configurations.1.request").String())
	assert.Equal(t, "Both", gjson.Get(out, "compounds.0.name").String())
	assert.False(t, gjson.Get(out, "validationWarnings").Exists())
}

func TestConfigsCommandErrors(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "configs", "--config", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = execute(t, "configs", "--workspace", t.TempDir(), "--variant", "browser")
	assert.Error(t, err)
}

func TestConfigsCommandWithoutLaunchJSON(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "configs", "--workspace", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, gjson.Get(out, "configurations").Array())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace = writeWorkspace(t)
	return cfg
}

func TestCoordinatorMainVariant(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.SigningKey = "secret"
	c, err := newCoordinator(context.Background(), cfg, logr.Discard())
	require.NoError(t, err)
	defer c.Close(context.Background())

	for _, debugType := range []string{"go", "debugpy", "pwa-node", "lldb", "gdb"} {
		assert.Contains(t, c.wb.DebugTypes(), debugType)
	}
	for _, debugType := range []string{"go", "debugpy", "pwa-node"} {
		assert.True(t, c.wb.HasDescriptorFactory(debugType), debugType)
	}
	// lldb-dap and gdb are launched from their executable contribution
	assert.False(t, c.wb.HasDescriptorFactory("lldb"))
	assert.Len(t, c.folders.All(), 1)
}

func TestCoordinatorWorkerVariant(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Variant = config.VariantWorker
	script := filepath.Join(t.TempDir(), "count.lua")
	require.NoError(t, os.WriteFile(script, []byte(`debugType = "go"`), 0o600))
	cfg.LuaTrackers = []string{script}

	c, err := newCoordinator(context.Background(), cfg, logr.Discard())
	require.NoError(t, err)
	defer c.Close(context.Background())

	assert.Empty(t, c.factories)
	assert.False(t, c.wb.HasDescriptorFactory("go"))
}

func TestCoordinatorRejectsBadSetup(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.LuaTrackers = []string{filepath.Join(t.TempDir(), "missing.lua")}
	_, err := newCoordinator(context.Background(), cfg, logr.Discard())
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Contributions = filepath.Join(t.TempDir(), "missing.json")
	_, err = newCoordinator(context.Background(), cfg, logr.Discard())
	assert.Error(t, err)
}

func TestCoordinatorPersistsBreakpoints(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Variant = config.VariantWorker
	cfg.BreakpointDB = filepath.Join(t.TempDir(), "breakpoints.db")
	ctx := context.Background()

	c, err := newCoordinator(ctx, cfg, logr.Discard())
	require.NoError(t, err)
	bp := breakpoints.NewSourceBreakpoint(breakpoints.Location{
		URI:  "file://" + filepath.Join(cfg.Workspace, "main.go"),
		Line: 9,
	}, breakpoints.Options{Enabled: true, Condition: "n > 1"})
	require.NoError(t, c.host.AddBreakpoints(ctx, bp))
	c.Close(ctx)

	c, err = newCoordinator(ctx, cfg, logr.Discard())
	require.NoError(t, err)
	defer c.Close(ctx)

	restored, ok := c.host.Breakpoints().Get(bp.ID())
	require.True(t, ok)
	assert.Equal(t, "n > 1", restored.Condition())
	assert.Equal(t, 1, c.host.Breakpoints().Len())
}

func TestCoordinatorWatchesContributions(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	manifest := filepath.Join(t.TempDir(), "extensions.json")
	write := func(debugType string) {
		body := `{"extensions": [{"id": "acme.debug", "debuggers": [{"type": "` + debugType + `", "label": "Acme"}]}]}`
		require.NoError(t, os.WriteFile(manifest, []byte(body), 0o644))
	}
	write("acme")
	cfg.Contributions = manifest
	cfg.WatchContributions = true

	c, err := newCoordinator(context.Background(), cfg, logr.Discard())
	require.NoError(t, err)
	defer c.Close(context.Background())
	assert.Contains(t, c.wb.DebugTypes(), "acme")

	write("acme2")
	assert.Eventually(t, func() bool {
		types := c.wb.DebugTypes()
		for _, debugType := range types {
			if debugType == "acme2" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, c.wb.DebugTypes(), "go")
}
