package adapters

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/config"
	"github.com/ctagard/dap-exthost/internal/session"
)

// NewDebugpyFactory serves the "debugpy" debug type with
// `python -m debugpy.adapter`.
func NewDebugpyFactory(cfg config.DebugpyConfig, log logr.Logger) *ServerFactory {
	defaultPython := cfg.PythonPath
	if defaultPython == "" {
		defaultPython = "python3"
	}
	return newServerFactory("debugpy", log, func(s *session.Session, port int) (*exec.Cmd, error) {
		return debugpyCommand(pythonPath(s, defaultPython), port), nil
	})
}

// pythonPath honours VS Code's "python" and debugpy's "pythonPath"
// attributes before the configured default.
func pythonPath(s *session.Session, fallback string) string {
	cfg := s.Configuration()
	if p, ok := cfg["python"].(string); ok && p != "" {
		return p
	}
	if p, ok := cfg["pythonPath"].(string); ok && p != "" {
		return p
	}
	return fallback
}

func debugpyCommand(python string, port int) *exec.Cmd {
	//nolint:gosec // G204: debug adapters are spawned by design
	cmd := exec.Command(python, "-m", "debugpy.adapter", "--host", "127.0.0.1", "--port", fmt.Sprintf("%d", port))
	if root := venvRoot(python); root != "" {
		cmd.Env = append(cmd.Env,
			"VIRTUAL_ENV="+root,
			"PATH="+filepath.Dir(python)+string(os.PathListSeparator)+os.Getenv("PATH"),
		)
	}
	return cmd
}

// venvRoot returns the virtualenv containing python, or "".
func venvRoot(python string) string {
	root := filepath.Dir(filepath.Dir(python))
	if _, err := os.Stat(filepath.Join(root, "pyvenv.cfg")); err == nil {
		return root
	}
	return ""
}
