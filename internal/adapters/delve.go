package adapters

import (
	"fmt"
	"os/exec"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/config"
	"github.com/ctagard/dap-exthost/internal/session"
)

// NewDelveFactory serves the "go" debug type with `dlv dap`.
func NewDelveFactory(cfg config.DelveConfig, log logr.Logger) *ServerFactory {
	dlvPath := cfg.Path
	if dlvPath == "" {
		dlvPath = "dlv"
	}
	return newServerFactory("go", log, func(s *session.Session, port int) (*exec.Cmd, error) {
		return delveCommand(dlvPath, cfg.BuildFlags, s, port), nil
	})
}

func delveCommand(dlvPath, buildFlags string, s *session.Session, port int) *exec.Cmd {
	args := []string{"dap", "--listen", fmt.Sprintf("127.0.0.1:%d", port)}
	if flags, ok := s.Configuration()["buildFlags"].(string); ok && flags != "" {
		buildFlags = flags
	}
	if buildFlags != "" {
		args = append(args, "--build-flags", buildFlags)
	}
	//nolint:gosec // G204: debug adapters are spawned by design
	return exec.Command(dlvPath, args...)
}
