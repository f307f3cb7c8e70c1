package adapters

import (
	"fmt"
	"os/exec"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/config"
	"github.com/ctagard/dap-exthost/internal/session"
)

// NewJSDebugFactory serves the "pwa-node" debug type with vscode-js-debug's
// dapDebugServer.js.
func NewJSDebugFactory(cfg config.NodeConfig, log logr.Logger) *ServerFactory {
	nodePath := cfg.NodePath
	if nodePath == "" {
		nodePath = "node"
	}
	return newServerFactory("pwa-node", log, func(_ *session.Session, port int) (*exec.Cmd, error) {
		if cfg.JsDebugPath == "" {
			return nil, fmt.Errorf("jsDebugPath not configured: vscode-js-debug is required for JavaScript/TypeScript debugging. " +
				"Install from https://github.com/microsoft/vscode-js-debug/releases and set jsDebugPath in config")
		}
		// Usage: node dapDebugServer.js <port> [host]
		//nolint:gosec // G204: debug adapters are spawned by design
		return exec.Command(nodePath, cfg.JsDebugPath, fmt.Sprintf("%d", port), "127.0.0.1"), nil
	})
}
