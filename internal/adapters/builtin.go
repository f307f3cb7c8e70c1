package adapters

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/config"
	"github.com/ctagard/dap-exthost/internal/contributions"
	"github.com/ctagard/dap-exthost/internal/session"
)

// BuiltinExtensionID owns the built-in debugger contributions.
const BuiltinExtensionID = "builtin"

// BuiltinContribution declares the built-in debuggers. lldb-dap and gdb are
// plain stdio executables; the others are served by descriptor factories.
func BuiltinContribution(cfg config.AdapterConfigs) contributions.Extension {
	lldb := cfg.LLDB.Path
	if lldb == "" {
		lldb = "lldb-dap"
	}
	gdb := cfg.GDB.Path
	if gdb == "" {
		gdb = "gdb"
	}
	return contributions.Extension{
		ID: BuiltinExtensionID,
		Debuggers: []contributions.Debugger{
			{Type: "go", Label: "Go (Delve)", Languages: []string{"go"}},
			{Type: "debugpy", Label: "Python (debugpy)", Languages: []string{"python"}},
			{Type: "pwa-node", Label: "Node.js (js-debug)", Languages: []string{"javascript", "typescript"}},
			{
				Type: "lldb", Label: "LLDB", Program: lldb,
				// auto REPL mode accepts both expressions and commands
				Args:      []string{"--repl-mode=auto"},
				Languages: []string{"c", "cpp", "rust"},
			},
			{
				Type: "gdb", Label: "GDB", Program: gdb,
				Args:      []string{"--interpreter=dap", "--eval-command", "set print pretty on", "--quiet"},
				Languages: []string{"c", "cpp", "rust"},
			},
		},
	}
}

// ServerFactory spawns an adapter listening on a free local port and hands
// out a server descriptor for it. Processes are tracked per session and
// killed by Release.
type ServerFactory struct {
	debugType string
	command   func(s *session.Session, port int) (*exec.Cmd, error)
	log       logr.Logger

	mu    sync.Mutex
	procs map[string]*exec.Cmd
}

// DebugType returns the debug type served by f.
func (f *ServerFactory) DebugType() string { return f.debugType }

// CreateDebugAdapterDescriptor starts the adapter process for s.
func (f *ServerFactory) CreateDebugAdapterDescriptor(ctx context.Context, s *session.Session, _ *Descriptor) (*Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	port, err := findAvailablePort()
	if err != nil {
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}
	cmd, err := f.command(s, port)
	if err != nil {
		return nil, err
	}
	cmd.Env = append(os.Environ(), cmd.Env...)
	// stdin stays disconnected so the adapter never grabs the MCP stdio channel
	cmd.Stdin = nil
	cmd.Stderr = os.Stderr
	setProcAttr(cmd)
	if cwd, ok := s.Configuration()["cwd"].(string); ok && cwd != "" && cmd.Dir == "" {
		cmd.Dir = cwd
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	go func() { _ = cmd.Wait() }()

	f.mu.Lock()
	if old, ok := f.procs[s.ID()]; ok {
		f.kill(old)
	}
	f.procs[s.ID()] = cmd
	f.mu.Unlock()

	f.log.Info("spawned debug adapter", "type", f.debugType, "session", s.ID(), "port", port, "pid", cmd.Process.Pid)
	return Server(port, "127.0.0.1"), nil
}

// Release kills the adapter spawned for sessionID, if any.
func (f *ServerFactory) Release(sessionID string) {
	f.mu.Lock()
	cmd, ok := f.procs[sessionID]
	delete(f.procs, sessionID)
	f.mu.Unlock()
	if ok {
		f.kill(cmd)
	}
}

// Close kills every adapter still running.
func (f *ServerFactory) Close() {
	f.mu.Lock()
	procs := f.procs
	f.procs = make(map[string]*exec.Cmd)
	f.mu.Unlock()
	for _, cmd := range procs {
		f.kill(cmd)
	}
}

func (f *ServerFactory) kill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := killProcessGroup(cmd.Process.Pid, cmd); err != nil {
		f.log.Error(err, "failed to kill debug adapter", "pid", cmd.Process.Pid)
	}
}

func newServerFactory(debugType string, log logr.Logger, command func(*session.Session, int) (*exec.Cmd, error)) *ServerFactory {
	return &ServerFactory{
		debugType: debugType,
		command:   command,
		log:       log.WithName("builtin"),
		procs:     make(map[string]*exec.Cmd),
	}
}

// BuiltinFactories returns the descriptor factories of the built-in
// debuggers that run in server mode.
func BuiltinFactories(cfg config.AdapterConfigs, log logr.Logger) []*ServerFactory {
	return []*ServerFactory{
		NewDelveFactory(cfg.Go, log),
		NewDebugpyFactory(cfg.Python, log),
		NewJSDebugFactory(cfg.Node, log),
	}
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.Port, nil
}
