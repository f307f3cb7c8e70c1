// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes the debug coordinator through MCP tools that can be
// used by AI assistants and other MCP clients:
//
// Sessions:
//   - debug_start: Start a session from launch.json, an inline configuration or a compound
//   - debug_stop: Stop a session (the active one by default)
//   - debug_sessions: List sessions or show one session with its output
//   - debug_custom_request: Send any DAP request to a session's adapter
//   - debug_list_configs: List launch.json and provider configurations
//
// Breakpoints:
//   - breakpoint_add: Add a source, function or data breakpoint
//   - breakpoint_remove: Remove breakpoints by id
//   - breakpoint_list: List breakpoints with the adapter's view of them
//
// Miscellaneous:
//   - debug_console_append: Write to the debug console
//   - debug_source_uri: Convert a DAP source to a URI
package mcp

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/dap-exthost/internal/exthost"
	"github.com/ctagard/dap-exthost/internal/launchconfig"
	"github.com/ctagard/dap-exthost/internal/workbench"
)

// Options wires the server to the coordinator.
type Options struct {
	Workbench *workbench.Workbench
	Host      *exthost.Service
	Launch    *launchconfig.Provider
	Folders   *workbench.Folders
	Version   string
	Log       logr.Logger
}

// Server wraps the MCP server with debugging capabilities
type Server struct {
	mcpServer *server.MCPServer
	wb        *workbench.Workbench
	host      *exthost.Service
	launch    *launchconfig.Provider
	folders   *workbench.Folders
	log       logr.Logger
}

// NewServer creates a new MCP server over a workbench and its extension host
func NewServer(opts Options) *Server {
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	mcpServer := server.NewMCPServer(
		"dap-exthost",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		wb:        opts.Workbench,
		host:      opts.Host,
		launch:    opts.Launch,
		folders:   opts.Folders,
		log:       opts.Log.WithName("mcp"),
	}
	if s.folders == nil {
		s.folders = workbench.NewFolders()
	}

	s.registerTools()
	return s
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Close stops every running session.
func (s *Server) Close(ctx context.Context) {
	for _, info := range s.wb.Sessions() {
		if err := s.wb.StopDebugging(ctx, info.ID); err != nil {
			s.log.V(1).Info("session already gone", "session", info.ID)
		}
	}
}
