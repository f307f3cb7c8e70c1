// Package session holds the debug sessions known to the extension host.
//
// Sessions are announced by the main thread and cached here by id. A session
// is never resurrected once it has been removed; the main thread assigns a new
// id to every session it starts.
package session

import (
	"context"
	"encoding/json"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/ctagard/dap-exthost/internal/breakpoints"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// Remote is the part of the main thread a session talks to.
type Remote interface {
	SetDebugSessionName(sessionID, name string)
	CustomDebugAdapterRequest(ctx context.Context, sessionID, command string, args interface{}) (json.RawMessage, error)
	GetDebugProtocolBreakpoint(ctx context.Context, sessionID, breakpointID string) (json.RawMessage, error)
	SessionCached(sessionID string)
}

// WorkspaceFolder is a root folder of the workspace.
type WorkspaceFolder struct {
	URI   string `json:"uri"`
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// Path returns the file system path of a file:// folder URI, or the URI
// itself if it is not a file URI.
func (f *WorkspaceFolder) Path() string {
	if f == nil {
		return ""
	}
	return URIToPath(f.URI)
}

// URIToPath converts a file:// URI to a native path. Other strings are
// returned unchanged.
func URIToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return filepath.FromSlash(u.Path)
}

// PathToURI converts an absolute native path to a file:// URI.
func PathToURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// Session is one debugging interaction, possibly nested under a parent.
type Session struct {
	id            string
	debugType     string
	folder        *WorkspaceFolder
	configuration types.DebugConfiguration
	parent        *Session
	remote        Remote

	mu   sync.RWMutex
	name string
}

// ID returns the session id assigned by the main thread.
func (s *Session) ID() string { return s.id }

// Type returns the debug type.
func (s *Session) Type() string { return s.debugType }

// Name returns the display name.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// SetName renames the session and tells the main thread.
func (s *Session) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	if s.remote != nil {
		s.remote.SetDebugSessionName(s.id, name)
	}
}

func (s *Session) acceptName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// WorkspaceFolder returns the owning folder, or nil.
func (s *Session) WorkspaceFolder() *WorkspaceFolder { return s.folder }

// Configuration returns the debug configuration the session was started with.
func (s *Session) Configuration() types.DebugConfiguration { return s.configuration }

// Parent returns the parent session, or nil.
func (s *Session) Parent() *Session { return s.parent }

// CustomRequest sends an arbitrary DAP request to the session's adapter.
func (s *Session) CustomRequest(ctx context.Context, command string, args interface{}) (json.RawMessage, error) {
	return s.remote.CustomDebugAdapterRequest(ctx, s.id, command, args)
}

// GetDebugProtocolBreakpoint returns the adapter's view of bp in this session,
// or nil if the adapter does not know it.
func (s *Session) GetDebugProtocolBreakpoint(ctx context.Context, bp breakpoints.Breakpoint) (json.RawMessage, error) {
	return s.remote.GetDebugProtocolBreakpoint(ctx, s.id, bp.ID())
}

// DTO returns the wire form of the session.
func (s *Session) DTO() types.SessionDTO {
	dto := types.SessionDTO{
		ID:            s.id,
		Type:          s.debugType,
		Name:          s.Name(),
		Configuration: s.configuration,
	}
	if s.folder != nil {
		dto.FolderURI = s.folder.URI
	}
	if s.parent != nil {
		dto.ParentID = s.parent.id
	}
	return dto
}
