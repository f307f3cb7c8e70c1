package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/pkg/types"
)

// FolderResolver maps a folder URI to a workspace folder. A nil folder with a
// nil error means the URI is not part of the workspace.
type FolderResolver interface {
	ResolveWorkspaceFolder(ctx context.Context, uri string) (*WorkspaceFolder, error)
}

// Registry caches the sessions of one extension host.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    map[string]uint64
	seq      uint64

	remote  Remote
	folders FolderResolver
	log     logr.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(remote Remote, folders FolderResolver, log logr.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		order:    make(map[string]uint64),
		remote:   remote,
		folders:  folders,
		log:      log.WithName("sessions"),
	}
}

// GetOrCreate returns the session with dto.ID, creating and caching it if it
// is not known yet. The parent is looked up by id among cached sessions and
// the folder is resolved by URI. A cancelled ctx leaves the registry
// unchanged.
func (r *Registry) GetOrCreate(ctx context.Context, dto types.SessionDTO) (*Session, error) {
	if dto.ID == "" {
		return nil, fmt.Errorf("cannot find session: empty id")
	}
	if s, ok := r.Get(dto.ID); ok {
		return s, nil
	}

	folder, err := r.resolveFolder(ctx, dto.FolderURI)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if s, ok := r.sessions[dto.ID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	var parent *Session
	if dto.ParentID != "" {
		parent = r.sessions[dto.ParentID]
	}
	s := &Session{
		id:            dto.ID,
		debugType:     dto.Type,
		name:          dto.Name,
		folder:        folder,
		configuration: dto.Configuration,
		parent:        parent,
		remote:        r.remote,
	}
	if s.configuration == nil {
		s.configuration = types.DebugConfiguration{}
	}
	r.seq++
	r.sessions[s.id] = s
	r.order[s.id] = r.seq
	r.mu.Unlock()

	r.log.V(1).Info("session cached", "id", s.id, "type", s.debugType, "parent", dto.ParentID)
	if r.remote != nil {
		r.remote.SessionCached(s.id)
	}
	return s, nil
}

func (r *Registry) resolveFolder(ctx context.Context, uri string) (*WorkspaceFolder, error) {
	if uri == "" || r.folders == nil {
		return nil, nil
	}
	folder, err := r.folders.ResolveWorkspaceFolder(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace folder %s: %w", uri, err)
	}
	return folder, nil
}

// ResolveFolder exposes folder resolution to callers that receive a bare URI.
func (r *Registry) ResolveFolder(ctx context.Context, uri string) (*WorkspaceFolder, error) {
	return r.resolveFolder(ctx, uri)
}

// Get returns a cached session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops a session from the cache. It reports false if the session was
// not cached.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		delete(r.order, id)
	}
	return s, ok
}

// AcceptNameChanged applies a rename announced by the main thread.
func (r *Registry) AcceptNameChanged(id, name string) bool {
	s, ok := r.Get(id)
	if ok {
		s.acceptName(name)
	}
	return ok
}

// All returns the cached sessions in creation order.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return r.order[out[i].id] < r.order[out[j].id] })
	return out
}

// Len returns the number of cached sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
