package workbench

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/ctagard/dap-exthost/internal/session"
)

// Folders is the ordered set of workspace roots.
type Folders struct {
	mu      sync.RWMutex
	folders []session.WorkspaceFolder
}

var _ session.FolderResolver = (*Folders)(nil)

// NewFolders creates workspace folders from native paths, in order.
func NewFolders(paths ...string) *Folders {
	f := &Folders{}
	for _, p := range paths {
		f.Add(p)
	}
	return f
}

// Add makes path a workspace root unless it already is one and returns its
// URI.
func (f *Folders) Add(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	uri := session.PathToURI(path)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, folder := range f.folders {
		if folder.URI == uri {
			return uri
		}
	}
	f.folders = append(f.folders, session.WorkspaceFolder{
		URI:   uri,
		Name:  filepath.Base(path),
		Index: len(f.folders),
	})
	return uri
}

// ResolveWorkspaceFolder returns the folder with the given URI, or nil when
// the URI is not a workspace root.
func (f *Folders) ResolveWorkspaceFolder(_ context.Context, uri string) (*session.WorkspaceFolder, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := range f.folders {
		if f.folders[i].URI == uri {
			folder := f.folders[i]
			return &folder, nil
		}
	}
	return nil, nil
}

// DefaultURI returns the URI of the first folder, or "".
func (f *Folders) DefaultURI() string {
	if f == nil {
		return ""
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.folders) == 0 {
		return ""
	}
	return f.folders[0].URI
}

// All returns the workspace folders in order.
func (f *Folders) All() []session.WorkspaceFolder {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]session.WorkspaceFolder(nil), f.folders...)
}
