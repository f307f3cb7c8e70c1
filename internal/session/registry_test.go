package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-exthost/pkg/types"
)

type fakeRemote struct {
	mu     sync.Mutex
	cached []string
	names  map[string]string
}

func (f *fakeRemote) SetDebugSessionName(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.names == nil {
		f.names = map[string]string{}
	}
	f.names[id] = name
}

func (f *fakeRemote) CustomDebugAdapterRequest(_ context.Context, id, command string, args interface{}) (json.RawMessage, error) {
	return json.RawMessage(`{"command":"` + command + `","session":"` + id + `"}`), nil
}

func (f *fakeRemote) GetDebugProtocolBreakpoint(context.Context, string, string) (json.RawMessage, error) {
	return nil, nil
}

func (f *fakeRemote) SessionCached(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached = append(f.cached, id)
}

type folderMap map[string]*WorkspaceFolder

func (m folderMap) ResolveWorkspaceFolder(_ context.Context, uri string) (*WorkspaceFolder, error) {
	return m[uri], nil
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	r := NewRegistry(remote, nil, logr.Discard())
	dto := types.SessionDTO{ID: "S1", Type: "node", Name: "Launch", Configuration: types.DebugConfiguration{"type": "node"}}

	s1, err := r.GetOrCreate(context.Background(), dto)
	require.NoError(t, err)
	dto.Name = "ignored"
	s2, err := r.GetOrCreate(context.Background(), dto)
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, "Launch", s2.Name())
	assert.Equal(t, []string{"S1"}, remote.cached)
}

func TestGetOrCreateResolvesParentAndFolder(t *testing.T) {
	t.Parallel()

	folder := &WorkspaceFolder{URI: "file:///work", Name: "work"}
	r := NewRegistry(&fakeRemote{}, folderMap{"file:///work": folder}, logr.Discard())

	parent, err := r.GetOrCreate(context.Background(), types.SessionDTO{ID: "P", Type: "pwa-node"})
	require.NoError(t, err)
	child, err := r.GetOrCreate(context.Background(), types.SessionDTO{ID: "C", Type: "pwa-node", ParentID: "P", FolderURI: "file:///work"})
	require.NoError(t, err)

	assert.Same(t, parent, child.Parent())
	assert.Same(t, folder, child.WorkspaceFolder())
	assert.Equal(t, "P", child.DTO().ParentID)
	assert.Equal(t, "file:///work", child.DTO().FolderURI)

	orphan, err := r.GetOrCreate(context.Background(), types.SessionDTO{ID: "O", ParentID: "missing"})
	require.NoError(t, err)
	assert.Nil(t, orphan.Parent())
}

func TestGetOrCreateCancelled(t *testing.T) {
	t.Parallel()

	r := NewRegistry(&fakeRemote{}, nil, logr.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.GetOrCreate(ctx, types.SessionDTO{ID: "S1"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.Len())
}

func TestRemoveAndNames(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	r := NewRegistry(remote, nil, logr.Discard())
	s, err := r.GetOrCreate(context.Background(), types.SessionDTO{ID: "S1", Name: "one"})
	require.NoError(t, err)

	s.SetName("renamed")
	assert.Equal(t, "renamed", remote.names["S1"])

	assert.True(t, r.AcceptNameChanged("S1", "from main"))
	assert.Equal(t, "from main", s.Name())
	assert.Equal(t, "renamed", remote.names["S1"], "remote renames are not echoed")

	_, ok := r.Remove("S1")
	assert.True(t, ok)
	_, ok = r.Remove("S1")
	assert.False(t, ok)
	assert.False(t, r.AcceptNameChanged("S1", "x"))
}

func TestCustomRequestIsProxied(t *testing.T) {
	t.Parallel()

	r := NewRegistry(&fakeRemote{}, nil, logr.Discard())
	s, err := r.GetOrCreate(context.Background(), types.SessionDTO{ID: "S9"})
	require.NoError(t, err)

	body, err := s.CustomRequest(context.Background(), "evaluate", map[string]any{"expression": "1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"evaluate","session":"S9"}`, string(body))
}

func TestAllInCreationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry(&fakeRemote{}, nil, logr.Discard())
	for _, id := range []string{"c", "a", "b"} {
		_, err := r.GetOrCreate(context.Background(), types.SessionDTO{ID: id})
		require.NoError(t, err)
	}
	var ids []string
	for _, s := range r.All() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestURIConversion(t *testing.T) {
	t.Parallel()

	uri := PathToURI("/home/user/project/main.go")
	assert.Equal(t, "file:///home/user/project/main.go", uri)
	assert.Equal(t, "/home/user/project/main.go", URIToPath(uri))
	assert.Equal(t, "relative/path", URIToPath("relative/path"))
}
