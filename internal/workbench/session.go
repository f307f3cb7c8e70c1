package workbench

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	godap "github.com/google/go-dap"

	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/handles"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// State is the lifecycle state of a workbench session.
type State string

const (
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateStopped      State = "stopped"
	StateTerminated   State = "terminated"
)

// maxOutputLines bounds the output kept per session.
const maxOutputLines = 1000

// OutputLine is one output event of the adapter.
type OutputLine struct {
	Category string `json:"category,omitempty"`
	Output   string `json:"output"`
}

// Info is a snapshot of a session for listing.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Request   string    `json:"request"`
	State     State     `json:"state"`
	ParentID  string    `json:"parentId,omitempty"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"startedAt"`
	ExitCode  *int      `json:"exitCode,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// Session is a debug session owned by the workbench.
type Session struct {
	ID        string
	Type      string
	FolderURI string
	ParentID  string
	Handle    handles.Handle
	Config    types.DebugConfiguration
	Options   types.StartDebuggingOptions
	StartedAt time.Time

	client *dap.Client

	mu        sync.Mutex
	name      string
	state     State
	output    []OutputLine
	exitCode  *int
	lastError string

	// adapter view of breakpoints, by breakpoint id
	adapterBps map[string]json.RawMessage
	adapterIDs map[int]string

	// bpMu serializes breakpoint pushes; configured is set once the
	// adapter accepts breakpoints
	bpMu          sync.Mutex
	configured    bool
	sentSources   map[string]bool
	sentFunctions bool
	sentData      bool

	finishOnce sync.Once
	done       chan struct{}
}

func newSession(id string, cfg types.DebugConfiguration, folderURI string, opts types.StartDebuggingOptions) *Session {
	return &Session{
		ID:          id,
		Type:        cfg.Type(),
		FolderURI:   folderURI,
		ParentID:    opts.ParentSessionID,
		Config:      cfg,
		Options:     opts,
		StartedAt:   time.Now(),
		name:        cfg.Name(),
		state:       StateInitializing,
		adapterBps:  make(map[string]json.RawMessage),
		adapterIDs:  make(map[int]string),
		sentSources: make(map[string]bool),
		done:        make(chan struct{}),
	}
}

// Name returns the display name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState moves to state unless the session already terminated.
func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateTerminated {
		s.state = state
	}
}

// Done is closed once the session has terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Output returns the most recent output events, oldest first.
func (s *Session) Output() []OutputLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OutputLine(nil), s.output...)
}

func (s *Session) appendOutput(line OutputLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = append(s.output, line)
	if n := len(s.output); n > maxOutputLines {
		s.output = append([]OutputLine(nil), s.output[n-maxOutputLines:]...)
	}
}

func (s *Session) setExit(code *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code != nil {
		c := *code
		s.exitCode = &c
	}
}

func (s *Session) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = msg
}

func (s *Session) adapterBreakpoint(id string) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapterBps[id]
}

// recordBreakpoints stores the adapter's answer for the breakpoints ids,
// matched by position.
func (s *Session) recordBreakpoints(ids []string, got []godap.Breakpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, bp := range got {
		if i >= len(ids) {
			break
		}
		raw, err := json.Marshal(bp)
		if err != nil {
			continue
		}
		s.adapterBps[ids[i]] = raw
		if bp.Id != 0 {
			s.adapterIDs[bp.Id] = ids[i]
		}
	}
}

// updateBreakpoint applies a breakpoint event of the adapter.
func (s *Session) updateBreakpoint(adapterID int, raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.adapterIDs[adapterID]; ok {
		s.adapterBps[id] = raw
	}
}

func (s *Session) forgetBreakpoints(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.adapterBps, id)
	}
	for aid, id := range s.adapterIDs {
		if _, ok := s.adapterBps[id]; !ok {
			delete(s.adapterIDs, aid)
		}
	}
}

// DTO describes the session for the extension host.
func (s *Session) DTO() types.SessionDTO {
	return types.SessionDTO{
		ID:            s.ID,
		Type:          s.Type,
		Name:          s.Name(),
		FolderURI:     s.FolderURI,
		Configuration: s.Config,
		ParentID:      s.ParentID,
	}
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:        s.ID,
		Name:      s.name,
		Type:      s.Type,
		Request:   s.Config.Request(),
		State:     s.state,
		ParentID:  s.ParentID,
		StartedAt: s.StartedAt,
		LastError: s.lastError,
	}
	if s.exitCode != nil {
		c := *s.exitCode
		info.ExitCode = &c
	}
	return info
}

func sortInfos(infos []Info) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].StartedAt.Before(infos[j].StartedAt)
		}
		return infos[i].ID < infos[j].ID
	})
}
