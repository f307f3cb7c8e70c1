// Package luatracker implements tracker factories backed by Lua scripts.
//
// A script may define any of the global functions
//
//	onWillStartSession(session)
//	onWillReceiveMessage(session, message)
//	onDidSendMessage(session, message)
//	onWillStopSession(session)
//	onError(session, error)
//	onExit(session, code, signal)
//
// where session is a table {id, type, name} and message is the JSON text of a
// DAP message. A global string debugType selects the debug type the script
// observes (default "*"). Each session runs the script in its own state with
// only the base, table, string and math libraries available. A callback that
// runs longer than the call timeout is aborted.
package luatracker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	lua "github.com/yuin/gopher-lua"

	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/internal/tracker"
)

// DefaultCallTimeout bounds a single callback.
const DefaultCallTimeout = 250 * time.Millisecond

// Factory creates one Lua tracker per session from a script.
type Factory struct {
	name        string
	source      string
	debugType   string
	callTimeout time.Duration
	log         logr.Logger
}

// Load reads a script from disk.
func Load(path string, log logr.Logger) (*Factory, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracker script: %w", err)
	}
	return New(path, string(src), log)
}

// New compiles source once to validate it and to read its debugType.
func New(name, source string, log logr.Logger) (*Factory, error) {
	L := newState()
	defer L.Close()
	if err := L.DoString(source); err != nil {
		return nil, fmt.Errorf("failed to load tracker script %s: %w", name, err)
	}
	debugType := tracker.Wildcard
	if v, ok := L.GetGlobal("debugType").(lua.LString); ok && v != "" {
		debugType = string(v)
	}
	return &Factory{
		name:        name,
		source:      source,
		debugType:   debugType,
		callTimeout: DefaultCallTimeout,
		log:         log.WithName("lua-tracker").WithValues("script", name),
	}, nil
}

// SetCallTimeout changes the limit for each callback of trackers created
// afterwards. Non-positive values restore the default.
func (f *Factory) SetCallTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultCallTimeout
	}
	f.callTimeout = d
}

// DebugType returns the debug type the script registers for.
func (f *Factory) DebugType() string { return f.debugType }

// CreateTracker runs the script in a fresh state bound to s.
func (f *Factory) CreateTracker(_ context.Context, s *session.Session) (tracker.Tracker, error) {
	L := newState()
	if err := L.DoString(f.source); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to run tracker script %s: %w", f.name, err)
	}

	sess := L.NewTable()
	sess.RawSetString("id", lua.LString(s.ID()))
	sess.RawSetString("type", lua.LString(s.Type()))
	sess.RawSetString("name", lua.LString(s.Name()))

	return &luaTracker{L: L, session: sess, timeout: f.callTimeout, log: f.log.WithValues("session", s.ID())}, nil
}

func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	return L
}

// luaTracker is not goroutine-safe on the Lua side; mu serializes calls.
type luaTracker struct {
	mu      sync.Mutex
	L       *lua.LState
	session *lua.LTable
	timeout time.Duration
	log     logr.Logger
	closed  bool
}

func (t *luaTracker) call(name string, args ...lua.LValue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	fn, ok := t.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	t.L.SetContext(ctx)
	defer t.L.RemoveContext()

	all := append([]lua.LValue{t.session}, args...)
	if err := t.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, all...); err != nil {
		t.log.Error(err, "tracker script failed", "callback", name)
	}
}

// Close releases the Lua state. Later callbacks are dropped.
func (t *luaTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		t.L.Close()
	}
	return nil
}

func (t *luaTracker) OnWillStartSession() { t.call("onWillStartSession") }

func (t *luaTracker) OnWillReceiveMessage(msg dap.Message) {
	t.call("onWillReceiveMessage", lua.LString(msg.String()))
}

func (t *luaTracker) OnDidSendMessage(msg dap.Message) {
	t.call("onDidSendMessage", lua.LString(msg.String()))
}

func (t *luaTracker) OnWillStopSession() { t.call("onWillStopSession") }

func (t *luaTracker) OnError(err error) {
	t.call("onError", lua.LString(err.Error()))
}

func (t *luaTracker) OnExit(code *int, signal string) {
	var c lua.LValue = lua.LNil
	if code != nil {
		c = lua.LNumber(*code)
	}
	t.call("onExit", c, lua.LString(signal))
	_ = t.Close()
}
