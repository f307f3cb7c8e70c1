package exthost

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-exthost/internal/adapters"
	"github.com/ctagard/dap-exthost/internal/contributions"
	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/event"
	"github.com/ctagard/dap-exthost/internal/handles"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/internal/sign"
	"github.com/ctagard/dap-exthost/internal/tracker"
	"github.com/ctagard/dap-exthost/pkg/types"
)

type daExit struct {
	handle handles.Handle
	code   *int
}

// recordingMain is a MainThread that records every call.
type recordingMain struct {
	mu           sync.Mutex
	debugTypes   [][]string
	providers    map[handles.Handle]string
	factories    map[handles.Handle]string
	renames      map[string]string
	cached       []string
	registered   []types.BreakpointDTO
	unregistered []string
	errs         []string
	console      string
	started      []NameOrConfig
	stopped      []string

	messages chan dap.Message
	exits    chan daExit
}

func newRecordingMain() *recordingMain {
	return &recordingMain{
		providers: make(map[handles.Handle]string),
		factories: make(map[handles.Handle]string),
		renames:   make(map[string]string),
		messages:  make(chan dap.Message, 64),
		exits:     make(chan daExit, 8),
	}
}

func (m *recordingMain) SetDebugSessionName(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renames[id] = name
}

func (m *recordingMain) CustomDebugAdapterRequest(_ context.Context, id, command string, _ interface{}) (json.RawMessage, error) {
	return json.RawMessage(`{"session":"` + id + `","command":"` + command + `"}`), nil
}

func (m *recordingMain) GetDebugProtocolBreakpoint(context.Context, string, string) (json.RawMessage, error) {
	return nil, nil
}

func (m *recordingMain) SessionCached(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = append(m.cached, id)
}

func (m *recordingMain) RegisterBreakpoints(_ context.Context, dtos []types.BreakpointDTO) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, dtos...)
	return nil
}

func (m *recordingMain) UnregisterBreakpoints(_ context.Context, src, fn, data []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregistered = append(m.unregistered, src...)
	m.unregistered = append(m.unregistered, fn...)
	m.unregistered = append(m.unregistered, data...)
	return nil
}

func (m *recordingMain) RegisterDebugTypes(debugTypes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugTypes = append(m.debugTypes, debugTypes)
}

func (m *recordingMain) StartDebugging(_ context.Context, _ string, nc NameOrConfig, _ types.StartDebuggingOptions) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, nc)
	return true, nil
}

func (m *recordingMain) StopDebugging(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, id)
	return nil
}

func (m *recordingMain) RegisterDebugConfigurationProvider(debugType string, _ types.ProviderTriggerKind, _, _, _ bool, h handles.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[h] = debugType
}

func (m *recordingMain) UnregisterDebugConfigurationProvider(h handles.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.providers, h)
}

func (m *recordingMain) RegisterDebugAdapterDescriptorFactory(debugType string, h handles.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[h] = debugType
}

func (m *recordingMain) UnregisterDebugAdapterDescriptorFactory(h handles.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.factories, h)
}

func (m *recordingMain) AcceptDAMessage(_ handles.Handle, msg dap.Message) {
	m.messages <- msg
}

func (m *recordingMain) AcceptDAError(_ handles.Handle, name, message, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, name+": "+message)
}

func (m *recordingMain) AcceptDAExit(h handles.Handle, code *int, _ string) {
	m.exits <- daExit{handle: h, code: code}
}

func (m *recordingMain) AppendDebugConsole(value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.console += value
}

func (m *recordingMain) nextMessage(t *testing.T) dap.Message {
	t.Helper()
	select {
	case msg := <-m.messages:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a DAP message")
		return nil
	}
}

func (m *recordingMain) nextExit(t *testing.T) daExit {
	t.Helper()
	select {
	case x := <-m.exits:
		return x
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for adapter exit")
		return daExit{}
	}
}

// scriptedImpl is an in-process adapter the test drives by hand.
type scriptedImpl struct {
	out      event.Emitter[dap.Message]
	received chan dap.Message
	mu       sync.Mutex
	disposed bool
}

func newScriptedImpl() *scriptedImpl {
	return &scriptedImpl{received: make(chan dap.Message, 64)}
}

func (s *scriptedImpl) HandleMessage(msg dap.Message) { s.received <- msg }

func (s *scriptedImpl) OnDidSendMessage(l func(dap.Message)) *event.Subscription {
	return s.out.Subscribe(l)
}

func (s *scriptedImpl) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
}

func (s *scriptedImpl) emit(t *testing.T, msg dap.Message, err error) {
	t.Helper()
	require.NoError(t, err)
	s.out.Fire(msg)
}

func (s *scriptedImpl) next(t *testing.T) dap.Message {
	t.Helper()
	select {
	case msg := <-s.received:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the adapter to receive a message")
		return nil
	}
}

const testExtension = "acme.node"

func testContributions() *contributions.Registry {
	return contributions.NewRegistry(logr.Discard(), contributions.Extension{
		ID: testExtension,
		Debuggers: []contributions.Debugger{
			{Type: "node", Label: "Node", Program: "/opt/node-dap", Args: []string{"--stdio"}},
			{Type: "mock", Label: "Mock"},
		},
	})
}

func newTestService(t *testing.T) (*Service, *recordingMain) {
	t.Helper()
	main := newRecordingMain()
	s := NewService(Options{
		MainThread:     main,
		Contributions:  testContributions(),
		Signer:         sign.NewHMAC("secret"),
		TrackerTimeout: 200 * time.Millisecond,
		Log:            logr.Discard(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close(ctx)
	})
	return s, main
}

func inlineDescriptors(impl *scriptedImpl) DescriptorFactory {
	return DescriptorFactoryFunc(func(context.Context, *session.Session, *adapters.Descriptor) (*adapters.Descriptor, error) {
		return adapters.Inline(impl), nil
	})
}

// inlineFactory registers a descriptor factory for debugType that hands out
// impl.
func inlineFactory(t *testing.T, s *Service, debugType string, impl *scriptedImpl) {
	t.Helper()
	_, err := s.RegisterDebugAdapterDescriptorFactory(testExtension, debugType, inlineDescriptors(impl))
	require.NoError(t, err)
}

// recordingTracker logs its callbacks.
type recordingTracker struct {
	tracker.Base
	mu     sync.Mutex
	events []string
}

func (r *recordingTracker) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingTracker) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingTracker) OnWillStartSession() { r.add("start") }
func (r *recordingTracker) OnWillReceiveMessage(m dap.Message) {
	r.add("recv " + m.Kind() + " " + m.Command())
}
func (r *recordingTracker) OnDidSendMessage(m dap.Message) {
	r.add("sent " + m.Kind() + " " + m.Command() + m.Event())
}
func (r *recordingTracker) OnWillStopSession()  { r.add("stop") }
func (r *recordingTracker) OnError(err error)   { r.add("error " + err.Error()) }
func (r *recordingTracker) OnExit(*int, string) { r.add("exit") }

func trackerFor(t tracker.Tracker) tracker.Factory {
	return tracker.FactoryFunc(func(context.Context, *session.Session) (tracker.Tracker, error) {
		return t, nil
	})
}
