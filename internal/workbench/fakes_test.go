package workbench

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	godap "github.com/google/go-dap"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-exthost/internal/adapters"
	"github.com/ctagard/dap-exthost/internal/contributions"
	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/event"
	"github.com/ctagard/dap-exthost/internal/exthost"
	"github.com/ctagard/dap-exthost/internal/session"
)

const mockExtension = "acme.mock"

// mockAdapter is a small in-process debug adapter. It answers the requests
// a launch needs and lets tests emit events and reverse requests.
type mockAdapter struct {
	out event.Emitter[dap.Message]

	mu          sync.Mutex
	seq         int
	nextBP      int
	stopOnEntry bool
	received    []dap.Message
	recv        chan dap.Message
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{recv: make(chan dap.Message, 256)}
}

func (m *mockAdapter) OnDidSendMessage(l func(dap.Message)) *event.Subscription {
	return m.out.Subscribe(l)
}

func (m *mockAdapter) Dispose() {}

func (m *mockAdapter) nextSeq() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq
}

func (m *mockAdapter) respond(req dap.Message, success bool, message string, body interface{}) {
	resp, err := dap.NewResponse(req, m.nextSeq(), success, message, body)
	if err != nil {
		panic(err)
	}
	m.out.Fire(resp)
}

func (m *mockAdapter) event(name string, body interface{}) {
	ev, err := dap.NewEvent(m.nextSeq(), name, body)
	if err != nil {
		panic(err)
	}
	m.out.Fire(ev)
}

func (m *mockAdapter) request(command string, args interface{}) {
	req, err := dap.NewRequest(m.nextSeq(), command, args)
	if err != nil {
		panic(err)
	}
	m.out.Fire(req)
}

func (m *mockAdapter) breakpoints(n int) []godap.Breakpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	bps := make([]godap.Breakpoint, n)
	for i := range bps {
		m.nextBP++
		bps[i] = godap.Breakpoint{Id: m.nextBP, Verified: true}
	}
	return bps
}

func (m *mockAdapter) HandleMessage(msg dap.Message) {
	m.mu.Lock()
	m.received = append(m.received, msg)
	m.mu.Unlock()
	m.recv <- msg

	if msg.Kind() != dap.KindRequest {
		return
	}
	switch msg.Command() {
	case "initialize":
		m.respond(msg, true, "", godap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsFunctionBreakpoints:      true,
		})
		m.event("initialized", nil)
	case "launch", "attach":
		if msg.Get("arguments.fail").Bool() {
			m.respond(msg, false, "cannot launch program", nil)
			return
		}
		m.mu.Lock()
		m.stopOnEntry = msg.Get("arguments.stopOnEntry").Bool()
		m.mu.Unlock()
		m.respond(msg, true, "", nil)
	case "setBreakpoints":
		bps := m.breakpoints(len(msg.Get("arguments.breakpoints").Array()))
		for i, l := range msg.Get("arguments.breakpoints").Array() {
			bps[i].Line = int(l.Get("line").Int())
		}
		m.respond(msg, true, "", godap.SetBreakpointsResponseBody{Breakpoints: bps})
	case "setFunctionBreakpoints":
		bps := m.breakpoints(len(msg.Get("arguments.breakpoints").Array()))
		m.respond(msg, true, "", godap.SetFunctionBreakpointsResponseBody{Breakpoints: bps})
	case "configurationDone":
		m.respond(msg, true, "", nil)
		m.mu.Lock()
		stop := m.stopOnEntry
		m.mu.Unlock()
		if stop {
			m.event("stopped", map[string]interface{}{"reason": "entry", "threadId": 1, "allThreadsStopped": true})
		}
	case "stackTrace":
		m.respond(msg, true, "", map[string]interface{}{
			"stackFrames": []map[string]interface{}{{"id": 1000, "name": "main", "line": 1, "column": 1}},
			"totalFrames": 1,
		})
	case "evaluate":
		m.respond(msg, true, "", map[string]interface{}{"result": "42", "variablesReference": 0})
	case "disconnect":
		m.respond(msg, true, "", nil)
		m.event("terminated", nil)
	default:
		m.respond(msg, false, "unsupported request", nil)
	}
}

// commands returns the commands of the requests received so far.
func (m *mockAdapter) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, msg := range m.received {
		if msg.Kind() == dap.KindRequest {
			out = append(out, msg.Command())
		}
	}
	return out
}

// lastRequest returns the most recent request for command.
func (m *mockAdapter) lastRequest(command string) dap.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.received) - 1; i >= 0; i-- {
		if m.received[i].IsRequest(command) {
			return m.received[i]
		}
	}
	return nil
}

// waitFor reads received messages until match accepts one.
func (m *mockAdapter) waitFor(t *testing.T, match func(dap.Message) bool) dap.Message {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-m.recv:
			if match(msg) {
				return msg
			}
		case <-timeout:
			t.Fatal("timed out waiting for the adapter to receive a message")
			return nil
		}
	}
}

func isRequest(command string) func(dap.Message) bool {
	return func(m dap.Message) bool { return m.IsRequest(command) }
}

type harness struct {
	wb    *Workbench
	host  *exthost.Service
	mocks chan *mockAdapter
}

func (h *harness) nextMock(t *testing.T) *mockAdapter {
	t.Helper()
	select {
	case m := <-h.mocks:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no debug adapter was created")
		return nil
	}
}

// newHarness wires a workbench to a real extension host whose "mock" debug
// type is served by a fresh mockAdapter per session.
func newHarness(t *testing.T, opts Options, hostOpts exthost.Options) *harness {
	t.Helper()
	opts.Log = logr.Discard()
	wb := New(opts)

	hostOpts.MainThread = wb
	hostOpts.Log = logr.Discard()
	hostOpts.Contributions = contributions.NewRegistry(logr.Discard(), contributions.Extension{
		ID:        mockExtension,
		Debuggers: []contributions.Debugger{{Type: "mock", Label: "Mock"}},
	})
	host := exthost.NewService(hostOpts)
	wb.Attach(host)

	h := &harness{wb: wb, host: host, mocks: make(chan *mockAdapter, 8)}
	_, err := host.RegisterDebugAdapterDescriptorFactory(mockExtension, "mock",
		exthost.DescriptorFactoryFunc(func(context.Context, *session.Session, *adapters.Descriptor) (*adapters.Descriptor, error) {
			m := newMockAdapter()
			h.mocks <- m
			return adapters.Inline(m), nil
		}))
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		host.Close(ctx)
	})
	return h
}

func mockConfig(extra map[string]interface{}) exthost.NameOrConfig {
	cfg := map[string]interface{}{"type": "mock", "name": "Mock", "request": "launch", "program": "/tmp/app"}
	for k, v := range extra {
		cfg[k] = v
	}
	return exthost.NameOrConfig{Config: cfg}
}
