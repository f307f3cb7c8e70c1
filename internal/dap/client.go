package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"

	"github.com/ctagard/dap-exthost/internal/errors"
)

// DefaultRequestTimeout bounds a request whose context has no deadline.
const DefaultRequestTimeout = 30 * time.Second

// StoppedInfo contains information about why the debugger stopped
type StoppedInfo struct {
	Reason      string
	ThreadID    int
	Description string
	AllStopped  bool
}

// Client issues DAP requests over an arbitrary message channel. Requests go
// out through send; the owner feeds every message coming back from the
// adapter into Dispatch.
type Client struct {
	send func(Message) error
	log  logr.Logger

	// Response handling
	mu              sync.Mutex
	seq             int
	pendingRequests map[int]chan Message

	// Events and reverse requests
	handlerMu    sync.RWMutex
	eventHandler func(Message)

	// Capabilities from initialize response
	capabilities dap.Capabilities

	// Initialization synchronization
	initialized     chan struct{}
	initializedOnce sync.Once

	// Stopped event handling
	stoppedChan chan *StoppedInfo
	stoppedMu   sync.Mutex

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a client that writes requests with send.
func NewClient(send func(Message) error, log logr.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		send:            send,
		log:             log.WithName("dap-client"),
		pendingRequests: make(map[int]chan Message),
		initialized:     make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// SetEventHandler sets the handler for events and reverse requests.
func (c *Client) SetEventHandler(handler func(Message)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.eventHandler = handler
}

func (c *Client) handle(msg Message) {
	c.handlerMu.RLock()
	h := c.eventHandler
	c.handlerMu.RUnlock()
	if h != nil {
		h(msg)
	}
}

// Dispatch routes a message received from the adapter.
func (c *Client) Dispatch(msg Message) {
	switch msg.Kind() {
	case KindResponse:
		c.mu.Lock()
		ch, ok := c.pendingRequests[msg.RequestSeq()]
		delete(c.pendingRequests, msg.RequestSeq())
		c.mu.Unlock()
		if ok {
			ch <- msg
			return
		}
		c.log.V(1).Info("response without pending request", "command", msg.Command(), "request_seq", msg.RequestSeq())

	case KindEvent:
		switch msg.Event() {
		case "initialized":
			c.initializedOnce.Do(func() { close(c.initialized) })
		case "stopped":
			info := &StoppedInfo{
				Reason:      msg.Get("body.reason").String(),
				ThreadID:    int(msg.Get("body.threadId").Int()),
				Description: msg.Get("body.description").String(),
				AllStopped:  msg.Get("body.allThreadsStopped").Bool(),
			}
			c.stoppedMu.Lock()
			if c.stoppedChan != nil {
				select {
				case c.stoppedChan <- info:
				default:
					// Channel full, skip
				}
			}
			c.stoppedMu.Unlock()
		}
		c.handle(msg)

	default:
		c.handle(msg)
	}
}

// RequestAsync sends a request without waiting. The returned channel
// receives the response.
func (c *Client) RequestAsync(command string, args interface{}) (int, <-chan Message, error) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	respCh := make(chan Message, 1)
	c.pendingRequests[seq] = respCh
	c.mu.Unlock()

	req, err := NewRequest(seq, command, args)
	if err == nil {
		err = c.send(req)
	}
	if err != nil {
		c.forget(seq)
		return 0, nil, fmt.Errorf("failed to send %s request: %w", command, err)
	}
	return seq, respCh, nil
}

// Respond answers a reverse request from the adapter.
func (c *Client) Respond(req Message, success bool, message string, body interface{}) error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	resp, err := NewResponse(req, seq, success, message, body)
	if err != nil {
		return err
	}
	if err := c.send(resp); err != nil {
		return fmt.Errorf("failed to answer %s request: %w", req.Command(), err)
	}
	return nil
}

func (c *Client) forget(seq int) {
	c.mu.Lock()
	delete(c.pendingRequests, seq)
	c.mu.Unlock()
}

// Wait waits for the response to the request seq and checks its success.
func (c *Client) Wait(ctx context.Context, command string, seq int, respCh <-chan Message) (Message, error) {
	timeout := DefaultRequestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if !resp.Success() {
			return resp, errors.DAPRequestFailed(command, resp.ErrorMessage())
		}
		return resp, nil
	case <-timer.C:
		c.forget(seq)
		return nil, errors.DAPTimeout(command, int(timeout.Seconds()))
	case <-ctx.Done():
		c.forget(seq)
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, fmt.Errorf("%s: client closed", command)
	}
}

// Request sends a request and waits for a successful response.
func (c *Client) Request(ctx context.Context, command string, args interface{}) (Message, error) {
	seq, respCh, err := c.RequestAsync(command, args)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx, command, seq, respCh)
}

func (c *Client) requestBody(ctx context.Context, command string, args, body interface{}) error {
	resp, err := c.Request(ctx, command, args)
	if err != nil {
		return err
	}
	if body == nil || resp.Body() == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), body); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", command, err)
	}
	return nil
}

// Initialize sends the initialize request
func (c *Client) Initialize(ctx context.Context, clientID, clientName, adapterID string) (dap.Capabilities, error) {
	args := dap.InitializeRequestArguments{
		ClientID:                     clientID,
		ClientName:                   clientName,
		AdapterID:                    adapterID,
		Locale:                       "en-US",
		LinesStartAt1:                true,
		ColumnsStartAt1:              true,
		PathFormat:                   "path",
		SupportsVariableType:         true,
		SupportsVariablePaging:       true,
		SupportsRunInTerminalRequest: false,
	}

	var caps dap.Capabilities
	if err := c.requestBody(ctx, "initialize", args, &caps); err != nil {
		return caps, err
	}
	c.mu.Lock()
	c.capabilities = caps
	c.mu.Unlock()
	return caps, nil
}

// Capabilities returns the capabilities from the initialize response
func (c *Client) Capabilities() dap.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// WaitInitialized waits for the initialized event
func (c *Client) WaitInitialized(ctx context.Context) error {
	select {
	case <-c.initialized:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for initialized event: %w", ctx.Err())
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// ConfigurationDone signals that configuration is complete
func (c *Client) ConfigurationDone(ctx context.Context) error {
	_, err := c.Request(ctx, "configurationDone", nil)
	return err
}

// Disconnect asks the adapter to end the session.
func (c *Client) Disconnect(ctx context.Context, terminateDebuggee bool) error {
	_, err := c.Request(ctx, "disconnect", dap.DisconnectArguments{TerminateDebuggee: terminateDebuggee})
	return err
}

// Threads gets all threads
func (c *Client) Threads(ctx context.Context) ([]dap.Thread, error) {
	var body dap.ThreadsResponseBody
	if err := c.requestBody(ctx, "threads", nil, &body); err != nil {
		return nil, err
	}
	return body.Threads, nil
}

// SetBreakpoints sets breakpoints in a source file
func (c *Client) SetBreakpoints(ctx context.Context, source dap.Source, breakpoints []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	var body dap.SetBreakpointsResponseBody
	args := dap.SetBreakpointsArguments{Source: source, Breakpoints: breakpoints}
	if err := c.requestBody(ctx, "setBreakpoints", args, &body); err != nil {
		return nil, err
	}
	return body.Breakpoints, nil
}

// SetFunctionBreakpoints replaces all function breakpoints
func (c *Client) SetFunctionBreakpoints(ctx context.Context, breakpoints []dap.FunctionBreakpoint) ([]dap.Breakpoint, error) {
	var body dap.SetFunctionBreakpointsResponseBody
	args := dap.SetFunctionBreakpointsArguments{Breakpoints: breakpoints}
	if err := c.requestBody(ctx, "setFunctionBreakpoints", args, &body); err != nil {
		return nil, err
	}
	return body.Breakpoints, nil
}

// SetDataBreakpoints replaces all data breakpoints
func (c *Client) SetDataBreakpoints(ctx context.Context, breakpoints []dap.DataBreakpoint) ([]dap.Breakpoint, error) {
	var body dap.SetDataBreakpointsResponseBody
	args := dap.SetDataBreakpointsArguments{Breakpoints: breakpoints}
	if err := c.requestBody(ctx, "setDataBreakpoints", args, &body); err != nil {
		return nil, err
	}
	return body.Breakpoints, nil
}

// WaitForStopped waits for the debugger to stop (hit breakpoint, step complete, etc.)
func (c *Client) WaitForStopped(ctx context.Context) (*StoppedInfo, error) {
	stoppedCh := make(chan *StoppedInfo, 1)

	c.stoppedMu.Lock()
	c.stoppedChan = stoppedCh
	c.stoppedMu.Unlock()

	defer func() {
		c.stoppedMu.Lock()
		c.stoppedChan = nil
		c.stoppedMu.Unlock()
	}()

	select {
	case info := <-stoppedCh:
		return info, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout waiting for stopped event: %w", ctx.Err())
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// Close fails every pending request.
func (c *Client) Close() {
	c.cancel()
	c.mu.Lock()
	c.pendingRequests = make(map[int]chan Message)
	c.mu.Unlock()
}
