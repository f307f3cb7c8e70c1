// Package adapters provides debug adapter connections and the built-in
// debuggers.
//
// An Adapter is one live connection to a debug adapter. Connections are
// created from a Descriptor, which is one of:
//   - executable: a process spoken to over stdin/stdout
//   - server: a TCP endpoint
//   - pipeServer: a unix domain socket
//   - implementation: an in-process Implementation
//
// The built-in debuggers (Delve, debugpy, vscode-js-debug, lldb-dap, gdb) are
// exposed as a contribution plus descriptor factories for the ones that have
// to be spawned in server mode.
package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/internal/event"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// Adapter is a connection to one debug adapter.
type Adapter interface {
	// Start establishes the connection. Messages are delivered to OnMessage
	// listeners one at a time, in arrival order.
	Start(ctx context.Context) error
	// Send delivers a message to the adapter.
	Send(msg dap.Message) error
	// Stop starts tearing the connection down. It does not wait for the exit
	// event, so it is safe to call from a message listener.
	Stop(ctx context.Context) error
	// Done is closed after the exit event fired.
	Done() <-chan struct{}

	OnMessage(l func(dap.Message)) *event.Subscription
	OnError(l func(error)) *event.Subscription
	// OnExit fires exactly once per connection.
	OnExit(l func(Exit)) *event.Subscription
}

// Exit describes how an adapter went away. Code is nil when unknown.
type Exit struct {
	Code   *int
	Signal string
}

// Implementation is an adapter living in this process.
type Implementation interface {
	HandleMessage(msg dap.Message)
	OnDidSendMessage(l func(dap.Message)) *event.Subscription
	Dispose()
}

// Descriptor tells how to reach an adapter. Implementation is only set for
// the implementation variant and is never serialized.
type Descriptor struct {
	Type    string
	Command string
	Args    []string
	Options *types.ExecutableOptions
	Port    int
	Host    string
	Path    string

	Implementation Implementation
}

func Executable(command string, args []string, opts *types.ExecutableOptions) *Descriptor {
	return &Descriptor{Type: types.DescriptorExecutable, Command: command, Args: args, Options: opts}
}

func Server(port int, host string) *Descriptor {
	return &Descriptor{Type: types.DescriptorServer, Port: port, Host: host}
}

func Pipe(path string) *Descriptor {
	return &Descriptor{Type: types.DescriptorPipeServer, Path: path}
}

func Inline(impl Implementation) *Descriptor {
	return &Descriptor{Type: types.DescriptorImplementation, Implementation: impl}
}

// FromDTO converts a wire descriptor. A nil dto yields nil.
func FromDTO(dto *types.AdapterDescriptorDTO) *Descriptor {
	if dto == nil {
		return nil
	}
	return &Descriptor{
		Type:    dto.Type,
		Command: dto.Command,
		Args:    append([]string(nil), dto.Args...),
		Options: dto.Options,
		Port:    dto.Port,
		Host:    dto.Host,
		Path:    dto.Path,
	}
}

// DTO returns the wire shape. The implementation variant only carries its tag.
func (d *Descriptor) DTO() types.AdapterDescriptorDTO {
	return types.AdapterDescriptorDTO{
		Type:    d.Type,
		Command: d.Command,
		Args:    d.Args,
		Options: d.Options,
		Port:    d.Port,
		Host:    d.Host,
		Path:    d.Path,
	}
}

// Address returns the dial address of a server or pipe descriptor.
func (d *Descriptor) Address() string {
	switch d.Type {
	case types.DescriptorServer:
		host := d.Host
		if host == "" {
			host = "127.0.0.1"
		}
		return fmt.Sprintf("%s:%d", host, d.Port)
	case types.DescriptorPipeServer:
		return d.Path
	}
	return ""
}

// Create builds an unstarted connection for d. When streams is false only
// the implementation variant is accepted.
func Create(d *Descriptor, streams bool, log logr.Logger) (Adapter, error) {
	if d == nil {
		return nil, fmt.Errorf("no adapter descriptor")
	}
	switch d.Type {
	case types.DescriptorImplementation:
		if d.Implementation == nil {
			return nil, fmt.Errorf("implementation descriptor without implementation")
		}
		return NewInline(d.Implementation, log), nil
	case types.DescriptorExecutable, types.DescriptorServer, types.DescriptorPipeServer:
		if !streams {
			return nil, fmt.Errorf("%s adapters are not supported here", d.Type)
		}
		return NewStream(d, log), nil
	}
	return nil, fmt.Errorf("unknown adapter descriptor type %q", d.Type)
}

// emitters is the event plumbing shared by the connection variants.
type emitters struct {
	message event.Emitter[dap.Message]
	errs    event.Emitter[error]
	exit    event.Emitter[Exit]

	exitOnce sync.Once
	exited   chan struct{}
}

func (e *emitters) init() {
	e.exited = make(chan struct{})
}

func (e *emitters) OnMessage(l func(dap.Message)) *event.Subscription {
	return e.message.Subscribe(l)
}

func (e *emitters) OnError(l func(error)) *event.Subscription {
	return e.errs.Subscribe(l)
}

func (e *emitters) OnExit(l func(Exit)) *event.Subscription {
	return e.exit.Subscribe(l)
}

func (e *emitters) fireExit(x Exit) {
	e.exitOnce.Do(func() {
		e.exit.Fire(x)
		close(e.exited)
	})
}

func (e *emitters) Done() <-chan struct{} {
	return e.exited
}
