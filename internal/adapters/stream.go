package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/dap"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// StreamAdapter speaks framed DAP over a byte stream: the stdio of a spawned
// executable, a TCP connection or a unix socket.
type StreamAdapter struct {
	emitters
	desc *Descriptor
	log  logr.Logger

	// newBackOff controls connect retries for server and pipe descriptors.
	newBackOff func() backoff.BackOff

	mu        sync.Mutex
	transport *dap.Transport
	cmd       *exec.Cmd
	stopping  bool
	procDone  chan struct{}
	procExit  Exit
}

// NewStream creates an unstarted connection for an executable, server or
// pipe descriptor.
func NewStream(d *Descriptor, log logr.Logger) *StreamAdapter {
	a := &StreamAdapter{
		desc:       d,
		log:        log.WithName("stream").WithValues("type", d.Type),
		newBackOff: defaultConnectBackOff,
	}
	a.init()
	return a
}

func defaultConnectBackOff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(500*time.Millisecond),
		backoff.WithMaxElapsedTime(5*time.Second),
	)
}

func (a *StreamAdapter) Start(ctx context.Context) error {
	var (
		t   *dap.Transport
		err error
	)
	switch a.desc.Type {
	case types.DescriptorExecutable:
		t, err = a.spawn()
	case types.DescriptorServer:
		t, err = a.connect(ctx, "tcp", a.desc.Address())
	case types.DescriptorPipeServer:
		t, err = a.connect(ctx, "unix", a.desc.Address())
	default:
		err = fmt.Errorf("unsupported descriptor type %q", a.desc.Type)
	}
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.transport = t
	a.mu.Unlock()

	go a.readLoop(t)
	return nil
}

func (a *StreamAdapter) spawn() (*dap.Transport, error) {
	//nolint:gosec // G204: debug adapters are spawned by design
	cmd := exec.Command(a.desc.Command, a.desc.Args...)
	cmd.Env = os.Environ()
	if opts := a.desc.Options; opts != nil {
		for k, v := range opts.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		if opts.Cwd != "" {
			cmd.Dir = opts.Cwd
		}
	}
	cmd.Stderr = os.Stderr
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("failed to start %s: %w", a.desc.Command, err)
	}
	a.log.V(1).Info("spawned debug adapter", "command", a.desc.Command, "pid", cmd.Process.Pid)

	done := make(chan struct{})
	a.mu.Lock()
	a.cmd = cmd
	a.procDone = done
	a.mu.Unlock()

	go func() {
		werr := cmd.Wait()
		x := Exit{}
		if st := cmd.ProcessState; st != nil {
			if code := st.ExitCode(); code >= 0 {
				x.Code = &code
			} else {
				x.Signal = st.String()
			}
		} else if werr != nil {
			x.Signal = werr.Error()
		}
		a.mu.Lock()
		a.procExit = x
		a.mu.Unlock()
		close(done)
	}()

	return dap.NewStdioTransport(stdin, stdout), nil
}

func (a *StreamAdapter) connect(ctx context.Context, network, address string) (*dap.Transport, error) {
	var t *dap.Transport
	op := func() error {
		var err error
		t, err = dap.Dial(ctx, network, address)
		return err
	}
	notify := func(err error, next time.Duration) {
		a.log.V(1).Info("debug adapter not reachable yet", "address", address, "retryIn", next.String())
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(a.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return t, nil
}

func (a *StreamAdapter) readLoop(t *dap.Transport) {
	for {
		msg, err := t.Receive()
		if err != nil {
			a.mu.Lock()
			stopping := a.stopping
			a.mu.Unlock()
			if !stopping && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, os.ErrClosed) {
				a.errs.Fire(err)
			}
			a.finish()
			return
		}
		a.message.Fire(msg)
	}
}

// finish fires the exit event once the stream and any process are gone.
func (a *StreamAdapter) finish() {
	a.mu.Lock()
	done := a.procDone
	a.mu.Unlock()

	if done == nil {
		a.fireExit(Exit{})
		return
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		// stdout closed but the process lingers
		a.killProcess()
		<-done
	}
	a.mu.Lock()
	x := a.procExit
	a.mu.Unlock()
	a.fireExit(x)
}

func (a *StreamAdapter) Send(msg dap.Message) error {
	a.mu.Lock()
	t, stopping := a.transport, a.stopping
	a.mu.Unlock()
	if stopping {
		return ErrStopped
	}
	if t == nil {
		return fmt.Errorf("debug adapter connection not started")
	}
	return t.Send(msg)
}

func (a *StreamAdapter) Stop(context.Context) error {
	a.mu.Lock()
	if a.stopping {
		a.mu.Unlock()
		return nil
	}
	a.stopping = true
	t := a.transport
	a.mu.Unlock()

	if t == nil {
		a.fireExit(Exit{})
		return nil
	}
	err := t.Close()
	a.killProcess()
	return err
}

func (a *StreamAdapter) killProcess() {
	a.mu.Lock()
	cmd := a.cmd
	a.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := killProcessGroup(cmd.Process.Pid, cmd); err != nil {
		a.log.Error(err, "failed to kill debug adapter", "pid", cmd.Process.Pid)
	}
}
