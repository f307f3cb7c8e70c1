// Package dap carries Debug Adapter Protocol traffic for the extension host.
//
// DAP is a protocol used to communicate between a development tool and a
// debugger. This package provides:
//   - Message: a raw protocol message with header accessors
//   - Transport: Content-Length framed messages over TCP, unix sockets or stdio
//   - path translation between adapter-native paths and file:// URIs
//   - Client: request/response correlation used by the main-thread side
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
)

// Transport reads and writes framed DAP messages on a byte stream.
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to a debug adapter listening on network ("tcp" or "unix").
func Dial(ctx context.Context, network, address string) (*Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DAP server at %s: %w", address, err)
	}
	return NewTransport(conn), nil
}

// NewTransport wraps an established connection.
func NewTransport(conn io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

// NewStdioTransport creates a transport using the stdio streams of a process.
func NewStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser) *Transport {
	return NewTransport(&stdioRWC{
		reader: stdout,
		writer: stdin,
	})
}

type stdioRWC struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioRWC) Read(p []byte) (n int, err error) {
	return s.reader.Read(p)
}

func (s *stdioRWC) Write(p []byte) (n int, err error) {
	return s.writer.Write(p)
}

func (s *stdioRWC) Close() error {
	err1 := s.writer.Close()
	err2 := s.reader.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Send writes one message. Concurrent calls are serialized.
func (t *Transport) Send(msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := dap.WriteBaseMessage(t.writer, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}

	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}

	return nil
}

// Receive blocks until the next message arrives. It returns io.EOF (possibly
// wrapped) once the peer has closed the stream.
func (t *Transport) Receive() (Message, error) {
	content, err := dap.ReadBaseMessage(t.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read DAP message: %w", err)
	}
	return content, nil
}

// Close closes the underlying stream. Calling it again returns the first
// result.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
