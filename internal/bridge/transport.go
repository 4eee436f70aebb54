// Package bridge provides the byte transports the decoding pipeline
// reads CI-V traffic from: the wfview-style TCP bridge, a direct serial
// port, and a TCP bridge reached through an SSH tunnel.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff"
)

// Transport is a connected byte stream carrying raw CI-V traffic.
// Receive returns an empty slice, not an error, when no bytes arrived
// within the timeout so callers can poll without treating silence as
// failure.
type Transport interface {
	Connect(ctx context.Context) error
	Send(p []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	Close() error
}

const dialTimeout = 3 * time.Second

// TCP connects to a CI-V bridge listening on a plain TCP socket.
type TCP struct {
	Addr string
	// MaxRetries bounds the initial connect attempts. Zero means a
	// single attempt.
	MaxRetries uint64

	conn net.Conn
	buf  []byte
}

// NewTCP returns an unconnected transport for addr.
func NewTCP(addr string) *TCP {
	return &TCP{Addr: addr, buf: make([]byte, 4096)}
}

// Connect dials the bridge, retrying with exponential backoff when
// MaxRetries allows it.
func (t *TCP) Connect(ctx context.Context) error {
	dial := func() error {
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", t.Addr)
		if err != nil {
			return err
		}
		t.conn = conn
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), t.MaxRetries), ctx)
	if err := backoff.Retry(dial, policy); err != nil {
		return fmt.Errorf("connect to bridge at %s: %w", t.Addr, err)
	}
	return nil
}

func (t *TCP) Send(p []byte) error {
	if t.conn == nil {
		return errors.New("bridge: not connected")
	}
	if _, err := t.conn.Write(p); err != nil {
		return fmt.Errorf("send to bridge: %w", err)
	}
	return nil
}

func (t *TCP) Receive(timeout time.Duration) ([]byte, error) {
	if t.conn == nil {
		return nil, errors.New("bridge: not connected")
	}
	return receiveConn(t.conn, t.buf, timeout)
}

func (t *TCP) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// receiveConn does one deadline-bounded read. A timeout yields an empty
// result; every other error is surfaced.
func receiveConn(conn net.Conn, buf []byte, timeout time.Duration) ([]byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	n, err := conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, fmt.Errorf("receive from bridge: %w", err)
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, nil
}

// Pipe wraps an already-connected net.Conn. Tests and the SSH tunnel
// use it.
type Pipe struct {
	conn net.Conn
	buf  []byte
}

// NewPipe wraps conn. Connect is a no-op.
func NewPipe(conn net.Conn) *Pipe {
	return &Pipe{conn: conn, buf: make([]byte, 4096)}
}

func (p *Pipe) Connect(ctx context.Context) error { return nil }

func (p *Pipe) Send(b []byte) error {
	if _, err := p.conn.Write(b); err != nil {
		return fmt.Errorf("send to bridge: %w", err)
	}
	return nil
}

func (p *Pipe) Receive(timeout time.Duration) ([]byte, error) {
	return receiveConn(p.conn, p.buf, timeout)
}

func (p *Pipe) Close() error { return p.conn.Close() }
