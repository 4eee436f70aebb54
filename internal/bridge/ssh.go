package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// Tunnel reaches a CI-V bridge that only listens on a remote host's
// loopback, by dialing it through an SSH connection to that host.
type Tunnel struct {
	// SSHAddr is the host:port of the SSH server.
	SSHAddr string
	// BridgeAddr is the bridge address as seen from the SSH host,
	// typically 127.0.0.1:50002.
	BridgeAddr string
	User       string
	// Auth carries the SSH authentication methods, password or key.
	Auth []ssh.AuthMethod
	// HostKey pins the expected server key. Nil accepts any key, which
	// is only acceptable on trusted networks.
	HostKey ssh.PublicKey

	client  *ssh.Client
	conn    net.Conn
	reads   chan readResult
	done    chan struct{}
	pending error
}

type readResult struct {
	data []byte
	err  error
}

// NewTunnel returns an unconnected tunnel transport.
func NewTunnel(sshAddr, bridgeAddr, user string, auth []ssh.AuthMethod) *Tunnel {
	return &Tunnel{
		SSHAddr:    sshAddr,
		BridgeAddr: bridgeAddr,
		User:       user,
		Auth:       auth,
	}
}

// Connect establishes the SSH session and opens the forwarded
// connection to the bridge.
func (t *Tunnel) Connect(ctx context.Context) error {
	cb := ssh.InsecureIgnoreHostKey()
	if t.HostKey != nil {
		cb = ssh.FixedHostKey(t.HostKey)
	}
	cfg := &ssh.ClientConfig{
		User:            t.User,
		Auth:            t.Auth,
		HostKeyCallback: cb,
		Timeout:         dialTimeout,
	}

	d := net.Dialer{Timeout: dialTimeout}
	raw, err := d.DialContext(ctx, "tcp", t.SSHAddr)
	if err != nil {
		return fmt.Errorf("dial ssh host %s: %w", t.SSHAddr, err)
	}
	sconn, chans, reqs, err := ssh.NewClientConn(raw, t.SSHAddr, cfg)
	if err != nil {
		raw.Close()
		return fmt.Errorf("ssh handshake with %s: %w", t.SSHAddr, err)
	}
	t.client = ssh.NewClient(sconn, chans, reqs)

	conn, err := t.client.Dial("tcp", t.BridgeAddr)
	if err != nil {
		t.client.Close()
		t.client = nil
		return fmt.Errorf("reach bridge %s through %s: %w", t.BridgeAddr, t.SSHAddr, err)
	}
	t.conn = conn
	t.startReader()
	return nil
}

// startReader launches the pump goroutine for the forwarded connection.
func (t *Tunnel) startReader() {
	t.reads = make(chan readResult)
	t.done = make(chan struct{})
	go readLoop(t.conn, t.reads, t.done)
}

// readLoop pumps the forwarded connection into reads. SSH channel conns
// ignore read deadlines, so Receive enforces its timeout by selecting
// on this channel instead of the socket. The unbuffered send also
// paces the loop: a chunk is not read until the previous one is taken.
func readLoop(conn net.Conn, reads chan<- readResult, done <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		r := readResult{err: err}
		if n > 0 {
			r.data = append([]byte(nil), buf[:n]...)
		}
		select {
		case reads <- r:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (t *Tunnel) Send(p []byte) error {
	if t.conn == nil {
		return errors.New("bridge: tunnel not connected")
	}
	if _, err := t.conn.Write(p); err != nil {
		return fmt.Errorf("send through tunnel: %w", err)
	}
	return nil
}

// Receive waits up to timeout for the next chunk from the reader
// goroutine. Silence returns an empty result, matching the deadline
// behavior of the other transports. A read error delivered alongside
// data is held and surfaced on the following call.
func (t *Tunnel) Receive(timeout time.Duration) ([]byte, error) {
	if t.conn == nil {
		return nil, errors.New("bridge: tunnel not connected")
	}
	if t.pending != nil {
		err := t.pending
		t.pending = nil
		return nil, err
	}
	select {
	case r := <-t.reads:
		if r.err != nil {
			wrapped := fmt.Errorf("receive through tunnel: %w", r.err)
			if len(r.data) > 0 {
				t.pending = wrapped
				return r.data, nil
			}
			return nil, wrapped
		}
		return r.data, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (t *Tunnel) Close() error {
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	var first error
	if t.conn != nil {
		first = t.conn.Close()
		t.conn = nil
	}
	if t.client != nil {
		if err := t.client.Close(); first == nil {
			first = err
		}
		t.client = nil
	}
	return first
}
