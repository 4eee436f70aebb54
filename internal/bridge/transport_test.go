package bridge

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

// startBridgeServer listens on loopback, accepts one connection, writes
// payload, then echoes anything it receives into got.
func startBridgeServer(t *testing.T, payload []byte, got chan<- []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if len(payload) > 0 {
			conn.Write(payload)
		}
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			if got != nil {
				got <- append([]byte(nil), buf[:n]...)
			}
		}
	}()
	return ln.Addr().String()
}

func TestTCPConnectReceiveSend(t *testing.T) {
	payload := []byte{0xFE, 0xFE, 0xE0, 0xA4, 0x03, 0x00, 0x00, 0x10, 0x07, 0x00, 0xFD}
	got := make(chan []byte, 1)
	addr := startBridgeServer(t, payload, got)

	tr := NewTCP(addr)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	var received []byte
	deadline := time.Now().Add(2 * time.Second)
	for len(received) < len(payload) && time.Now().Before(deadline) {
		chunk, err := tr.Receive(100 * time.Millisecond)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		received = append(received, chunk...)
	}
	if !bytes.Equal(received, payload) {
		t.Fatalf("received % X, want % X", received, payload)
	}

	query := []byte{0xFE, 0xFE, 0xA4, 0xE0, 0x03, 0xFD}
	if err := tr.Send(query); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case echoed := <-got:
		if !bytes.Equal(echoed, query) {
			t.Fatalf("server saw % X, want % X", echoed, query)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the query")
	}
}

func TestTCPReceiveTimeoutIsSilence(t *testing.T) {
	addr := startBridgeServer(t, nil, nil)
	tr := NewTCP(addr)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	chunk, err := tr.Receive(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("Receive on silent conn: %v", err)
	}
	if len(chunk) != 0 {
		t.Fatalf("Receive on silent conn = % X, want empty", chunk)
	}
}

func TestTCPConnectFailsWithoutServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close() // nothing listens here now

	tr := NewTCP(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err == nil {
		tr.Close()
		t.Fatal("Connect succeeded with no server")
	}
}

func TestUseBeforeConnect(t *testing.T) {
	tr := NewTCP("127.0.0.1:1")
	if err := tr.Send([]byte{0xFD}); err == nil {
		t.Error("Send before Connect succeeded")
	}
	if _, err := tr.Receive(time.Millisecond); err == nil {
		t.Error("Receive before Connect succeeded")
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close before Connect: %v", err)
	}
}

func TestPipeTransport(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	tr := NewPipe(local)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	go remote.Write([]byte{0xFB})
	chunk, err := tr.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(chunk, []byte{0xFB}) {
		t.Fatalf("Receive = % X, want FB", chunk)
	}

	// Peer closed mid-stream is an error, not silence.
	remote.Close()
	if _, err := tr.Receive(time.Second); err == nil {
		t.Fatal("Receive after peer close returned no error")
	}
}

func TestHostAddr(t *testing.T) {
	h := Host{
		Addresses: []net.IP{net.ParseIP("fe80::1"), net.ParseIP("192.168.1.20")},
		Port:      50001,
	}
	if got := h.Addr(); got != "192.168.1.20:50001" {
		t.Errorf("Addr() = %q, want IPv4 preferred", got)
	}
	if got := (Host{}).Addr(); got != "" {
		t.Errorf("empty Host Addr() = %q, want empty", got)
	}
}
