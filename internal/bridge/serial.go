package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

// Serial reads CI-V traffic straight from a serial port, for radios
// cabled to the host instead of reached through a network bridge.
type Serial struct {
	Port string
	Baud uint

	port io.ReadWriteCloser
	buf  []byte
}

// NewSerial returns an unopened transport for the named port.
func NewSerial(port string, baud uint) *Serial {
	return &Serial{Port: port, Baud: baud, buf: make([]byte, 4096)}
}

// Connect opens the port. The context is accepted for interface
// symmetry; opening a local device does not block on the network.
func (s *Serial) Connect(ctx context.Context) error {
	opts := serial.OpenOptions{
		PortName:        s.Port,
		BaudRate:        s.Baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 0,
		// Tenths of a second. One tick approximates the poll interval
		// the network transports get through read deadlines.
		InterCharacterTimeout: 100,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", s.Port, err)
	}
	s.port = port
	return nil
}

func (s *Serial) Send(p []byte) error {
	if s.port == nil {
		return errors.New("bridge: serial port not open")
	}
	if _, err := s.port.Write(p); err != nil {
		return fmt.Errorf("write to serial port: %w", err)
	}
	return nil
}

// Receive reads whatever the port buffered. The timeout argument is
// honored by the InterCharacterTimeout set at open; a silent interval
// returns an empty slice.
func (s *Serial) Receive(timeout time.Duration) ([]byte, error) {
	if s.port == nil {
		return nil, errors.New("bridge: serial port not open")
	}
	n, err := s.port.Read(s.buf)
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read from serial port: %w", err)
	}
	out := make([]byte, n)
	copy(out, s.buf[:n])
	return out, nil
}

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
