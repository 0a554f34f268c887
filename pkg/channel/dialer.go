package channel

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"go.bug.st/serial"
)

// Conn is the write side of a stream transport.
type Conn interface {
	io.Writer
	io.Closer
}

// Dialer opens a new Conn to the channel's fixed endpoint.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	String() string
}

// DefaultConnectTimeout bounds TCP connection setup.
const DefaultConnectTimeout = 3 * time.Second

// TCPDialer dials a TCP endpoint.
type TCPDialer struct {
	Addr    string
	Timeout time.Duration
}

// Dial connects with the configured timeout.
func (d TCPDialer) Dial(ctx context.Context) (Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	nd := net.Dialer{Timeout: timeout}
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d TCPDialer) String() string {
	return "tcp://" + d.Addr
}

// SerialDialer opens a serial line, for actuator hosts reachable over a
// USB/UART bridge instead of a socket.
type SerialDialer struct {
	Path     string
	BaudRate int
}

// Dial opens the serial port. The context is only checked before opening.
func (d SerialDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	baud := d.BaudRate
	if baud <= 0 {
		baud = 115200
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", d.Path, err)
	}
	return port, nil
}

func (d SerialDialer) String() string {
	return "serial://" + d.Path
}
