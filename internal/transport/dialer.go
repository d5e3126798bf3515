package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Dialer opens a new connection to the motor controller.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
	// Address describes the endpoint for logs and health reports.
	Address() string
}

// TCPDialer connects over TCP.
type TCPDialer struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Address implements Dialer.
func (d TCPDialer) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Dial implements Dialer.
func (d TCPDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: tcp://%s: %w", ErrDialFailed, d.Address(), err)
	}
	return conn, nil
}

// SerialDialer opens a local serial port.
type SerialDialer struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int

	// ReadTimeout bounds each read so the receive loop can notice shutdown.
	ReadTimeout time.Duration
}

// Address implements Dialer.
func (d SerialDialer) Address() string {
	return fmt.Sprintf("serial://%s@%d", d.Device, d.BaudRate)
}

// Dial implements Dialer.
func (d SerialDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialFailed, err)
	}

	mode, err := d.mode()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDialFailed, d.Device, err)
	}

	port, err := serial.Open(d.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDialFailed, d.Device, err)
	}

	timeout := d.ReadTimeout
	if timeout == 0 {
		timeout = defaultSerialReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: %s: set read timeout: %w", ErrDialFailed, d.Device, err)
	}

	return port, nil
}

func (d SerialDialer) mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: d.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	switch strings.ToLower(d.Parity) {
	case "", "none":
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", d.Parity)
	}

	switch d.StopBits {
	case 0, 1:
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %d", d.StopBits)
	}

	return mode, nil
}
