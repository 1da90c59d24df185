// Package transport opens the byte stream used to talk to the instrument
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"

	"go.bug.st/serial"

	"digiscope-client/internal/config"
)

// Opener opens a fresh byte stream to the instrument
type Opener func(ctx context.Context) (io.ReadWriteCloser, error)

// NewOpener returns an opener for the configured transport
func NewOpener(cfg config.DeviceConfig) (Opener, error) {
	switch cfg.Transport {
	case "tcp", "":
		return func(ctx context.Context) (io.ReadWriteCloser, error) {
			return DialTCP(ctx, cfg)
		}, nil
	case "serial":
		return func(ctx context.Context) (io.ReadWriteCloser, error) {
			return OpenSerial(cfg)
		}, nil
	default:
		return nil, fmt.Errorf("invalid transport: %s (must be 'tcp' or 'serial')", cfg.Transport)
	}
}

// DialTCP connects to the instrument over TCP. Name resolution and connect
// failures are returned to the caller.
func DialTCP(ctx context.Context, cfg config.DeviceConfig) (io.ReadWriteCloser, error) {
	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		// Frames are tiny and latency matters more than throughput
		tcp.SetNoDelay(true)
	}

	return conn, nil
}

// OpenSerial opens the instrument serial line at 8N1
func OpenSerial(cfg config.DeviceConfig) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.SerialPort, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.SerialPort, err)
	}

	return port, nil
}
