// Package connection runs the session with the instrument: one goroutine
// writes queued command frames, one reads telemetry frames and sample
// bursts and hands them to a Handler.
package connection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"digiscope-client/internal/protocol"
	"digiscope-client/internal/transport"
)

var (
	// ErrClosed is returned when sending on a connection that has ended
	ErrClosed = errors.New("connection closed")
	// ErrQueueFull is returned when the outbound queue cannot take another frame
	ErrQueueFull = errors.New("outbound queue full")
)

// DefaultQueueSize is the outbound queue depth used when none is given
const DefaultQueueSize = 64

// Handler receives everything the reader goroutine decodes. All methods
// are called from the reader goroutine, one at a time.
type Handler interface {
	// HandleFrame is called for every frame other than a sample start
	HandleFrame(f protocol.Frame)
	// SamplesPerBurst returns the per-channel sample count currently requested
	SamplesPerBurst() int
	// HandleBurst is called with each burst that passed the integrity check
	HandleBurst(b *Burst)
	// HandleBurstError is called once per burst that failed the integrity check
	HandleBurstError(err error)
}

// Conn is an open session with the instrument
type Conn struct {
	stream  io.ReadWriteCloser
	reader  *bufio.Reader
	handler Handler
	logger  *zap.Logger

	out    chan protocol.Frame
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	sendMu       sync.Mutex
	shutdownOnce sync.Once
	mu           sync.Mutex
	err          error
	closeErr     error
}

// Dial opens a stream with the opener and starts the session on it
func Dial(ctx context.Context, open transport.Opener, handler Handler, logger *zap.Logger, queueSize int) (*Conn, error) {
	stream, err := open(ctx)
	if err != nil {
		return nil, err
	}
	return New(stream, handler, logger, queueSize), nil
}

// New starts the reader and writer goroutines on an already open stream.
// The connection owns the stream from now on.
func New(stream io.ReadWriteCloser, handler Handler, logger *zap.Logger, queueSize int) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		stream:  stream,
		reader:  bufio.NewReader(stream),
		handler: handler,
		logger:  logger.Named("connection"),
		out:     make(chan protocol.Frame, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	c.wg.Add(2)
	go c.writeLoop()
	go c.readLoop()
	go func() {
		c.wg.Wait()
		close(c.done)
	}()

	c.logger.Info("session started")
	return c
}

// Send enqueues a frame for the writer goroutine without blocking
func (c *Conn) Send(f protocol.Frame) error {
	return c.SendBatch(f)
}

// SendBatch enqueues frames for the writer goroutine without blocking.
// Either every frame is queued or none is.
func (c *Conn) SendBatch(frames ...protocol.Frame) error {
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	// Only the writer drains the queue, so free space cannot shrink here
	if free := cap(c.out) - len(c.out); free < len(frames) {
		c.logger.Warn("dropping frames, outbound queue full",
			zap.Int("frames", len(frames)), zap.Int("free", free))
		return ErrQueueFull
	}
	for _, f := range frames {
		c.out <- f
	}
	return nil
}

// Close ends both goroutines and closes the stream. Frames still queued
// are discarded. Safe to call more than once.
func (c *Conn) Close() error {
	c.shutdown(nil)
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Done is closed once both goroutines have exited
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the session, or nil if it ended cleanly
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// shutdown records the terminating error, stops both loops and closes the
// stream so a blocked read or write returns
func (c *Conn) shutdown(err error) {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()

		c.cancel()
		closeErr := c.stream.Close()

		c.mu.Lock()
		c.closeErr = closeErr
		c.mu.Unlock()

		if err != nil {
			c.logger.Error("session ended", zap.Error(err))
		} else {
			c.logger.Info("session closed")
		}
	})
}

// stopping reports whether shutdown has begun, in which case I/O errors are
// the expected result of closing the stream
func (c *Conn) stopping() bool {
	return c.ctx.Err() != nil
}

func (c *Conn) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.out:
			buf := f.Encode()
			if err := writeFull(c.stream, buf[:]); err != nil {
				if !c.stopping() {
					c.shutdown(fmt.Errorf("failed to send %s: %w", f, err))
				}
				return
			}
			c.logger.Debug("sent frame", zap.Stringer("frame", f))
		}
	}
}

func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func (c *Conn) readLoop() {
	defer c.wg.Done()

	var buf [protocol.FrameSize]byte
	for {
		if _, err := io.ReadFull(c.reader, buf[:]); err != nil {
			switch {
			case c.stopping():
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				// Peer closed on a frame boundary
				c.shutdown(nil)
			default:
				c.shutdown(fmt.Errorf("failed to read frame: %w", err))
			}
			return
		}

		f := protocol.Decode(buf)
		if f.Command == protocol.SampleStartCommand {
			if err := c.readBurst(f.Value); err != nil {
				if !c.stopping() {
					c.shutdown(err)
				}
				return
			}
			continue
		}

		c.logger.Debug("received frame", zap.Stringer("frame", f))
		c.handler.HandleFrame(f)
	}
}

func (c *Conn) readBurst(triggerIndex uint16) error {
	n := c.handler.SamplesPerBurst()

	burst, err := ReadBurst(c.reader, n, triggerIndex)
	if errors.Is(err, ErrIncorrectSampleCount) {
		// Resynchronize by dropping whatever has already arrived
		discarded, _ := c.reader.Discard(c.reader.Buffered())
		c.logger.Warn("burst failed integrity check",
			zap.Int("expected_samples", n),
			zap.Int("discarded_bytes", discarded),
			zap.Error(err))
		c.handler.HandleBurstError(err)
		return nil
	}
	if err != nil {
		return err
	}

	c.logger.Debug("received burst", zap.Int("samples", n), zap.Uint16("trigger_index", triggerIndex))
	c.handler.HandleBurst(burst)
	return nil
}
