package connection

import (
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"digiscope-client/internal/protocol"
)

// recordingHandler collects everything the reader goroutine delivers
type recordingHandler struct {
	mu      sync.Mutex
	samples int
	frames  chan protocol.Frame
	bursts  chan *Burst
	errs    chan error
}

func newRecordingHandler(samples int) *recordingHandler {
	return &recordingHandler{
		samples: samples,
		frames:  make(chan protocol.Frame, 16),
		bursts:  make(chan *Burst, 4),
		errs:    make(chan error, 4),
	}
}

func (h *recordingHandler) HandleFrame(f protocol.Frame) { h.frames <- f }
func (h *recordingHandler) HandleBurst(b *Burst)         { h.bursts <- b }
func (h *recordingHandler) HandleBurstError(err error)   { h.errs <- err }
func (h *recordingHandler) SamplesPerBurst() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.samples
}

func newPipeConn(t *testing.T, h Handler, queueSize int) (*Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	c := New(client, h, zap.NewNop(), queueSize)
	t.Cleanup(func() {
		c.Close()
		server.Close()
	})
	return c, server
}

func waitDone(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection goroutines did not exit")
	}
}

func TestSendPreservesOrder(t *testing.T) {
	c, server := newPipeConn(t, newRecordingHandler(0), 8)

	frames := []protocol.Frame{
		protocol.NewFrame(protocol.VoltsPerDivisionCommand, 1000),
		protocol.NewFrame(protocol.TimePerDivisionCommand, 0x3141),
		protocol.NewFrame(protocol.NumSamplesCommand, 1000),
	}
	for _, f := range frames {
		if err := c.Send(f); err != nil {
			t.Fatalf("Send(%v) failed: %v", f, err)
		}
	}

	buf := make([]byte, protocol.FrameSize*len(frames))
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("Failed to read frames: %v", err)
	}

	for i, want := range frames {
		var raw [protocol.FrameSize]byte
		copy(raw[:], buf[i*protocol.FrameSize:])
		if got := protocol.Decode(raw); got != want {
			t.Fatalf("frame %d = %v, want %v", i, got, want)
		}
	}
}

func TestReceiveDispatchesFrames(t *testing.T) {
	h := newRecordingHandler(0)
	_, server := newPipeConn(t, h, 8)

	status := protocol.NewFrame(protocol.DeviceStatusCommand, uint16(protocol.StatusTriggered)).Encode()
	if _, err := server.Write(status[:]); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	select {
	case f := <-h.frames:
		if f.Command != protocol.DeviceStatusCommand || protocol.DeviceStatus(f.Value) != protocol.StatusTriggered {
			t.Fatalf("unexpected frame %v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not dispatched")
	}
}

func TestReceiveBurst(t *testing.T) {
	h := newRecordingHandler(3)
	_, server := newPipeConn(t, h, 8)

	payload := EncodeBurst([]int16{0, 2048, 4095}, []int16{-4095, 0, 100}, 7)
	if _, err := server.Write(payload); err != nil {
		t.Fatalf("Failed to write burst: %v", err)
	}

	select {
	case b := <-h.bursts:
		if b.TriggerIndex != 7 {
			t.Errorf("trigger index = %d, want 7", b.TriggerIndex)
		}
		if len(b.A) != 3 || len(b.B) != 3 {
			t.Fatalf("unexpected burst sizes %d/%d", len(b.A), len(b.B))
		}
		if math.Abs(b.A[2]-3.3) > 1e-12 || math.Abs(b.B[0]+3.3) > 1e-12 {
			t.Errorf("unexpected voltages A=%v B=%v", b.A, b.B)
		}
	case err := <-h.errs:
		t.Fatalf("unexpected burst error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("burst was not delivered")
	}
}

func TestBurstIntegrityFailure(t *testing.T) {
	// Device sends 2 samples per channel but the client expects 3
	h := newRecordingHandler(3)
	_, server := newPipeConn(t, h, 8)

	payload := EncodeBurst([]int16{1, 2}, []int16{3, 4}, 0)
	payload = append(payload, 0xAA, 0xBB, 0xCC, 0xDD)
	if _, err := server.Write(payload); err != nil {
		t.Fatalf("Failed to write burst: %v", err)
	}

	select {
	case err := <-h.errs:
		if !errors.Is(err, ErrIncorrectSampleCount) {
			t.Fatalf("expected ErrIncorrectSampleCount, got %v", err)
		}
	case <-h.bursts:
		t.Fatal("corrupt burst was delivered")
	case <-time.After(2 * time.Second):
		t.Fatal("integrity failure was not reported")
	}

	// The session keeps running after a failed burst
	status := protocol.NewFrame(protocol.DeviceStatusCommand, uint16(protocol.StatusArmed)).Encode()
	if _, err := server.Write(status[:]); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	select {
	case f := <-h.frames:
		if f.Command != protocol.DeviceStatusCommand {
			t.Fatalf("unexpected frame %v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session stopped after integrity failure")
	}

	if len(h.errs) != 0 {
		t.Fatalf("integrity failure reported more than once")
	}
}

func TestCloseUnblocksLoops(t *testing.T) {
	c, _ := newPipeConn(t, newRecordingHandler(0), 8)

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	waitDone(t, c)

	if err := c.Send(protocol.NewFrame(protocol.ForceTriggerCommand, protocol.Padding)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
	if c.Err() != nil {
		t.Fatalf("Err() = %v after clean close", c.Err())
	}

	// Second close is harmless
	c.Close()
}

func TestPeerEOFEndsCleanly(t *testing.T) {
	c, server := newPipeConn(t, newRecordingHandler(0), 8)

	server.Close()
	waitDone(t, c)

	if c.Err() != nil {
		t.Fatalf("Err() = %v, want nil on clean EOF", c.Err())
	}
}

func TestTruncatedFrameIsAnError(t *testing.T) {
	c, server := newPipeConn(t, newRecordingHandler(0), 8)

	server.Write([]byte{0x51, 0x51})
	server.Close()
	waitDone(t, c)

	if c.Err() == nil {
		t.Fatal("expected an error for a partial frame")
	}
}

func TestSendQueueFull(t *testing.T) {
	// Nobody reads the server side, so the writer blocks on its first frame
	c, _ := newPipeConn(t, newRecordingHandler(0), 2)

	var full bool
	for i := 0; i < 10; i++ {
		err := c.Send(protocol.NewFrame(protocol.RearmTriggerCommand, protocol.Padding))
		if errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if !full {
		t.Fatal("expected ErrQueueFull with a stalled writer")
	}

	c.Close()
	waitDone(t, c)
}

func TestSendBatchIsAllOrNothing(t *testing.T) {
	c, server := newPipeConn(t, newRecordingHandler(0), 4)

	batch := make([]protocol.Frame, 5)
	for i := range batch {
		batch[i] = protocol.NewFrame(protocol.NumSamplesCommand, uint16(i))
	}
	if err := c.SendBatch(batch...); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull for a batch larger than the queue, got %v", err)
	}

	if err := c.Send(protocol.NewFrame(protocol.ForceTriggerCommand, protocol.Padding)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var buf [protocol.FrameSize]byte
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(server, buf[:]); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	if f := protocol.Decode(buf); f.Command != protocol.ForceTriggerCommand {
		t.Fatalf("first frame on the wire = %s, want FORCE_TRIGGER", f.Command)
	}
}
