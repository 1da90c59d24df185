package display

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub publishes every redraw as JSON to connected websocket clients
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	server *http.Server
}

type client struct {
	conn *websocket.Conn
	send chan interface{}
}

// Wire form of a redraw. Non-finite measurements are sent as null.
type frameMessage struct {
	TriggerIndex int            `json:"trigger_index"`
	Scale        float64        `json:"scale"`
	VerticalRes  float64        `json:"volts_per_div"`
	Traces       []traceMessage `json:"traces"`
}

type traceMessage struct {
	Name      string              `json:"name"`
	Color     string              `json:"color"`
	Bandpass  bool                `json:"bandpass"`
	OffScreen bool                `json:"off_screen"`
	Points    []Point             `json:"points"`
	Stats     map[string]*float64 `json:"stats"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func newFrameMessage(f Frame) frameMessage {
	msg := frameMessage{
		TriggerIndex: f.TriggerIndex,
		Scale:        f.Scale,
		VerticalRes:  f.VerticalRes,
		Traces:       make([]traceMessage, 0, len(f.Traces)),
	}
	for _, t := range f.Traces {
		points := make([]Point, 0, len(t.Points))
		for _, p := range t.Points {
			if finite(p.Y) != nil {
				points = append(points, p)
			}
		}
		msg.Traces = append(msg.Traces, traceMessage{
			Name:      t.Name,
			Color:     t.Color.Hex(),
			Bandpass:  t.Bandpass,
			OffScreen: t.OffScreen,
			Points:    points,
			Stats: map[string]*float64{
				"min":       finite(t.Stats.Min),
				"max":       finite(t.Stats.Max),
				"p2p":       finite(t.Stats.P2P),
				"mean":      finite(t.Stats.Mean),
				"stddev":    finite(t.Stats.StdDev),
				"frequency": finite(t.Stats.Frequency),
			},
		})
	}
	return msg
}

// NewHub creates a hub with no clients
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
		},
		logger:  logger.Named("hub"),
		clients: make(map[*client]bool),
	}
}

// ServeHTTP upgrades the request and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan interface{}, 8)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("remote", r.RemoteAddr))

	go c.writePump()
	go h.readPump(c)
}

// writePump pumps messages from the hub to the websocket connection
func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards client messages and unregisters the client when its
// connection closes
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues the redraw for every client. Clients that are not keeping
// up miss the frame.
func (h *Hub) Publish(f Frame) {
	msg := newFrameMessage(f)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("client slow, dropping frame")
		}
	}
}

// ListenAndServe serves the hub at /ws on addr until Close is called
func (h *Hub) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.Serve(listener)
}

// Serve serves the hub at /ws on an existing listener
func (h *Hub) Serve(listener net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)

	h.mu.Lock()
	h.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	server := h.server
	h.mu.Unlock()

	h.logger.Info("trace publisher listening", zap.String("addr", listener.Addr().String()))
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the server and disconnects every client
func (h *Hub) Close() error {
	h.mu.Lock()
	server := h.server
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
