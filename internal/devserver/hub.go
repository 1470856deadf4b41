package devserver

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrHubClosed is returned when a stream is attached after Close.
var ErrHubClosed = errors.New("stream hub closed")

const (
	writeWait      = 10 * time.Second
	clientSendSize = 64
)

var pingFrame = []byte(`{"type":"ping"}`)

// Stream is one attached websocket client.
type Stream struct {
	conn *websocket.Conn
	send chan []byte
	// dropped is set once the client fell behind and was disconnected.
	dropped atomic.Bool
}

// Hub fans log frames out to every connected stream client.
// Each client has exactly one writer goroutine.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *zap.Logger

	mu      sync.RWMutex
	clients map[*Stream]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates a Hub sending a ping frame every pingInterval.
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			// The stream is read-only and carries no credentials.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: pingInterval,
		logger:       logger,
		clients:      make(map[*Stream]struct{}),
	}
}

// Upgrade switches the request to a websocket.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return h.upgrader.Upgrade(w, r, nil)
}

// Attach registers conn and queues initFrame as its first frame.
// Frames broadcast after Attach returns are delivered after initFrame.
func (h *Hub) Attach(conn *websocket.Conn, initFrame []byte) (*Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	c := &Stream{conn: conn, send: make(chan []byte, clientSendSize)}
	c.send <- initFrame
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return c, nil
}

// Pump serves c until the peer disconnects or the hub closes.
func (h *Hub) Pump(c *Stream) {
	defer h.wg.Done()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(c)
	}()

	// Client frames are ignored; reading detects the disconnect.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(c)
	<-done
	_ = c.conn.Close()
}

// Broadcast queues frame for every client. Clients that cannot keep up are dropped.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.dropped.Load() {
			continue
		}
		select {
		case c.send <- frame:
		default:
			if c.dropped.CompareAndSwap(false, true) {
				h.logger.Warn("stream client too slow, disconnecting")
				_ = c.conn.Close()
			}
		}
	}
}

// Clients returns the number of connected stream clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		_ = c.conn.Close()
	}
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Hub) remove(c *Stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) writeLoop(c *Stream) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := h.write(c, frame); err != nil {
				h.logger.Debug("stream write failed", zap.Error(err))
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := h.write(c, pingFrame); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (h *Hub) write(c *Stream, frame []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}
