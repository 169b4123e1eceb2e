package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/glazeware/glaze/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings with this period to keep idle connections alive.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from a peer. Clients only listen.
	maxMessageSize = 512
)

// hub fans live-reload messages out to every connected browser. A client
// whose send buffer fills is dropped rather than stalling the broadcast.
type hub struct {
	logger logging.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(logger logging.Logger) *hub {
	return &hub{
		logger:  logger.WithSubsystem("livereload"),
		clients: make(map[*hubClient]struct{}),
	}
}

// ServeHTTP upgrades the connection and runs its pumps until the client
// disconnects.
func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &hubClient{conn: conn, send: make(chan []byte, 16)}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug(r.Context(), "client connected", "total", count)

	go client.writePump()
	client.readPump()

	h.drop(client)
}

// Broadcast queues the message on every connected client.
func (h *hub) Broadcast(message []byte) {
	h.mu.Lock()
	var stale []*hubClient
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.Unlock()

	for _, client := range stale {
		h.drop(client)
	}
}

// ClientCount returns the number of connected clients.
func (h *hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *hub) Close() {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.drop(client)
	}
}

func (h *hub) drop(client *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	h.mu.Unlock()

	close(client.send)
	_ = client.conn.Close(websocket.StatusNormalClosure, "")
}

// readPump drains incoming frames until the connection dies. Clients never
// send meaningful data; the read loop exists to observe disconnects.
func (c *hubClient) readPump() {
	ctx := context.Background()
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump pushes queued messages and periodic pings to the peer.
func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
