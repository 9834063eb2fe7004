package devserver

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpack/internal/telemetry"
)

const writeTimeout = 5 * time.Second

// Message is sent to connected browsers.
type Message struct {
	Type  string `json:"type"`
	Build string `json:"build,omitempty"`
}

// Hub tracks hot reload clients and broadcasts rebuild notifications to them.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: sameHostOrigin},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// sameHostOrigin only lets pages served by the dev server itself connect.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Hot reload upgrade failed")
		return
	}

	// hijacked connections keep the server timeouts, clear them for the long lived socket
	_ = conn.SetReadDeadline(time.Time{})

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	telemetry.GetMetrics().ReloadClients.Add(context.Background(), 1)

	log.Debug().Str("addr", conn.RemoteAddr().String()).Msg("Hot reload client connected")

	// the client never sends anything, reading only detects the close
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[conn]; ok {
		h.dropLocked(conn)
	}
}

// dropLocked must be called with mu held.
func (h *Hub) dropLocked(conn *websocket.Conn) {
	delete(h.clients, conn)
	_ = conn.Close()
	telemetry.GetMetrics().ReloadClients.Add(context.Background(), -1)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every client, dropping clients that fail to receive it.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Msg("Dropping hot reload client")
			h.dropLocked(conn)
		}
	}
	telemetry.GetMetrics().ReloadsBroadcast.Add(context.Background(), 1)
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		h.dropLocked(conn)
	}
}
