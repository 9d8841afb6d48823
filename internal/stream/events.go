// ABOUTME: WebSocket event feed for the UI collaborator
// ABOUTME: Fans session and capture state changes out to connected clients
package stream

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub pushes JSON events to any number of WebSocket clients. A client that
// cannot keep up is dropped; the publishing side never blocks.
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan any
}

// NewHub returns an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// local-network control surface, same policy as the stream itself
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:     log.With().Str("component", "events").Logger(),
		clients: make(map[*hubClient]struct{}),
	}
}

// Publish sends v, JSON-encoded, to every connected client.
func (h *Hub) Publish(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- v:
		default:
			// slow consumer: close it rather than stall the publisher
			h.log.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("dropping slow event client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ServeHTTP upgrades the connection and streams events until the peer goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &hubClient{conn: conn, send: make(chan any, 16)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("event client connected")

	// reader: only needed to observe close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(c)
				return
			}
		}
	}()

	for v := range c.send {
		if err := conn.WriteJSON(v); err != nil {
			h.remove(c)
			return
		}
	}
	conn.Close()
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// CloseAll disconnects every event client, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
	h.mu.Unlock()
}
