package events

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub broadcasts events to websocket clients. It is a Sink, so it can be
// wired straight into the engine; a UI subscribes by connecting to the
// handler and reading JSON-encoded Event frames.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]*sync.Mutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered
// until the peer goes away. Incoming frames are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[EVENTS] upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = &sync.Mutex{}
	h.mu.Unlock()

	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish sends the event to every connected client. Events are
// published concurrently (every settling agent publishes from its own
// goroutine), and the websocket protocol allows only one writer per
// connection at a time, so each connection carries its own write lock.
// A client that fails a write is dropped rather than allowed to stall
// the round.
func (h *Hub) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[EVENTS] marshal event: %v", err)
		return
	}

	type client struct {
		conn  *websocket.Conn
		write *sync.Mutex
	}
	h.mu.Lock()
	clients := make([]client, 0, len(h.conns))
	for c, w := range h.conns {
		clients = append(clients, client{conn: c, write: w})
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.write.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, payload)
		c.write.Unlock()
		if err != nil {
			h.drop(c.conn)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		c.Close()
		delete(h.conns, c)
	}
	return nil
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		conn.Close()
	}
	h.mu.Unlock()
}
