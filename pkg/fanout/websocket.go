package fanout

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/harun/nalar/pkg/events"
)

// WebSocketTransport forwards events over a gorilla/websocket connection.
// Writes are serialized; gorilla connections allow one concurrent writer.
type WebSocketTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketTransport wraps an established connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// Send writes one event as a JSON text message.
func (t *WebSocketTransport) Send(ev events.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(ev)
}
