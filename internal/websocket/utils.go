package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a websocket connection with a write lock so engine event
// callbacks and the request loop can both write safely.
type Conn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Wrap creates a Conn around a raw connection.
func Wrap(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// WriteEvent sends an event envelope with a write deadline.
func (c *Conn) WriteEvent(event Event, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(ResponsePayload{Event: event, Data: data})
}

// WriteError sends an error envelope.
func (c *Conn) WriteError(errMsg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(ResponsePayload{Event: EventError, Error: errMsg})
}

// ReadJSON reads and decodes a client message with a read deadline.
func (c *Conn) ReadJSON(v interface{}) error {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	return c.conn.ReadJSON(v)
}
