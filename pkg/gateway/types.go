package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventMessage is the envelope for every server-initiated push. Observers
// key off Event and Data; Seq and Timestamp let a UI detect gaps and order
// within its own stream.
type EventMessage struct {
	Type      string `json:"type"`
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"timestamp"`
}

// Client represents one attached observer channel.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time
	IPAddress   string

	// writeMu serializes frames to this observer: broadcasts and the attach
	// snapshot may originate from different goroutines, and ordering within
	// one observer's stream must match emission order.
	writeMu sync.Mutex
}

// WriteJSON writes one JSON frame to the observer.
func (c *Client) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}
