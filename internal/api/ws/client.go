package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// client is one connected shell. Only the write pump writes to conn and
// closes it; everything else queues on send or signals done.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue reports false when the buffer is full
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close signals the write pump, which sends a close frame and closes the
// connection, which in turn ends the read loop
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
