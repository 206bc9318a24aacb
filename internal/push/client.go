package push

import "sync"

// Conn is the subset of a websocket connection the client needs; tests plug
// in fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Matches websocket.TextMessage without importing gorilla here.
const textMessage = 1

// Client is one attached game server connection with a buffered send queue.
type Client struct {
	serverID string
	conn     Conn

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps a connection for the given server id.
func NewClient(serverID string, conn Conn) *Client {
	return &Client{
		serverID: serverID,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

// ServerID returns the attached server's id.
func (c *Client) ServerID() string {
	return c.serverID
}

// WritePump drains the send queue onto the connection until the client is
// closed or a write fails. Run it on its own goroutine per connection.
func (c *Client) WritePump() {
	defer func() { _ = c.conn.Close() }()
	for {
		select {
		case <-c.done:
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(textMessage, data); err != nil {
				return
			}
		}
	}
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
