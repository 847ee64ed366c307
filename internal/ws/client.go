package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const maxFrameSize = 64 << 10

// Client is one websocket connection. Its conn is written only by writePump;
// other goroutines hand frames over through the bounded send channel.
type Client struct {
	info  ConnInfo
	conn  *websocket.Conn
	send  chan []byte
	state atomic.Int32

	done        chan struct{}
	closeOnce   sync.Once
	closeReason atomic.Value

	writeTimeout time.Duration
	pingPeriod   time.Duration
}

func newClient(conn *websocket.Conn, info ConnInfo, sendBuffer int, writeTimeout, pongTimeout time.Duration) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 1
	}
	pingPeriod := pongTimeout * 9 / 10
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	return &Client{
		info:         info,
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingPeriod:   pingPeriod,
	}
}

func (c *Client) ID() string {
	return c.info.ConnID
}

func (c *Client) UserID() int {
	return c.info.UserID
}

func (c *Client) Info() ConnInfo {
	return c.info
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// enqueue hands a frame to the writer without blocking. It reports false when
// the client is closed or its buffer is full.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the writer, which flushes queued frames and sends a close frame.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason.Store(reason)
		c.setState(StateClosed)
		close(c.done)
	})
}

func (c *Client) reason() string {
	if r, ok := c.closeReason.Load().(string); ok {
		return r
	}
	return ""
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.Close(err.Error())
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(err.Error())
				return
			}
		case <-c.done:
			c.flush()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.reason())
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}
