package rtc

import (
	"net/netip"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pomelo-net/webrtc-plugin/errors"
)

// WebSocket timeout constants following Gorilla best practices.
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = 54 * time.Second

	// Outbound frame queue per client.
	sendQueueSize = 64
)

type wsFrame struct {
	text bool
	data []byte
}

// WSClient is one accepted signaling connection. Frames are binary; Send is
// safe from any goroutine.
type WSClient struct {
	server *WSServer
	conn   *websocket.Conn
	remote netip.AddrPort

	send      chan wsFrame
	closeOnce sync.Once
	done      chan struct{}

	mu   sync.Mutex
	data any
}

func newWSClient(s *WSServer, conn *websocket.Conn) *WSClient {
	remote, _ := netip.ParseAddrPort(conn.RemoteAddr().String())
	return &WSClient{
		server: s,
		conn:   conn,
		remote: remote,
		send:   make(chan wsFrame, sendQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *WSClient) start() {
	c.server.pumps.Add(2)
	go c.readPump()
	go c.writePump()
}

// readPump reads frames until the connection dies, then fires the closed
// callback exactly once.
func (c *WSClient) readPump() {
	defer c.server.pumps.Done()
	defer func() {
		c.Close()
		c.server.removeClient(c)
		if cb := c.server.ctx.callbacks.WSClosed; cb != nil {
			cb(c)
		}
	}()

	if c.server.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.server.opts.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				if cb := c.server.ctx.callbacks.WSError; cb != nil {
					cb(c, err)
				}
			}
			return
		}

		if cb := c.server.ctx.callbacks.WSMessage; cb != nil {
			buffer := c.server.ctx.PrepareBufferFrom(payload)
			cb(c, buffer)
			buffer.Unref()
		}
	}
}

func (c *WSClient) writePump() {
	defer c.server.pumps.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			messageType := websocket.BinaryMessage
			if frame.text {
				messageType = websocket.TextMessage
			}
			if err := c.conn.WriteMessage(messageType, frame.data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) enqueue(frame wsFrame) error {
	select {
	case <-c.done:
		return errors.New("rtc: websocket client closed")
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errors.New("rtc: websocket send queue full")
	}
}

// Send transmits one binary frame. The payload is not retained.
func (c *WSClient) Send(payload []byte) error {
	copied := make([]byte, len(payload))
	copy(copied, payload)
	return c.enqueue(wsFrame{data: copied})
}

// SendText transmits one text frame.
func (c *WSClient) SendText(payload string) error {
	return c.enqueue(wsFrame{text: true, data: []byte(payload)})
}

// RemoteAddr returns the peer's address.
func (c *WSClient) RemoteAddr() netip.AddrPort {
	return c.remote
}

// Close tears down the connection. Idempotent; the closed callback fires
// once from the read pump.
func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Destroy releases the client after close.
func (c *WSClient) Destroy() {
	c.Close()
	c.SetData(nil)
}

// SetData attaches consumer state to the client.
func (c *WSClient) SetData(data any) {
	c.mu.Lock()
	c.data = data
	c.mu.Unlock()
}

// Data returns the attached consumer state.
func (c *WSClient) Data() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}
