package notifier

import (
	"encoding/json"
	"sync"
	"time"

	"snackstore-api/internal/model"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// Client is one stock channel connection. Messages are queued on a buffered
// send channel; a client that cannot keep up gets pruned rather than
// blocking the broadcast pass.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps an upgraded websocket connection.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Start launches the read and write pumps. The connection is torn down and
// removed from the hub when either pump exits.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// enqueue queues a frame for delivery. Returns false if the client is gone
// or its buffer is full.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump consumes client frames until the connection drops. Malformed or
// unknown frames get an error reply; they never close the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("stock channel read error")
			}
			return
		}

		var msg model.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(0, "invalid message format")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg model.ClientMessage) {
	switch msg.Type {
	case model.MessageTypeSubscribe:
		if msg.ProductID <= 0 {
			c.sendError(msg.ProductID, "productId is required")
			return
		}
		c.hub.Subscribe(c, msg.ProductID)
	case model.MessageTypeUnsubscribe:
		if msg.ProductID <= 0 {
			c.sendError(msg.ProductID, "productId is required")
			return
		}
		c.hub.Unsubscribe(c, msg.ProductID)
	case model.MessageTypeGetStock:
		if msg.ProductID <= 0 {
			c.sendError(msg.ProductID, "productId is required")
			return
		}
		c.hub.SendSnapshot(c, msg.ProductID)
	default:
		c.sendError(msg.ProductID, "unknown message type: "+msg.Type)
	}
}

func (c *Client) sendError(productID int64, message string) {
	c.enqueue(marshalMessage(model.ServerMessage{
		Type:      model.MessageTypeError,
		ProductID: productID,
		Message:   message,
	}))
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
