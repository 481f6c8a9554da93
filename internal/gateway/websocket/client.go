package websocket

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/pkg/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

// Handler dispatches one parsed inbound frame. Replies go through the
// client's Send.
type Handler interface {
	HandleFrame(ctx context.Context, c *Client, in *protocol.Inbound)
}

// Client represents a single WebSocket connection.
type Client struct {
	ID      string
	conn    *websocket.Conn
	hub     *Hub
	handler Handler
	send    chan []byte
	logger  *logger.Logger
}

// NewClient creates a new WebSocket client.
func NewClient(id string, conn *websocket.Conn, hub *Hub, handler Handler, log *logger.Logger) *Client {
	return &Client{
		ID:      id,
		conn:    conn,
		hub:     hub,
		handler: handler,
		send:    make(chan []byte, 256),
		logger:  log.WithFields(zap.String("client_id", id)),
	}
}

// Send queues one frame for this client only. Full buffers drop the frame
// rather than stall the caller.
func (c *Client) Send(frame protocol.Frame) {
	data, err := frame.Encode()
	if err != nil {
		c.logger.Error("Failed to marshal frame", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("Client send buffer full")
	}
}

// ReadPump pumps frames from the WebSocket connection to the handler.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		in, err := protocol.ParseInbound(message)
		if err != nil {
			c.logger.Debug("Failed to parse frame", zap.Error(err))
			c.Send(protocol.Error("", protocol.MsgInvalidJSON))
			continue
		}

		c.handler.HandleFrame(ctx, c, in)
	}
}

// WritePump pumps queued frames to the WebSocket connection. Each frame
// goes out as its own text message so clients can decode one JSON object
// per message.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
