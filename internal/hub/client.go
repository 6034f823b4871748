package hub

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

// Client is one WebSocket connection. marketID and memberID are guarded by
// the hub mutex; send is owned by writePump.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	writeTimeout time.Duration
	pongTimeout  time.Duration

	marketID string
	memberID int64

	logger logger.Interface
}

// NewClient wraps an upgraded connection.
func NewClient(h *Hub, conn *websocket.Conn, cfg config.HubConfig, log logger.Interface) *Client {
	return &Client{
		id:           uuid.NewString(),
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, cfg.SendBufferSize),
		writeTimeout: cfg.WriteTimeout,
		pongTimeout:  cfg.PongTimeout,
		logger:       log,
	}
}

// Serve registers the client and runs its pumps until the connection dies.
func (c *Client) Serve(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	done := make(chan struct{})
	go c.writePump(done)
	c.readPump(ctx)
	close(done)
}

func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.DebugContext(ctx, "client read failed",
					logger.Field{Key: "clientID", Value: c.id},
					logger.Field{Key: "error", Value: err.Error()},
				)
			}
			return
		}
		c.hub.handle(ctx, c, raw)
	}
}

func (c *Client) writePump(done <-chan struct{}) {
	ping := time.NewTicker(c.pongTimeout * 9 / 10)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) enqueue(msg serverMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error(err, logger.Field{Key: "clientID", Value: c.id})
		return
	}
	c.enqueueRaw(payload)
}

// enqueueRaw drops the message when the buffer is full so one slow consumer
// never stalls the broadcast loop.
func (c *Client) enqueueRaw(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("dropping message for slow client",
			logger.Field{Key: "clientID", Value: c.id},
		)
	}
}
