package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"school_messenger/internal/domain"
	"school_messenger/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

// CreateFunc handles a messageCreate command from this connection. The hub
// stays transport-only; persistence and fan-out live behind this callback.
type CreateFunc func(ctx context.Context, groupToken, text string) (domain.Message, error)

// Client is one live connection, subscribed to a fixed room set computed at
// handshake time. Role changes are picked up on the next connection, never
// mid-session.
type Client struct {
	UserID   uuid.UUID
	SchoolID int64

	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	rooms    []string
	onCreate CreateFunc
	log      logger.Logger

	closeOnce sync.Once
}

func NewClient(h *Hub, conn *websocket.Conn, userID uuid.UUID, schoolID int64, rooms []string, onCreate CreateFunc, log logger.Logger) *Client {
	return &Client{
		UserID:   userID,
		SchoolID: schoolID,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		rooms:    rooms,
		onCreate: onCreate,
		log:      log,
	}
}

// Run registers the client, sends the connected frame with the joined room
// set and pumps frames until the connection drops. Blocks until the read
// side finishes.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	if frame, err := NewFrame(EventConnected, 0, ConnectedPayload{Rooms: c.rooms}); err == nil {
		if raw, err := json.Marshal(frame); err == nil {
			c.send <- raw
		}
	}

	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Unexpected close", "error", err, "user_id", c.UserID)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError(0, "malformed frame")
			continue
		}

		switch frame.Event {
		case EventMessageCreate:
			c.handleCreate(ctx, frame)
		default:
			c.sendError(frame.Ack, "unknown event")
		}
	}
}

func (c *Client) handleCreate(ctx context.Context, frame Frame) {
	var payload CreatePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		c.sendError(frame.Ack, "malformed payload")
		return
	}

	message, err := c.onCreate(ctx, payload.Group, payload.Text)
	if err != nil {
		c.log.Warn("messageCreate rejected", "error", err, "user_id", c.UserID)
		c.sendError(frame.Ack, err.Error())
		return
	}

	// Direct acknowledgment; the room rebroadcast happens on the publish
	// path and also reaches this connection.
	if ack, err := NewFrame(EventAck, frame.Ack, message); err == nil {
		if raw, err := json.Marshal(ack); err == nil {
			select {
			case c.send <- raw:
			default:
			}
		}
	}
}

func (c *Client) sendError(ack int64, message string) {
	frame, err := NewFrame(EventError, ack, ErrorPayload{Message: message})
	if err != nil {
		return
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case raw := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
