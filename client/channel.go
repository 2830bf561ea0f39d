package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"school_messenger/internal/domain"
	"school_messenger/internal/hub"
	apperrors "school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

const (
	handshakeTimeout = 10 * time.Second
	ackTimeout       = 10 * time.Second
	subBufferSize    = 64
)

// Channel is the client end of the live update stream. One websocket carries
// every room the session was admitted to; subscribers get a per-room fan-out.
// After Close no further events are delivered.
type Channel struct {
	conn  *websocket.Conn
	rooms []string
	log   logger.Logger

	connected atomic.Bool

	mu      sync.Mutex
	subs    map[string]map[int64]chan domain.Message
	acks    map[int64]chan hub.Frame
	nextSub int64
	nextAck int64

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects, authenticates, and waits for the server's verdict. The
// first frame is either an admission carrying the room list or a terminal
// error, which is mapped to the typed sentinel it stands for.
func Dial(ctx context.Context, wsURL string, token string, log logger.Logger) (*Channel, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRemoteUnavailable, err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var first hub.Frame
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRemoteUnavailable, err)
	}
	conn.SetReadDeadline(time.Time{})

	switch first.Event {
	case hub.EventConnected:
		var payload hub.ConnectedPayload
		if err := json.Unmarshal(first.Data, &payload); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", apperrors.ErrRemoteUnavailable, err)
		}
		ch := &Channel{
			conn:  conn,
			rooms: payload.Rooms,
			log:   log,
			subs:  make(map[string]map[int64]chan domain.Message),
			acks:  make(map[int64]chan hub.Frame),
			done:  make(chan struct{}),
		}
		ch.connected.Store(true)
		go ch.readLoop()
		return ch, nil
	case hub.EventError:
		var payload hub.ErrorPayload
		_ = json.Unmarshal(first.Data, &payload)
		conn.Close()
		return nil, handshakeError(payload.Message)
	default:
		conn.Close()
		return nil, fmt.Errorf("%w: unexpected handshake event %q", apperrors.ErrRemoteUnavailable, first.Event)
	}
}

func handshakeError(message string) error {
	switch message {
	case hub.HandshakeTokenExpired:
		return apperrors.ErrTokenExpired
	case hub.HandshakeSchoolBlocked:
		return apperrors.ErrSchoolMismatch
	case hub.HandshakeSchoolMissing:
		return apperrors.ErrSchoolNotFound
	default:
		return apperrors.ErrUnauthenticated
	}
}

// Rooms returns the room list granted at handshake time.
func (c *Channel) Rooms() []string {
	return append([]string(nil), c.rooms...)
}

func (c *Channel) IsConnected() bool {
	return c.connected.Load()
}

// Subscribe registers a listener for one room. Pushes arriving faster than
// the listener drains are dropped for that listener only; the channel never
// blocks the read loop. The returned func cancels the subscription.
func (c *Channel) Subscribe(groupToken string) (<-chan domain.Message, func()) {
	ch := make(chan domain.Message, subBufferSize)

	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	if c.subs[groupToken] == nil {
		c.subs[groupToken] = make(map[int64]chan domain.Message)
	}
	c.subs[groupToken][id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if listeners, ok := c.subs[groupToken]; ok {
			if _, ok := listeners[id]; ok {
				delete(listeners, id)
				close(ch)
			}
			if len(listeners) == 0 {
				delete(c.subs, groupToken)
			}
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Send submits a new message for the group and waits for the server's
// acknowledgment. Any failure along the way surfaces as ErrSendFailed; the
// message will also arrive through the room subscription, which callers
// dedupe on sort key.
func (c *Channel) Send(ctx context.Context, groupToken, text string) (domain.Message, error) {
	if !c.connected.Load() {
		return domain.Message{}, fmt.Errorf("%w: channel closed", apperrors.ErrSendFailed)
	}

	c.mu.Lock()
	c.nextAck++
	ackID := c.nextAck
	ackCh := make(chan hub.Frame, 1)
	c.acks[ackID] = ackCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.acks, ackID)
		c.mu.Unlock()
	}()

	frame, err := hub.NewFrame(hub.EventMessageCreate, ackID, hub.CreatePayload{
		Group: groupToken,
		Text:  text,
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrSendFailed, err)
	}

	c.writeMu.Lock()
	err = c.conn.WriteJSON(frame)
	c.writeMu.Unlock()
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrSendFailed, err)
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()

	select {
	case reply := <-ackCh:
		if reply.Event == hub.EventError {
			var payload hub.ErrorPayload
			_ = json.Unmarshal(reply.Data, &payload)
			return domain.Message{}, fmt.Errorf("%w: %s", apperrors.ErrSendFailed, payload.Message)
		}
		var msg domain.Message
		if err := json.Unmarshal(reply.Data, &msg); err != nil {
			return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrSendFailed, err)
		}
		return msg, nil
	case <-timer.C:
		return domain.Message{}, fmt.Errorf("%w: ack timeout", apperrors.ErrSendFailed)
	case <-ctx.Done():
		return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrSendFailed, ctx.Err())
	case <-c.done:
		return domain.Message{}, fmt.Errorf("%w: channel closed", apperrors.ErrSendFailed)
	}
}

func (c *Channel) readLoop() {
	defer c.teardown()

	for {
		var frame hub.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if c.connected.Load() {
				c.log.Warn("Live channel read failed", "error", err)
			}
			return
		}

		switch {
		case frame.Ack != 0:
			c.mu.Lock()
			ackCh, ok := c.acks[frame.Ack]
			c.mu.Unlock()
			if ok {
				select {
				case ackCh <- frame:
				default:
				}
			}
		case frame.Event == hub.EventNewMessage:
			var msg domain.Message
			if err := json.Unmarshal(frame.Data, &msg); err != nil {
				c.log.Warn("Dropping malformed push", "error", err)
				continue
			}
			c.dispatch(msg)
		}
	}
}

func (c *Channel) dispatch(msg domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs[msg.GroupKey] {
		select {
		case ch <- msg:
		default:
			// slow listener, drop for this subscriber only
		}
	}
}

func (c *Channel) teardown() {
	c.connected.Store(false)
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	for token, listeners := range c.subs {
		for id, ch := range listeners {
			close(ch)
			delete(listeners, id)
		}
		delete(c.subs, token)
	}
}

// Close tears the channel down. Subscriptions are closed and no further
// events are delivered once Close returns.
func (c *Channel) Close() error {
	c.connected.Store(false)
	err := c.conn.Close()
	c.teardown()
	return err
}
