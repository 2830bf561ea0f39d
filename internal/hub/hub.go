package hub

import (
	"encoding/json"
	"sync"

	"school_messenger/internal/domain"
	"school_messenger/pkg/logger"
)

// Hub multiplexes many logical group subscriptions over the set of live
// connections. Rooms are keyed by the encoded group token, so publishing to
// a group needs nothing beyond the token itself.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	log   logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		log:   log,
	}
}

// Register attaches the client to every room in its room set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	}
	h.log.Debug("Client registered", "user_id", c.UserID, "rooms", len(c.rooms))
}

// Unregister detaches the client from all rooms and signals its write pump
// to shut down. The send queue itself is never closed: a concurrent Publish
// may still hold the client in a member snapshot taken before removal, and a
// send on a closed channel panics even inside a select. Safe to call more
// than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	for _, room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	c.closeOnce.Do(func() { close(c.done) })
}

// Publish delivers a message frame to every member of the room, the sender
// included. A member whose send queue is full is dropped rather than allowed
// to stall delivery for the rest of the room.
func (h *Hub) Publish(room string, message domain.Message) {
	frame, err := NewFrame(EventNewMessage, 0, message)
	if err != nil {
		h.log.Error("Failed to encode message frame", "error", err)
		return
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("Failed to encode message frame", "error", err)
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		select {
		case <-c.done:
			// already tearing down, skip
			continue
		default:
		}
		select {
		case c.send <- raw:
		case <-c.done:
		default:
			h.log.Warn("Dropping slow client", "user_id", c.UserID)
			h.Unregister(c)
		}
	}
}

// RoomSize reports the current member count of a room. Used by tests and
// the health endpoint.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
