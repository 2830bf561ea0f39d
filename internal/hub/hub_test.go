package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school_messenger/internal/domain"
	"school_messenger/pkg/logger"
)

func newTestClient(h *Hub, rooms ...string) *Client {
	return &Client{
		UserID: uuid.New(),
		hub:    h,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		rooms:  rooms,
		log:    logger.Nop(),
	}
}

func receiveFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw := <-c.send:
		var frame Frame
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	default:
		t.Fatal("no frame queued")
		return Frame{}
	}
}

func TestHubPublishReachesRoomMembers(t *testing.T) {
	h := NewHub(logger.Nop())

	inRoom := newTestClient(h, "room-a")
	alsoIn := newTestClient(h, "room-a", "room-b")
	outside := newTestClient(h, "room-b")
	h.Register(inRoom)
	h.Register(alsoIn)
	h.Register(outside)

	msg := domain.Message{ID: uuid.New(), GroupKey: "room-a", Text: "hello", SortKey: "1"}
	h.Publish("room-a", msg)

	for _, c := range []*Client{inRoom, alsoIn} {
		frame := receiveFrame(t, c)
		assert.Equal(t, EventNewMessage, frame.Event)

		var got domain.Message
		require.NoError(t, json.Unmarshal(frame.Data, &got))
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, "hello", got.Text)
	}

	assert.Empty(t, outside.send)
}

func TestHubUnregisterLeavesRooms(t *testing.T) {
	h := NewHub(logger.Nop())

	c := newTestClient(h, "room-a")
	other := newTestClient(h, "room-a")
	h.Register(c)
	h.Register(other)
	require.Equal(t, 2, h.RoomSize("room-a"))

	h.Unregister(c)
	assert.Equal(t, 1, h.RoomSize("room-a"))

	// done is signalled exactly once; a second call must not panic
	h.Unregister(c)

	h.Publish("room-a", domain.Message{ID: uuid.New(), GroupKey: "room-a", SortKey: "1"})
	assert.Len(t, other.send, 1)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub(logger.Nop())

	slow := newTestClient(h, "room-a")
	slow.send = make(chan []byte) // unbuffered and never drained
	healthy := newTestClient(h, "room-a")
	h.Register(slow)
	h.Register(healthy)

	h.Publish("room-a", domain.Message{ID: uuid.New(), GroupKey: "room-a", SortKey: "1"})

	assert.Equal(t, 1, h.RoomSize("room-a"))
	assert.Len(t, healthy.send, 1)
}

// A member can disconnect between Publish snapshotting the room and the
// delivery attempt. Delivery to such a client must be skipped, never crash.
func TestHubPublishDuringDisconnect(t *testing.T) {
	h := NewHub(logger.Nop())

	leaving := newTestClient(h, "room-a")
	staying := newTestClient(h, "room-a")
	h.Register(leaving)
	h.Register(staying)

	// Teardown signalled while the client is still in the room's member set,
	// exactly the state a racing Unregister produces mid-publish.
	leaving.closeOnce.Do(func() { close(leaving.done) })

	h.Publish("room-a", domain.Message{ID: uuid.New(), GroupKey: "room-a", Text: "hi", SortKey: "1"})

	frame := receiveFrame(t, staying)
	assert.Equal(t, EventNewMessage, frame.Event)
	assert.Empty(t, leaving.send)
}

func TestHubConcurrentPublishAndUnregister(t *testing.T) {
	h := NewHub(logger.Nop())

	observer := newTestClient(h, "room-a")
	h.Register(observer)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		c := newTestClient(h, "room-a")
		h.Register(c)

		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			h.Publish("room-a", domain.Message{ID: uuid.New(), GroupKey: "room-a", SortKey: "1"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.RoomSize("room-a"))
}

func TestHubEmptyRoomIsNoop(t *testing.T) {
	h := NewHub(logger.Nop())
	h.Publish("room-x", domain.Message{ID: uuid.New(), SortKey: "1"})
	assert.Equal(t, 0, h.RoomSize("room-x"))
}
