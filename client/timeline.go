package client

import (
	"context"
	"sort"
	"sync"

	"school_messenger/internal/domain"
	"school_messenger/pkg/logger"
)

// Collaborator seams. The concrete API, Store, and Channel satisfy these;
// tests substitute fakes.
type RemoteFetcher interface {
	GroupMessages(ctx context.Context, groupToken string, limit int, cursor string) ([]domain.Message, error)
}

type MessageStore interface {
	Upsert(messages []domain.Message) error
	Fetch(groupToken string, limit int, cursor string) ([]domain.Message, error)
}

type LiveFeed interface {
	Subscribe(groupToken string) (<-chan domain.Message, func())
	Send(ctx context.Context, groupToken, text string) (domain.Message, error)
}

// TimelineState tracks how far the merge pipeline has progressed for a
// group view.
type TimelineState int

const (
	StateIdle TimelineState = iota
	StateLoadingLocal
	StateLoadingRemote
	StateMerged
)

const defaultPageSize = 50

// Reconcile merges a new batch into an existing newest-first timeline.
// Messages are identified by sort key; on a collision the batch entry wins,
// which is how edits propagate (the server republishes the same sort key
// with new text). The result is always newest first and duplicate free.
func Reconcile(existing, newBatch []domain.Message) []domain.Message {
	if len(newBatch) == 0 {
		return existing
	}
	if len(existing) == 0 {
		merged := append([]domain.Message(nil), newBatch...)
		sortNewestFirst(merged)
		return merged
	}

	byKey := make(map[string]domain.Message, len(existing)+len(newBatch))
	for _, m := range existing {
		byKey[m.SortKey] = m
	}
	for _, m := range newBatch {
		byKey[m.SortKey] = m
	}

	merged := make([]domain.Message, 0, len(byKey))
	for _, m := range byKey {
		merged = append(merged, m)
	}
	sortNewestFirst(merged)
	return merged
}

func sortNewestFirst(messages []domain.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return domain.CompareSortKeys(messages[i].SortKey, messages[j].SortKey) > 0
	})
}

// Timeline is one group's merged view: cached history first, then remote
// history, with live pushes folded in as they arrive. It only ever grows or
// replaces entries; messages never reorder or vanish underneath the UI.
type Timeline struct {
	groupToken string
	remote     RemoteFetcher
	store      MessageStore
	live       LiveFeed
	log        logger.Logger

	mu       sync.RWMutex
	state    TimelineState
	messages []domain.Message

	notify chan struct{}

	cancelSub func()
	stopOnce  sync.Once
}

func NewTimeline(groupToken string, remote RemoteFetcher, store MessageStore, live LiveFeed, log logger.Logger) *Timeline {
	return &Timeline{
		groupToken: groupToken,
		remote:     remote,
		store:      store,
		live:       live,
		log:        log,
		state:      StateIdle,
		notify:     make(chan struct{}, 1),
	}
}

// Start runs the merge pipeline: show the cache immediately, subscribe to
// live pushes so nothing is missed during the fetch, then refresh from the
// server in the background. Safe to call once.
func (t *Timeline) Start(ctx context.Context) {
	t.setState(StateLoadingLocal)

	cached, err := t.store.Fetch(t.groupToken, defaultPageSize, "")
	if err != nil {
		t.log.Warn("Local history unavailable", "error", err, "group", t.groupToken)
	} else if len(cached) > 0 {
		t.apply(cached)
	}

	if t.live != nil {
		pushes, cancel := t.live.Subscribe(t.groupToken)
		t.cancelSub = cancel
		go t.consumePushes(pushes)
	}

	t.setState(StateLoadingRemote)
	go t.refresh(ctx)
}

func (t *Timeline) consumePushes(pushes <-chan domain.Message) {
	for msg := range pushes {
		if err := t.store.Upsert([]domain.Message{msg}); err != nil {
			t.log.Warn("Failed to cache live message", "error", err)
		}
		t.apply([]domain.Message{msg})
	}
}

func (t *Timeline) refresh(ctx context.Context) {
	fetched, err := t.remote.GroupMessages(ctx, t.groupToken, defaultPageSize, "")
	if err != nil {
		t.log.Warn("Remote refresh failed", "error", err, "group", t.groupToken)
		t.setState(StateMerged)
		return
	}

	if err := t.store.Upsert(fetched); err != nil {
		t.log.Warn("Failed to cache remote page", "error", err)
		// cache is best effort; merge the network response directly
		t.apply(fetched)
		t.setState(StateMerged)
		return
	}

	merged, err := t.store.Fetch(t.groupToken, defaultPageSize, "")
	if err != nil {
		t.apply(fetched)
	} else {
		t.apply(merged)
	}
	t.setState(StateMerged)
}

// FetchNextPage loads one more page of older history, keyed off the oldest
// message currently held. A no-op on an empty timeline.
func (t *Timeline) FetchNextPage(ctx context.Context) error {
	t.mu.RLock()
	var cursor string
	if n := len(t.messages); n > 0 {
		cursor = t.messages[n-1].SortKey
	}
	t.mu.RUnlock()
	if cursor == "" {
		return nil
	}

	// The cache may hold older history the server page won't repeat, for
	// example rows written by a previous session. Page both sources from the
	// same cursor and reconcile each.
	cached, cacheErr := t.store.Fetch(t.groupToken, defaultPageSize, cursor)
	if cacheErr != nil {
		t.log.Warn("Local history page unavailable", "error", cacheErr)
	} else if len(cached) > 0 {
		t.apply(cached)
	}

	page, err := t.remote.GroupMessages(ctx, t.groupToken, defaultPageSize, cursor)
	if err != nil {
		if len(cached) > 0 {
			return nil
		}
		return err
	}

	if err := t.store.Upsert(page); err != nil {
		t.log.Warn("Failed to cache history page", "error", err)
	}
	t.apply(page)
	return nil
}

// Send forwards composition to the live channel. The timeline itself is
// only mutated when the message comes back, through the ack or the room
// rebroadcast; both funnel through apply, which dedupes on sort key.
func (t *Timeline) Send(ctx context.Context, text string) (domain.Message, error) {
	msg, err := t.live.Send(ctx, t.groupToken, text)
	if err != nil {
		return domain.Message{}, err
	}
	if err := t.store.Upsert([]domain.Message{msg}); err != nil {
		t.log.Warn("Failed to cache sent message", "error", err)
	}
	t.apply([]domain.Message{msg})
	return msg, nil
}

func (t *Timeline) apply(batch []domain.Message) {
	t.mu.Lock()
	t.messages = Reconcile(t.messages, batch)
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the merged view, newest first.
func (t *Timeline) Snapshot() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.Message(nil), t.messages...)
}

// Updates signals after every change to the merged view. The channel is
// coalescing, so a reader always sees at most one pending signal.
func (t *Timeline) Updates() <-chan struct{} {
	return t.notify
}

func (t *Timeline) State() TimelineState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Timeline) setState(s TimelineState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Timeline) Stop() {
	t.stopOnce.Do(func() {
		if t.cancelSub != nil {
			t.cancelSub()
		}
	})
}
