package client

import (
	"context"
	"fmt"
	"sync"

	"school_messenger/internal/domain"
	apperrors "school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

// SessionConfig carries the endpoints and credential source for one signed-in
// user. StorePath may be empty to run cache-less.
type SessionConfig struct {
	BaseURL   string
	WSURL     string
	StorePath string
	Token     TokenSource
}

// Session owns the per-user client stack: remote API, local cache, live
// channel, and one timeline per opened group. Losing the cache or the live
// connection degrades the experience but never takes the session down.
type Session struct {
	cfg   SessionConfig
	api   *API
	store MessageStore
	live  *Channel
	log   logger.Logger

	mu        sync.Mutex
	timelines map[string]*Timeline

	closer func() error
}

func NewSession(ctx context.Context, cfg SessionConfig, log logger.Logger) (*Session, error) {
	s := &Session{
		cfg:       cfg,
		api:       NewAPI(cfg.BaseURL, cfg.Token, log),
		log:       log,
		timelines: make(map[string]*Timeline),
		closer:    func() error { return nil },
	}

	if cfg.StorePath != "" {
		store, err := OpenStore(cfg.StorePath, log)
		if err != nil {
			log.Warn("Running without local cache", "error", err)
			s.store = nopStore{}
		} else {
			s.store = store
			s.closer = store.Close
		}
	} else {
		s.store = nopStore{}
	}

	live, err := Dial(ctx, cfg.WSURL, cfg.Token(), log)
	if err != nil {
		s.closer()
		return nil, err
	}
	s.live = live

	return s, nil
}

// Timeline returns the started timeline for a group, creating it on first
// use. The token is canonicalized first so callers supplying fields in any
// order land on the same view.
func (s *Session) Timeline(ctx context.Context, groupToken string) (*Timeline, error) {
	ident, err := domain.DecodeGroup(groupToken)
	if err != nil {
		return nil, err
	}
	canonical, err := domain.EncodeGroup(ident)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedIdentifier, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timelines[canonical]; ok {
		return t, nil
	}

	t := NewTimeline(canonical, s.api, s.store, s.live, s.log)
	t.Start(ctx)
	s.timelines[canonical] = t
	return t, nil
}

// Groups lists the user's custom groups from the server.
func (s *Session) Groups(ctx context.Context, sortBy string, page int) ([]domain.GroupSummary, error) {
	return s.api.Groups(ctx, sortBy, page)
}

// Rooms returns the rooms granted at connect time.
func (s *Session) Rooms() []string {
	return s.live.Rooms()
}

func (s *Session) Connected() bool {
	return s.live != nil && s.live.IsConnected()
}

func (s *Session) Close() error {
	s.mu.Lock()
	for token, t := range s.timelines {
		t.Stop()
		delete(s.timelines, token)
	}
	s.mu.Unlock()

	if s.live != nil {
		s.live.Close()
	}
	return s.closer()
}

// nopStore keeps the session functional when the on-disk cache cannot be
// opened; reads come back empty and writes vanish.
type nopStore struct{}

func (nopStore) Upsert([]domain.Message) error { return nil }

func (nopStore) Fetch(string, int, string) ([]domain.Message, error) {
	return []domain.Message{}, nil
}
