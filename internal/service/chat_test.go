package service

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school_messenger/internal/domain"
	apperrors "school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

type memMessageRepo struct {
	fakeMessageRepo
	byID map[uuid.UUID]*domain.Message
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{byID: make(map[uuid.UUID]*domain.Message)}
}

func (m *memMessageRepo) Create(_ context.Context, message *domain.Message, _ int64) error {
	copied := *message
	m.byID[message.ID] = &copied
	return nil
}

func (m *memMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	msg, ok := m.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (m *memMessageRepo) UpdateText(_ context.Context, id uuid.UUID, text string) (*domain.Message, error) {
	msg, ok := m.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	msg.Text = text
	copied := *msg
	return &copied, nil
}

type fakeSortKeys struct {
	next map[string]int64
}

func (f *fakeSortKeys) Next(_ context.Context, groupKey string) (string, error) {
	if f.next == nil {
		f.next = make(map[string]int64)
	}
	f.next[groupKey]++
	return strconv.FormatInt(f.next[groupKey], 10), nil
}

type capturingPublisher struct {
	rooms    []string
	messages []domain.Message
}

func (p *capturingPublisher) Publish(room string, message domain.Message) {
	p.rooms = append(p.rooms, room)
	p.messages = append(p.messages, message)
}

func newChatFixture(memberGroupID int64, userID uuid.UUID) (ChatService, *memMessageRepo, *capturingPublisher) {
	groupRepo := &fakeGroupRepo{
		members: map[int64]map[uuid.UUID]bool{
			memberGroupID: {userID: true},
		},
	}
	groups := NewGroupService(groupRepo, &fakeMessageRepo{}, logger.Nop())

	messageRepo := newMemMessageRepo()
	publisher := &capturingPublisher{}
	chat := NewChatService(messageRepo, &fakeSortKeys{}, groups, publisher, logger.Nop())
	return chat, messageRepo, publisher
}

func TestCreateMessagePublishesCanonicalRoom(t *testing.T) {
	userID := uuid.New()
	chat, _, publisher := newChatFixture(12, userID)
	user := &domain.User{ID: userID, SchoolID: 5}

	// fields in non-canonical order
	msg, err := chat.CreateMessage(context.Background(), user, "school=5&kind=custom&group=12", "  hello  ")
	require.NoError(t, err)

	canonical := domain.MustEncodeGroup(domain.NewCustomGroup(5, 12))
	assert.Equal(t, canonical, msg.GroupKey)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "1", msg.SortKey)
	assert.Equal(t, userID, msg.SenderID)

	require.Len(t, publisher.rooms, 1)
	assert.Equal(t, canonical, publisher.rooms[0])
	assert.Equal(t, msg.ID, publisher.messages[0].ID)
}

func TestCreateMessageSortKeysIncrease(t *testing.T) {
	userID := uuid.New()
	chat, _, _ := newChatFixture(12, userID)
	user := &domain.User{ID: userID, SchoolID: 5}
	token := domain.MustEncodeGroup(domain.NewCustomGroup(5, 12))

	prev := "0"
	for i := 0; i < 5; i++ {
		msg, err := chat.CreateMessage(context.Background(), user, token, "msg")
		require.NoError(t, err)
		assert.Equal(t, 1, domain.CompareSortKeys(msg.SortKey, prev))
		prev = msg.SortKey
	}
}

func TestCreateMessageValidation(t *testing.T) {
	userID := uuid.New()
	chat, _, publisher := newChatFixture(12, userID)
	user := &domain.User{ID: userID, SchoolID: 5}
	token := domain.MustEncodeGroup(domain.NewCustomGroup(5, 12))

	tests := []struct {
		name    string
		token   string
		text    string
		wantErr error
	}{
		{"empty text", token, "   ", apperrors.ErrBadRequest},
		{"oversized text", token, strings.Repeat("a", 4001), apperrors.ErrBadRequest},
		{"malformed token", "nonsense", "hi", apperrors.ErrMalformedIdentifier},
		{"not a member", domain.MustEncodeGroup(domain.NewCustomGroup(5, 13)), "hi", apperrors.ErrNotGroupMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chat.CreateMessage(context.Background(), user, tt.token, tt.text)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, publisher.rooms)
}

func TestEditMessageKeepsSortKeyAndRepublishes(t *testing.T) {
	userID := uuid.New()
	chat, _, publisher := newChatFixture(12, userID)
	user := &domain.User{ID: userID, SchoolID: 5}
	token := domain.MustEncodeGroup(domain.NewCustomGroup(5, 12))

	created, err := chat.CreateMessage(context.Background(), user, token, "typo")
	require.NoError(t, err)

	updated, err := chat.EditMessage(context.Background(), user, created.ID, "fixed")
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.SortKey, updated.SortKey)
	assert.Equal(t, "fixed", updated.Text)

	// create + edit both hit the room
	require.Len(t, publisher.messages, 2)
	assert.Equal(t, "fixed", publisher.messages[1].Text)
	assert.Equal(t, created.SortKey, publisher.messages[1].SortKey)
}

func TestEditMessageSenderOnly(t *testing.T) {
	userID := uuid.New()
	chat, repo, _ := newChatFixture(12, userID)

	other := &domain.Message{
		ID:        uuid.New(),
		GroupKey:  domain.MustEncodeGroup(domain.NewCustomGroup(5, 12)),
		SenderID:  uuid.New(),
		Text:      "not yours",
		SortKey:   "1",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), other, 5))

	user := &domain.User{ID: userID, SchoolID: 5}
	_, err := chat.EditMessage(context.Background(), user, other.ID, "hijacked")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = chat.EditMessage(context.Background(), user, uuid.New(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListMessagesClampsLimit(t *testing.T) {
	userID := uuid.New()
	groupRepo := &fakeGroupRepo{
		members: map[int64]map[uuid.UUID]bool{12: {userID: true}},
	}
	groups := NewGroupService(groupRepo, &fakeMessageRepo{}, logger.Nop())

	repo := &limitRecordingRepo{}
	chat := NewChatService(repo, &fakeSortKeys{}, groups, &capturingPublisher{}, logger.Nop())

	user := &domain.User{ID: userID, SchoolID: 5}
	token := domain.MustEncodeGroup(domain.NewCustomGroup(5, 12))

	_, err := chat.ListMessages(context.Background(), user, token, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 50, repo.lastLimit)

	_, err = chat.ListMessages(context.Background(), user, token, 500, "")
	require.NoError(t, err)
	assert.Equal(t, 50, repo.lastLimit)

	_, err = chat.ListMessages(context.Background(), user, token, 25, "")
	require.NoError(t, err)
	assert.Equal(t, 25, repo.lastLimit)
}

type limitRecordingRepo struct {
	fakeMessageRepo
	lastLimit int
}

func (r *limitRecordingRepo) ListByGroup(_ context.Context, _ string, limit int, _ string) ([]domain.Message, error) {
	r.lastLimit = limit
	return nil, nil
}
