package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"school_messenger/internal/domain"
	"school_messenger/internal/repository"
	apperrors "school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

const maxMessageLength = 4000

// Publisher delivers a created or edited message to every live connection
// subscribed to the room named by the encoded group token. Implemented by
// the hub.
type Publisher interface {
	Publish(room string, message domain.Message)
}

type ChatService interface {
	// CreateMessage persists a composed message with a server-assigned id and
	// sort key and rebroadcasts it to the whole room, sender included.
	CreateMessage(ctx context.Context, user *domain.User, groupToken, text string) (*domain.Message, error)
	ListMessages(ctx context.Context, user *domain.User, groupToken string, limit int, cursor string) ([]domain.Message, error)
	EditMessage(ctx context.Context, user *domain.User, id uuid.UUID, text string) (*domain.Message, error)
}

type chatService struct {
	messageRepo repository.MessageRepository
	sortKeys    repository.SortKeyRepository
	groups      GroupService
	publisher   Publisher
	log         logger.Logger
}

func NewChatService(messageRepo repository.MessageRepository, sortKeys repository.SortKeyRepository, groups GroupService, publisher Publisher, log logger.Logger) ChatService {
	return &chatService{
		messageRepo: messageRepo,
		sortKeys:    sortKeys,
		groups:      groups,
		publisher:   publisher,
		log:         log,
	}
}

func (s *chatService) CreateMessage(ctx context.Context, user *domain.User, groupToken, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxMessageLength {
		return nil, apperrors.ErrBadRequest
	}

	gid, err := domain.DecodeGroup(groupToken)
	if err != nil {
		return nil, err
	}
	// Re-encode so storage and room delivery always use the canonical token,
	// whatever field order the client sent.
	token := domain.MustEncodeGroup(gid)

	ok, err := s.groups.CanAccess(ctx, user, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrNotGroupMember
	}

	sortKey, err := s.sortKeys.Next(ctx, token)
	if err != nil {
		s.log.Error("Failed to allocate sort key", "error", err, "group", token)
		return nil, err
	}

	message := &domain.Message{
		ID:        uuid.New(),
		GroupKey:  token,
		SenderID:  user.ID,
		Text:      text,
		SortKey:   sortKey,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.messageRepo.Create(ctx, message, user.SchoolID); err != nil {
		return nil, err
	}

	s.publisher.Publish(token, *message)
	return message, nil
}

func (s *chatService) ListMessages(ctx context.Context, user *domain.User, groupToken string, limit int, cursor string) ([]domain.Message, error) {
	gid, err := domain.DecodeGroup(groupToken)
	if err != nil {
		return nil, err
	}
	token := domain.MustEncodeGroup(gid)

	ok, err := s.groups.CanAccess(ctx, user, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrNotGroupMember
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.messageRepo.ListByGroup(ctx, token, limit, cursor)
}

// EditMessage rewrites the text of an existing message and republishes it to
// the room under the original sort key. Clients holding the old version
// replace it during reconciliation because newer data wins on equal keys.
func (s *chatService) EditMessage(ctx context.Context, user *domain.User, id uuid.UUID, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxMessageLength {
		return nil, apperrors.ErrBadRequest
	}

	existing, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.SenderID != user.ID {
		return nil, apperrors.ErrForbidden
	}

	updated, err := s.messageRepo.UpdateText(ctx, id, text)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(updated.GroupKey, *updated)
	return updated, nil
}
