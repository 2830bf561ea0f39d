package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"school_messenger/internal/domain"
	apperrors "school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message, schoolID int64) error
	ListByGroup(ctx context.Context, groupKey string, limit int, cursor string) ([]domain.Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	UpdateText(ctx context.Context, id uuid.UUID, text string) (*domain.Message, error)
	LastMessageAt(ctx context.Context, groupKeys []string) (map[string]time.Time, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message, schoolID int64) error {
	query := `
		INSERT INTO messages (id, group_key, school_id, sender_id, text, sort_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		message.ID, message.GroupKey, schoolID, message.SenderID,
		message.Text, message.SortKey, message.CreatedAt,
	).Scan(&message.CreatedAt)

	if err != nil {
		r.log.Error("Failed to create message", "error", err, "group", message.GroupKey)
		return err
	}

	return nil
}

// ListByGroup returns up to limit messages newest-first. A non-empty cursor
// is an inclusive upper bound on sort_key, which is how clients page back
// into older history. sort_key is NUMERIC so ordering and the cursor
// comparison keep full precision for keys beyond 64 bits.
func (r *messageRepository) ListByGroup(ctx context.Context, groupKey string, limit int, cursor string) ([]domain.Message, error) {
	query := `
		SELECT id, group_key, sender_id, text, sort_key::text, created_at
		FROM messages
		WHERE group_key = $1
		ORDER BY sort_key DESC
		LIMIT $2
	`
	args := []any{groupKey, limit}
	if cursor != "" {
		query = `
			SELECT id, group_key, sender_id, text, sort_key::text, created_at
			FROM messages
			WHERE group_key = $1 AND sort_key <= $2::numeric
			ORDER BY sort_key DESC
			LIMIT $3
		`
		args = []any{groupKey, cursor, limit}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err, "group", groupKey)
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.GroupKey, &m.SenderID, &m.Text, &m.SortKey, &m.CreatedAt); err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT id, group_key, sender_id, text, sort_key::text, created_at
		FROM messages
		WHERE id = $1
	`

	m := &domain.Message{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.GroupKey, &m.SenderID, &m.Text, &m.SortKey, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get message", "error", err, "id", id)
		return nil, err
	}

	return m, nil
}

// UpdateText rewrites the text in place. The sort_key is deliberately left
// untouched: the edited message is rebroadcast under the same key and
// clients replace the old entry during reconciliation.
func (r *messageRepository) UpdateText(ctx context.Context, id uuid.UUID, text string) (*domain.Message, error) {
	query := `
		UPDATE messages
		SET text = $2
		WHERE id = $1
		RETURNING id, group_key, sender_id, text, sort_key::text, created_at
	`

	m := &domain.Message{}
	err := r.db.QueryRow(ctx, query, id, text).Scan(
		&m.ID, &m.GroupKey, &m.SenderID, &m.Text, &m.SortKey, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to update message", "error", err, "id", id)
		return nil, err
	}

	return m, nil
}

func (r *messageRepository) LastMessageAt(ctx context.Context, groupKeys []string) (map[string]time.Time, error) {
	query := `
		SELECT group_key, MAX(created_at)
		FROM messages
		WHERE group_key = ANY($1)
		GROUP BY group_key
	`

	rows, err := r.db.Query(ctx, query, groupKeys)
	if err != nil {
		r.log.Error("Failed to query last message times", "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var key string
		var at time.Time
		if err := rows.Scan(&key, &at); err != nil {
			return nil, err
		}
		out[key] = at
	}

	return out, rows.Err()
}
