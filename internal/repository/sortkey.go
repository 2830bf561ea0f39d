package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"school_messenger/pkg/logger"
)

type SortKeyRepository interface {
	Next(ctx context.Context, groupKey string) (string, error)
}

type sortKeyRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewSortKeyRepository(redis *redis.Client, log logger.Logger) SortKeyRepository {
	return &sortKeyRepository{redis: redis, log: log}
}

// Next allocates the next sort key for a group. The per-group counter is
// seeded once with the current unix-nano time, so keys are large,
// time-correlated at group creation and strictly increasing afterwards.
// INCR is atomic, which makes keys unique within a group even under
// concurrent sends.
func (r *sortKeyRepository) Next(ctx context.Context, groupKey string) (string, error) {
	key := "group_seq:" + groupKey

	if err := r.redis.SetNX(ctx, key, time.Now().UnixNano(), 0).Err(); err != nil {
		r.log.Error("Failed to seed sort key counter", "error", err, "group", groupKey)
		return "", err
	}

	n, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		r.log.Error("Failed to allocate sort key", "error", err, "group", groupKey)
		return "", err
	}

	return strconv.FormatInt(n, 10), nil
}
