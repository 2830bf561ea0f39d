package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"school_messenger/pkg/logger"
)

type Repositories struct {
	User    UserRepository
	Group   GroupRepository
	Message MessageRepository
	SortKey SortKeyRepository
}

func NewRepositories(db *pgxpool.Pool, redis *redis.Client, log logger.Logger) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db, log),
		Group:   NewGroupRepository(db, log),
		Message: NewMessageRepository(db, log),
		SortKey: NewSortKeyRepository(redis, log),
	}
}
