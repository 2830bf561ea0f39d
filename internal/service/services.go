package service

import (
	"school_messenger/internal/config"
	"school_messenger/internal/repository"
	"school_messenger/pkg/logger"
)

type Services struct {
	Auth  AuthService
	Group GroupService
	Chat  ChatService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, publisher Publisher, log logger.Logger) *Services {
	groups := NewGroupService(repos.Group, repos.Message, log)
	return &Services{
		Auth:  NewAuthService(repos.User, repos.Group, cfg.JWT, log),
		Group: groups,
		Chat:  NewChatService(repos.Message, repos.SortKey, groups, publisher, log),
	}
}
