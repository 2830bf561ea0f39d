package handler

import (
	"school_messenger/internal/config"
	"school_messenger/internal/hub"
	"school_messenger/internal/service"
	"school_messenger/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Auth      *AuthHandler
	Message   *MessageHandler
	Group     *GroupHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, liveHub *hub.Hub, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(cfg.Environment),
		Auth:      NewAuthHandler(services.Auth, log),
		Message:   NewMessageHandler(services.Chat, log),
		Group:     NewGroupHandler(services.Group, log),
		WebSocket: NewWebSocketHandler(liveHub, services.Auth, services.Group, services.Chat, log),
	}
}
