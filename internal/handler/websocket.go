package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"school_messenger/internal/domain"
	"school_messenger/internal/hub"
	"school_messenger/internal/service"
	apperrors "school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is enforced at the gateway
	},
}

type WebSocketHandler struct {
	hub          *hub.Hub
	authService  service.AuthService
	groupService service.GroupService
	chatService  service.ChatService
	log          logger.Logger
}

func NewWebSocketHandler(h *hub.Hub, authService service.AuthService, groupService service.GroupService, chatService service.ChatService, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:          h,
		authService:  authService,
		groupService: groupService,
		chatService:  chatService,
		log:          log,
	}
}

// Handle upgrades the connection and runs the live-channel handshake:
// validate the bearer credential, resolve the user's full room set and join
// every room. Handshake failures are terminal; the client gets a single
// error frame with the wire-level reason and the connection closes.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := bearerToken(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	if token == "" {
		h.reject(conn, hub.HandshakeTokenNecessary)
		return
	}

	user, _, err := h.authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		h.reject(conn, handshakeReason(err))
		return
	}

	rooms, err := h.groupService.RoomsForUser(c.Request.Context(), user)
	if err != nil {
		h.log.Error("Failed to compute rooms", "error", err, "user_id", user.ID)
		h.reject(conn, hub.HandshakeSchoolMissing)
		return
	}

	onCreate := func(ctx context.Context, groupToken, text string) (domain.Message, error) {
		message, err := h.chatService.CreateMessage(ctx, user, groupToken, text)
		if err != nil {
			return domain.Message{}, err
		}
		return *message, nil
	}

	client := hub.NewClient(h.hub, conn, user.ID, user.SchoolID, rooms, onCreate, h.log)
	h.log.Info("Live channel connected", "user_id", user.ID, "rooms", len(rooms))

	// Run blocks for the lifetime of the connection; gin handlers are
	// per-connection goroutines already.
	client.Run(context.Background())
}

func (h *WebSocketHandler) reject(conn *websocket.Conn, reason string) {
	frame, err := hub.NewFrame(hub.EventError, 0, hub.ErrorPayload{Message: reason})
	if err == nil {
		if raw, err := json.Marshal(frame); err == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			_ = conn.WriteMessage(websocket.TextMessage, raw)
		}
	}
	_ = conn.Close()
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return c.Query("token")
}

// handshakeReason maps the auth error taxonomy onto the stringly-typed wire
// contract older clients parse.
func handshakeReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrTokenExpired):
		return hub.HandshakeTokenExpired
	case errors.Is(err, apperrors.ErrSchoolMismatch), errors.Is(err, apperrors.ErrSchoolInactive):
		return hub.HandshakeSchoolBlocked
	case errors.Is(err, apperrors.ErrSchoolNotFound):
		return hub.HandshakeSchoolMissing
	default:
		return hub.HandshakeInvalidToken
	}
}
