package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"school_messenger/internal/domain"
	"school_messenger/internal/service"
	"school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

type MessageHandler struct {
	chatService service.ChatService
	log         logger.Logger
}

func NewMessageHandler(chatService service.ChatService, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		chatService: chatService,
		log:         log,
	}
}

// List is the remote-fetch collaborator: paginated history for one group.
// The cursor query parameter is the sort key to page back from, inclusive.
func (h *MessageHandler) List(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	groupToken := c.Query("group")
	if groupToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group is required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	cursor := c.Query("cursor")

	messages, err := h.chatService.ListMessages(c.Request.Context(), user, groupToken, limit, cursor)
	if err != nil {
		c.JSON(errors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type EditMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *MessageHandler) Edit(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.chatService.EditMessage(c.Request.Context(), user, messageID, req.Text)
	if err != nil {
		c.JSON(errors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, message)
}

// currentUser pulls the authenticated user placed by the auth middleware.
func currentUser(c *gin.Context) *domain.User {
	value, exists := c.Get("user")
	if !exists {
		return nil
	}
	user, ok := value.(*domain.User)
	if !ok {
		return nil
	}
	return user
}
