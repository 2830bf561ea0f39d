package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"school_messenger/internal/service"
	"school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

type GroupHandler struct {
	groupService service.GroupService
	log          logger.Logger
}

func NewGroupHandler(groupService service.GroupService, log logger.Logger) *GroupHandler {
	return &GroupHandler{
		groupService: groupService,
		log:          log,
	}
}

func (h *GroupHandler) List(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	sortBy := c.DefaultQuery("sort", "name")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	groups, err := h.groupService.ListGroups(c.Request.Context(), user, sortBy, page)
	if err != nil {
		c.JSON(errors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"groups": groups})
}
