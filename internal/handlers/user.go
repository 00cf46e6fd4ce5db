package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"channel-service/internal/models"
	"channel-service/internal/repositories"
)

// UserHandler exposes the caller's own profile.
type UserHandler struct {
	userRepo    repositories.UserRepository
	channelRepo repositories.ChannelRepository
	events      *EventPublisher
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(userRepo repositories.UserRepository, channelRepo repositories.ChannelRepository, events *EventPublisher) *UserHandler {
	return &UserHandler{userRepo: userRepo, channelRepo: channelRepo, events: events}
}

// GetMe returns the authenticated user's profile.
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.userRepo.Get(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe changes the caller's display name and announces the change on
// every channel the caller belongs to.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	user, err := h.userRepo.UpdateUsername(c.Request.Context(), userID, req.Username)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not update user"})
		return
	}

	channelIDs, err := h.channelRepo.ListMemberChannelIDs(c.Request.Context(), userID)
	if err == nil {
		event := models.NewEvent(models.EventUserUpdated, uuid.Nil, userID, user)
		h.events.PublishUserEvent(c.Request.Context(), channelIDs, event)
	}

	c.JSON(http.StatusOK, user)
}
