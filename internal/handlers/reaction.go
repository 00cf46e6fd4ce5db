package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"channel-service/internal/models"
	"channel-service/internal/repositories"
)

// ReactionHandler manages emoji reactions on messages.
type ReactionHandler struct {
	channelRepo  repositories.ChannelRepository
	messageRepo  repositories.MessageRepository
	reactionRepo repositories.ReactionRepository
	events       *EventPublisher
}

// NewReactionHandler builds a ReactionHandler.
func NewReactionHandler(channelRepo repositories.ChannelRepository, messageRepo repositories.MessageRepository, reactionRepo repositories.ReactionRepository, events *EventPublisher) *ReactionHandler {
	return &ReactionHandler{
		channelRepo:  channelRepo,
		messageRepo:  messageRepo,
		reactionRepo: reactionRepo,
		events:       events,
	}
}

// AddReaction records the caller's emoji on a message. Reacting twice
// with the same emoji returns the existing reaction.
func (h *ReactionHandler) AddReaction(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, ok := h.loadMessage(c, messageID)
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	if !h.requireMember(c, msg.ChannelID, userID) {
		return
	}

	reaction, err := h.reactionRepo.Add(c.Request.Context(), messageID, userID, req.Emoji)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add reaction"})
		return
	}

	h.events.PublishChannelEvent(c.Request.Context(), models.NewEvent(models.EventReactionAdded, msg.ChannelID, userID, reaction))
	c.JSON(http.StatusCreated, reaction)
}

// RemoveReaction deletes the caller's own reaction, addressed by emoji.
func (h *ReactionHandler) RemoveReaction(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}
	emoji := c.Query("emoji")
	if emoji == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emoji is required"})
		return
	}

	msg, ok := h.loadMessage(c, messageID)
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	reaction, err := h.reactionRepo.GetByMessageUserEmoji(c.Request.Context(), messageID, userID, emoji)
	if err != nil {
		if errors.Is(err, repositories.ErrReactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove reaction"})
		return
	}

	if err := h.reactionRepo.Remove(c.Request.Context(), reaction.ID, userID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrReactionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "reaction not found"})
		case errors.Is(err, repositories.ErrNotReactionOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "not your reaction"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove reaction"})
		}
		return
	}

	h.events.PublishChannelEvent(c.Request.Context(), models.NewEvent(models.EventReactionRemoved, msg.ChannelID, userID, gin.H{
		"message_id": messageID,
		"emoji":      emoji,
	}))
	c.Status(http.StatusNoContent)
}

// ListReactions returns all reactions on a message.
func (h *ReactionHandler) ListReactions(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	msg, ok := h.loadMessage(c, messageID)
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	if !h.requireReadAccess(c, msg.ChannelID, userID) {
		return
	}

	reactions, err := h.reactionRepo.ListForMessage(c.Request.Context(), messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reactions"})
		return
	}
	if reactions == nil {
		reactions = []models.Reaction{}
	}

	c.JSON(http.StatusOK, gin.H{"reactions": reactions})
}

func (h *ReactionHandler) loadMessage(c *gin.Context, messageID uuid.UUID) (models.Message, bool) {
	msg, err := h.messageRepo.Get(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return models.Message{}, false
	}
	return msg, true
}

func (h *ReactionHandler) requireMember(c *gin.Context, channelID uuid.UUID, userID string) bool {
	member, err := h.channelRepo.IsMember(c.Request.Context(), channelID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a channel member"})
		return false
	}
	return true
}

func (h *ReactionHandler) requireReadAccess(c *gin.Context, channelID uuid.UUID, userID string) bool {
	channel, err := h.channelRepo.Get(c.Request.Context(), channelID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChannelNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "channel not found"})
		return false
	}
	if channel.IsPublic() {
		return true
	}

	member, err := h.channelRepo.IsMember(c.Request.Context(), channelID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a channel member"})
		return false
	}
	return true
}
