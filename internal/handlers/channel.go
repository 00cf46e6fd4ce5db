package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"channel-service/internal/models"
	"channel-service/internal/repositories"
	"channel-service/internal/telemetry"
)

// ChannelHandler manages channel and membership endpoints.
type ChannelHandler struct {
	channelRepo repositories.ChannelRepository
	userRepo    repositories.UserRepository
	events      *EventPublisher
	audit       *telemetry.AuditEmitter
}

// NewChannelHandler builds a ChannelHandler.
func NewChannelHandler(channelRepo repositories.ChannelRepository, userRepo repositories.UserRepository, events *EventPublisher, audit *telemetry.AuditEmitter) *ChannelHandler {
	return &ChannelHandler{
		channelRepo: channelRepo,
		userRepo:    userRepo,
		events:      events,
		audit:       audit,
	}
}

// CreateChannel creates a public or private channel with the caller as
// creator and first member. DM channels go through GetOrCreateDM.
func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	var req struct {
		Name        string   `json:"name" binding:"required"`
		Description string   `json:"description"`
		Kind        string   `json:"kind"`
		MemberIDs   []string `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kind == "" {
		req.Kind = models.ChannelPublic
	}
	if req.Kind != models.ChannelPublic && req.Kind != models.ChannelPrivate {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel kind"})
		return
	}

	userID := userIDFromContext(c)
	channel, err := h.channelRepo.Create(c.Request.Context(), userID, req.Name, req.Description, req.Kind, req.MemberIDs)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicateChannelName):
			c.JSON(http.StatusConflict, gin.H{"error": "channel name already in use"})
		case errors.Is(err, repositories.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create channel"})
		}
		return
	}

	h.events.PublishChannelEvent(c.Request.Context(), models.NewEvent(models.EventChannelCreated, channel.ID, userID, channel))
	h.events.NotifyMembers(c.Request.Context(), channel.ID, userID, models.EventChannelCreated)
	h.audit.Emit(c.Request.Context(), "info", fmt.Sprintf("channel created id=%s kind=%s", channel.ID, channel.Kind), requestIDFromContext(c), &userID)

	c.JSON(http.StatusCreated, channel)
}

// GetOrCreateDM returns the DM channel between the caller and the other
// user, creating it if absent. Idempotent under concurrent calls.
func (h *ChannelHandler) GetOrCreateDM(c *gin.Context) {
	otherID := c.Param("other_user_id")
	userID := userIDFromContext(c)
	if otherID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open a dm with yourself"})
		return
	}

	caller, err := h.userRepo.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load caller"})
		return
	}
	other, err := h.userRepo.Get(c.Request.Context(), otherID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	channel, err := h.channelRepo.GetOrCreateDirectMessage(c.Request.Context(), caller, other)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open dm channel"})
		return
	}

	c.JSON(http.StatusOK, channel)
}

// ListChannels returns public channels plus the caller's channels,
// paginated, optionally filtered by name.
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	userID := userIDFromContext(c)
	page, size := pagination(c)

	channels, err := h.channelRepo.ListForUser(c.Request.Context(), userID, c.Query("search"), page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channels"})
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}

	c.JSON(http.StatusOK, gin.H{"channels": channels, "page": page, "size": size})
}

// UpdateChannel changes name/description. Creator only.
func (h *ChannelHandler) UpdateChannel(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	channel, ok := h.loadChannel(c, channelID)
	if !ok {
		return
	}
	if channel.CreatedBy != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the channel creator can update the channel"})
		return
	}

	updated, err := h.channelRepo.Update(c.Request.Context(), channelID, req.Name, req.Description)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateChannelName) {
			c.JSON(http.StatusConflict, gin.H{"error": "channel name already in use"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update channel"})
		return
	}

	h.events.PublishChannelEvent(c.Request.Context(), models.NewEvent(models.EventChannelUpdated, channelID, userID, updated))
	c.JSON(http.StatusOK, updated)
}

// DeleteChannel removes a channel and everything it owns. Creator or
// admin only.
func (h *ChannelHandler) DeleteChannel(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	channel, ok := h.loadChannel(c, channelID)
	if !ok {
		return
	}
	if channel.CreatedBy != userID && userRoleFromContext(c) != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the channel creator or an admin can delete the channel"})
		return
	}

	// Capture the member list before the cascade wipes it.
	members, err := h.channelRepo.ListMembers(c.Request.Context(), channelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}

	if err := h.channelRepo.Delete(c.Request.Context(), channelID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChannelNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete channel"})
		return
	}

	h.events.PublishChannelEvent(c.Request.Context(), models.NewEvent(models.EventChannelDeleted, channelID, userID, channel))
	h.events.NotifyMemberships(members, channelID, userID, models.EventChannelDeleted)
	h.audit.Emit(c.Request.Context(), "info", fmt.Sprintf("channel deleted id=%s", channelID), requestIDFromContext(c), &userID)

	c.Status(http.StatusNoContent)
}

// JoinChannel adds the caller to a public channel. Private and DM
// channels require invitation by an existing member.
func (h *ChannelHandler) JoinChannel(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	channel, ok := h.loadChannel(c, channelID)
	if !ok {
		return
	}
	if !channel.IsPublic() {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot join this channel without an invitation"})
		return
	}

	if err := h.channelRepo.AddMember(c.Request.Context(), channelID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join channel"})
		return
	}

	h.events.PublishChannelEvent(c.Request.Context(), models.NewEvent(models.EventMemberAdded, channelID, userID, gin.H{"member_id": userID}))
	c.Status(http.StatusNoContent)
}

// AddMember invites a user into the channel. Any current member may
// invite; adding an existing member is a no-op.
func (h *ChannelHandler) AddMember(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}
	memberID := c.Param("member_id")

	userID := userIDFromContext(c)
	member, err := h.channelRepo.IsMember(c.Request.Context(), channelID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a channel member"})
		return
	}

	if _, err := h.userRepo.Get(c.Request.Context(), memberID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	if err := h.channelRepo.AddMember(c.Request.Context(), channelID, memberID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add member"})
		return
	}

	h.events.PublishChannelEvent(c.Request.Context(), models.NewEvent(models.EventMemberAdded, channelID, userID, gin.H{"member_id": memberID}))
	h.events.NotifyMembers(c.Request.Context(), channelID, userID, models.EventMemberAdded)
	c.Status(http.StatusNoContent)
}

// RemoveMember removes a membership. A member may leave; the creator or
// an admin may remove anyone. Removing a non-member is a no-op.
func (h *ChannelHandler) RemoveMember(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}
	memberID := c.Param("member_id")

	userID := userIDFromContext(c)
	channel, ok := h.loadChannel(c, channelID)
	if !ok {
		return
	}
	if memberID != userID && channel.CreatedBy != userID && userRoleFromContext(c) != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to remove this member"})
		return
	}

	if err := h.channelRepo.RemoveMember(c.Request.Context(), channelID, memberID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}

	h.events.PublishChannelEvent(c.Request.Context(), models.NewEvent(models.EventMemberRemoved, channelID, userID, gin.H{"member_id": memberID}))
	c.Status(http.StatusNoContent)
}

// ListMembers returns the channel's join records, visible to members and
// for public channels to anyone authenticated.
func (h *ChannelHandler) ListMembers(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	channel, ok := h.loadChannel(c, channelID)
	if !ok {
		return
	}
	if !channel.IsPublic() {
		member, err := h.channelRepo.IsMember(c.Request.Context(), channelID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a channel member"})
			return
		}
	}

	members, err := h.channelRepo.ListMembers(c.Request.Context(), channelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	if members == nil {
		members = []models.Membership{}
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *ChannelHandler) loadChannel(c *gin.Context, channelID uuid.UUID) (models.Channel, bool) {
	channel, err := h.channelRepo.Get(c.Request.Context(), channelID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChannelNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "channel not found"})
		return models.Channel{}, false
	}
	return channel, true
}

func parseChannelID(c *gin.Context) (uuid.UUID, bool) {
	channelID, err := uuid.Parse(c.Param("channel_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return uuid.Nil, false
	}
	return channelID, true
}
