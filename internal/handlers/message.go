package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"channel-service/internal/models"
	"channel-service/internal/repositories"
)

// recentReplyPreview is how many of the newest replies ride along with
// each thread root in the channel feed.
const recentReplyPreview = 3

// MessageHandler manages message and thread endpoints.
type MessageHandler struct {
	channelRepo  repositories.ChannelRepository
	messageRepo  repositories.MessageRepository
	reactionRepo repositories.ReactionRepository
	userRepo     repositories.UserRepository
	events       *EventPublisher
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(channelRepo repositories.ChannelRepository, messageRepo repositories.MessageRepository, reactionRepo repositories.ReactionRepository, userRepo repositories.UserRepository, events *EventPublisher) *MessageHandler {
	return &MessageHandler{
		channelRepo:  channelRepo,
		messageRepo:  messageRepo,
		reactionRepo: reactionRepo,
		userRepo:     userRepo,
		events:       events,
	}
}

// PostMessage creates a root message or a reply. Posting requires
// membership regardless of channel kind.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req struct {
		ChannelID uuid.UUID  `json:"channel_id" binding:"required"`
		Content   string     `json:"content" binding:"required"`
		ParentID  *uuid.UUID `json:"parent_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	if !h.requireMember(c, req.ChannelID, userID) {
		return
	}

	msg, err := h.messageRepo.Create(c.Request.Context(), req.ChannelID, userID, req.Content, req.ParentID)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrEmptyContent),
			errors.Is(err, repositories.ErrContentTooLong),
			errors.Is(err, repositories.ErrCrossChannelParent),
			errors.Is(err, repositories.ErrParentNotRoot):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repositories.ErrParentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create message"})
		}
		return
	}

	h.events.PublishChannelEvent(c.Request.Context(), models.NewEvent(models.EventMessageCreated, msg.ChannelID, userID, msg))
	h.events.NotifyMembers(c.Request.Context(), msg.ChannelID, userID, models.EventMessageCreated)

	c.JSON(http.StatusCreated, msg)
}

// ListChannelRoots returns the channel feed: thread roots newest first,
// each hydrated with reply count, a reply preview and reactions. Members
// can read any channel; non-members only public ones.
func (h *MessageHandler) ListChannelRoots(c *gin.Context) {
	channelID, ok := parseChannelID(c)
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	if !h.requireReadAccess(c, channelID, userID) {
		return
	}

	page, size := pagination(c)
	roots, err := h.messageRepo.ListThreadRoots(c.Request.Context(), channelID, page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	feed, authors, err := h.hydrateRoots(c, roots)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": feed, "authors": authors, "page": page, "size": size})
}

// ListReplies returns a thread's replies oldest first.
func (h *MessageHandler) ListReplies(c *gin.Context) {
	parentID, err := uuid.Parse(c.Param("parent_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	parent, ok := h.loadMessage(c, parentID)
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	if !h.requireReadAccess(c, parent.ChannelID, userID) {
		return
	}

	page, size := pagination(c)
	replies, err := h.messageRepo.ListReplies(c.Request.Context(), parentID, page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load replies"})
		return
	}
	if replies == nil {
		replies = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"parent": parent, "replies": replies, "page": page, "size": size})
}

// EditMessage replaces a message's content. Author only.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	msg, err := h.messageRepo.Edit(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrEmptyContent), errors.Is(err, repositories.ErrContentTooLong):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repositories.ErrMessageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		case errors.Is(err, repositories.ErrNotMessageAuthor):
			c.JSON(http.StatusForbidden, gin.H{"error": "only the author can edit the message"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not edit message"})
		}
		return
	}

	h.events.PublishChannelEvent(c.Request.Context(), models.NewEvent(models.EventMessageEdited, msg.ChannelID, userID, msg))
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage removes a message and its thread. Allowed for the
// author, the channel creator, and admins.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
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
	if msg.CreatedBy != userID && userRoleFromContext(c) != models.RoleAdmin {
		channel, err := h.channelRepo.Get(c.Request.Context(), msg.ChannelID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channel"})
			return
		}
		if channel.CreatedBy != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to delete this message"})
			return
		}
	}

	if err := h.messageRepo.Delete(c.Request.Context(), messageID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete message"})
		return
	}

	payload := gin.H{"message_id": messageID}
	if msg.ParentID != nil {
		payload["parent_id"] = *msg.ParentID
	}
	h.events.PublishChannelEvent(c.Request.Context(), models.NewEvent(models.EventMessageDeleted, msg.ChannelID, userID, payload))

	c.Status(http.StatusNoContent)
}

// hydrateRoots annotates roots with counts, previews and reactions, and
// collects author display names for every message in the response.
func (h *MessageHandler) hydrateRoots(c *gin.Context, roots []models.Message) ([]models.ThreadRoot, map[string]string, error) {
	rootIDs := lo.Map(roots, func(m models.Message, _ int) uuid.UUID { return m.ID })

	counts, err := h.messageRepo.CountReplies(c.Request.Context(), rootIDs)
	if err != nil {
		return nil, nil, err
	}
	previews, err := h.messageRepo.ListRecentReplies(c.Request.Context(), rootIDs, recentReplyPreview)
	if err != nil {
		return nil, nil, err
	}
	reactions, err := h.reactionRepo.ListForMessages(c.Request.Context(), rootIDs)
	if err != nil {
		return nil, nil, err
	}

	feed := make([]models.ThreadRoot, 0, len(roots))
	authorIDs := make([]string, 0, len(roots))
	for _, root := range roots {
		authorIDs = append(authorIDs, root.CreatedBy)
		replies := previews[root.ID]
		if replies == nil {
			replies = []models.Message{}
		}
		for _, reply := range replies {
			authorIDs = append(authorIDs, reply.CreatedBy)
		}
		rootReactions := reactions[root.ID]
		if rootReactions == nil {
			rootReactions = []models.Reaction{}
		}
		feed = append(feed, models.ThreadRoot{
			Message:       root,
			ReplyCount:    counts[root.ID],
			RecentReplies: replies,
			Reactions:     rootReactions,
		})
	}

	users, err := h.userRepo.GetMany(c.Request.Context(), lo.Uniq(authorIDs))
	if err != nil {
		return nil, nil, err
	}
	authors := make(map[string]string, len(users))
	for _, user := range users {
		authors[user.ID] = user.Username
	}
	return feed, authors, nil
}

func (h *MessageHandler) loadMessage(c *gin.Context, messageID uuid.UUID) (models.Message, bool) {
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

// requireMember rejects callers who do not belong to the channel. Writes
// always need membership, public channels included.
func (h *MessageHandler) requireMember(c *gin.Context, channelID uuid.UUID, userID string) bool {
	member, err := h.channelRepo.IsMember(c.Request.Context(), channelID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if !member {
		// Distinguish a missing channel from a membership failure.
		if _, err := h.channelRepo.Get(c.Request.Context(), channelID); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrChannelNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": "channel not found"})
			return false
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "not a channel member"})
		return false
	}
	return true
}

// requireReadAccess allows members always, and anyone on public channels.
func (h *MessageHandler) requireReadAccess(c *gin.Context, channelID uuid.UUID, userID string) bool {
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
