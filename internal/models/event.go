package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types carried on channel topics.
const (
	EventMessageCreated  = "message.created"
	EventMessageEdited   = "message.edited"
	EventMessageDeleted  = "message.deleted"
	EventReactionAdded   = "reaction.added"
	EventReactionRemoved = "reaction.removed"
	EventChannelCreated  = "channel.created"
	EventChannelUpdated  = "channel.updated"
	EventChannelDeleted  = "channel.deleted"
	EventMemberAdded     = "channel.member_added"
	EventMemberRemoved   = "channel.member_removed"
	EventUserUpdated     = "user.updated"
)

// Event is an ephemeral notification delivered to topic subscribers.
// Events are never persisted and carry no delivery guarantee.
type Event struct {
	Type      string    `json:"type"`
	ChannelID uuid.UUID `json:"channel_id,omitempty"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, channelID uuid.UUID, userID string, payload any) Event {
	return Event{
		Type:      eventType,
		ChannelID: channelID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// NotificationTopic names the per-user topic for light pings.
func NotificationTopic(userID string) string {
	return "user." + userID + ".notifications"
}

// ChannelTopic names the per-channel topic carrying full events.
func ChannelTopic(channelID uuid.UUID) string {
	return "channel." + channelID.String()
}
