package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel kinds. Non-DM channels have a globally unique name; DM channels
// are deduplicated by their member pair instead.
const (
	ChannelPublic        = "public"
	ChannelPrivate       = "private"
	ChannelDirectMessage = "direct_message"
)

// Channel is a messaging room. DMKey is set only for direct-message
// channels: the sorted "idA:idB" member pair, unique in the store.
type Channel struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	Kind        string    `db:"kind" json:"kind"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	DMKey       *string   `db:"dm_key" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// IsPublic reports whether any user may read and join the channel.
func (c Channel) IsPublic() bool {
	return c.Kind == ChannelPublic
}

// Membership is the join record granting a user access to a channel.
type Membership struct {
	ChannelID uuid.UUID `db:"channel_id" json:"channel_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}
