package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxMessageLength bounds message content size in characters.
const MaxMessageLength = 10000

// Message is a channel message. A nil ParentID marks a thread root;
// replies always point at a root (threading is one level deep).
type Message struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	ChannelID uuid.UUID  `db:"channel_id" json:"channel_id"`
	CreatedBy string     `db:"created_by" json:"created_by"`
	Content   string     `db:"content" json:"content"`
	ParentID  *uuid.UUID `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	EditedAt  *time.Time `db:"edited_at" json:"edited_at,omitempty"`
	IsEdited  bool       `db:"is_edited" json:"is_edited"`
}

// ThreadRoot is a root message annotated for the channel feed: reply count,
// a preview of the newest replies, and hydrated reactions.
type ThreadRoot struct {
	Message
	ReplyCount    int        `json:"reply_count"`
	RecentReplies []Message  `json:"recent_replies"`
	Reactions     []Reaction `json:"reactions"`
}
