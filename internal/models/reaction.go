package models

import (
	"time"

	"github.com/google/uuid"
)

// Reaction is a single emoji reaction. (message_id, user_id, emoji) is
// unique in the store; adding the same triple again returns the existing row.
type Reaction struct {
	ID        uuid.UUID `db:"id" json:"id"`
	MessageID uuid.UUID `db:"message_id" json:"message_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
