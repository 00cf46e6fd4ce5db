package models

import "time"

// Role grants coarse privileges; admins may delete any message.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is an application user keyed by the identity provider's subject.
// The id is immutable once the row exists.
type User struct {
	ID        string    `db:"user_id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Email     string    `db:"email" json:"email,omitempty"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
