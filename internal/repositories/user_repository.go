package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"channel-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts user persistence.
type UserRepository interface {
	GetOrCreate(ctx context.Context, userID, username, email string) (models.User, error)
	Get(ctx context.Context, userID string) (models.User, error)
	GetMany(ctx context.Context, userIDs []string) ([]models.User, error)
	UpdateUsername(ctx context.Context, userID, username string) (models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `user_id, username, email, role, created_at`

// GetOrCreate provisions a user on first authenticated contact. The insert
// is an idempotent upsert; the existing row wins under concurrent calls.
func (r *UserRepo) GetOrCreate(ctx context.Context, userID, username, email string) (models.User, error) {
	if username == "" {
		username = defaultUsername(userID)
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO users (user_id, username, email, role) VALUES ($1, $2, $3, $4)
         ON CONFLICT (user_id) DO NOTHING`,
		userID, username, email, models.RoleUser); err != nil {
		return models.User{}, err
	}
	return r.Get(ctx, userID)
}

// Get fetches a user by id.
func (r *UserRepo) Get(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetMany fetches users in bulk for response hydration.
func (r *UserRepo) GetMany(ctx context.Context, userIDs []string) ([]models.User, error) {
	if len(userIDs) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users WHERE user_id = ANY($1)`, pq.Array(userIDs))
	return users, err
}

// UpdateUsername changes the display name.
func (r *UserRepo) UpdateUsername(ctx context.Context, userID, username string) (models.User, error) {
	var user models.User
	err := r.db.QueryRowxContext(ctx,
		`UPDATE users SET username=$2 WHERE user_id=$1 RETURNING `+userColumns,
		userID, username).StructScan(&user)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

func defaultUsername(userID string) string {
	if len(userID) > 8 {
		return fmt.Sprintf("user-%s", userID[len(userID)-8:])
	}
	return fmt.Sprintf("user-%s", userID)
}
