package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"channel-service/internal/models"
)

var (
	ErrReactionNotFound = errors.New("reaction not found")
	ErrNotReactionOwner = errors.New("only the reaction's creator can remove it")
)

// ReactionRepository is the per-(message,user,emoji) reaction ledger.
type ReactionRepository interface {
	Add(ctx context.Context, messageID uuid.UUID, userID, emoji string) (models.Reaction, error)
	Remove(ctx context.Context, reactionID uuid.UUID, requesterID string) error
	GetByMessageUserEmoji(ctx context.Context, messageID uuid.UUID, userID, emoji string) (models.Reaction, error)
	ListForMessage(ctx context.Context, messageID uuid.UUID) ([]models.Reaction, error)
	ListForMessages(ctx context.Context, messageIDs []uuid.UUID) (map[uuid.UUID][]models.Reaction, error)
	CountByEmoji(ctx context.Context, messageID uuid.UUID, emoji string) (int, error)
}

// ReactionRepo is a sqlx implementation of ReactionRepository.
type ReactionRepo struct {
	db *sqlx.DB
}

// NewReactionRepo constructs a ReactionRepo.
func NewReactionRepo(db *sqlx.DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

const reactionColumns = `id, message_id, user_id, emoji, created_at`

// Add records a reaction. The unique constraint serializes concurrent
// duplicates; when the triple already exists the existing row is returned
// rather than an error.
func (r *ReactionRepo) Add(ctx context.Context, messageID uuid.UUID, userID, emoji string) (models.Reaction, error) {
	var reaction models.Reaction
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO reactions (id, message_id, user_id, emoji) VALUES ($1, $2, $3, $4)
         ON CONFLICT (message_id, user_id, emoji) DO NOTHING
         RETURNING `+reactionColumns,
		uuid.New(), messageID, userID, emoji).StructScan(&reaction)
	if err == nil {
		return reaction, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict path: the triple exists, return it.
		return r.GetByMessageUserEmoji(ctx, messageID, userID, emoji)
	}
	if isForeignKeyViolation(err) {
		// Both the message and the user FK can fire on this insert.
		if violatedConstraint(err) == "reactions_user_id_fkey" {
			return models.Reaction{}, ErrUserNotFound
		}
		return models.Reaction{}, ErrMessageNotFound
	}
	return models.Reaction{}, err
}

// Remove deletes a reaction by id. Only the creator may remove it; a
// missing id is not found.
func (r *ReactionRepo) Remove(ctx context.Context, reactionID uuid.UUID, requesterID string) error {
	var reaction models.Reaction
	err := r.db.GetContext(ctx, &reaction,
		`SELECT `+reactionColumns+` FROM reactions WHERE id=$1`, reactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrReactionNotFound
	}
	if err != nil {
		return err
	}
	if reaction.UserID != requesterID {
		return ErrNotReactionOwner
	}

	_, err = r.db.ExecContext(ctx, `DELETE FROM reactions WHERE id=$1`, reactionID)
	return err
}

// GetByMessageUserEmoji fetches the reaction for an exact triple.
func (r *ReactionRepo) GetByMessageUserEmoji(ctx context.Context, messageID uuid.UUID, userID, emoji string) (models.Reaction, error) {
	var reaction models.Reaction
	err := r.db.GetContext(ctx, &reaction,
		`SELECT `+reactionColumns+` FROM reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`,
		messageID, userID, emoji)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reaction{}, ErrReactionNotFound
	}
	return reaction, err
}

// ListForMessage returns all reactions on a message.
func (r *ReactionRepo) ListForMessage(ctx context.Context, messageID uuid.UUID) ([]models.Reaction, error) {
	var reactions []models.Reaction
	err := r.db.SelectContext(ctx, &reactions,
		`SELECT `+reactionColumns+` FROM reactions WHERE message_id=$1 ORDER BY created_at ASC`,
		messageID)
	return reactions, err
}

// ListForMessages batch-hydrates reactions for a set of messages.
func (r *ReactionRepo) ListForMessages(ctx context.Context, messageIDs []uuid.UUID) (map[uuid.UUID][]models.Reaction, error) {
	result := make(map[uuid.UUID][]models.Reaction, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}

	var reactions []models.Reaction
	err := r.db.SelectContext(ctx, &reactions,
		`SELECT `+reactionColumns+` FROM reactions WHERE message_id = ANY($1) ORDER BY created_at ASC`,
		pq.Array(uuidStrings(messageIDs)))
	if err != nil {
		return nil, err
	}

	for _, reaction := range reactions {
		result[reaction.MessageID] = append(result[reaction.MessageID], reaction)
	}
	return result, nil
}

// CountByEmoji counts reactions with a given emoji on a message.
func (r *ReactionRepo) CountByEmoji(ctx context.Context, messageID uuid.UUID, emoji string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM reactions WHERE message_id=$1 AND emoji=$2`, messageID, emoji)
	return count, err
}
