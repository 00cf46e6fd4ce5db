package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"channel-service/internal/models"
)

var (
	ErrChannelNotFound      = errors.New("channel not found")
	ErrDuplicateChannelName = errors.New("channel name already in use")
)

const pqUniqueViolation = "23505"
const pqForeignKeyViolation = "23503"

// ChannelRepository owns channel and membership state.
type ChannelRepository interface {
	Create(ctx context.Context, creatorID, name, description, kind string, memberIDs []string) (models.Channel, error)
	GetOrCreateDirectMessage(ctx context.Context, userA, userB models.User) (models.Channel, error)
	Get(ctx context.Context, channelID uuid.UUID) (models.Channel, error)
	Update(ctx context.Context, channelID uuid.UUID, name, description string) (models.Channel, error)
	Delete(ctx context.Context, channelID uuid.UUID) error
	ListForUser(ctx context.Context, userID, search string, page, size int) ([]models.Channel, error)
	ListMemberChannelIDs(ctx context.Context, userID string) ([]uuid.UUID, error)
	IsMember(ctx context.Context, channelID uuid.UUID, userID string) (bool, error)
	AddMember(ctx context.Context, channelID uuid.UUID, userID string) error
	RemoveMember(ctx context.Context, channelID uuid.UUID, userID string) error
	ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.Membership, error)
}

// ChannelRepo is a sqlx implementation of ChannelRepository.
type ChannelRepo struct {
	db *sqlx.DB
}

// NewChannelRepo constructs a ChannelRepo.
func NewChannelRepo(db *sqlx.DB) *ChannelRepo {
	return &ChannelRepo{db: db}
}

const channelColumns = `id, name, description, kind, created_by, dm_key, created_at`

// Create inserts a channel and its initial members atomically. The creator
// is always added as a member. Non-DM names collide on a partial unique
// index, surfaced as ErrDuplicateChannelName.
func (r *ChannelRepo) Create(ctx context.Context, creatorID, name, description, kind string, memberIDs []string) (models.Channel, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Channel{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var channel models.Channel
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO channels (id, name, description, kind, created_by) VALUES ($1, $2, $3, $4, $5)
         RETURNING `+channelColumns,
		uuid.New(), name, description, kind, creatorID).StructScan(&channel); err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateChannelName
		}
		return models.Channel{}, err
	}

	// Creator first, then the rest, deduped.
	memberSet := map[string]struct{}{creatorID: {}}
	ids := []string{creatorID}
	for _, id := range memberIDs {
		if _, ok := memberSet[id]; !ok {
			memberSet[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2)`,
			channel.ID, id); err != nil {
			if isForeignKeyViolation(err) {
				err = fmt.Errorf("%w: %s", ErrUserNotFound, id)
			}
			return models.Channel{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Channel{}, err
	}
	return channel, nil
}

// GetOrCreateDirectMessage returns the DM channel for the pair, creating it
// if absent. The sorted id pair is unique in the store, so concurrent calls
// cannot both create; the loser retries as a lookup.
func (r *ChannelRepo) GetOrCreateDirectMessage(ctx context.Context, userA, userB models.User) (models.Channel, error) {
	key := dmKey(userA.ID, userB.ID)

	var channel models.Channel
	err := r.db.GetContext(ctx, &channel, `SELECT `+channelColumns+` FROM channels WHERE dm_key=$1`, key)
	if err == nil {
		return channel, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Channel{}, err
	}

	channel, err = r.createDirectMessage(ctx, userA, userB, key)
	if err == nil {
		return channel, nil
	}
	if isUniqueViolation(err) {
		// Lost the race; the other writer's channel is the channel.
		err = r.db.GetContext(ctx, &channel, `SELECT `+channelColumns+` FROM channels WHERE dm_key=$1`, key)
	}
	return channel, err
}

func (r *ChannelRepo) createDirectMessage(ctx context.Context, userA, userB models.User, key string) (models.Channel, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Channel{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var channel models.Channel
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO channels (id, name, kind, created_by, dm_key) VALUES ($1, $2, $3, $4, $5)
         RETURNING `+channelColumns,
		uuid.New(), dmChannelName(userA, userB), models.ChannelDirectMessage, userA.ID, key).StructScan(&channel); err != nil {
		return models.Channel{}, err
	}

	for _, id := range []string{userA.ID, userB.ID} {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2)`,
			channel.ID, id); err != nil {
			return models.Channel{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Channel{}, err
	}
	return channel, nil
}

// Get fetches a channel by id.
func (r *ChannelRepo) Get(ctx context.Context, channelID uuid.UUID) (models.Channel, error) {
	var channel models.Channel
	err := r.db.GetContext(ctx, &channel, `SELECT `+channelColumns+` FROM channels WHERE id=$1`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Channel{}, ErrChannelNotFound
	}
	return channel, err
}

// Update changes name and description.
func (r *ChannelRepo) Update(ctx context.Context, channelID uuid.UUID, name, description string) (models.Channel, error) {
	var channel models.Channel
	err := r.db.QueryRowxContext(ctx,
		`UPDATE channels SET name=$2, description=$3 WHERE id=$1 RETURNING `+channelColumns,
		channelID, name, description).StructScan(&channel)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Channel{}, ErrChannelNotFound
	}
	if isUniqueViolation(err) {
		return models.Channel{}, ErrDuplicateChannelName
	}
	return channel, err
}

// Delete removes a channel; memberships, messages and their reactions
// cascade at the schema level.
func (r *ChannelRepo) Delete(ctx context.Context, channelID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM channels WHERE id=$1`, channelID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// ListForUser returns public channels plus channels the user belongs to,
// newest first, optionally filtered by name.
func (r *ChannelRepo) ListForUser(ctx context.Context, userID, search string, page, size int) ([]models.Channel, error) {
	query := `SELECT DISTINCT c.id, c.name, c.description, c.kind, c.created_by, c.dm_key, c.created_at
        FROM channels c
        LEFT JOIN channel_members cm ON cm.channel_id = c.id AND cm.user_id = $1
        WHERE (c.kind = 'public' OR cm.user_id IS NOT NULL)
        AND ($2 = '' OR c.name ILIKE '%' || $2 || '%')
        ORDER BY c.created_at DESC
        LIMIT $3 OFFSET $4`
	var channels []models.Channel
	err := r.db.SelectContext(ctx, &channels, query, userID, search, size, page*size)
	return channels, err
}

// ListMemberChannelIDs returns the ids of channels the user belongs to.
func (r *ChannelRepo) ListMemberChannelIDs(ctx context.Context, userID string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids,
		`SELECT channel_id FROM channel_members WHERE user_id=$1`, userID)
	return ids, err
}

// IsMember checks membership.
func (r *ChannelRepo) IsMember(ctx context.Context, channelID uuid.UUID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM channel_members WHERE channel_id=$1 AND user_id=$2)`,
		channelID, userID)
	return exists, err
}

// AddMember joins a user to a channel. Safe under concurrent calls; adding
// an existing member is a no-op.
func (r *ChannelRepo) AddMember(ctx context.Context, channelID uuid.UUID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2)
         ON CONFLICT (channel_id, user_id) DO NOTHING`,
		channelID, userID)
	if isForeignKeyViolation(err) {
		return ErrUserNotFound
	}
	return err
}

// RemoveMember removes a membership; removing a non-member is a no-op.
func (r *ChannelRepo) RemoveMember(ctx context.Context, channelID uuid.UUID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM channel_members WHERE channel_id=$1 AND user_id=$2`, channelID, userID)
	return err
}

// ListMembers returns the channel's join records.
func (r *ChannelRepo) ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.Membership, error) {
	var members []models.Membership
	err := r.db.SelectContext(ctx, &members,
		`SELECT channel_id, user_id, joined_at FROM channel_members WHERE channel_id=$1 ORDER BY joined_at ASC`,
		channelID)
	return members, err
}

func dmKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}

func dmChannelName(userA, userB models.User) string {
	names := []string{userA.Username, userB.Username}
	if userA.ID > userB.ID {
		names[0], names[1] = names[1], names[0]
	}
	return "DM:" + strings.Join(names, ":")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}

// violatedConstraint names the constraint behind a pq error, empty when the
// error is not a pq error.
func violatedConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}
