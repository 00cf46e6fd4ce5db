package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"channel-service/internal/models"
)

var (
	ErrMessageNotFound    = errors.New("message not found")
	ErrParentNotFound     = errors.New("parent message not found")
	ErrCrossChannelParent = errors.New("parent message belongs to a different channel")
	ErrParentNotRoot      = errors.New("parent message is itself a reply")
	ErrEmptyContent       = errors.New("message content cannot be empty")
	ErrContentTooLong     = errors.New("message content too long")
	ErrNotMessageAuthor   = errors.New("only the author can edit the message")
)

// MessageRepository owns message persistence and thread linkage.
type MessageRepository interface {
	Create(ctx context.Context, channelID uuid.UUID, authorID, content string, parentID *uuid.UUID) (models.Message, error)
	Get(ctx context.Context, messageID uuid.UUID) (models.Message, error)
	Edit(ctx context.Context, messageID uuid.UUID, editorID, content string) (models.Message, error)
	Delete(ctx context.Context, messageID uuid.UUID) error
	ListThreadRoots(ctx context.Context, channelID uuid.UUID, page, size int) ([]models.Message, error)
	ListReplies(ctx context.Context, parentID uuid.UUID, page, size int) ([]models.Message, error)
	CountReplies(ctx context.Context, parentIDs []uuid.UUID) (map[uuid.UUID]int, error)
	ListRecentReplies(ctx context.Context, parentIDs []uuid.UUID, perParent int) (map[uuid.UUID][]models.Message, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, channel_id, created_by, content, parent_id, created_at, edited_at, is_edited`

// Create validates and stores a message. A parent, when set, must exist,
// belong to the same channel, and be a thread root: threading is one level
// deep, so replies to replies are rejected.
func (r *MessageRepo) Create(ctx context.Context, channelID uuid.UUID, authorID, content string, parentID *uuid.UUID) (models.Message, error) {
	if err := validateContent(content); err != nil {
		return models.Message{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if parentID != nil {
		var parent models.Message
		err = tx.GetContext(ctx, &parent, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, *parentID)
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrParentNotFound
			return models.Message{}, err
		}
		if err != nil {
			return models.Message{}, err
		}
		if parent.ChannelID != channelID {
			err = ErrCrossChannelParent
			return models.Message{}, err
		}
		if parent.ParentID != nil {
			err = ErrParentNotRoot
			return models.Message{}, err
		}
	}

	var msg models.Message
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (id, channel_id, created_by, content, parent_id) VALUES ($1, $2, $3, $4, $5)
         RETURNING `+messageColumns,
		uuid.New(), channelID, authorID, content, parentID).StructScan(&msg); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// Edit replaces the content and marks the message edited. Only the original
// author may edit.
func (r *MessageRepo) Edit(ctx context.Context, messageID uuid.UUID, editorID, content string) (models.Message, error) {
	if err := validateContent(content); err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET content=$3, edited_at=NOW(), is_edited=TRUE
         WHERE id=$1 AND created_by=$2
         RETURNING `+messageColumns,
		messageID, editorID, content).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing row from somebody else's message.
		if _, getErr := r.Get(ctx, messageID); getErr != nil {
			return models.Message{}, getErr
		}
		return models.Message{}, ErrNotMessageAuthor
	}
	return msg, err
}

// Delete removes the message; replies and reactions cascade. Deletion is
// terminal: later mutations against the id surface as not found.
func (r *MessageRepo) Delete(ctx context.Context, messageID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ListThreadRoots returns root messages newest first for the channel feed.
func (r *MessageRepo) ListThreadRoots(ctx context.Context, channelID uuid.UUID, page, size int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE channel_id=$1 AND parent_id IS NULL
         ORDER BY created_at DESC
         LIMIT $2 OFFSET $3`,
		channelID, size, page*size)
	return msgs, err
}

// ListReplies returns replies oldest first, chronological reading order.
func (r *MessageRepo) ListReplies(ctx context.Context, parentID uuid.UUID, page, size int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE parent_id=$1
         ORDER BY created_at ASC
         LIMIT $2 OFFSET $3`,
		parentID, size, page*size)
	return msgs, err
}

// CountReplies returns reply counts per root for the given roots.
func (r *MessageRepo) CountReplies(ctx context.Context, parentIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(parentIDs))
	if len(parentIDs) == 0 {
		return counts, nil
	}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT parent_id, COUNT(*) FROM messages WHERE parent_id = ANY($1) GROUP BY parent_id`,
		pq.Array(uuidStrings(parentIDs)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var parentID uuid.UUID
		var count int
		if err := rows.Scan(&parentID, &count); err != nil {
			return nil, err
		}
		counts[parentID] = count
	}
	return counts, rows.Err()
}

// ListRecentReplies returns up to perParent newest replies per root,
// re-sorted oldest first within each thread for display.
func (r *MessageRepo) ListRecentReplies(ctx context.Context, parentIDs []uuid.UUID, perParent int) (map[uuid.UUID][]models.Message, error) {
	result := make(map[uuid.UUID][]models.Message, len(parentIDs))
	if len(parentIDs) == 0 {
		return result, nil
	}

	query := `SELECT ` + messageColumns + ` FROM (
            SELECT ` + messageColumns + `,
                ROW_NUMBER() OVER (PARTITION BY parent_id ORDER BY created_at DESC) AS rn
            FROM messages WHERE parent_id = ANY($1)
        ) ranked WHERE rn <= $2
        ORDER BY parent_id, created_at ASC`
	var replies []models.Message
	if err := r.db.SelectContext(ctx, &replies, query, pq.Array(uuidStrings(parentIDs)), perParent); err != nil {
		return nil, err
	}

	for _, reply := range replies {
		result[*reply.ParentID] = append(result[*reply.ParentID], reply)
	}
	return result, nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > models.MaxMessageLength {
		return ErrContentTooLong
	}
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
