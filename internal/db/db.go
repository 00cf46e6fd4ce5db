package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            user_id VARCHAR(255) PRIMARY KEY,
            username TEXT NOT NULL,
            email TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'user',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS channels (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            kind TEXT NOT NULL,
            created_by VARCHAR(255) NOT NULL REFERENCES users(user_id),
            dm_key TEXT UNIQUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		// Name uniqueness applies to public/private channels only; DM
		// channels are deduplicated through dm_key instead.
		`CREATE UNIQUE INDEX IF NOT EXISTS uk_channels_name_non_dm
            ON channels (name) WHERE kind <> 'direct_message';`,
		`CREATE TABLE IF NOT EXISTS channel_members (
            channel_id UUID NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
            user_id VARCHAR(255) NOT NULL REFERENCES users(user_id),
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (channel_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            channel_id UUID NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
            created_by VARCHAR(255) NOT NULL REFERENCES users(user_id),
            content TEXT NOT NULL,
            parent_id UUID REFERENCES messages(id) ON DELETE CASCADE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            edited_at TIMESTAMPTZ,
            is_edited BOOLEAN NOT NULL DEFAULT FALSE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages (channel_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages (parent_id);`,
		`CREATE TABLE IF NOT EXISTS reactions (
            id UUID PRIMARY KEY,
            message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id VARCHAR(255) NOT NULL REFERENCES users(user_id),
            emoji VARCHAR(32) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (message_id, user_id, emoji)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_reactions_message ON reactions (message_id);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
