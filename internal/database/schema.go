package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Base schema for the relay core. Timestamps are microsecond-precision
// timestamptz: the feed cursor is derived from created_at and
// whole-second granularity would collide under bursts.
var baseStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id            BIGSERIAL PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ(6) NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ(6) NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS auth_tokens (
		id           BIGSERIAL PRIMARY KEY,
		account_id   BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		token_hash   TEXT NOT NULL,
		token_type   TEXT NOT NULL,
		is_active    BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at   TIMESTAMPTZ(6) NOT NULL,
		last_used_at TIMESTAMPTZ(6),
		revoked_at   TIMESTAMPTZ(6),
		created_at   TIMESTAMPTZ(6) NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id           BIGSERIAL PRIMARY KEY,
		account_id   BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		key_hash     TEXT NOT NULL UNIQUE,
		key_prefix   TEXT NOT NULL,
		label        TEXT NOT NULL DEFAULT '',
		last_used_at TIMESTAMPTZ(6),
		revoked_at   TIMESTAMPTZ(6),
		created_at   TIMESTAMPTZ(6) NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS agents (
		id           BIGSERIAL PRIMARY KEY,
		account_id   BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		name         TEXT NOT NULL,
		agent_type   TEXT NOT NULL DEFAULT 'standard',
		position     INTEGER NOT NULL DEFAULT 0,
		last_seen_at TIMESTAMPTZ(6),
		created_at   TIMESTAMPTZ(6) NOT NULL DEFAULT NOW(),
		UNIQUE (account_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS agent_messages (
		id                  BIGSERIAL PRIMARY KEY,
		agent_id            BIGINT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		kind                TEXT NOT NULL DEFAULT 'plain',
		content             TEXT,
		priority            INTEGER NOT NULL DEFAULT 0,
		allow_free_response BOOLEAN NOT NULL DEFAULT FALSE,
		read_at             TIMESTAMPTZ(6),
		hidden_from_agent   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at          TIMESTAMPTZ(6) NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_agent_messages_agent_created
		ON agent_messages (agent_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS question_options (
		id          BIGSERIAL PRIMARY KEY,
		message_id  BIGINT NOT NULL REFERENCES agent_messages(id) ON DELETE CASCADE,
		option_text TEXT NOT NULL,
		benefits    TEXT,
		downsides   TEXT,
		is_default  BOOLEAN NOT NULL DEFAULT FALSE,
		position    INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS user_messages (
		id                BIGSERIAL PRIMARY KEY,
		agent_id          BIGINT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		content           TEXT,
		read_at           TIMESTAMPTZ(6),
		hidden_from_agent BOOLEAN NOT NULL DEFAULT FALSE,
		created_at        TIMESTAMPTZ(6) NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_user_messages_agent_created
		ON user_messages (agent_id, created_at)`,

	// The UNIQUE on message_id is the at-most-one-response guarantee.
	// Application code never check-then-inserts around it.
	`CREATE TABLE IF NOT EXISTS user_responses (
		id            BIGSERIAL PRIMARY KEY,
		message_id    BIGINT NOT NULL UNIQUE REFERENCES agent_messages(id) ON DELETE CASCADE,
		option_id     BIGINT REFERENCES question_options(id) ON DELETE SET NULL,
		free_response TEXT,
		created_at    TIMESTAMPTZ(6) NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS attachments (
		id             BIGSERIAL PRIMARY KEY,
		account_id     BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		agent_id       BIGINT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		blob_key       TEXT NOT NULL UNIQUE,
		content_type   TEXT NOT NULL,
		size_bytes     BIGINT NOT NULL,
		width          INTEGER,
		height         INTEGER,
		encryption_iv  TEXT NOT NULL DEFAULT '',
		encryption_tag TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ(6) NOT NULL DEFAULT NOW()
	)`,

	// One link row per attachment, ever: the UNIQUE on attachment_id is
	// what rejects re-linking under concurrent submissions.
	`CREATE TABLE IF NOT EXISTS attachment_links (
		id               BIGSERIAL PRIMARY KEY,
		attachment_id    BIGINT NOT NULL UNIQUE REFERENCES attachments(id) ON DELETE CASCADE,
		agent_message_id BIGINT REFERENCES agent_messages(id) ON DELETE CASCADE,
		user_message_id  BIGINT REFERENCES user_messages(id) ON DELETE CASCADE,
		response_id      BIGINT REFERENCES user_responses(id) ON DELETE CASCADE,
		position         INTEGER NOT NULL DEFAULT 0,
		CHECK (num_nonnulls(agent_message_id, user_message_id, response_id) = 1)
	)`,
}

// Archive overlay schema. Deliberately a separate migration: the read
// path must keep serving when only the base migration has run.
var archiveStatements = []string{
	`CREATE TABLE IF NOT EXISTS archived_agents (
		id          BIGSERIAL PRIMARY KEY,
		account_id  BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		agent_id    BIGINT NOT NULL UNIQUE REFERENCES agents(id) ON DELETE CASCADE,
		archived_at TIMESTAMPTZ(6) NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS archived_messages (
		id          BIGSERIAL PRIMARY KEY,
		account_id  BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		stream      TEXT NOT NULL,
		message_id  BIGINT NOT NULL,
		archived_at TIMESTAMPTZ(6) NOT NULL DEFAULT NOW(),
		UNIQUE (stream, message_id)
	)`,
}

// MigrateBase creates the core tables.
func MigrateBase(ctx context.Context, db *sql.DB) error {
	return runStatements(ctx, db, baseStatements, "base")
}

// MigrateArchive creates the archive overlay tables.
func MigrateArchive(ctx context.Context, db *sql.DB) error {
	return runStatements(ctx, db, archiveStatements, "archive")
}

// Migrate runs all migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	if err := MigrateBase(ctx, db); err != nil {
		return err
	}
	return MigrateArchive(ctx, db)
}

func runStatements(ctx context.Context, db *sql.DB, statements []string, name string) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s migration statement %d failed: %w", name, i, err)
		}
	}
	log.Debug().Str("migration", name).Int("statements", len(statements)).Msg("schema migration applied")
	return nil
}
