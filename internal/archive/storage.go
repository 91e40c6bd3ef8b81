package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/pkg/models"
)

// Store handles archive and unarchive writes.
type Store struct {
	db *sql.DB
}

// NewStore creates an archive store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ArchiveAgent hides an agent from the live list and hard-deletes its
// message history in the same transaction. Options, responses, and
// attachment links go with the messages via cascades; a later
// history fetch returns an empty feed, not an error.
func (s *Store) ArchiveAgent(ctx context.Context, accountID, agentID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Error().Err(err).Msg("archive transaction rollback failed")
		}
	}()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM agents WHERE id = $1 AND account_id = $2)
	`, agentID, accountID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to verify agent: %w", err)
	}
	if !exists {
		return errkind.Forbidden("no access to this agent")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_messages WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("failed to delete agent messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_messages WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("failed to delete user messages: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO archived_agents (account_id, agent_id) VALUES ($1, $2)
	`, accountID, agentID)
	if err != nil {
		if errkind.IsUniqueViolation(err) {
			return errkind.Duplicate("DUPLICATE_ARCHIVE", "agent is already archived")
		}
		return fmt.Errorf("failed to archive agent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit agent archive: %w", err)
	}

	log.Info().Int64("agent_id", agentID).Msg("agent archived, message history deleted")
	return nil
}

// UnarchiveAgent restores an agent to the live list. Its pre-archive
// messages are gone; only new activity appears.
func (s *Store) UnarchiveAgent(ctx context.Context, accountID, agentID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM archived_agents WHERE agent_id = $1 AND account_id = $2
	`, agentID, accountID)
	if err != nil {
		return fmt.Errorf("failed to unarchive agent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errkind.NotFound("archived agent")
	}
	return nil
}

// ArchiveMessage soft-hides one message: the row is preserved and the
// overlay excludes it from the live feed.
func (s *Store) ArchiveMessage(ctx context.Context, accountID int64, stream models.Stream, messageID int64) error {
	ownershipQuery := `
		SELECT EXISTS(
			SELECT 1 FROM agent_messages m
			JOIN agents a ON a.id = m.agent_id
			WHERE m.id = $1 AND a.account_id = $2
		)
	`
	if stream == models.StreamUser {
		ownershipQuery = `
			SELECT EXISTS(
				SELECT 1 FROM user_messages m
				JOIN agents a ON a.id = m.agent_id
				WHERE m.id = $1 AND a.account_id = $2
			)
		`
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, ownershipQuery, messageID, accountID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to verify message: %w", err)
	}
	if !exists {
		return errkind.NotFound("message")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_messages (account_id, stream, message_id) VALUES ($1, $2, $3)
	`, accountID, stream, messageID)
	if err != nil {
		if errkind.IsUniqueViolation(err) {
			return errkind.Duplicate("DUPLICATE_ARCHIVE", "message is already archived")
		}
		return fmt.Errorf("failed to archive message: %w", err)
	}
	return nil
}

// UnarchiveMessage restores a soft-hidden message to the live feed.
func (s *Store) UnarchiveMessage(ctx context.Context, accountID int64, stream models.Stream, messageID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM archived_messages WHERE stream = $1 AND message_id = $2 AND account_id = $3
	`, stream, messageID, accountID)
	if err != nil {
		return fmt.Errorf("failed to unarchive message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errkind.NotFound("archived message")
	}
	return nil
}

// Entry is one archived item in the listing.
type Entry struct {
	Kind       string        `json:"kind"` // "agent" or "message"
	AgentID    *int64        `json:"agent_id,omitempty"`
	AgentName  *string       `json:"agent_name,omitempty"`
	Stream     *models.Stream `json:"stream,omitempty"`
	MessageID  *int64        `json:"message_id,omitempty"`
	ArchivedAt time.Time     `json:"archived_at"`
}

// List returns the account's archived agents and messages, newest
// first, paginated.
func (s *Store) List(ctx context.Context, accountID int64, page, pageSize int) ([]Entry, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, agent_id, agent_name, stream, message_id, archived_at FROM (
			SELECT 'agent' AS kind, aa.agent_id, a.name AS agent_name,
				NULL::TEXT AS stream, NULL::BIGINT AS message_id, aa.archived_at
			FROM archived_agents aa
			JOIN agents a ON a.id = aa.agent_id
			WHERE aa.account_id = $1
			UNION ALL
			SELECT 'message', NULL, NULL, am.stream, am.message_id, am.archived_at
			FROM archived_messages am
			WHERE am.account_id = $1
		) archived
		ORDER BY archived_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived items: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Kind, &e.AgentID, &e.AgentName, &e.Stream, &e.MessageID, &e.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived item: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archived items: %w", err)
	}
	return entries, nil
}
