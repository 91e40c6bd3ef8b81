// Package agents owns agent identity rows and the conversation list.
package agents

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentrelay/internal/archive"
	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/pkg/models"
)

// Store handles agent rows.
type Store struct {
	db *sql.DB
}

// NewStore creates an agent store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const agentColumns = "id, account_id, name, agent_type, position, last_seen_at, created_at"

// FindOrCreate resolves an agent by name, creating it on first contact.
// A single atomic upsert: two concurrent first contacts with the same
// new name converge on one row, and any contact refreshes last_seen_at.
func (s *Store) FindOrCreate(ctx context.Context, accountID int64, name string, agentType models.AgentType) (*models.Agent, error) {
	if agentType == "" {
		agentType = models.AgentTypeStandard
	}

	query := `
		INSERT INTO agents (account_id, name, agent_type, last_seen_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (account_id, name) DO UPDATE SET last_seen_at = NOW()
		RETURNING ` + agentColumns

	agent := &models.Agent{}
	err := s.db.QueryRowContext(ctx, query, accountID, name, agentType).Scan(
		&agent.ID,
		&agent.AccountID,
		&agent.Name,
		&agent.Type,
		&agent.Position,
		&agent.LastSeenAt,
		&agent.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert agent: %w", err)
	}
	return agent, nil
}

// GetOwned fetches an agent by id, requiring ownership. A foreign or
// unknown id is forbidden either way.
func (s *Store) GetOwned(ctx context.Context, agentID, accountID int64) (*models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1 AND account_id = $2`

	agent := &models.Agent{}
	err := s.db.QueryRowContext(ctx, query, agentID, accountID).Scan(
		&agent.ID,
		&agent.AccountID,
		&agent.Name,
		&agent.Type,
		&agent.Position,
		&agent.LastSeenAt,
		&agent.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errkind.Forbidden("no access to this agent")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

// GetOwnedByName fetches an agent by name within an account.
func (s *Store) GetOwnedByName(ctx context.Context, accountID int64, name string) (*models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE account_id = $1 AND name = $2`

	agent := &models.Agent{}
	err := s.db.QueryRowContext(ctx, query, accountID, name).Scan(
		&agent.ID,
		&agent.AccountID,
		&agent.Name,
		&agent.Type,
		&agent.Position,
		&agent.LastSeenAt,
		&agent.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errkind.Forbidden("no access to this agent")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent by name: %w", err)
	}
	return agent, nil
}

// TouchLastSeen refreshes the agent's activity marker.
func (s *Store) TouchLastSeen(ctx context.Context, agentID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE agents SET last_seen_at = NOW() WHERE id = $1`, agentID)
	if err != nil {
		return fmt.Errorf("failed to touch last_seen_at: %w", err)
	}
	return nil
}

// Delete removes an agent and, via cascades, everything it owns.
func (s *Store) Delete(ctx context.Context, agentID, accountID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1 AND account_id = $2`, agentID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errkind.Forbidden("no access to this agent")
	}
	return nil
}

// Conversation is one entry of the operator's agent list.
type Conversation struct {
	models.Agent
	UnreadCount            int  `json:"unread_count"`
	HighestPendingPriority *int `json:"highest_pending_priority,omitempty"`
}

const listConversationsAware = `
	SELECT a.id, a.account_id, a.name, a.agent_type, a.position, a.last_seen_at, a.created_at,
		(SELECT COUNT(*) FROM agent_messages m
			WHERE m.agent_id = a.id AND m.read_at IS NULL
			AND NOT EXISTS (SELECT 1 FROM archived_messages x WHERE x.stream = 'agent' AND x.message_id = m.id)),
		(SELECT MAX(m.priority) FROM agent_messages m
			WHERE m.agent_id = a.id AND m.read_at IS NULL
			AND NOT EXISTS (SELECT 1 FROM archived_messages x WHERE x.stream = 'agent' AND x.message_id = m.id))
	FROM agents a
	LEFT JOIN archived_agents ar ON ar.agent_id = a.id
	WHERE a.account_id = $1 AND ar.id IS NULL
	ORDER BY a.position, a.name
`

const listConversationsFallback = `
	SELECT a.id, a.account_id, a.name, a.agent_type, a.position, a.last_seen_at, a.created_at,
		(SELECT COUNT(*) FROM agent_messages m WHERE m.agent_id = a.id AND m.read_at IS NULL),
		(SELECT MAX(m.priority) FROM agent_messages m WHERE m.agent_id = a.id AND m.read_at IS NULL)
	FROM agents a
	WHERE a.account_id = $1
	ORDER BY a.position, a.name
`

// ListConversations returns the account's live agents with unread
// counts and the highest priority among unread messages. Archived
// agents and messages are excluded when the archive schema exists.
func (s *Store) ListConversations(ctx context.Context, accountID int64) ([]Conversation, error) {
	rows, err := archive.QueryWithFallback(ctx, s.db, listConversationsAware, listConversationsFallback, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]Conversation, 0)
	for rows.Next() {
		var conv Conversation
		var highest sql.NullInt64
		err := rows.Scan(
			&conv.ID,
			&conv.AccountID,
			&conv.Name,
			&conv.Type,
			&conv.Position,
			&conv.LastSeenAt,
			&conv.CreatedAt,
			&conv.UnreadCount,
			&highest,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if highest.Valid {
			p := int(highest.Int64)
			conv.HighestPendingPriority = &p
		}
		conversations = append(conversations, conv)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return conversations, nil
}
