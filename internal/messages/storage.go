// Package messages owns the write paths for both event streams:
// agent-authored messages and questions, and human-authored replies.
package messages

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/agentrelay/internal/agents"
	"github.com/agentrelay/internal/attachments"
	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/pkg/models"
)

// Store handles message rows for both streams.
type Store struct {
	db     *sql.DB
	agents *agents.Store
}

// NewStore creates a message store.
func NewStore(db *sql.DB, agentStore *agents.Store) *Store {
	return &Store{db: db, agents: agentStore}
}

// AgentMessageInput is a write from the agent channel. AgentName is
// resolved with find-or-create: a never-seen name silently becomes a
// new agent.
type AgentMessageInput struct {
	AccountID     int64
	AgentName     string
	AgentType     models.AgentType
	Content       *string
	Priority      int
	AttachmentIDs []int64
}

// OptionInput is one selectable answer supplied with a question.
type OptionInput struct {
	Text      string
	Benefits  *string
	Downsides *string
	IsDefault bool
}

// QuestionInput is a structured question from the agent channel.
type QuestionInput struct {
	AgentMessageInput
	Options           []OptionInput
	AllowFreeResponse bool
}

func validateCommon(content *string, attachmentIDs []int64, priority int) error {
	if priority < models.PriorityNormal || priority > models.PriorityUrgent {
		return errkind.Validation("priority must be between %d and %d", models.PriorityNormal, models.PriorityUrgent)
	}
	hasContent := content != nil && strings.TrimSpace(*content) != ""
	if !hasContent && len(attachmentIDs) == 0 {
		return errkind.Validation("either content or at least one attachment is required")
	}
	return nil
}

// CreateAgentMessage persists a plain agent message and its attachment
// links in one transaction, resolving the agent by name first.
func (s *Store) CreateAgentMessage(ctx context.Context, in AgentMessageInput) (*models.AgentMessage, *models.Agent, error) {
	if strings.TrimSpace(in.AgentName) == "" {
		return nil, nil, errkind.Validation("agentName is required")
	}
	if err := validateCommon(in.Content, in.AttachmentIDs, in.Priority); err != nil {
		return nil, nil, err
	}

	agent, err := s.agents.FindOrCreate(ctx, in.AccountID, in.AgentName, in.AgentType)
	if err != nil {
		return nil, nil, err
	}

	msg := &models.AgentMessage{
		AgentID:  agent.ID,
		Kind:     models.MessageKindPlain,
		Content:  in.Content,
		Priority: in.Priority,
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertAgentMessage(ctx, tx, msg); err != nil {
			return err
		}
		return attachments.LinkTx(ctx, tx, in.AccountID, agent.ID, in.AttachmentIDs,
			attachments.LinkTarget{AgentMessageID: &msg.ID})
	})
	if err != nil {
		return nil, nil, err
	}

	return msg, agent, nil
}

// CreateQuestion persists a question, its ordered options, and its
// attachment links in one transaction.
func (s *Store) CreateQuestion(ctx context.Context, in QuestionInput) (*models.AgentMessage, *models.Agent, error) {
	if strings.TrimSpace(in.AgentName) == "" {
		return nil, nil, errkind.Validation("agentName is required")
	}
	if err := validateCommon(in.Content, in.AttachmentIDs, in.Priority); err != nil {
		return nil, nil, err
	}
	if len(in.Options) == 0 && !in.AllowFreeResponse {
		return nil, nil, errkind.Validation("a question needs options or allowFreeResponse")
	}
	for _, opt := range in.Options {
		if strings.TrimSpace(opt.Text) == "" {
			return nil, nil, errkind.Validation("option text must not be empty")
		}
	}

	agent, err := s.agents.FindOrCreate(ctx, in.AccountID, in.AgentName, in.AgentType)
	if err != nil {
		return nil, nil, err
	}

	msg := &models.AgentMessage{
		AgentID:           agent.ID,
		Kind:              models.MessageKindQuestion,
		Content:           in.Content,
		Priority:          in.Priority,
		AllowFreeResponse: in.AllowFreeResponse,
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertAgentMessage(ctx, tx, msg); err != nil {
			return err
		}
		for i, opt := range in.Options {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO question_options (message_id, option_text, benefits, downsides, is_default, position)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, msg.ID, opt.Text, opt.Benefits, opt.Downsides, opt.IsDefault, i)
			if err != nil {
				return fmt.Errorf("failed to insert question option: %w", err)
			}
		}
		return attachments.LinkTx(ctx, tx, in.AccountID, agent.ID, in.AttachmentIDs,
			attachments.LinkTarget{AgentMessageID: &msg.ID})
	})
	if err != nil {
		return nil, nil, err
	}

	log.Debug().
		Int64("agent_id", agent.ID).
		Int64("message_id", msg.ID).
		Int("options", len(in.Options)).
		Msg("question created")
	return msg, agent, nil
}

// CreateUserMessage persists a human free-text reply and its attachment
// links in one transaction.
func (s *Store) CreateUserMessage(ctx context.Context, accountID, agentID int64, content *string, attachmentIDs []int64) (*models.UserMessage, error) {
	hasContent := content != nil && strings.TrimSpace(*content) != ""
	if !hasContent && len(attachmentIDs) == 0 {
		return nil, errkind.Validation("either content or at least one attachment is required")
	}

	agent, err := s.agents.GetOwned(ctx, agentID, accountID)
	if err != nil {
		return nil, err
	}

	msg := &models.UserMessage{AgentID: agent.ID, Content: content}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO user_messages (agent_id, content)
			VALUES ($1, $2)
			RETURNING id, created_at
		`, msg.AgentID, msg.Content).Scan(&msg.ID, &msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert user message: %w", err)
		}
		return attachments.LinkTx(ctx, tx, accountID, agent.ID, attachmentIDs,
			attachments.LinkTarget{UserMessageID: &msg.ID})
	})
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// SetHidden toggles a message's visibility to the agent. Ownership
// failures collapse into not-found.
func (s *Store) SetHidden(ctx context.Context, accountID int64, stream models.Stream, messageID int64, hidden bool) error {
	query := `
		UPDATE agent_messages m SET hidden_from_agent = $1
		FROM agents a
		WHERE m.id = $2 AND m.agent_id = a.id AND a.account_id = $3
	`
	if stream == models.StreamUser {
		query = `
			UPDATE user_messages m SET hidden_from_agent = $1
			FROM agents a
			WHERE m.id = $2 AND m.agent_id = a.id AND a.account_id = $3
		`
	}

	result, err := s.db.ExecContext(ctx, query, hidden, messageID, accountID)
	if err != nil {
		return fmt.Errorf("failed to update message visibility: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errkind.NotFound("message")
	}
	return nil
}

// Delete removes a single message. Options, responses, and links go
// with it via cascades.
func (s *Store) Delete(ctx context.Context, accountID int64, stream models.Stream, messageID int64) error {
	query := `
		DELETE FROM agent_messages m
		USING agents a
		WHERE m.id = $1 AND m.agent_id = a.id AND a.account_id = $2
	`
	if stream == models.StreamUser {
		query = `
			DELETE FROM user_messages m
			USING agents a
			WHERE m.id = $1 AND m.agent_id = a.id AND a.account_id = $2
		`
	}

	result, err := s.db.ExecContext(ctx, query, messageID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errkind.NotFound("message")
	}
	return nil
}

func insertAgentMessage(ctx context.Context, tx *sql.Tx, msg *models.AgentMessage) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO agent_messages (agent_id, kind, content, priority, allow_free_response)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, msg.AgentID, msg.Kind, msg.Content, msg.Priority, msg.AllowFreeResponse).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert agent message: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			log.Error().Err(rbErr).Msg("transaction rollback failed")
		}
		return err
	}
	return tx.Commit()
}
