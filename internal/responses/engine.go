// Package responses binds a user's answer to a pending question with an
// at-most-one guarantee, and mirrors the answer into the message feed.
package responses

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/agentrelay/internal/attachments"
	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/pkg/models"
)

// Engine resolves question responses.
type Engine struct {
	db *sql.DB
}

// NewEngine creates a response resolution engine.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// SubmitInput is one answer attempt against a question.
type SubmitInput struct {
	AccountID     int64
	QuestionID    int64
	OptionID      *int64
	FreeResponse  *string
	AttachmentIDs []int64
}

// SubmitResult carries the ids of the stored response and its mirrored
// feed message.
type SubmitResult struct {
	ResponseID        int64 `json:"response_id"`
	MirroredMessageID int64 `json:"mirrored_message_id"`
}

// Submit runs the whole resolution in one transaction: verify the
// question's ownership chain, verify the option, insert the response,
// synthesize the mirrored user message, and link attachments to it.
//
// The at-most-one guarantee is the unique constraint on
// user_responses.message_id. There is deliberately no existence
// pre-check: two submissions racing past such a check would both
// proceed, and only the constraint can reject the loser. A violation
// surfaces as a distinct DUPLICATE_RESPONSE conflict.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	hasFree := in.FreeResponse != nil && strings.TrimSpace(*in.FreeResponse) != ""
	if in.OptionID == nil && !hasFree && len(in.AttachmentIDs) == 0 {
		return nil, errkind.Validation("a response needs an option, free text, or at least one attachment")
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Error().Err(err).Msg("response transaction rollback failed")
		}
	}()

	// Ownership chain first; a question in another account reads as
	// not found.
	var agentID int64
	err = tx.QueryRowContext(ctx, `
		SELECT m.agent_id
		FROM agent_messages m
		JOIN agents a ON a.id = m.agent_id
		WHERE m.id = $1 AND a.account_id = $2 AND m.kind = 'question'
	`, in.QuestionID, in.AccountID).Scan(&agentID)
	if err == sql.ErrNoRows {
		return nil, errkind.NotFound("question")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify question: %w", err)
	}

	var optionText *string
	if in.OptionID != nil {
		var text string
		err = tx.QueryRowContext(ctx, `
			SELECT option_text FROM question_options WHERE id = $1 AND message_id = $2
		`, *in.OptionID, in.QuestionID).Scan(&text)
		if err == sql.ErrNoRows {
			return nil, errkind.Validation("option does not belong to this question")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to verify option: %w", err)
		}
		optionText = &text
	}

	resp := models.UserResponse{
		MessageID:    in.QuestionID,
		OptionID:     in.OptionID,
		FreeResponse: in.FreeResponse,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO user_responses (message_id, option_id, free_response)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, resp.MessageID, resp.OptionID, resp.FreeResponse).Scan(&resp.ID, &resp.CreatedAt)
	if err != nil {
		if errkind.IsUniqueViolation(err) {
			return nil, errkind.Duplicate("DUPLICATE_RESPONSE", "question already has a response")
		}
		return nil, fmt.Errorf("failed to insert response: %w", err)
	}

	// Mirror the answer as an ordinary user message so it displays
	// inline. Attachments link to the mirror, not the response row.
	content := ComposeContent(optionText, in.FreeResponse)
	var mirrorContent *string
	if content != "" {
		mirrorContent = &content
	}

	var mirroredID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO user_messages (agent_id, content)
		VALUES ($1, $2)
		RETURNING id
	`, agentID, mirrorContent).Scan(&mirroredID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert mirrored message: %w", err)
	}

	err = attachments.LinkTx(ctx, tx, in.AccountID, agentID, in.AttachmentIDs,
		attachments.LinkTarget{UserMessageID: &mirroredID})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit response: %w", err)
	}

	return &SubmitResult{ResponseID: resp.ID, MirroredMessageID: mirroredID}, nil
}

// ComposeContent renders the mirrored message body from the selected
// option and free text.
func ComposeContent(optionText, freeResponse *string) string {
	var parts []string
	if optionText != nil && *optionText != "" {
		parts = append(parts, fmt.Sprintf("Selected: %q", *optionText))
	}
	if freeResponse != nil && strings.TrimSpace(*freeResponse) != "" {
		parts = append(parts, strings.TrimSpace(*freeResponse))
	}
	return strings.Join(parts, "\n\n")
}
