package attachments

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/pkg/models"
)

// LinkTarget names the single row a batch of attachments binds to.
// Exactly one field is set.
type LinkTarget struct {
	AgentMessageID *int64
	UserMessageID  *int64
	ResponseID     *int64
}

// LinkTx binds attachmentIDs to target inside the caller's transaction,
// in the caller-supplied order. All N must belong to the account and
// agent and must never have been linked before; any failure aborts with
// no links written and the outer transaction rolls back the whole write.
//
// The pre-checks give precise errors, but exclusivity itself rests on
// the unique constraint: two transactions racing past the check cannot
// both insert.
func LinkTx(ctx context.Context, tx *sql.Tx, accountID, agentID int64, attachmentIDs []int64, target LinkTarget) error {
	if len(attachmentIDs) == 0 {
		return nil
	}

	var owned int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attachments
		WHERE id = ANY($1) AND account_id = $2 AND agent_id = $3
	`, pq.Array(attachmentIDs), accountID, agentID).Scan(&owned)
	if err != nil {
		return fmt.Errorf("failed to verify attachment ownership: %w", err)
	}
	if owned != len(attachmentIDs) {
		return errkind.NotFound("attachment")
	}

	var linked int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attachment_links WHERE attachment_id = ANY($1)
	`, pq.Array(attachmentIDs)).Scan(&linked)
	if err != nil {
		return fmt.Errorf("failed to check existing links: %w", err)
	}
	if linked > 0 {
		return errkind.Validation("attachment already linked to another message")
	}

	for i, attachmentID := range attachmentIDs {
		link := models.AttachmentLink{
			AttachmentID:   attachmentID,
			AgentMessageID: target.AgentMessageID,
			UserMessageID:  target.UserMessageID,
			ResponseID:     target.ResponseID,
			Position:       i,
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attachment_links (attachment_id, agent_message_id, user_message_id, response_id, position)
			VALUES ($1, $2, $3, $4, $5)
		`, link.AttachmentID, link.AgentMessageID, link.UserMessageID, link.ResponseID, link.Position)
		if err != nil {
			if errkind.IsUniqueViolation(err) {
				return errkind.Validation("attachment already linked to another message")
			}
			return fmt.Errorf("failed to link attachment %d: %w", attachmentID, err)
		}
	}

	return nil
}
