// Package attachments owns encrypted-attachment metadata and the link
// rows binding each attachment to exactly one message or response.
package attachments

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/pkg/models"
)

// Store handles attachment metadata rows.
type Store struct {
	db *sql.DB
}

// NewStore creates an attachment store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Register inserts metadata for a blob already written to the blob
// store, and returns the row with id and creation time filled in.
func (s *Store) Register(ctx context.Context, att *models.Attachment) error {
	query := `
		INSERT INTO attachments (account_id, agent_id, blob_key, content_type, size_bytes, width, height, encryption_iv, encryption_tag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		att.AccountID,
		att.AgentID,
		att.BlobKey,
		att.ContentType,
		att.SizeBytes,
		att.Width,
		att.Height,
		att.EncryptionIV,
		att.EncryptionTag,
	).Scan(&att.ID, &att.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to register attachment: %w", err)
	}
	return nil
}

// GetOwned fetches one attachment, collapsing ownership failures into
// not-found so a foreign id leaks nothing.
func (s *Store) GetOwned(ctx context.Context, attachmentID, accountID int64) (*models.Attachment, error) {
	query := `
		SELECT id, account_id, agent_id, blob_key, content_type, size_bytes, width, height, encryption_iv, encryption_tag, created_at
		FROM attachments
		WHERE id = $1 AND account_id = $2
	`

	att := &models.Attachment{}
	err := s.db.QueryRowContext(ctx, query, attachmentID, accountID).Scan(
		&att.ID,
		&att.AccountID,
		&att.AgentID,
		&att.BlobKey,
		&att.ContentType,
		&att.SizeBytes,
		&att.Width,
		&att.Height,
		&att.EncryptionIV,
		&att.EncryptionTag,
		&att.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errkind.NotFound("attachment")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return att, nil
}

const attachmentColumns = "a.id, a.account_id, a.agent_id, a.blob_key, a.content_type, a.size_bytes, a.width, a.height, a.encryption_iv, a.encryption_tag, a.created_at"

// ForAgentMessages resolves attachments for a batch of agent messages
// in one query, keyed by message id and ordered by link position.
func (s *Store) ForAgentMessages(ctx context.Context, messageIDs []int64) (map[int64][]models.Attachment, error) {
	return s.forTargets(ctx, "agent_message_id", messageIDs)
}

// ForUserMessages is ForAgentMessages for the user stream.
func (s *Store) ForUserMessages(ctx context.Context, messageIDs []int64) (map[int64][]models.Attachment, error) {
	return s.forTargets(ctx, "user_message_id", messageIDs)
}

func (s *Store) forTargets(ctx context.Context, targetColumn string, ids []int64) (map[int64][]models.Attachment, error) {
	result := make(map[int64][]models.Attachment)
	if len(ids) == 0 {
		return result, nil
	}

	// targetColumn is one of two package-internal constants, never
	// caller input.
	query := fmt.Sprintf(`
		SELECT l.%s, %s
		FROM attachment_links l
		JOIN attachments a ON a.id = l.attachment_id
		WHERE l.%s = ANY($1)
		ORDER BY l.%s, l.position
	`, targetColumn, attachmentColumns, targetColumn, targetColumn)

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var targetID int64
		var att models.Attachment
		err := rows.Scan(
			&targetID,
			&att.ID,
			&att.AccountID,
			&att.AgentID,
			&att.BlobKey,
			&att.ContentType,
			&att.SizeBytes,
			&att.Width,
			&att.Height,
			&att.EncryptionIV,
			&att.EncryptionTag,
			&att.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		result[targetID] = append(result[targetID], att)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}
	return result, nil
}
