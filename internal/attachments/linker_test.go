package attachments

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrelay/internal/database"
	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/pkg/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := database.Open("")
	if err != nil {
		t.Skipf("database unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

type linkFixture struct {
	accountID int64
	agentID   int64
	messageID int64
}

func setupLinkFixture(t *testing.T, db *sql.DB) linkFixture {
	t.Helper()
	ctx := context.Background()
	var f linkFixture

	email := fmt.Sprintf("links-%d@example.com", time.Now().UnixNano())
	err := db.QueryRowContext(ctx, `
		INSERT INTO accounts (email, password_hash) VALUES ($1, 'x') RETURNING id
	`, email).Scan(&f.accountID)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, f.accountID)
	})

	err = db.QueryRowContext(ctx, `
		INSERT INTO agents (account_id, name) VALUES ($1, 'uploader-bot') RETURNING id
	`, f.accountID).Scan(&f.agentID)
	require.NoError(t, err)

	err = db.QueryRowContext(ctx, `
		INSERT INTO agent_messages (agent_id, kind, content, priority) VALUES ($1, 'plain', 'see attached', 0) RETURNING id
	`, f.agentID).Scan(&f.messageID)
	require.NoError(t, err)

	return f
}

func registerTestAttachment(t *testing.T, db *sql.DB, f linkFixture) int64 {
	t.Helper()
	att := &models.Attachment{
		AccountID:   f.accountID,
		AgentID:     f.agentID,
		BlobKey:     fmt.Sprintf("blob-%d", time.Now().UnixNano()),
		ContentType: "image/png",
		SizeBytes:   128,
	}
	require.NoError(t, NewStore(db).Register(context.Background(), att))
	return att.ID
}

func linkInTx(t *testing.T, db *sql.DB, f linkFixture, ids []int64, target LinkTarget) error {
	t.Helper()
	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)

	if err := LinkTx(context.Background(), tx, f.accountID, f.agentID, ids, target); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func TestLinkTxPreservesOrder(t *testing.T) {
	db := openTestDB(t)
	f := setupLinkFixture(t, db)

	first := registerTestAttachment(t, db, f)
	second := registerTestAttachment(t, db, f)

	err := linkInTx(t, db, f, []int64{second, first}, LinkTarget{AgentMessageID: &f.messageID})
	require.NoError(t, err)

	byMessage, err := NewStore(db).ForAgentMessages(context.Background(), []int64{f.messageID})
	require.NoError(t, err)
	require.Len(t, byMessage[f.messageID], 2)
	assert.Equal(t, second, byMessage[f.messageID][0].ID)
	assert.Equal(t, first, byMessage[f.messageID][1].ID)
}

func TestLinkTxRejectsRelinking(t *testing.T) {
	db := openTestDB(t)
	f := setupLinkFixture(t, db)
	attachmentID := registerTestAttachment(t, db, f)

	err := linkInTx(t, db, f, []int64{attachmentID}, LinkTarget{AgentMessageID: &f.messageID})
	require.NoError(t, err)

	// Any later write naming the same attachment fails whole.
	other := registerTestAttachment(t, db, f)
	var userMessageID int64
	err = db.QueryRowContext(context.Background(), `
		INSERT INTO user_messages (agent_id, content) VALUES ($1, 'reply') RETURNING id
	`, f.agentID).Scan(&userMessageID)
	require.NoError(t, err)

	err = linkInTx(t, db, f, []int64{other, attachmentID}, LinkTarget{UserMessageID: &userMessageID})
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrValidation)

	// The rollback left the fresh attachment unlinked.
	var linked int
	err = db.QueryRowContext(context.Background(), `
		SELECT COUNT(*) FROM attachment_links WHERE attachment_id = $1
	`, other).Scan(&linked)
	require.NoError(t, err)
	assert.Zero(t, linked)
}

func TestLinkTxCollapsesForeignAttachmentToNotFound(t *testing.T) {
	db := openTestDB(t)
	f := setupLinkFixture(t, db)
	other := setupLinkFixture(t, db)
	foreign := registerTestAttachment(t, db, other)

	err := linkInTx(t, db, f, []int64{foreign}, LinkTarget{AgentMessageID: &f.messageID})
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrNotFound)
}

func TestGetOwnedCollapsesForeignToNotFound(t *testing.T) {
	db := openTestDB(t)
	f := setupLinkFixture(t, db)
	other := setupLinkFixture(t, db)
	attachmentID := registerTestAttachment(t, db, f)

	_, err := NewStore(db).GetOwned(context.Background(), attachmentID, other.accountID)
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrNotFound)
}
