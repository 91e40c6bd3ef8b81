package archive

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

func setupConversation(t *testing.T, db *sql.DB) (accountID, agentID, messageID int64) {
	t.Helper()
	ctx := context.Background()

	email := fmt.Sprintf("archive-%d@example.com", time.Now().UnixNano())
	err := db.QueryRowContext(ctx, `
		INSERT INTO accounts (email, password_hash) VALUES ($1, 'x') RETURNING id
	`, email).Scan(&accountID)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	})

	err = db.QueryRowContext(ctx, `
		INSERT INTO agents (account_id, name) VALUES ($1, 'old-bot') RETURNING id
	`, accountID).Scan(&agentID)
	require.NoError(t, err)

	err = db.QueryRowContext(ctx, `
		INSERT INTO agent_messages (agent_id, kind, content, priority) VALUES ($1, 'plain', 'hello', 0) RETURNING id
	`, agentID).Scan(&messageID)
	require.NoError(t, err)

	return accountID, agentID, messageID
}

func TestArchiveAgentDeletesHistoryKeepsIdentity(t *testing.T) {
	db := openTestDB(t)
	accountID, agentID, _ := setupConversation(t, db)
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.ArchiveAgent(ctx, accountID, agentID))

	// History is gone; the identity row survives so the agent process
	// can keep posting.
	var messageCount, agentCount int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agent_messages WHERE agent_id = $1`, agentID).Scan(&messageCount))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE id = $1`, agentID).Scan(&agentCount))
	assert.Zero(t, messageCount)
	assert.Equal(t, 1, agentCount)

	// Archiving twice conflicts.
	err := store.ArchiveAgent(ctx, accountID, agentID)
	assert.ErrorIs(t, err, errkind.ErrDuplicate)
}

func TestUnarchiveAgentRestoresListing(t *testing.T) {
	db := openTestDB(t)
	accountID, agentID, _ := setupConversation(t, db)
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.ArchiveAgent(ctx, accountID, agentID))
	require.NoError(t, store.UnarchiveAgent(ctx, accountID, agentID))

	err := store.UnarchiveAgent(ctx, accountID, agentID)
	assert.ErrorIs(t, err, errkind.ErrNotFound)
}

func TestArchiveMessagePreservesRow(t *testing.T) {
	db := openTestDB(t)
	accountID, _, messageID := setupConversation(t, db)
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.ArchiveMessage(ctx, accountID, models.StreamAgent, messageID))

	// Soft hide: the row is untouched.
	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agent_messages WHERE id = $1`, messageID).Scan(&count))
	assert.Equal(t, 1, count)

	err := store.ArchiveMessage(ctx, accountID, models.StreamAgent, messageID)
	assert.ErrorIs(t, err, errkind.ErrDuplicate)

	require.NoError(t, store.UnarchiveMessage(ctx, accountID, models.StreamAgent, messageID))
}

func TestArchiveMessageForeignReadsAsNotFound(t *testing.T) {
	db := openTestDB(t)
	_, _, messageID := setupConversation(t, db)
	strangerID, _, _ := setupConversation(t, db)
	store := NewStore(db)

	err := store.ArchiveMessage(context.Background(), strangerID, models.StreamAgent, messageID)
	assert.ErrorIs(t, err, errkind.ErrNotFound)
}

func TestListReturnsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	accountID, agentID, messageID := setupConversation(t, db)
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.ArchiveMessage(ctx, accountID, models.StreamAgent, messageID))
	require.NoError(t, store.ArchiveAgent(ctx, accountID, agentID))

	entries, err := store.List(ctx, accountID, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "agent", entries[0].Kind)
	assert.Equal(t, "message", entries[1].Kind)
	assert.False(t, entries[0].ArchivedAt.Before(entries[1].ArchivedAt))
}
