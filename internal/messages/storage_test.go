package messages

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrelay/internal/agents"
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

func createTestAccount(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	ctx := context.Background()

	var accountID int64
	email := fmt.Sprintf("messages-%d@example.com", time.Now().UnixNano())
	err := db.QueryRowContext(ctx, `
		INSERT INTO accounts (email, password_hash) VALUES ($1, 'x') RETURNING id
	`, email).Scan(&accountID)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	})
	return accountID
}

func newTestStore(db *sql.DB) *Store {
	return NewStore(db, agents.NewStore(db))
}

func TestCreateAgentMessageCreatesAgentOnFirstContact(t *testing.T) {
	db := openTestDB(t)
	accountID := createTestAccount(t, db)
	store := newTestStore(db)
	ctx := context.Background()

	content := "deployment started"
	msg, agent, err := store.CreateAgentMessage(ctx, AgentMessageInput{
		AccountID: accountID,
		AgentName: "never-seen-before",
		Content:   &content,
		Priority:  models.PriorityNormal,
	})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, "never-seen-before", agent.Name)
	assert.Equal(t, models.MessageKindPlain, msg.Kind)

	// Second message reuses the same agent.
	_, again, err := store.CreateAgentMessage(ctx, AgentMessageInput{
		AccountID: accountID,
		AgentName: "never-seen-before",
		Content:   &content,
		Priority:  models.PriorityUrgent,
	})
	require.NoError(t, err)
	assert.Equal(t, agent.ID, again.ID)
}

func TestCreateQuestionStoresOrderedOptions(t *testing.T) {
	db := openTestDB(t)
	accountID := createTestAccount(t, db)
	store := newTestStore(db)
	ctx := context.Background()

	content := "which environment?"
	msg, _, err := store.CreateQuestion(ctx, QuestionInput{
		AgentMessageInput: AgentMessageInput{
			AccountID: accountID,
			AgentName: "deploy-bot",
			Content:   &content,
			Priority:  models.PriorityAttention,
		},
		Options: []OptionInput{
			{Text: "staging", IsDefault: true},
			{Text: "production"},
		},
		AllowFreeResponse: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageKindQuestion, msg.Kind)
	assert.True(t, msg.AllowFreeResponse)

	rows, err := db.QueryContext(ctx, `
		SELECT option_text, position FROM question_options WHERE message_id = $1 ORDER BY position
	`, msg.ID)
	require.NoError(t, err)
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		var position int
		require.NoError(t, rows.Scan(&text, &position))
		texts = append(texts, text)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"staging", "production"}, texts)
}

func TestCreateUserMessageRequiresOwnedAgent(t *testing.T) {
	db := openTestDB(t)
	owner := createTestAccount(t, db)
	stranger := createTestAccount(t, db)
	store := newTestStore(db)
	ctx := context.Background()

	content := "hello"
	_, agent, err := store.CreateAgentMessage(ctx, AgentMessageInput{
		AccountID: owner,
		AgentName: "mine",
		Content:   &content,
		Priority:  models.PriorityNormal,
	})
	require.NoError(t, err)

	reply := "who is this"
	_, err = store.CreateUserMessage(ctx, stranger, agent.ID, &reply, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrForbidden)

	msg, err := store.CreateUserMessage(ctx, owner, agent.ID, &reply, nil)
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
}

func TestSetHiddenAndDeleteCollapseToNotFound(t *testing.T) {
	db := openTestDB(t)
	accountID := createTestAccount(t, db)
	store := newTestStore(db)
	ctx := context.Background()

	err := store.SetHidden(ctx, accountID, models.StreamAgent, 999999999, true)
	assert.ErrorIs(t, err, errkind.ErrNotFound)

	err = store.Delete(ctx, accountID, models.StreamUser, 999999999)
	assert.ErrorIs(t, err, errkind.ErrNotFound)
}

func TestDeleteQuestionCascades(t *testing.T) {
	db := openTestDB(t)
	accountID := createTestAccount(t, db)
	store := newTestStore(db)
	ctx := context.Background()

	content := "proceed?"
	msg, _, err := store.CreateQuestion(ctx, QuestionInput{
		AgentMessageInput: AgentMessageInput{
			AccountID: accountID,
			AgentName: "ask-bot",
			Content:   &content,
			Priority:  models.PriorityNormal,
		},
		Options: []OptionInput{{Text: "go"}},
	})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, accountID, models.StreamAgent, msg.ID))

	var options int
	require.NoError(t, db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM question_options WHERE message_id = $1
	`, msg.ID).Scan(&options))
	assert.Zero(t, options)
}
