package responses

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrelay/internal/agents"
	"github.com/agentrelay/internal/database"
	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/internal/messages"
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

func createQuestion(t *testing.T, db *sql.DB) (accountID, questionID, optionID int64) {
	t.Helper()
	ctx := context.Background()

	email := fmt.Sprintf("responses-%d@example.com", time.Now().UnixNano())
	err := db.QueryRowContext(ctx, `
		INSERT INTO accounts (email, password_hash) VALUES ($1, 'x') RETURNING id
	`, email).Scan(&accountID)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	})

	store := messages.NewStore(db, agents.NewStore(db))
	content := "ship the release?"
	msg, _, err := store.CreateQuestion(ctx, messages.QuestionInput{
		AgentMessageInput: messages.AgentMessageInput{
			AccountID: accountID,
			AgentName: "release-bot",
			Content:   &content,
			Priority:  models.PriorityAttention,
		},
		Options: []messages.OptionInput{
			{Text: "Yes", IsDefault: true},
			{Text: "No"},
		},
	})
	require.NoError(t, err)

	err = db.QueryRowContext(ctx, `
		SELECT id FROM question_options WHERE message_id = $1 AND option_text = 'Yes'
	`, msg.ID).Scan(&optionID)
	require.NoError(t, err)

	return accountID, msg.ID, optionID
}

func TestSubmitMirrorsAnswerIntoFeed(t *testing.T) {
	db := openTestDB(t)
	accountID, questionID, optionID := createQuestion(t, db)
	ctx := context.Background()

	free := "sounds good"
	result, err := NewEngine(db).Submit(ctx, SubmitInput{
		AccountID:    accountID,
		QuestionID:   questionID,
		OptionID:     &optionID,
		FreeResponse: &free,
	})
	require.NoError(t, err)
	require.NotZero(t, result.ResponseID)
	require.NotZero(t, result.MirroredMessageID)

	var content string
	err = db.QueryRowContext(ctx, `SELECT content FROM user_messages WHERE id = $1`, result.MirroredMessageID).Scan(&content)
	require.NoError(t, err)
	assert.Equal(t, "Selected: \"Yes\"\n\nsounds good", content)
}

func TestSubmitSecondAnswerConflicts(t *testing.T) {
	db := openTestDB(t)
	accountID, questionID, optionID := createQuestion(t, db)
	ctx := context.Background()
	engine := NewEngine(db)

	_, err := engine.Submit(ctx, SubmitInput{AccountID: accountID, QuestionID: questionID, OptionID: &optionID})
	require.NoError(t, err)

	free := "changed my mind"
	_, err = engine.Submit(ctx, SubmitInput{AccountID: accountID, QuestionID: questionID, FreeResponse: &free})
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrDuplicate)
}

func TestSubmitConcurrentAnswersAdmitExactlyOne(t *testing.T) {
	db := openTestDB(t)
	accountID, questionID, optionID := createQuestion(t, db)
	engine := NewEngine(db)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Submit(context.Background(), SubmitInput{
				AccountID:  accountID,
				QuestionID: questionID,
				OptionID:   &optionID,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, errkind.ErrDuplicate)
		}
	}
	assert.Equal(t, 1, succeeded)

	// Exactly one mirrored message, from the winner.
	var mirrors int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM user_messages u
		JOIN agent_messages m ON m.agent_id = u.agent_id
		WHERE m.id = $1
	`, questionID).Scan(&mirrors)
	require.NoError(t, err)
	assert.Equal(t, 1, mirrors)
}

func TestSubmitRejectsForeignOption(t *testing.T) {
	db := openTestDB(t)
	accountID, questionID, _ := createQuestion(t, db)
	_, _, otherOptionID := createQuestion(t, db)
	ctx := context.Background()

	_, err := NewEngine(db).Submit(ctx, SubmitInput{
		AccountID:  accountID,
		QuestionID: questionID,
		OptionID:   &otherOptionID,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrValidation)
}

func TestSubmitUnknownQuestionReadsAsNotFound(t *testing.T) {
	db := openTestDB(t)
	accountID, _, _ := createQuestion(t, db)
	free := "hello"

	_, err := NewEngine(db).Submit(context.Background(), SubmitInput{
		AccountID:    accountID,
		QuestionID:   999999999,
		FreeResponse: &free,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrNotFound)
}
