// Package feed builds the merged, cursor-ordered view of one
// conversation: agent- and user-authored events interleaved by
// microsecond creation time, each carrying the cursor the caller echoes
// back on its next poll.
package feed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/agentrelay/internal/archive"
	"github.com/agentrelay/internal/attachments"
	"github.com/agentrelay/pkg/models"
)

// Answer is the resolved response shown inline on an answered question.
type Answer struct {
	SelectedOption *string   `json:"selected_option,omitempty"`
	FreeResponse   *string   `json:"free_response,omitempty"`
	RespondedAt    time.Time `json:"responded_at"`
}

// Item is one event of the merged feed.
type Item struct {
	Stream            models.Stream           `json:"stream"`
	ID                int64                   `json:"id"`
	Kind              models.MessageKind      `json:"kind"`
	Content           *string                 `json:"content"`
	Priority          int                     `json:"priority"`
	Urgent            bool                    `json:"urgent"`
	AllowFreeResponse bool                    `json:"allow_free_response,omitempty"`
	ReadAt            *time.Time              `json:"read_at,omitempty"`
	HiddenFromAgent   bool                    `json:"hidden_from_agent"`
	CreatedAt         time.Time               `json:"created_at"`
	Cursor            string                  `json:"cursor"`
	Options           []models.QuestionOption `json:"options,omitempty"`
	Answer            *Answer                 `json:"answer,omitempty"`
	Attachments       []models.Attachment     `json:"attachments,omitempty"`
}

// Builder assembles feed windows and performs read-marking.
type Builder struct {
	db          *sql.DB
	attachments *attachments.Store
}

// NewBuilder creates a feed builder.
func NewBuilder(db *sql.DB, attachmentStore *attachments.Store) *Builder {
	return &Builder{db: db, attachments: attachmentStore}
}

// Fetch returns the window described by q in ascending cursor order,
// with options, answers, and attachments resolved. No side effects.
func (b *Builder) Fetch(ctx context.Context, q Query) ([]Item, error) {
	aware, args := q.SQL(true)
	fallback, _ := q.SQL(false)

	rows, err := archive.QueryWithFallback(ctx, b.db, aware, fallback, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}
	defer rows.Close()

	// Non-nil so the payload encodes to [].
	items := make([]Item, 0)
	for rows.Next() {
		var it Item
		var stream, kind string
		var cursor int64
		err := rows.Scan(
			&stream,
			&it.ID,
			&kind,
			&it.Content,
			&it.Priority,
			&it.AllowFreeResponse,
			&it.ReadAt,
			&it.HiddenFromAgent,
			&it.CreatedAt,
			&cursor,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		it.Stream = models.Stream(stream)
		it.Kind = models.MessageKind(kind)
		it.Urgent = it.Priority >= models.PriorityUrgent
		it.Cursor = FormatCursor(cursor)
		items = append(items, it)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	if err := b.resolveQuestions(ctx, items); err != nil {
		return nil, err
	}
	if err := b.resolveAttachments(ctx, items); err != nil {
		return nil, err
	}

	return items, nil
}

// FetchAndMark fetches the window and then marks the fetched rows of
// markStream read. The marking is a set-based conditional update, so
// two pollers racing on the same window fire the transition once and
// neither errors.
func (b *Builder) FetchAndMark(ctx context.Context, q Query, markStream models.Stream) ([]Item, error) {
	items, err := b.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if it.Stream == markStream && it.ReadAt == nil {
			ids = append(ids, it.ID)
		}
	}
	if err := b.markRead(ctx, markStream, ids); err != nil {
		return nil, err
	}

	return items, nil
}

func (b *Builder) markRead(ctx context.Context, stream models.Stream, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	table := "agent_messages"
	if stream == models.StreamUser {
		table = "user_messages"
	}

	// The read_at IS NULL guard keeps the transition idempotent.
	_, err := b.db.ExecContext(ctx,
		"UPDATE "+table+" SET read_at = NOW() WHERE id = ANY($1) AND read_at IS NULL",
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark %s messages read: %w", stream, err)
	}
	return nil
}

// resolveQuestions attaches ordered options and, where answered, the
// selected option text and free response.
func (b *Builder) resolveQuestions(ctx context.Context, items []Item) error {
	byID := make(map[int64]*Item)
	questionIDs := make([]int64, 0)
	for i := range items {
		if items[i].Stream == models.StreamAgent && items[i].Kind == models.MessageKindQuestion {
			byID[items[i].ID] = &items[i]
			questionIDs = append(questionIDs, items[i].ID)
		}
	}
	if len(questionIDs) == 0 {
		return nil
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT id, message_id, option_text, benefits, downsides, is_default, position
		FROM question_options
		WHERE message_id = ANY($1)
		ORDER BY message_id, position
	`, pq.Array(questionIDs))
	if err != nil {
		return fmt.Errorf("failed to query question options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var opt models.QuestionOption
		if err := rows.Scan(&opt.ID, &opt.MessageID, &opt.Text, &opt.Benefits, &opt.Downsides, &opt.IsDefault, &opt.Position); err != nil {
			return fmt.Errorf("failed to scan question option: %w", err)
		}
		if it, ok := byID[opt.MessageID]; ok {
			it.Options = append(it.Options, opt)
		}
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating question options: %w", err)
	}

	answerRows, err := b.db.QueryContext(ctx, `
		SELECT r.message_id, r.free_response, r.created_at, o.option_text
		FROM user_responses r
		LEFT JOIN question_options o ON o.id = r.option_id
		WHERE r.message_id = ANY($1)
	`, pq.Array(questionIDs))
	if err != nil {
		return fmt.Errorf("failed to query responses: %w", err)
	}
	defer answerRows.Close()

	for answerRows.Next() {
		var messageID int64
		var answer Answer
		if err := answerRows.Scan(&messageID, &answer.FreeResponse, &answer.RespondedAt, &answer.SelectedOption); err != nil {
			return fmt.Errorf("failed to scan response: %w", err)
		}
		if it, ok := byID[messageID]; ok {
			it.Answer = &answer
		}
	}
	return answerRows.Err()
}

// resolveAttachments batches one lookup per stream for the whole window.
func (b *Builder) resolveAttachments(ctx context.Context, items []Item) error {
	agentIDs := make([]int64, 0)
	userIDs := make([]int64, 0)
	for _, it := range items {
		if it.Stream == models.StreamAgent {
			agentIDs = append(agentIDs, it.ID)
		} else {
			userIDs = append(userIDs, it.ID)
		}
	}

	agentAtts, err := b.attachments.ForAgentMessages(ctx, agentIDs)
	if err != nil {
		return err
	}
	userAtts, err := b.attachments.ForUserMessages(ctx, userIDs)
	if err != nil {
		return err
	}

	for i := range items {
		if items[i].Stream == models.StreamAgent {
			items[i].Attachments = agentAtts[items[i].ID]
		} else {
			items[i].Attachments = userAtts[items[i].ID]
		}
	}
	return nil
}
