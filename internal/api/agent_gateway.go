package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/agentrelay/internal/api/auth"
	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/internal/feed"
	"github.com/agentrelay/internal/messages"
	"github.com/agentrelay/pkg/models"
)

// agentMessageRequest is the body shared by the agent's message and
// question endpoints.
type agentMessageRequest struct {
	AgentName     string  `json:"agentName"`
	AgentType     string  `json:"agentType,omitempty"`
	Content       *string `json:"content"`
	Priority      int     `json:"priority"`
	AttachmentIDs []int64 `json:"attachmentIds,omitempty"`
}

type agentQuestionRequest struct {
	agentMessageRequest
	Options           []optionRequest `json:"options"`
	AllowFreeResponse bool            `json:"allowFreeResponse"`
}

type optionRequest struct {
	Text      string  `json:"text"`
	Benefits  *string `json:"benefits,omitempty"`
	Downsides *string `json:"downsides,omitempty"`
	IsDefault bool    `json:"isDefault,omitempty"`
}

func (r agentMessageRequest) toInput(accountID int64) messages.AgentMessageInput {
	return messages.AgentMessageInput{
		AccountID:     accountID,
		AgentName:     r.AgentName,
		AgentType:     models.AgentType(r.AgentType),
		Content:       r.Content,
		Priority:      r.Priority,
		AttachmentIDs: r.AttachmentIDs,
	}
}

// agentPostMessage stores a plain message and piggybacks any unread
// operator replies onto the 201, so a posting agent learns about
// pending answers without a second round trip.
func (s *Server) agentPostMessage(c echo.Context) error {
	account := auth.GetAccount(c)

	var req agentMessageRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errkind.Validation("invalid request body"))
	}

	msg, agent, err := s.messages.CreateAgentMessage(c.Request().Context(), req.toInput(account.ID))
	if err != nil {
		return respondError(c, err)
	}

	replies, err := s.feed.FetchAndMark(c.Request().Context(), feed.Query{
		AgentID:        agent.ID,
		Streams:        feed.StreamsUserOnly,
		VisibleToAgent: true,
		UnreadOnly:     true,
	}, models.StreamUser)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message_id":       msg.ID,
		"agent_id":         agent.ID,
		"attachment_count": len(req.AttachmentIDs),
		"replies":          replies,
	})
}

func (s *Server) agentPostQuestion(c echo.Context) error {
	account := auth.GetAccount(c)

	var req agentQuestionRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errkind.Validation("invalid request body"))
	}

	in := messages.QuestionInput{
		AgentMessageInput: req.toInput(account.ID),
		AllowFreeResponse: req.AllowFreeResponse,
	}
	for _, opt := range req.Options {
		in.Options = append(in.Options, messages.OptionInput{
			Text:      opt.Text,
			Benefits:  opt.Benefits,
			Downsides: opt.Downsides,
			IsDefault: opt.IsDefault,
		})
	}

	msg, agent, err := s.messages.CreateQuestion(c.Request().Context(), in)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"question_id": msg.ID,
		"agent_id":    agent.ID,
	})
}

// agentWindow extracts the optional cursor= / since= poll window.
// Cursor wins when both are supplied.
func agentWindow(c echo.Context) (*int64, *time.Time, error) {
	var afterCursor *int64
	var since *time.Time

	if raw := c.QueryParam("cursor"); raw != "" {
		v, err := feed.ParseCursor(raw)
		if err != nil {
			return nil, nil, err
		}
		afterCursor = &v
	}
	if raw := c.QueryParam("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, nil, errkind.Validation("invalid since %q: must be RFC 3339", raw)
		}
		since = &t
	}
	return afterCursor, since, nil
}

// agentGetResponses returns operator replies for one agent and marks
// them read. With no window the poll is unread-only, so the next
// windowless poll comes back empty.
func (s *Server) agentGetResponses(c echo.Context) error {
	account := auth.GetAccount(c)

	name := strings.TrimSpace(c.QueryParam("agentName"))
	if name == "" {
		return respondError(c, errkind.Validation("agentName is required"))
	}

	agent, err := s.agents.GetOwnedByName(c.Request().Context(), account.ID, name)
	if err != nil {
		return respondError(c, err)
	}

	afterCursor, since, err := agentWindow(c)
	if err != nil {
		return respondError(c, err)
	}

	q := feed.Query{
		AgentID:        agent.ID,
		AfterCursor:    afterCursor,
		Since:          since,
		Streams:        feed.StreamsUserOnly,
		VisibleToAgent: true,
		UnreadOnly:     afterCursor == nil && since == nil,
	}
	items, err := s.feed.FetchAndMark(c.Request().Context(), q, models.StreamUser)
	if err != nil {
		return respondError(c, err)
	}

	if err := s.agents.TouchLastSeen(c.Request().Context(), agent.ID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"agent_id":  agent.ID,
		"responses": items,
	})
}

// agentGetHistory returns the agent-visible merged feed with no side
// effects. An archived-then-emptied conversation reads as an empty
// feed.
func (s *Server) agentGetHistory(c echo.Context) error {
	account := auth.GetAccount(c)

	name := strings.TrimSpace(c.QueryParam("agentName"))
	if name == "" {
		return respondError(c, errkind.Validation("agentName is required"))
	}

	agent, err := s.agents.GetOwnedByName(c.Request().Context(), account.ID, name)
	if err != nil {
		return respondError(c, err)
	}

	afterCursor, since, err := agentWindow(c)
	if err != nil {
		return respondError(c, err)
	}

	items, err := s.feed.Fetch(c.Request().Context(), feed.Query{
		AgentID:        agent.ID,
		AfterCursor:    afterCursor,
		Since:          since,
		Streams:        feed.StreamsBoth,
		VisibleToAgent: true,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"agent_id": agent.ID,
		"messages": items,
	})
}

// agentGetLatest returns the newest agent-visible event, if any.
func (s *Server) agentGetLatest(c echo.Context) error {
	account := auth.GetAccount(c)

	name := strings.TrimSpace(c.QueryParam("agentName"))
	if name == "" {
		return respondError(c, errkind.Validation("agentName is required"))
	}

	agent, err := s.agents.GetOwnedByName(c.Request().Context(), account.ID, name)
	if err != nil {
		return respondError(c, err)
	}

	items, err := s.feed.Fetch(c.Request().Context(), feed.Query{
		AgentID:        agent.ID,
		Streams:        feed.StreamsBoth,
		VisibleToAgent: true,
		Descending:     true,
		Limit:          1,
	})
	if err != nil {
		return respondError(c, err)
	}

	var latest interface{}
	if len(items) > 0 {
		latest = items[0]
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agent_id": agent.ID,
		"message":  latest,
	})
}
