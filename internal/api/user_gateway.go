package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/agentrelay/internal/api/auth"
	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/internal/feed"
	"github.com/agentrelay/internal/responses"
	"github.com/agentrelay/pkg/models"
)

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errkind.Validation("invalid %s", name)
	}
	return id, nil
}

// pathStream parses the stream discriminator that routes a message id
// to its table.
func pathStream(c echo.Context) (models.Stream, error) {
	s := models.Stream(c.Param("stream"))
	if s != models.StreamAgent && s != models.StreamUser {
		return "", errkind.Validation("stream must be %q or %q", models.StreamAgent, models.StreamUser)
	}
	return s, nil
}

// userGetAgents lists the operator's live agents with unread counts.
func (s *Server) userGetAgents(c echo.Context) error {
	account := auth.GetAccount(c)

	conversations, err := s.agents.ListConversations(c.Request().Context(), account.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"agents": conversations})
}

// userGetFeed returns one conversation's merged feed and marks the
// returned agent messages read.
func (s *Server) userGetFeed(c echo.Context) error {
	account := auth.GetAccount(c)

	agentID, err := pathID(c, "agentId")
	if err != nil {
		return respondError(c, err)
	}
	agent, err := s.agents.GetOwned(c.Request().Context(), agentID, account.ID)
	if err != nil {
		return respondError(c, err)
	}

	afterCursor, since, err := agentWindow(c)
	if err != nil {
		return respondError(c, err)
	}

	items, err := s.feed.FetchAndMark(c.Request().Context(), feed.Query{
		AgentID:     agent.ID,
		AfterCursor: afterCursor,
		Since:       since,
		Streams:     feed.StreamsBoth,
	}, models.StreamAgent)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"agent":    agent,
		"messages": items,
	})
}

// userPostMessage stores an operator free-text message to an agent.
func (s *Server) userPostMessage(c echo.Context) error {
	account := auth.GetAccount(c)

	var req struct {
		AgentID       int64   `json:"agentId"`
		Content       *string `json:"content"`
		AttachmentIDs []int64 `json:"attachmentIds,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return respondError(c, errkind.Validation("invalid request body"))
	}
	if req.AgentID <= 0 {
		return respondError(c, errkind.Validation("agentId is required"))
	}

	msg, err := s.messages.CreateUserMessage(c.Request().Context(), account.ID, req.AgentID, req.Content, req.AttachmentIDs)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message_id": msg.ID,
	})
}

// userPostResponse binds an answer to a pending question. A second
// answer to the same question conflicts.
func (s *Server) userPostResponse(c echo.Context) error {
	account := auth.GetAccount(c)

	var req struct {
		QuestionID    int64   `json:"questionId"`
		OptionID      *int64  `json:"optionId,omitempty"`
		FreeResponse  *string `json:"freeResponse,omitempty"`
		AttachmentIDs []int64 `json:"attachmentIds,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return respondError(c, errkind.Validation("invalid request body"))
	}
	if req.QuestionID <= 0 {
		return respondError(c, errkind.Validation("questionId is required"))
	}

	result, err := s.responses.Submit(c.Request().Context(), responses.SubmitInput{
		AccountID:     account.ID,
		QuestionID:    req.QuestionID,
		OptionID:      req.OptionID,
		FreeResponse:  req.FreeResponse,
		AttachmentIDs: req.AttachmentIDs,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

// userSetHidden toggles a message's visibility to the agent.
func (s *Server) userSetHidden(c echo.Context) error {
	account := auth.GetAccount(c)

	stream, err := pathStream(c)
	if err != nil {
		return respondError(c, err)
	}
	messageID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req struct {
		Hidden bool `json:"hidden"`
	}
	if err := c.Bind(&req); err != nil {
		return respondError(c, errkind.Validation("invalid request body"))
	}

	if err := s.messages.SetHidden(c.Request().Context(), account.ID, stream, messageID, req.Hidden); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"hidden": req.Hidden})
}

// userDeleteMessage removes one message and its dependents.
func (s *Server) userDeleteMessage(c echo.Context) error {
	account := auth.GetAccount(c)

	stream, err := pathStream(c)
	if err != nil {
		return respondError(c, err)
	}
	messageID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	if err := s.messages.Delete(c.Request().Context(), account.ID, stream, messageID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// userDeleteAgent removes an agent and its whole conversation.
func (s *Server) userDeleteAgent(c echo.Context) error {
	account := auth.GetAccount(c)

	agentID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	if err := s.agents.Delete(c.Request().Context(), agentID, account.ID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
