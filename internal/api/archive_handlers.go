package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/agentrelay/internal/api/auth"
)

// archiveAgent hides an agent from the live list and deletes its
// message history. The agent row itself survives, so the agent process
// can keep posting into a fresh conversation.
func (s *Server) archiveAgent(c echo.Context) error {
	account := auth.GetAccount(c)

	agentID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	if err := s.archive.ArchiveAgent(c.Request().Context(), account.ID, agentID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "archived"})
}

func (s *Server) unarchiveAgent(c echo.Context) error {
	account := auth.GetAccount(c)

	agentID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	if err := s.archive.UnarchiveAgent(c.Request().Context(), account.ID, agentID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "restored"})
}

// archiveMessage soft-hides one message from the live feed.
func (s *Server) archiveMessage(c echo.Context) error {
	account := auth.GetAccount(c)

	stream, err := pathStream(c)
	if err != nil {
		return respondError(c, err)
	}
	messageID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	if err := s.archive.ArchiveMessage(c.Request().Context(), account.ID, stream, messageID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "archived"})
}

func (s *Server) unarchiveMessage(c echo.Context) error {
	account := auth.GetAccount(c)

	stream, err := pathStream(c)
	if err != nil {
		return respondError(c, err)
	}
	messageID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	if err := s.archive.UnarchiveMessage(c.Request().Context(), account.ID, stream, messageID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "restored"})
}

// listArchive pages through the account's archived agents and
// messages, newest first.
func (s *Server) listArchive(c echo.Context) error {
	account := auth.GetAccount(c)

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))

	entries, err := s.archive.List(c.Request().Context(), account.ID, page, pageSize)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"page":    entries,
		"count":   len(entries),
		"hasMore": pageSize > 0 && len(entries) == pageSize,
	})
}
