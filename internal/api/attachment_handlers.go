package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/agentrelay/internal/api/auth"
	"github.com/agentrelay/internal/attachments"
	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/pkg/models"
)

// attachment uploads carry the encrypted bytes as the request body and
// the envelope parameters as headers. The server never sees plaintext;
// iv and tag are opaque strings it stores and returns verbatim.
const (
	headerEncryptionIV  = "X-Encryption-IV"
	headerEncryptionTag = "X-Encryption-Tag"
)

func optionalDimension(c echo.Context, name string) *int {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// storeAttachment writes the blob under a fresh server-generated key
// and registers its metadata. The blob lands first; a metadata failure
// leaves an orphan blob for the maintenance purge.
func (s *Server) storeAttachment(c echo.Context, accountID, agentID int64) error {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if contentType == "" || strings.HasPrefix(contentType, "application/json") {
		return respondError(c, errkind.Validation("a binary Content-Type is required"))
	}

	iv := c.Request().Header.Get(headerEncryptionIV)
	tag := c.Request().Header.Get(headerEncryptionTag)
	if iv == "" || tag == "" {
		return respondError(c, errkind.Validation("%s and %s headers are required", headerEncryptionIV, headerEncryptionTag))
	}

	key := uuid.NewString()
	size, err := s.blobs.Store(c.Request().Context(), key, c.Request().Body)
	if err != nil {
		return respondError(c, err)
	}
	if size == 0 {
		_ = s.blobs.Delete(c.Request().Context(), key)
		return respondError(c, errkind.Validation("attachment body must not be empty"))
	}

	att := &models.Attachment{
		AccountID:     accountID,
		AgentID:       agentID,
		BlobKey:       key,
		ContentType:   contentType,
		SizeBytes:     size,
		Width:         optionalDimension(c, "width"),
		Height:        optionalDimension(c, "height"),
		EncryptionIV:  iv,
		EncryptionTag: tag,
	}
	if err := s.attachments.Register(c.Request().Context(), att); err != nil {
		_ = s.blobs.Delete(c.Request().Context(), key)
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, att)
}

// agentPostAttachment uploads from the agent channel; the owning agent
// is named in the query and created on first contact.
func (s *Server) agentPostAttachment(c echo.Context) error {
	account := auth.GetAccount(c)

	name := strings.TrimSpace(c.QueryParam("agentName"))
	if name == "" {
		return respondError(c, errkind.Validation("agentName is required"))
	}
	agent, err := s.agents.FindOrCreate(c.Request().Context(), account.ID, name, "")
	if err != nil {
		return respondError(c, err)
	}

	return s.storeAttachment(c, account.ID, agent.ID)
}

// userPostAttachment uploads from the operator channel against an
// existing agent.
func (s *Server) userPostAttachment(c echo.Context) error {
	account := auth.GetAccount(c)

	agentID, err := strconv.ParseInt(c.QueryParam("agentId"), 10, 64)
	if err != nil || agentID <= 0 {
		return respondError(c, errkind.Validation("agentId is required"))
	}
	agent, err := s.agents.GetOwned(c.Request().Context(), agentID, account.ID)
	if err != nil {
		return respondError(c, err)
	}

	return s.storeAttachment(c, account.ID, agent.ID)
}

// getAttachment streams the encrypted blob back with its envelope
// parameters in headers. Ownership failures and missing blobs both
// read as not-found.
func (s *Server) getAttachment(c echo.Context) error {
	account := auth.GetAccount(c)

	attachmentID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	att, err := s.attachments.GetOwned(c.Request().Context(), attachmentID, account.ID)
	if err != nil {
		return respondError(c, err)
	}

	result := s.blobs.Open(c.Request().Context(), att.BlobKey)
	switch result.Status {
	case attachments.ReadOK:
		defer result.Body.Close()
		c.Response().Header().Set(headerEncryptionIV, att.EncryptionIV)
		c.Response().Header().Set(headerEncryptionTag, att.EncryptionTag)
		return c.Stream(http.StatusOK, att.ContentType, result.Body)
	case attachments.ReadNotFound, attachments.ReadPermissionDenied:
		// A denied blob leaks nothing beyond a missing one.
		return respondError(c, errkind.NotFound("attachment"))
	default:
		return respondError(c, result.Err)
	}
}
