package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/agentrelay/internal/errkind"
)

// ErrorResponse is the envelope for every user-visible failure: a
// machine-readable code plus a human message. Internal causes are
// logged server-side and never echoed.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondError(c echo.Context, err error) error {
	var coded *errkind.Coded
	if errors.As(err, &coded) {
		return c.JSON(statusForKind(coded.Kind), ErrorResponse{
			Code:    coded.Code,
			Message: coded.Message,
		})
	}

	switch {
	case errors.Is(err, errkind.ErrValidation):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: err.Error()})
	case errors.Is(err, errkind.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, errkind.ErrForbidden):
		return c.JSON(http.StatusForbidden, ErrorResponse{Code: "FORBIDDEN", Message: err.Error()})
	case errors.Is(err, errkind.ErrDuplicate):
		return c.JSON(http.StatusConflict, ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	})
}

func statusForKind(kind error) int {
	switch kind {
	case errkind.ErrValidation:
		return http.StatusBadRequest
	case errkind.ErrNotFound:
		return http.StatusNotFound
	case errkind.ErrForbidden:
		return http.StatusForbidden
	case errkind.ErrDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
