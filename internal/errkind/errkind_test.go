package errkind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestCodedUnwrapsToKind(t *testing.T) {
	err := Validation("priority must be between %d and %d", 0, 2)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "priority must be between 0 and 2", err.Error())

	var coded *Coded
	assert.True(t, errors.As(err, &coded))
	assert.Equal(t, "VALIDATION_ERROR", coded.Code)
}

func TestKindsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("submit failed: %w", Duplicate("DUPLICATE_RESPONSE", "question already has a response"))

	assert.True(t, errors.Is(err, ErrDuplicate))
	var coded *Coded
	assert.True(t, errors.As(err, &coded))
	assert.Equal(t, "DUPLICATE_RESPONSE", coded.Code)
}

func TestNotFoundMessage(t *testing.T) {
	err := NotFound("attachment")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "attachment not found", err.Error())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "42P01"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestIsUndefinedTable(t *testing.T) {
	assert.True(t, IsUndefinedTable(&pq.Error{Code: "42P01"}))
	assert.False(t, IsUndefinedTable(&pq.Error{Code: "23505"}))
	assert.False(t, IsUndefinedTable(nil))
}
