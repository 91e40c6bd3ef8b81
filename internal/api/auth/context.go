package auth

import (
	"context"

	"github.com/agentrelay/pkg/models"
)

// AccountResolver resolves an account id to its record. Satisfied by
// the accounts store; kept as an interface so middleware tests can
// stub it.
type AccountResolver interface {
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
}
