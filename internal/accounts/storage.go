// Package accounts owns operator account rows.
package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/pkg/models"
)

// Store handles account rows.
type Store struct {
	db *sql.DB
}

// NewStore creates an account store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts an account with a bcrypt-hashed password.
func (s *Store) Create(ctx context.Context, email, password string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errkind.Validation("a valid email is required")
	}
	if len(password) < 8 {
		return nil, errkind.Validation("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{Email: email, PasswordHash: string(hash)}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, account.Email, account.PasswordHash).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errkind.IsUniqueViolation(err) {
			return nil, errkind.Duplicate("DUPLICATE_ACCOUNT", "an account with this email already exists")
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetAccount fetches an account by id.
func (s *Store) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	account := &models.Account{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id).Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errkind.NotFound("account")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetByEmail fetches an account by email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	account := &models.Account{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM accounts WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errkind.NotFound("account")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return account, nil
}

// CheckPassword verifies a password against the stored hash.
func (s *Store) CheckPassword(account *models.Account, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil
}
