package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// APIKey represents an agent API key record
type APIKey struct {
	ID         int64      `json:"id"`
	AccountID  int64      `json:"account_id"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	Label      string     `json:"label"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at"`
}

// APIKeyManager handles agent API key operations
type APIKeyManager struct {
	db *sql.DB
}

// NewAPIKeyManager creates a new API key manager
func NewAPIKeyManager(db *sql.DB) *APIKeyManager {
	return &APIKeyManager{db: db}
}

// GenerateAPIKey creates a new API key with the format: ar_<base32_random>
func (m *APIKeyManager) GenerateAPIKey() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(randomBytes)
	return "ar_" + strings.ToLower(encoded), nil
}

// HashAPIKey creates a SHA-256 hash of the API key
func (m *APIKeyManager) HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// GetKeyPrefix extracts the first 8 characters after "ar_" for display
func (m *APIKeyManager) GetKeyPrefix(key string) string {
	if !strings.HasPrefix(key, "ar_") {
		return ""
	}
	stripped := strings.TrimPrefix(key, "ar_")
	if len(stripped) > 8 {
		return "ar_" + stripped[:8]
	}
	return "ar_" + stripped
}

// CreateAPIKey generates and stores a new API key for an account,
// returning the record and the plaintext key (shown once).
func (m *APIKeyManager) CreateAPIKey(accountID int64, label string) (*APIKey, string, error) {
	key, err := m.GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}

	keyHash := m.HashAPIKey(key)
	keyPrefix := m.GetKeyPrefix(key)

	query := `
		INSERT INTO api_keys (account_id, key_hash, key_prefix, label)
		VALUES ($1, $2, $3, $4)
		RETURNING id, account_id, key_hash, key_prefix, label, last_used_at, created_at, revoked_at
	`

	var apiKey APIKey
	err = m.db.QueryRow(query, accountID, keyHash, keyPrefix, label).Scan(
		&apiKey.ID,
		&apiKey.AccountID,
		&apiKey.KeyHash,
		&apiKey.KeyPrefix,
		&apiKey.Label,
		&apiKey.LastUsedAt,
		&apiKey.CreatedAt,
		&apiKey.RevokedAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create API key: %w", err)
	}

	return &apiKey, key, nil
}

// ValidateAPIKey checks a key and returns the record it resolves to.
func (m *APIKeyManager) ValidateAPIKey(key string) (*APIKey, error) {
	keyHash := m.HashAPIKey(key)

	query := `
		SELECT id, account_id, key_hash, key_prefix, label, last_used_at, created_at, revoked_at
		FROM api_keys
		WHERE key_hash = $1 AND revoked_at IS NULL
	`

	var apiKey APIKey
	err := m.db.QueryRow(query, keyHash).Scan(
		&apiKey.ID,
		&apiKey.AccountID,
		&apiKey.KeyHash,
		&apiKey.KeyPrefix,
		&apiKey.Label,
		&apiKey.LastUsedAt,
		&apiKey.CreatedAt,
		&apiKey.RevokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invalid API key")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate API key: %w", err)
	}

	return &apiKey, nil
}

// UpdateLastUsed updates the last_used_at timestamp for a key
func (m *APIKeyManager) UpdateLastUsed(keyID int64) error {
	_, err := m.db.Exec(`UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, keyID)
	return err
}

// RevokeAPIKey marks a key as revoked
func (m *APIKeyManager) RevokeAPIKey(keyID, accountID int64) error {
	result, err := m.db.Exec(`
		UPDATE api_keys
		SET revoked_at = NOW()
		WHERE id = $1 AND account_id = $2 AND revoked_at IS NULL
	`, keyID, accountID)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("API key not found or already revoked")
	}
	return nil
}
