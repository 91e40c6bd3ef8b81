package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agentrelay/pkg/models"
)

// TokenService handles session token creation and validation. Every
// JWT is backed by an auth_tokens row so sessions can be revoked
// server-side.
type TokenService struct {
	db        *sql.DB
	secretKey []byte

	SessionDuration time.Duration
}

// JWTClaims represents the claims in session tokens
type JWTClaims struct {
	AccountID int64  `json:"account_id"`
	Email     string `json:"email"`
	TokenHash string `json:"token_hash"` // Reference to database token
	jwt.RegisteredClaims
}

// NewTokenService creates a new token service
func NewTokenService(db *sql.DB, secretKey string) *TokenService {
	return &TokenService{
		db:              db,
		secretKey:       []byte(secretKey),
		SessionDuration: 30 * 24 * time.Hour,
	}
}

func (ts *TokenService) generateRandomToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func (ts *TokenService) hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// CreateSessionToken mints a session JWT for an account, backed by a
// database token row so it can be revoked.
func (ts *TokenService) CreateSessionToken(account *models.Account) (string, error) {
	raw, err := ts.generateRandomToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	tokenHash := ts.hashToken(raw)
	expiresAt := time.Now().Add(ts.SessionDuration)

	_, err = ts.db.Exec(`
		INSERT INTO auth_tokens (account_id, token_hash, token_type, expires_at)
		VALUES ($1, $2, 'session', $3)
	`, account.ID, tokenHash, expiresAt)
	if err != nil {
		return "", fmt.Errorf("failed to store session token: %w", err)
	}

	claims := &JWTClaims{
		AccountID: account.ID,
		Email:     account.Email,
		TokenHash: tokenHash,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "agentrelay",
			Subject:   fmt.Sprintf("account_%d", account.ID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// ValidateSessionToken validates a session JWT and returns the account.
func (ts *TokenService) ValidateSessionToken(tokenString string) (*models.Account, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	var tokenExists bool
	err = ts.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM auth_tokens
			WHERE account_id = $1
			AND token_hash = $2
			AND token_type = 'session'
			AND is_active = true
			AND expires_at > NOW()
		)
	`, claims.AccountID, claims.TokenHash).Scan(&tokenExists)
	if err != nil {
		return nil, fmt.Errorf("failed to check token in database: %w", err)
	}
	if !tokenExists {
		return nil, fmt.Errorf("token not found or expired")
	}

	account := &models.Account{}
	err = ts.db.QueryRow(`
		SELECT id, email, password_hash, created_at, updated_at
		FROM accounts WHERE id = $1
	`, claims.AccountID).Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// RevokeAllAccountTokens revokes every session for an account.
func (ts *TokenService) RevokeAllAccountTokens(accountID int64) error {
	_, err := ts.db.Exec(`
		UPDATE auth_tokens
		SET is_active = false, revoked_at = NOW()
		WHERE account_id = $1 AND is_active = true
	`, accountID)
	return err
}
