package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/agentrelay/pkg/models"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	AccountContextKey ContextKey = "account"
	APIKeyContextKey  ContextKey = "api_key"
)

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
	}

	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
	}
	return tokenParts[1], nil
}

// RequireSession validates a session JWT and puts the account in context.
func RequireSession(tokenService *TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c)
			if err != nil {
				return err
			}

			account, err := tokenService.ValidateSessionToken(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(string(AccountContextKey), account)
			return next(c)
		}
	}
}

// RequireAPIKey validates an agent API key, resolves the owning
// account, and touches the key's last-used marker.
func RequireAPIKey(keys *APIKeyManager, accounts AccountResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c)
			if err != nil {
				return err
			}
			if !strings.HasPrefix(token, "ar_") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
			}

			apiKey, err := keys.ValidateAPIKey(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
			}

			account, err := accounts.GetAccount(c.Request().Context(), apiKey.AccountID)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
			}

			// Best effort; a failed touch never fails the request.
			_ = keys.UpdateLastUsed(apiKey.ID)

			c.Set(string(AccountContextKey), account)
			c.Set(string(APIKeyContextKey), apiKey)
			return next(c)
		}
	}
}

// GetAccount extracts the authenticated account from echo context
func GetAccount(c echo.Context) *models.Account {
	accountInterface := c.Get(string(AccountContextKey))
	if accountInterface == nil {
		return nil
	}
	return accountInterface.(*models.Account)
}

// GetAPIKey extracts the validated API key from echo context, if the
// request came through the agent channel.
func GetAPIKey(c echo.Context) *APIKey {
	keyInterface := c.Get(string(APIKeyContextKey))
	if keyInterface == nil {
		return nil
	}
	return keyInterface.(*APIKey)
}
