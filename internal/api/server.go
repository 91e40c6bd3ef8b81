// Package api exposes the relay over HTTP: an API-key agent channel,
// a session-authenticated operator channel, and the archive surface.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/agentrelay/internal/accounts"
	"github.com/agentrelay/internal/agents"
	"github.com/agentrelay/internal/api/auth"
	"github.com/agentrelay/internal/api/middleware"
	"github.com/agentrelay/internal/archive"
	"github.com/agentrelay/internal/attachments"
	"github.com/agentrelay/internal/config"
	"github.com/agentrelay/internal/feed"
	"github.com/agentrelay/internal/messages"
	"github.com/agentrelay/internal/responses"
)

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int

	accounts    *accounts.Store
	agents      *agents.Store
	messages    *messages.Store
	responses   *responses.Engine
	archive     *archive.Store
	attachments *attachments.Store
	blobs       attachments.BlobStore
	feed        *feed.Builder
	tokens      *auth.TokenService
	keys        *auth.APIKeyManager
}

// NewServer creates a new API server wired onto db and the blob store.
func NewServer(cfg *config.Config, db *sql.DB, blobs attachments.BlobStore) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	admission := middleware.NewAdmission(cfg.Admission.RequestsPerSecond, cfg.Admission.Burst)
	e.Use(admission.Gate())

	agentStore := agents.NewStore(db)
	attachmentStore := attachments.NewStore(db)

	server := &Server{
		echo:        e,
		port:        cfg.Server.Port,
		accounts:    accounts.NewStore(db),
		agents:      agentStore,
		messages:    messages.NewStore(db, agentStore),
		responses:   responses.NewEngine(db),
		archive:     archive.NewStore(db),
		attachments: attachmentStore,
		blobs:       blobs,
		feed:        feed.NewBuilder(db, attachmentStore),
		tokens:      auth.NewTokenService(db, cfg.Auth.JWTSecret),
		keys:        auth.NewAPIKeyManager(db),
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	s.echo.POST("/api/v1/login", s.login)

	// Agent channel: API-key authenticated, polled by agent processes.
	agent := s.echo.Group("/api/v1/agent", auth.RequireAPIKey(s.keys, s.accounts))
	agent.POST("/messages", s.agentPostMessage)
	agent.POST("/questions", s.agentPostQuestion)
	agent.GET("/responses", s.agentGetResponses)
	agent.GET("/messages/history", s.agentGetHistory)
	agent.GET("/messages/latest", s.agentGetLatest)
	agent.POST("/attachments", s.agentPostAttachment)
	agent.GET("/attachments/:id", s.getAttachment)

	// Operator channel: session JWT.
	user := s.echo.Group("/api/v1", auth.RequireSession(s.tokens))
	user.GET("/agents", s.userGetAgents)
	user.DELETE("/agents/:id", s.userDeleteAgent)
	user.GET("/messages/:agentId", s.userGetFeed)
	user.POST("/messages", s.userPostMessage)
	user.POST("/responses", s.userPostResponse)
	user.PUT("/messages/:stream/:id/hidden", s.userSetHidden)
	user.DELETE("/messages/:stream/:id", s.userDeleteMessage)
	user.POST("/attachments", s.userPostAttachment)
	user.GET("/attachments/:id", s.getAttachment)

	user.GET("/archive", s.listArchive)
	user.POST("/archive/agents/:id", s.archiveAgent)
	user.DELETE("/archive/agents/:id", s.unarchiveAgent)
	user.POST("/archive/messages/:stream/:id", s.archiveMessage)
	user.DELETE("/archive/messages/:stream/:id", s.unarchiveMessage)
}

func (s *Server) login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: "invalid request body"})
	}

	account, err := s.accounts.GetByEmail(c.Request().Context(), req.Email)
	if err != nil || !s.accounts.CheckPassword(account, req.Password) {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Code: "INVALID_CREDENTIALS", Message: "invalid email or password"})
	}

	token, err := s.tokens.CreateSessionToken(account)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":   token,
		"account": account,
	})
}

// Start begins the API server
func (s *Server) Start() error {
	// Start server in a goroutine
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
