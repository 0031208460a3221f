// Package server exposes the HTTP surface: the web chat endpoint and the
// Telegram webhook.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v5"

	"github.com/perchlabs/wrenbot/internal/version"
	"github.com/perchlabs/wrenbot/kernel/chat"
	"github.com/perchlabs/wrenbot/kernel/engine"
	"github.com/perchlabs/wrenbot/kernel/identity"
)

// ChatEngine runs one conversation turn loop.
type ChatEngine interface {
	ProcessChat(ctx context.Context, req engine.ChatRequest) (*engine.ChatResult, error)
}

// UpdateHandler consumes one Telegram webhook update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// Config assembles a Server.
type Config struct {
	Addr   string
	Engine ChatEngine
	// Telegram is optional; without it the webhook route is not mounted.
	Telegram UpdateHandler
	// APIToken authenticates web chat callers as an editor principal.
	// Empty leaves requests anonymous, which the engine audit-logs.
	APIToken string
	Logger   *slog.Logger
}

// Server owns the HTTP listener lifecycle.
type Server struct {
	echo     *echo.Echo
	http     *http.Server
	engine   ChatEngine
	telegram UpdateHandler
	apiToken string
	log      *slog.Logger
}

func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("server: engine is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8081"
	}

	e := echo.New()
	s := &Server{
		echo:     e,
		engine:   cfg.Engine,
		telegram: cfg.Telegram,
		apiToken: cfg.APIToken,
		log:      log,
	}

	e.GET("/healthz", s.handleHealthz)
	e.POST("/chat", s.handleChat)
	if s.telegram != nil {
		e.POST("/telegram-webhook", s.handleTelegramWebhook)
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.http.Addr, "version", version.String())
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type chatContext struct {
	URL    string `json:"url"`
	PostID int64  `json:"postId"`
}

type chatRequest struct {
	Message string           `json:"message"`
	Context chatContext      `json:"context"`
	History []map[string]any `json:"history"`
}

type chatResponse struct {
	Response        string `json:"response"`
	ActionPerformed bool   `json:"action_performed"`
}

func (s *Server) handleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

func (s *Server) handleChat(c *echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"response": "I didn't catch that. Could you repeat it?",
		})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"response": "I didn't catch that. Could you repeat it?",
		})
	}

	// In-band history is untrusted; malformed entries are dropped, the
	// valid remainder is kept.
	history, dropped := chat.HistoryFromMaps(req.History)
	if dropped > 0 {
		s.log.Warn("dropped malformed history entries", "dropped", dropped)
	}

	result, err := s.engine.ProcessChat(c.Request().Context(), engine.ChatRequest{
		Message:  req.Message,
		History:  history,
		Identity: s.identityFor(c),
		PostID:   req.Context.PostID,
	})
	if err != nil {
		s.log.Error("chat processing failed", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"response": "I encountered an error: " + userSafeError(err),
		})
	}

	return c.JSON(http.StatusOK, chatResponse{
		Response:        result.Response,
		ActionPerformed: result.ActionPerformed,
	})
}

// handleTelegramWebhook acknowledges immediately and processes in the
// background: Telegram retries non-200 responses, which would replay turns.
func (s *Server) handleTelegramWebhook(c *echo.Context) error {
	var update tgbotapi.Update
	if err := c.Bind(&update); err != nil {
		s.log.Warn("undecodable webhook update", "err", err)
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.telegram.HandleUpdate(ctx, update)
	}()

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// identityFor maps a matching bearer token to an editor principal. Anything
// else stays anonymous and hits the engine's administrator fallback.
func (s *Server) identityFor(c *echo.Context) *identity.Identity {
	if s.apiToken == "" {
		return nil
	}
	header := c.Request().Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token != s.apiToken {
		return nil
	}
	id := identity.Editor("api")
	return &id
}

// userSafeError keeps provider internals out of client-facing messages.
func userSafeError(err error) string {
	switch {
	case err == engine.ErrGatewayUnavailable:
		return "the model service is not configured."
	case err == engine.ErrEmptyPrompt:
		return "the message was empty."
	default:
		return "something went wrong while processing your request."
	}
}
