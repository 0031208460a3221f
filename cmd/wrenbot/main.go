// Command wrenbot runs the site-assistant service: an HTTP chat endpoint, an
// optional Telegram webhook bridge, and the ability-backed turn-loop engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/perchlabs/wrenbot/internal/config"
	"github.com/perchlabs/wrenbot/internal/content"
	"github.com/perchlabs/wrenbot/internal/server"
	"github.com/perchlabs/wrenbot/internal/telegram"
	"github.com/perchlabs/wrenbot/internal/version"
	"github.com/perchlabs/wrenbot/kernel/ability"
	"github.com/perchlabs/wrenbot/kernel/ability/builtin"
	"github.com/perchlabs/wrenbot/kernel/engine"
	"github.com/perchlabs/wrenbot/kernel/gateway"
	"github.com/perchlabs/wrenbot/kernel/session/sqlitestore"
)

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "wrenbot",
		Short:         "Wrenbot site assistant service",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSendersCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and Telegram bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// setup loads .env, configuration and the logger, in that order, so env vars
// from .env participate in config resolution.
func setup() (*config.Config, *slog.Logger, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, err
	}
	log := newLogger(flagLogLevel)
	slog.SetDefault(log)
	return cfg, log, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func runServe(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	sessions, err := sqlitestore.New(filepath.Join(cfg.Storage.DataDir, "wrenbot.db"))
	if err != nil {
		return err
	}
	defer sessions.Close()

	contentStore, err := content.New(filepath.Join(cfg.Storage.DataDir, "content.db"))
	if err != nil {
		return err
	}
	defer contentStore.Close()

	registry := ability.NewRegistry()
	abilities, err := builtin.All(contentStore)
	if err != nil {
		return err
	}
	if err := registry.RegisterAll(abilities...); err != nil {
		return err
	}

	var generator gateway.Generator
	if cfg.Gemini.APIKey != "" {
		generator, err = gateway.NewGemini(gateway.GeminiConfig{
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
			APIKey:  cfg.Gemini.APIKey,
			Timeout: cfg.Gemini.Timeout,
		})
		if err != nil {
			return err
		}
	} else {
		log.Warn("no Gemini API key configured; chat requests will be rejected")
	}

	eng, err := engine.New(engine.Config{
		Gateway:  gateway.New(generator, cfg.Gemini.Timeout),
		Registry: registry,
		MaxTurns: cfg.Engine.MaxTurns,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	var bridge *telegram.Bridge
	if cfg.Telegram.Token != "" {
		api, err := telegram.NewAPI(cfg.Telegram.Token)
		if err != nil {
			return err
		}
		bridge, err = telegram.NewBridge(telegram.Config{
			Engine:       eng,
			Sender:       api,
			Sessions:     sessions,
			Access:       sessions,
			AllowedUsers: cfg.Telegram.AllowedUsers,
			PairingMode:  cfg.Telegram.PairingMode,
			Logger:       log,
		})
		if err != nil {
			return err
		}
		log.Info("telegram bridge enabled", "bot", api.BotUsername())
	} else {
		log.Info("no Telegram token configured; webhook disabled")
	}

	serverCfg := server.Config{
		Addr:     cfg.Server.Addr,
		Engine:   eng,
		APIToken: cfg.Server.APIToken,
		Logger:   log,
	}
	if bridge != nil {
		serverCfg.Telegram = bridge
	}
	srv, err := server.New(serverCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
