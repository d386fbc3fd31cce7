// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jpoliachik/jpos-agent/internal/agent"
	"github.com/jpoliachik/jpos-agent/internal/api"
	"github.com/jpoliachik/jpos-agent/internal/cron"
	"github.com/jpoliachik/jpos-agent/internal/session"
	"github.com/jpoliachik/jpos-agent/internal/telegram"
	"github.com/jpoliachik/jpos-agent/internal/transcription"
	"github.com/jpoliachik/jpos-agent/internal/vault"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("vault_remote", cfg.Vault.RemoteURL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Session continuity store with background sweep.
	sessions := session.NewStore(cfg.Session.TTL, cfg.Session.SweepInterval, nil)
	defer sessions.Stop()

	// Vault synchronizer over the system git binary.
	sync, err := vault.New(vault.Config{
		RemoteURL: cfg.Vault.RemoteURL,
		Path:      cfg.Vault.Path,
		Branch:    cfg.Vault.Branch,
		NotesDir:  cfg.Vault.NotesDir,
		Timezone:  cfg.Vault.Timezone,
		Token:     cfg.Vault.Token,
		SSHKeyB64: cfg.Vault.SSHKeyB64,
		KnownHost: cfg.Vault.KnownHost,
	}, nil)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	// Warm the working copy. A failure here is not fatal: every vault write
	// re-runs readiness and can succeed once the network is back.
	warmCtx, cancelWarm := context.WithTimeout(ctx, 2*time.Minute)
	if err := sync.EnsureReady(warmCtx); err != nil {
		logger.Warn("initial vault sync failed", slog.String("error", err.Error()))
	}
	cancelWarm()

	// Agent runtime and orchestration service.
	runner := &agent.CLIRunner{
		Command: cfg.Agent.Command,
		Args:    cfg.Agent.Args,
		Workdir: cfg.Agent.Workdir,
	}
	svc := agent.NewService(runner, sessions, sync, cfg.Agent.Timeout)

	// HTTP API.
	router := api.NewRouter(svc, sync, cfg.Auth.Token)
	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: router,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// Telegram front-end, when configured.
	var bot *telegram.Bot
	if cfg.Telegram.Enabled() {
		var transcriber telegram.Transcriber
		if cfg.Groq.Enabled() {
			transcriber = transcription.NewClient(cfg.Groq.APIKey, cfg.Groq.Model, "", nil)
		}
		bot, err = telegram.New(cfg.Telegram.Token, cfg.Telegram.AllowedUserID, svc, sync, transcriber)
		if err != nil {
			return fmt.Errorf("init telegram: %w", err)
		}
		g.Go(func() error {
			return bot.Run(gCtx)
		})
	}

	// Daily prep job needs a delivery channel; without the bot it stays off.
	if cfg.DailyPrep.Enabled {
		if bot == nil {
			logger.Warn("daily prep enabled but telegram is not; job disabled")
		} else {
			loc, err := time.LoadLocation(cfg.Vault.Timezone)
			if err != nil {
				return fmt.Errorf("init daily prep: %w", err)
			}
			job := cron.NewDailyPrep(svc, bot, loc, cfg.DailyPrep.Hour, cfg.DailyPrep.Minute, cfg.Vault.Path)
			g.Go(func() error {
				return job.Run(gCtx)
			})
		}
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stop the bot and scheduled jobs too.
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
