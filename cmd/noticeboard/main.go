// Notice Board - Employee Notice Board Backend
//
// This is the main entry point for the notice board service. It wires
// together the SQLite store, the auth service, the mail sender, and the
// HTTP/WebSocket API, then waits for a shutdown signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/shivsys/noticeboard/migrations"

	"github.com/shivsys/noticeboard/internal/api"
	"github.com/shivsys/noticeboard/internal/audit"
	"github.com/shivsys/noticeboard/internal/auth"
	"github.com/shivsys/noticeboard/internal/infrastructure/config"
	"github.com/shivsys/noticeboard/internal/infrastructure/database"
	"github.com/shivsys/noticeboard/internal/infrastructure/logging"
	"github.com/shivsys/noticeboard/internal/mail"
	"github.com/shivsys/noticeboard/internal/notice"
	"github.com/shivsys/noticeboard/internal/roster"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting notice board",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	userRepo := auth.NewUserRepository(db.DB)
	adminRepo := auth.NewAdminRepository(db.DB)
	rosterRepo := roster.NewSQLiteRepository(db.DB)
	noticeRepo := notice.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Token issuer
	tokens := auth.NewTokenIssuer(cfg.Security.JWT.Secret,
		cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())

	// Mail sender
	var mailer mail.Sender
	if cfg.Mail.Enabled {
		mailer = mail.NewSMTPSender(cfg.Mail, log)
		log.Info("mail sender configured",
			"host", cfg.Mail.Host,
			"port", cfg.Mail.Port,
			"from", cfg.Mail.From,
		)
	} else {
		mailer = mail.NewLogSender(log)
		log.Info("mail disabled, reset emails will be logged only")
	}

	// Auth service
	authService := auth.NewService(userRepo, adminRepo, rosterRepo,
		tokens, mailer, log, cfg.Frontend.BaseURL)

	// API server
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Auth:    authService,
		Tokens:  tokens,
		Roster:  rosterRepo,
		Notices: noticeRepo,
		Audit:   auditRepo,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Database

	log.Info("notice board stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NOTICEBOARD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NOTICEBOARD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure is healthy after startup.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
