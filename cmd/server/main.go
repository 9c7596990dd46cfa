// Package main is the entry point for the team calendar server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/team-calendar/backend/internal/acl"
	"github.com/team-calendar/backend/internal/api"
	"github.com/team-calendar/backend/internal/calendar"
	"github.com/team-calendar/backend/internal/config"
	"github.com/team-calendar/backend/internal/event"
	"github.com/team-calendar/backend/internal/logging"
	"github.com/team-calendar/backend/internal/reminder"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/task"
	"github.com/team-calendar/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	app := &cli.App{
		Name:    "calendar-server",
		Usage:   "Serve shared calendars with event propagation and reminders.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a YAML config file.",
				EnvVars: []string{"CALENDAR_CONFIG"},
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server (default).",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply pending database migrations and exit.",
				Action: migrate,
			},
			{
				Name:   "health-check",
				Usage:  "Query the health endpoint of a running server.",
				Action: healthCheck,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.DB, error) {
	db, err := storage.Open(ctx, cfg.DatabasePath(), storage.DefaultOpenOptions)
	if err != nil {
		return nil, err
	}

	applied, err := storage.Migrate(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", "path", cfg.DatabasePath(), "migrations_applied", applied)
	return db, nil
}

func migrate(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	migrations, err := storage.Migrations(c.Context, db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		logger.Info("migration", "name", m.Name, "applied_at", m.AppliedAt)
	}
	return nil
}

func serve(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger.Info("starting calendar server", "version", version, "addr", cfg.Addr)

	db, err := openDatabase(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)
	broadcaster := websocket.NewEventBroadcaster(hub)

	jobs := reminder.NewJobScheduler(logger)
	reminders := reminder.NewService(db, jobs, reminder.Options{
		TestMode: cfg.ReminderTestMode,
		Notifier: broadcaster,
		Logger:   logger,
	})
	calendars := calendar.NewService(db, logger)
	events := event.NewService(db, calendars, event.Options{
		ICalDomain:   cfg.ICalDomain,
		MaxInstances: cfg.MaxInstances,
		Reminders:    reminders,
		Publisher:    broadcaster,
		Logger:       logger,
	})

	jobs.Start()
	defer jobs.Stop()

	restored, err := reminders.Restore(ctx)
	if err != nil {
		logger.Warn("failed to restore reminders", "error", err)
	} else {
		logger.Info("reminders restored", "jobs", restored)
	}

	router := api.NewRouter(api.Services{
		DB:        db,
		Hub:       hub,
		Calendars: calendars,
		ACL:       acl.NewEvaluator(db, logger),
		Events:    events,
		Reminders: reminders,
		Tasks:     task.NewService(db, logger),
		Logger:    logger,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// healthCheck queries the health endpoint of a server on the configured
// address. It is used as the container health check.
func healthCheck(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	addr := cfg.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/health")
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}
