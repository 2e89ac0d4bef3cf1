package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/http/router"
	"taskboard/internal/http/views"
	"taskboard/internal/logging"
	"taskboard/internal/metrics"
	"taskboard/internal/security"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "taskboard",
		Short:         "Multi-user task tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/app.yaml", "path to the YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), configPath)
		},
	})
	return root
}

type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *db.DB
}

func setup(ctx context.Context, configPath string) (*app, error) {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	// Initialize database
	database, err := db.Init(ctx, db.Options{
		Driver:   cfg.DBDriver,
		DSN:      cfg.DBDSN,
		Attempts: cfg.DBConnectAttempts,
		Delay:    cfg.DBConnectDelay,
	}, log)
	if err != nil {
		log.Error("database bootstrap failed", zap.Error(err))
		log.Sync()
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: database}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("closing database", zap.Error(err))
	}
	a.log.Info("database connection closed")
	a.log.Sync()
}

func runMigrate(ctx context.Context, configPath string) error {
	a, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()
	a.log.Info("schema up to date", zap.String("driver", a.cfg.DBDriver))
	return nil
}

func runServe(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.SessionSecret == "" {
		a.log.Warn("session_secret not set; sessions will not survive a restart")
	}
	sessionStore, err := security.NewSessionStore(security.SessionOptions{
		Secret:      a.cfg.SessionSecret,
		IdleTimeout: a.cfg.SessionIdleTimeout,
		MaxLifetime: a.cfg.SessionMaxLifetime,
		Secure:      a.cfg.SecureCookies,
	})
	if err != nil {
		return err
	}

	renderer, err := views.New()
	if err != nil {
		return err
	}

	// Setup router
	handler := router.Setup(router.Deps{
		Users:             db.NewUserStore(a.db),
		Tasks:             db.NewTaskStore(a.db),
		DB:                a.db,
		Sessions:          sessionStore,
		Views:             renderer,
		Log:               a.log,
		Metrics:           metrics.New(),
		AuthRatePerMinute: a.cfg.AuthRatePerMinute,
		TrustProxyHeaders: a.cfg.TrustProxyHeaders,
	})

	server := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", server.Addr, err)
		}
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.log.Info("server stopped gracefully")
	return nil
}
