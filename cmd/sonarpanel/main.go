package main

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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	sonarqubeadapter "github.com/ericfisherdev/sonarpanel/internal/adapter/driven/sonarqube"
	sqliteadapter "github.com/ericfisherdev/sonarpanel/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/sonarpanel/internal/adapter/driving/http"
	"github.com/ericfisherdev/sonarpanel/internal/application"
	"github.com/ericfisherdev/sonarpanel/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"sonar_url", cfg.SonarURL,
		"sonar_timeout", cfg.SonarTimeout,
		"issues_page_size", cfg.IssuesPageSize,
		"issues_max_pages", cfg.IssuesMaxPages,
	)
	if !cfg.HasSecretKey() {
		slog.Warn("no secret key configured, credential operations will fail", "env", config.EnvSecretKey)
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	version, dirty, err := sqliteadapter.SchemaVersion(db.Writer)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("database schema is dirty at version %d", version)
	}
	slog.Info("migrations complete", "schema_version", version)

	// 5. Wire adapters.
	projectStore := sqliteadapter.NewProjectRepo(db)
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	connector := sonarqubeadapter.NewConnector(cfg.SonarTimeout, nil, logger)

	// 6. Create application services.
	resolver := application.NewCredentialResolver(credentialStore, logger)
	services := httphandler.Services{
		Provisioning: application.NewProvisioningService(projectStore, credentialStore, resolver, connector,
			application.ProvisioningConfig{DefaultHostURL: cfg.SonarURL, TokenTTL: cfg.ProjectTokenTTL}, logger),
		Deprovisioning: application.NewDeprovisioningService(projectStore, credentialStore, resolver, connector, logger),
		Results: application.NewResultsService(projectStore, resolver, connector,
			application.ResultsConfig{PageSize: cfg.IssuesPageSize, MaxPages: cfg.IssuesMaxPages}, logger),
		Credentials: application.NewCredentialService(credentialStore, resolver, connector, cfg.SonarURL, logger),
		Commands:    application.NewCommandService(projectStore, credentialStore),
		Projects:    application.NewProjectService(projectStore, resolver, connector),
		Health:      application.NewHealthService(db, connector, cfg.SonarURL),
		Reconcile:   application.NewReconcileService(projectStore, resolver, connector, logger),
	}

	// 7. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(services, logger)
	handler := httphandler.NewServeMux(apiHandler, httphandler.RouterConfig{AdminTokenRate: cfg.AdminTokenRate}, logger)

	// Remote calls are bounded by SonarTimeout per request; a full issue walk
	// makes up to IssuesMaxPages of them.
	writeTimeout := cfg.SonarTimeout*time.Duration(cfg.IssuesMaxPages) + 10*time.Second

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	// 8. Log startup complete.
	slog.Info("sonarpanel started", "listen_addr", cfg.ListenAddr, "sonar_url", cfg.SonarURL)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// 11. Log shutdown complete.
	slog.Info("shutdown complete")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
