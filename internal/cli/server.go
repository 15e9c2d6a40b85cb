package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/bot_manager_console/internal/adminapi"
	"github.com/lewisedginton/bot_manager_console/internal/adminapi/persistence"
	appconfig "github.com/lewisedginton/bot_manager_console/internal/config"
	"github.com/lewisedginton/bot_manager_console/internal/localstore"
	"github.com/lewisedginton/bot_manager_console/internal/monitoring"
	"github.com/lewisedginton/bot_manager_console/pkg/httpmiddleware"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
	"github.com/lewisedginton/bot_manager_console/pkg/metrics"
	"github.com/lewisedginton/bot_manager_console/pkg/utils"
)

// ServeCommand returns the command running the admin API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the admin API server",
		Action:  serveAction,
	}
}

func serveAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Error("Failed to load config", logger.ErrorField(err))
		return err
	}
	log = commandLogger(ctx, cfg)
	cfg.LogConfig(log)

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, cleanup, err := openConfigRepository(runCtx, cfg, log)
	if err != nil {
		log.Error("Failed to open config repository", logger.ErrorField(err))
		return fmt.Errorf("failed to open config repository: %w", err)
	}
	defer cleanup()

	m := metrics.NewMetrics(cfg.Monitoring.MetricsEnabled, false, log)
	mw := httpmiddleware.DefaultConfig()
	mw.Logger = log
	mw.EnableLogging = true
	mw.MaxRequestSize = cfg.AdminAPI.MaxRequestSize
	mw.CORS.AllowedOrigins = cfg.AdminAPI.CORSAllowedOrigins
	security := httpmiddleware.DefaultSecurityOptions(!cfg.IsProduction())
	mw.Security = &security

	server, err := adminapi.New(adminapi.Options{
		APIKey:       cfg.AdminAPI.APIKey,
		SessionTTL:   cfg.AdminAPI.SessionTTL,
		Repository:   repo,
		Logger:       log,
		Middleware:   &mw,
		Metrics:      m,
		Health:       monitoring.NewChecker(monitoring.Config{
			Logger:           log,
			HomeserverURL:    cfg.Matrix.HomeserverURL,
			Timeout:          cfg.Monitoring.HealthCheckTimeout,
			FailureThreshold: cfg.Monitoring.HealthFailureThreshold,
		}),
		SecureCookie: cfg.IsProduction(),
	})
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField(err))
		return fmt.Errorf("failed to create server: %w", err)
	}

	adminErrs := make(chan error, 1)
	go func() {
		defer close(adminErrs)
		if err := server.ListenAndServe(runCtx, cfg.AdminAPI.Port); err != nil {
			adminErrs <- err
		}
	}()

	var metricsErrs <-chan error
	if cfg.Monitoring.SeparateMetricsListener(cfg.AdminAPI.Port) {
		metricsErrs = m.Listen(runCtx, cfg.Monitoring.MetricsPort)
	}

	log.Info("Admin API started", logger.IntField("port", cfg.AdminAPI.Port))

	for err := range utils.MergeErrorChans(adminErrs, metricsErrs) {
		log.Error("Fatal server error occurred", logger.ErrorField(err))
		stop()
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("Server exited gracefully")
	return nil
}

// openConfigRepository selects the document storage named by the config.
func openConfigRepository(ctx context.Context, cfg *appconfig.AppConfig, log logger.Logger) (adminapi.ConfigRepository, func(), error) {
	switch cfg.AdminAPI.ConfigStorage {
	case "postgres":
		repo, pool, err := persistence.Open(ctx, cfg.AdminAPI.DatabaseURL, log)
		if err != nil {
			return nil, nil, err
		}
		return repo, pool.Close, nil
	default:
		store, closer, err := localstore.Open(ctx, localstore.Config{
			Backend: localstore.Backend(cfg.LocalStore.Backend),
			Path:    cfg.LocalStore.Path,
			Bucket:  cfg.LocalStore.S3Bucket,
			Prefix:  cfg.LocalStore.S3Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return adminapi.NewLocalConfigRepository(store), func() { _ = closer.Close() }, nil
	}
}
