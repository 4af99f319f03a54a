package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/quotedesk/internal/api/handlers"
	"github.com/cloo-solutions/quotedesk/internal/jobs"
	"github.com/cloo-solutions/quotedesk/internal/repository"
	"github.com/cloo-solutions/quotedesk/internal/server"
	"github.com/cloo-solutions/quotedesk/internal/service"
	"github.com/cloo-solutions/quotedesk/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the carrier assistant API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (default from QUOTEDESK_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	rt, cleanup, err := setup(ctx, !noMigrate)
	if err != nil {
		return err
	}
	defer cleanup()
	cfg, logger := rt.cfg, rt.logger

	if cfg.SentryDSN != "" {
		// 10% sampling in production, everything in development.
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	embedder, err := rt.embedder()
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	generator, err := rt.generator(ctx)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	chunkRepo := repository.NewChunkRepository(rt.pool)
	assistant := service.NewCarrierAssistantService(embedder, rt.searcher(), chunkRepo, generator, cfg.Pipeline())

	routerCfg := server.RouterConfig{
		CarrierAssistantHandler: handlers.NewCarrierAssistantHandler(assistant),
	}

	var syncWorker *jobs.Worker
	if !cfg.UsesPGVector() {
		syncSvc := service.NewIndexSyncService(rt.vectorIndex(), chunkRepo)
		routerCfg.IndexHandler = handlers.NewIndexHandler(syncSvc)

		if cfg.IndexSyncInterval > 0 {
			syncWorker = jobs.NewWorker("index_sync", jobs.NewIndexSyncWorker(syncSvc, cfg.IndexSyncBatch), cfg.IndexSyncInterval)
			go syncWorker.Start(ctx)
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.Port),
			zap.String("embedding_provider", cfg.EmbeddingProvider),
			zap.String("vector_backend", cfg.VectorBackend),
			zap.Bool("gemini", cfg.HasGemini()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	if syncWorker != nil {
		syncWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}
