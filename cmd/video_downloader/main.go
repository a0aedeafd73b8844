package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/italolelis/video_downloader/internal/cleanup"
	"github.com/italolelis/video_downloader/internal/config"
	"github.com/italolelis/video_downloader/internal/downloader"
	"github.com/italolelis/video_downloader/internal/extractor"
	"github.com/italolelis/video_downloader/internal/extractor/ytdlp"
	"github.com/italolelis/video_downloader/internal/formats"
	"github.com/italolelis/video_downloader/internal/http/rest"
	"github.com/italolelis/video_downloader/internal/job"
	"github.com/italolelis/video_downloader/internal/logctx"
	"github.com/italolelis/video_downloader/internal/notifier"
	"github.com/italolelis/video_downloader/internal/storage"
	"github.com/italolelis/video_downloader/internal/storage/sqlite"
	"github.com/italolelis/video_downloader/internal/telemetry"
	"github.com/italolelis/video_downloader/internal/transcoder"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewContextHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("video downloader starting...", "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		InstanceID:     telemetry.NewInstanceID(),
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	var ledger storage.DownloadRepository

	if cfg.DBPath != "" {
		database, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			logger.Error("DB error", "err", err)

			return err
		}
		defer database.Close()

		ledger = sqlite.NewInstrumentedDownloadRepository(database, tel)
	}

	// =========================================================================
	// Start Downloader
	catalog, err := formats.Load(cfg.FormatsFile)
	if err != nil {
		return fmt.Errorf("failed to load formats: %w", err)
	}

	tc := transcoder.Discover(ctx, cfg.TranscoderSearchPath)

	ext := extractor.NewInstrumented(ytdlp.NewClient(cfg.YtdlpPath, cfg.ProgressInterval, ytdlp.RequestOptions{
		UserAgent:        cfg.Extractor.UserAgent,
		Referer:          cfg.Extractor.Referer,
		Headers:          cfg.Extractor.Headers,
		SleepInterval:    cfg.Extractor.SleepInterval,
		MaxSleepInterval: cfg.Extractor.MaxSleepInterval,
		Retries:          cfg.Extractor.Retries,
		FragmentRetries:  cfg.Extractor.FragmentRetries,
	}), tel)
	registry := job.NewRegistry(cfg.RegistryShards)

	opts := []downloader.Option{
		downloader.WithTelemetry(tel),
		downloader.WithBaseContext(ctx),
		downloader.WithMaxTries(cfg.ExtractorMaxTries),
		downloader.WithTimeout(cfg.DownloadTimeout),
	}

	if ledger != nil {
		opts = append(opts, downloader.WithLedger(ledger))
	}

	if cfg.DiscordWebhookURL != "" {
		opts = append(opts, downloader.WithNotifier(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)))
	}

	dl := downloader.NewDownloader(cfg.DownloadDir, registry, ext, tc, catalog, opts...)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, dl, tel, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress, "download_dir", cfg.DownloadDir)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	// =========================================================================
	// Start Cleanup
	g.Go(func() error {
		runCleanup(gctx, registry, ledger, tel, cfg)

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	err = g.Wait()

	// In-flight downloads derive from ctx and are cancelled with it.
	dl.Wait()

	return err
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, dl *downloader.Downloader, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	r := chi.NewRouter()

	r.Use(telemetry.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", telemetry.RequestIDHeader},
		ExposedHeaders: []string{telemetry.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Use(telemetry.HTTPLogging)

	r.Handle("/metrics", tel.Handler())
	r.Mount("/", rest.NewHandler(dl).Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, cfg.Telemetry.ServiceName),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func runCleanup(ctx context.Context, registry *job.Registry, ledger storage.DownloadRepository, tel *telemetry.Telemetry, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	if cfg.JobRetention <= 0 && (ledger == nil || cfg.KeepDownloadedFor <= 0) {
		logger.Debug("cleanup disabled")

		return
	}

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return
		case <-ticker.C:
			if cfg.JobRetention > 0 {
				tel.RecordJobsEvicted(cleanup.EvictFinishedJobs(ctx, registry, cfg.JobRetention))
			}

			if ledger != nil && cfg.KeepDownloadedFor > 0 {
				if err := cleanup.DeleteExpiredFiles(ctx, ledger, cfg.DownloadDir, cfg.KeepDownloadedFor); err != nil {
					logger.Error("failed to delete expired tracked files", "err", err)
				}
			}
		}
	}
}
