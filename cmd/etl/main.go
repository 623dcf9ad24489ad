package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/msi-broadcast-etl/internal/adapter/csvout"
	"github.com/couchcryptid/msi-broadcast-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/msi-broadcast-etl/internal/adapter/kafka"
	"github.com/couchcryptid/msi-broadcast-etl/internal/adapter/mongostore"
	"github.com/couchcryptid/msi-broadcast-etl/internal/adapter/msi"
	"github.com/couchcryptid/msi-broadcast-etl/internal/adapter/redisguard"
	"github.com/couchcryptid/msi-broadcast-etl/internal/adapter/smtp"
	"github.com/couchcryptid/msi-broadcast-etl/internal/config"
	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	"github.com/couchcryptid/msi-broadcast-etl/internal/observability"
	"github.com/couchcryptid/msi-broadcast-etl/internal/pipeline"
	"github.com/joho/godotenv"
)

// manualRunTimeout bounds a run triggered through POST /run.
const manualRunTimeout = 5 * time.Minute

func main() {
	// A .env file is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := msi.ValidateSources(cfg.Sources); err != nil {
		logger.Error("invalid MSI_SOURCES", "error", err)
		os.Exit(1)
	}
	metrics := observability.NewMetrics()

	rules, err := domain.LoadRules(cfg.RulesFile)
	if err != nil {
		logger.Error("failed to load extraction rules", "path", cfg.RulesFile, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func(context.Context) error
	opts, err := buildOptions(ctx, cfg, logger, &closers)
	if err != nil {
		logger.Error("failed to initialize adapters", "error", err)
		os.Exit(1)
	}

	fetcher := msi.NewClient(cfg.MSIBaseURL, cfg.FetchTimeout, cfg.FetchRetries, cfg.FetchBackoff, metrics, logger)
	segmenter := domain.NewSegmenter(cfg.HeaderBlocks, nil)
	transformer := pipeline.NewTransformer(rules, nil, logger)
	p := pipeline.New(cfg.Sources, fetcher, segmenter, transformer, logger, metrics, opts...)

	code := 0
	if cfg.RunInterval == 0 {
		code = runOnce(ctx, p, logger)
	} else {
		serve(ctx, cfg, p, logger)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	for _, closeFn := range closers {
		if err := closeFn(shutdownCtx); err != nil {
			logger.Error("adapter close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	if code != 0 {
		os.Exit(code)
	}
}

// buildOptions wires the configured sinks, notifier, and notification guard.
func buildOptions(ctx context.Context, cfg *config.Config, logger *slog.Logger, closers *[]func(context.Context) error) ([]pipeline.Option, error) {
	var opts []pipeline.Option

	if cfg.CSVOutput != "" {
		opts = append(opts, pipeline.WithSinks(csvout.NewWriter(cfg.CSVOutput, logger)))
		logger.Info("csv sink enabled", "path", cfg.CSVOutput)
	}
	if cfg.MongoURI != "" {
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, store.Close)
		opts = append(opts, pipeline.WithSinks(store))
	}
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		*closers = append(*closers, closeWith(writer))
		opts = append(opts, pipeline.WithSinks(writer))
		logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic)
	}

	if !cfg.NotificationsEnabled() {
		logger.Info("malformed-report notifications disabled")
		return opts, nil
	}
	opts = append(opts, pipeline.WithNotifier(smtp.NewNotifier(smtp.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.NotifyFrom,
		To:       cfg.NotifyTo,
		CC:       cfg.NotifyCC,
	}, logger)))

	if cfg.RedisAddr != "" {
		client, err := redisguard.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, closeWith(client))
		opts = append(opts, pipeline.WithGuard(redisguard.New(client, cfg.NotifyDedupTTL)))
		logger.Info("notification guard using redis", "addr", cfg.RedisAddr)
	} else {
		opts = append(opts, pipeline.WithGuard(pipeline.NewMemoryGuard(cfg.NotifyDedupTTL, 1024, nil)))
	}
	return opts, nil
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, logger *slog.Logger) int {
	result, err := p.Run(ctx)
	if err != nil {
		logger.Error("run failed", "run_id", result.RunID, "error", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) {
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, manualRunTimeout, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Schedule(ctx, cfg.RunInterval); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before shutdown timeout")
	}
}

func closeWith(c io.Closer) func(context.Context) error {
	return func(context.Context) error { return c.Close() }
}
