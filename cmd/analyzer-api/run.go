package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	apiserver "github.com/kubev2v/media-analyzer/internal/api_server"
	"github.com/kubev2v/media-analyzer/internal/analysis"
	"github.com/kubev2v/media-analyzer/internal/config"
	"github.com/kubev2v/media-analyzer/internal/events"
	"github.com/kubev2v/media-analyzer/internal/jobs"
	"github.com/kubev2v/media-analyzer/internal/report"
	"github.com/kubev2v/media-analyzer/internal/segment"
	"github.com/kubev2v/media-analyzer/internal/service"
	"github.com/kubev2v/media-analyzer/internal/store"
	"github.com/kubev2v/media-analyzer/pkg/artifact"
	"github.com/kubev2v/media-analyzer/pkg/metrics"
	"github.com/kubev2v/media-analyzer/pkg/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the media analyzer api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := loadConfig()
		if err != nil {
			return err
		}
		defer done()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")

		for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.ChunksDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				zap.S().Fatalw("creating directory", "dir", dir, "error", err)
			}
		}

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		store := store.NewStore(db)
		defer store.Close()

		if err := migrations.MigrateStore(db, cfg.Service.MigrationFolder); err != nil {
			zap.S().Fatalw("running migrations", "error", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		artifacts, err := newArtifactStorage(ctx, cfg)
		if err != nil {
			zap.S().Fatalw("initializing report storage", "error", err)
		}

		capability, err := analysis.NewGeminiCapability(ctx, cfg.Analysis.ApiKey, cfg.Analysis.Model, cfg.Analysis.MimeType)
		if err != nil {
			zap.S().Fatalw("initializing analysis capability", "error", err)
		}
		zap.S().Infow("analysis capability ready", "model", capability.Model())

		producer := events.NewEventProducer(&events.StdoutWriter{}, events.WithOutputTopic(cfg.Service.EventsTopic))
		defer func() { _ = producer.Close() }()

		worker := jobs.NewWorker(
			store,
			segment.NewSegmenter(
				segment.WithBinary(cfg.Analysis.FFmpegPath),
				segment.WithFormat(cfg.Analysis.SegmentFormat),
			),
			analysis.NewPipeline(capability,
				analysis.WithPrompt(cfg.Analysis.Prompt),
				analysis.WithSegmentTimeout(cfg.Analysis.SegmentTimeout),
				analysis.WithConcurrency(cfg.Analysis.Concurrency),
			),
			artifacts,
			jobs.WithChunksDir(cfg.Storage.ChunksDir),
			jobs.WithSegmentDuration(cfg.Analysis.SegmentDuration),
			jobs.WithAggregator(report.NewAggregator(cfg.Analysis.SegmentDuration)),
			jobs.WithEvents(producer),
		)

		queue := jobs.NewQueue(worker,
			jobs.WithWorkers(cfg.Service.Workers),
			jobs.WithQueueSize(cfg.Service.QueueSize),
		)
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
			defer stopCancel()
			if err := queue.Stop(stopCtx); err != nil {
				zap.S().Warnw("jobs still running at shutdown were interrupted", "error", err)
			}
		}()

		jobSrv := service.NewJobService(store, queue, artifacts,
			service.WithUploadDir(cfg.Storage.UploadDir),
			service.WithChunkLocator(worker),
			service.WithMaxUploadSize(cfg.Service.MaxUploadSize),
			service.WithEventWriter(producer),
		)

		if err := jobSrv.RecoverInterrupted(ctx); err != nil {
			zap.S().Fatalw("recovering interrupted jobs", "error", err)
		}

		metrics.RegisterJobStatusCollector(store)
		metricMiddleware := metrics.NewMiddleware("api_server")
		metricMiddleware.MustRegisterDefault()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server := apiserver.New(cfg, jobSrv, listener).WithMetrics(metricMiddleware)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("Error running server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalw("failed to run metrics server", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newArtifactStorage(ctx context.Context, cfg *config.Config) (artifact.Storage, error) {
	switch cfg.Storage.Backend {
	case "", "local":
		return artifact.NewLocalStorage(cfg.Storage.ReportsDir)
	case "s3":
		return artifact.NewMinioStorage(ctx,
			artifact.WithEndpoint(cfg.Storage.S3.Endpoint),
			artifact.WithBucket(cfg.Storage.S3.Bucket),
			artifact.WithAccessKey(cfg.Storage.S3.AccessKey),
			artifact.WithSecretKey(cfg.Storage.S3.SecretKey),
			artifact.WithSSL(cfg.Storage.S3.UseSSL),
			artifact.WithContentType("text/plain; charset=utf-8"),
		)
	default:
		return nil, fmt.Errorf("unknown report storage backend %q", cfg.Storage.Backend)
	}
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
