package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/reelroom/reelroom/internal/bundle"
	"github.com/reelroom/reelroom/internal/config"
	"github.com/reelroom/reelroom/internal/derivative"
	"github.com/reelroom/reelroom/internal/logger"
	"github.com/reelroom/reelroom/internal/media"
	"github.com/reelroom/reelroom/internal/metrics"
	"github.com/reelroom/reelroom/internal/queue"
	"github.com/reelroom/reelroom/internal/scratch"
	"github.com/reelroom/reelroom/internal/storage"
	"github.com/reelroom/reelroom/internal/store"
	"github.com/reelroom/reelroom/internal/tracing"
	"github.com/reelroom/reelroom/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()
	log.Info("configuration loaded")

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "reelroom-worker",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	log.Info("connecting to database")
	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	db := store.New(pool)
	log.Info("database connected")

	log.Info("connecting to object storage")
	objStore, err := storage.NewMinIOStorage(&storage.Config{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		UseSSL:    cfg.MinIOUseSSL,
		Region:    cfg.MinIORegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := objStore.EnsureBucket(ctx); err != nil {
		return err
	}
	instrumented := metrics.NewInstrumentedStorage(objStore)
	log.Info("object storage connected")

	log.Info("connecting to redis")
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpt)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	retry := queue.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Base:        cfg.BackoffBase,
		Cap:         5 * time.Minute,
	}
	jobs := queue.NewRedisStore(redisClient,
		queue.WithRetryPolicy(retry),
		queue.WithLeaseTimeout(cfg.LeaseTimeout),
	)
	log.Info("queue store initialized")

	scratchDir, err := scratch.New(cfg.ScratchDir, cfg.ScratchMaxAge)
	if err != nil {
		return err
	}

	var watermark *media.Watermark
	if cfg.WatermarkImage != "" {
		watermark = &media.Watermark{ImagePath: cfg.WatermarkImage}
	}

	cores := runtime.NumCPU()
	deps := &worker.Dependencies{
		Transcode: &media.Pipeline{
			Records:   db.Videos,
			Storage:   instrumented,
			Scratch:   scratchDir,
			Prober:    &media.Prober{},
			Encoder:   &media.Encoder{Cores: cores},
			Watermark: watermark,
		},
		Derivatives: &derivative.Generator{
			Records:       db.Photos,
			Storage:       instrumented,
			WatermarkText: cfg.WatermarkText,
			FontPath:      cfg.WatermarkFont,
		},
		Bundles: &bundle.Builder{
			Photos:  db.Photos,
			Records: db.Albums,
			Storage: instrumented,
			Dir:     cfg.BundleDir,
		},
		BundleRedelay: cfg.BundleRedelay,
	}

	zerologger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	collector := metrics.NewPrometheusCollector()

	base := []queue.Middleware{
		queue.Recovery(),
		tracing.JobMiddleware(),
		queue.Logging(zerologger),
	}
	withTimeout := func(d time.Duration) []queue.Middleware {
		return append(append([]queue.Middleware{}, base...),
			queue.Timeout(d), queue.Metrics(collector))
	}

	dispatchers := []*queue.Dispatcher{
		queue.NewDispatcher(jobs, worker.QueueTranscode, worker.TranscodeHandler(deps),
			queue.WithConcurrency(worker.TranscodeConcurrency()),
			queue.WithPollInterval(cfg.PollInterval),
			queue.WithMiddleware(withTimeout(cfg.VideoJobTimeout)...),
			queue.WithLogger(zerologger),
		),
		queue.NewDispatcher(jobs, worker.QueueDerivative, worker.DerivativeHandler(deps),
			queue.WithConcurrency(worker.DerivativeConcurrency()),
			queue.WithPollInterval(cfg.PollInterval),
			queue.WithMiddleware(withTimeout(cfg.JobTimeout)...),
			queue.WithLogger(zerologger),
		),
		queue.NewDispatcher(jobs, worker.QueueBundle, worker.BundleHandler(deps),
			queue.WithConcurrency(worker.BundleConcurrency()),
			queue.WithPollInterval(cfg.PollInterval),
			queue.WithMiddleware(withTimeout(cfg.JobTimeout)...),
			queue.WithLogger(zerologger),
		),
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		log.Info("metrics server starting", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	go scratchDir.RunSweeper(ctx, time.Hour)

	var wg sync.WaitGroup
	for _, d := range dispatchers {
		wg.Add(1)
		go func(d *queue.Dispatcher) {
			defer wg.Done()
			d.Run(ctx)
		}(d)
	}
	log.Info("worker started", "dispatchers", len(dispatchers), "cores", cores)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	log.Info("shutdown signal received", "signal", sig.String())

	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error stopping metrics server", "error", err)
	}

	log.Info("worker stopped gracefully")
	return nil
}
