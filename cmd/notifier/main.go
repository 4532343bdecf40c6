package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reelroom/reelroom/internal/config"
	"github.com/reelroom/reelroom/internal/email"
	"github.com/reelroom/reelroom/internal/logger"
	"github.com/reelroom/reelroom/internal/metrics"
	"github.com/reelroom/reelroom/internal/notify"
	"github.com/reelroom/reelroom/internal/queue"
	"github.com/reelroom/reelroom/internal/store"
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

	log.Info("connecting to database")
	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	db := store.New(pool)
	log.Info("database connected")

	mailer := email.NewService(email.Config{
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUsername: cfg.SMTPUsername,
		SMTPPassword: cfg.SMTPPassword,
		FromAddress:  cfg.SMTPFromAddress,
		FromName:     cfg.SMTPFromName,
	})

	settings := notify.NewCachedSettings(func(ctx context.Context) (map[string]notify.Settings, error) {
		raw, err := db.Notifications.LoadSettings(ctx)
		if err != nil {
			return nil, err
		}
		out := make(map[string]notify.Settings, len(raw))
		for scope, s := range raw {
			out[scope] = notify.Settings{
				Schedule: notify.Schedule(s.Schedule),
				At:       s.At,
				Day:      time.Weekday(s.Day),
			}
		}
		return out, nil
	}, cfg.SettingsTTL)

	send := func(ctx context.Context, to notify.Recipient, batch []store.Notification) error {
		recipient := cfg.AdminEmail
		projectName := to.ProjectID
		project, err := db.Projects.Get(ctx, to.ProjectID)
		if err == nil {
			projectName = project.Name
			if to.Scope == store.ScopeClient {
				recipient = project.ClientEmail
			}
		} else if to.Scope == store.ScopeClient {
			return fmt.Errorf("resolve project %s: %w", to.ProjectID, err)
		}
		if recipient == "" {
			return fmt.Errorf("no recipient configured for %s/%s", to.Scope, to.ProjectID)
		}

		if err := mailer.SendDigest(recipient, projectName, batch); err != nil {
			metrics.NotificationBatchesTotal.WithLabelValues(to.Scope, "error").Inc()
			return err
		}
		metrics.NotificationBatchesTotal.WithLabelValues(to.Scope, "success").Inc()
		return nil
	}

	retry := queue.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Base:        cfg.BackoffBase,
		Cap:         5 * time.Minute,
	}
	scheduler := notify.NewScheduler(db.Notifications, db.Comments, settings, send, retry)

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

	done := make(chan struct{})
	go func() {
		defer close(done)
		scheduler.Run(ctx, time.Minute)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	log.Info("shutdown signal received", "signal", sig.String())

	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error stopping metrics server", "error", err)
	}

	log.Info("notifier stopped gracefully")
	return nil
}
