package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Environment string
	LogLevel    string

	DatabaseURL string
	RedisURL    string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	// Job processing knobs. MaxAttempts and BackoffBase feed the queue's
	// retry policy for every job family and for notification batches.
	MaxAttempts     int
	BackoffBase     time.Duration
	JobTimeout      time.Duration
	VideoJobTimeout time.Duration
	PollInterval    time.Duration

	// LeaseTimeout must stay above VideoJobTimeout so healthy long encodes
	// are not reclaimed mid-run.
	LeaseTimeout time.Duration

	// ScratchDir is the process-wide temp area for downloads and encoder
	// output. Swept periodically; see internal/scratch.
	ScratchDir     string
	ScratchMaxAge  time.Duration
	BundleDir      string
	BundleRedelay  time.Duration
	SettingsTTL    time.Duration
	WatermarkImage string
	WatermarkText  string
	WatermarkFont  string

	// Email fan-out for the notification scheduler.
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFromAddress string
	SMTPFromName    string
	AdminEmail      string

	MetricsPort int

	TracingEnabled  bool
	OTLPEndpoint    string
	TraceSampleRate float64
}

func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	if cfg.MinIOEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required")
	}

	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	if cfg.MinIOAccessKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY is required")
	}

	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	if cfg.MinIOSecretKey == "" {
		return nil, fmt.Errorf("MINIO_SECRET_KEY is required")
	}

	cfg.MinIOBucket = getEnvString("MINIO_BUCKET", "media")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")

	cfg.MaxAttempts = getEnvInt("MAX_ATTEMPTS", 3)
	cfg.BackoffBase, err = getEnvDuration("BACKOFF_BASE", "2s")
	if err != nil {
		return nil, fmt.Errorf("invalid BACKOFF_BASE: %w", err)
	}
	cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", "5m")
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TIMEOUT: %w", err)
	}
	cfg.VideoJobTimeout, err = getEnvDuration("VIDEO_JOB_TIMEOUT", "60m")
	if err != nil {
		return nil, fmt.Errorf("invalid VIDEO_JOB_TIMEOUT: %w", err)
	}
	cfg.PollInterval, err = getEnvDuration("POLL_INTERVAL", "1s")
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
	}
	cfg.LeaseTimeout, err = getEnvDuration("LEASE_TIMEOUT", "65m")
	if err != nil {
		return nil, fmt.Errorf("invalid LEASE_TIMEOUT: %w", err)
	}

	cfg.ScratchDir = getEnvString("SCRATCH_DIR", "/tmp/reelroom")
	cfg.ScratchMaxAge, err = getEnvDuration("SCRATCH_MAX_AGE", "6h")
	if err != nil {
		return nil, fmt.Errorf("invalid SCRATCH_MAX_AGE: %w", err)
	}
	cfg.BundleDir = getEnvString("BUNDLE_DIR", "/var/lib/reelroom/bundles")
	cfg.BundleRedelay, err = getEnvDuration("BUNDLE_RETRY_DELAY", "30s")
	if err != nil {
		return nil, fmt.Errorf("invalid BUNDLE_RETRY_DELAY: %w", err)
	}
	cfg.SettingsTTL, err = getEnvDuration("SETTINGS_TTL", "1m")
	if err != nil {
		return nil, fmt.Errorf("invalid SETTINGS_TTL: %w", err)
	}
	cfg.WatermarkImage = getEnvString("WATERMARK_IMAGE", "")
	cfg.WatermarkText = getEnvString("WATERMARK_TEXT", "")
	cfg.WatermarkFont = getEnvString("WATERMARK_FONT", "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf")

	cfg.SMTPHost = getEnvString("SMTP_HOST", "localhost")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 1025)
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFromAddress = getEnvString("SMTP_FROM_ADDRESS", "noreply@reelroom.io")
	cfg.SMTPFromName = getEnvString("SMTP_FROM_NAME", "reelroom")
	cfg.AdminEmail = getEnvString("ADMIN_EMAIL", "")

	cfg.MetricsPort = getEnvInt("METRICS_PORT", 9090)

	cfg.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.OTLPEndpoint = getEnvString("OTLP_ENDPOINT", "localhost:4317")
	cfg.TraceSampleRate = getEnvFloat("TRACE_SAMPLE_RATE", 1.0)

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("invalid max attempts: %d", c.MaxAttempts)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("invalid backoff base: %s", c.BackoffBase)
	}
	if c.LeaseTimeout < c.VideoJobTimeout {
		return fmt.Errorf("lease timeout %s is shorter than video job timeout %s", c.LeaseTimeout, c.VideoJobTimeout)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}
