package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	DB struct {
		DSN string
	}
	API struct {
		Port     string
		BasePath string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Engine struct {
		QueueSize  int
		MaxWorkers int

		DedupWindow     time.Duration
		RateLimitMax    int
		RateLimitWindow time.Duration
		BatchDelay      time.Duration
		MaxBatchSize    int

		MaxDeliveryAttempts int
		RetryDelays         []time.Duration
		AttemptRetention    time.Duration
	}
	Monitor struct {
		Interval time.Duration
	}
	Ops struct {
		TelegramBotToken string
		TelegramChatID   int64
		TelegramRate     int
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Logging
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Engine tunables
	cfg.Engine.QueueSize = envInt("QUEUE_SIZE", 500)
	cfg.Engine.MaxWorkers = envInt("MAX_WORKERS", 10)
	cfg.Engine.DedupWindow = time.Duration(envInt("DEDUP_WINDOW_MINUTES", 60)) * time.Minute
	cfg.Engine.RateLimitMax = envInt("RATE_LIMIT_MAX", 5)
	cfg.Engine.RateLimitWindow = time.Duration(envInt("RATE_LIMIT_WINDOW_MINUTES", 60)) * time.Minute
	cfg.Engine.BatchDelay = time.Duration(envInt("BATCH_DELAY_SECONDS", 300)) * time.Second
	cfg.Engine.MaxBatchSize = envInt("MAX_BATCH_SIZE", 10)
	cfg.Engine.MaxDeliveryAttempts = envInt("MAX_DELIVERY_ATTEMPTS", 3)
	cfg.Engine.AttemptRetention = time.Duration(envInt("ATTEMPT_RETENTION_HOURS", 24)) * time.Hour

	delays, err := parseRetryDelays(os.Getenv("RETRY_DELAYS_MS"))
	if err != nil {
		return Config{}, err
	}
	cfg.Engine.RetryDelays = delays

	// Monitor
	cfg.Monitor.Interval = time.Duration(envInt("MONITOR_INTERVAL_MINUTES", 5)) * time.Minute

	// Ops alerting (optional)
	cfg.Ops.TelegramBotToken = os.Getenv("OPS_TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("OPS_TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Ops.TelegramChatID = id
	}
	cfg.Ops.TelegramRate = envInt("OPS_TELEGRAM_RATE", 1)

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v1"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "notification_events"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "notification-engine"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

// parseRetryDelays parses a comma-separated list of millisecond delays,
// e.g. "1000,5000,15000".
func parseRetryDelays(raw string) ([]time.Duration, error) {
	if raw == "" {
		return []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}, nil
	}
	parts := strings.Split(raw, ",")
	delays := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		ms, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_DELAYS_MS entry %q: %w", p, err)
		}
		delays = append(delays, time.Duration(ms)*time.Millisecond)
	}
	return delays, nil
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
