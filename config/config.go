package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime parameter. Values come from the environment;
// a local .env file is honored when present.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	// PaymentWebhookSecret signs incoming payment confirmations.
	PaymentWebhookSecret string

	// ActionProcessorURL is the base URL of the hand-engine service the
	// sweep submits forced folds to.
	ActionProcessorURL string

	// SweepInterval is how often the timeout sweep runs.
	SweepInterval time.Duration

	// RedisAddr enables the asynq scheduler and cross-instance event
	// fanout when set. Empty means single-instance mode with an in-process
	// ticker.
	RedisAddr string

	// Cloudflare R2 object storage for avatars and result archives.
	// Optional: when unset, uploads and archiving are disabled.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// R2Configured reports whether all required object-storage settings are set.
func (c *Config) R2Configured() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	webhookSecret := os.Getenv("PAYMENT_WEBHOOK_SECRET")
	if webhookSecret == "" {
		return nil, fmt.Errorf("PAYMENT_WEBHOOK_SECRET environment variable is not set")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	sweepInterval := 10 * time.Second
	if intervalStr := os.Getenv("SWEEP_INTERVAL"); intervalStr != "" {
		sweepInterval, err = time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SWEEP_INTERVAL environment variable: %w", err)
		}
		if sweepInterval < time.Second {
			return nil, fmt.Errorf("SWEEP_INTERVAL must be at least 1s, got %v", sweepInterval)
		}
	}

	cfg := &Config{
		DatabaseURL:          dbURL,
		JWTSecretKey:         jwtKey,
		ServerPort:           port,
		PaymentWebhookSecret: webhookSecret,
		ActionProcessorURL:   os.Getenv("ACTION_PROCESSOR_URL"),
		SweepInterval:        sweepInterval,
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		R2AccountID:          os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:        os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:    os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:         os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:      os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}
