package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything the service reads from the environment, loaded once
// at startup.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionSecret string

	// Web push. Empty keys mean "generate at startup and log them".
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string

	// Email channel (AWS SES). Empty SESEmail disables the channel.
	SESEmail  string
	AWSRegion string

	// LLM assistant proxy.
	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string
	LLMTimeout time.Duration

	// Dispatcher.
	DispatchInterval time.Duration
	DispatchBatch    int
	DispatchSecret   string

	// In-app ticker.
	TickInterval time.Duration
	DueWindow    time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SessionSecret: getEnv("SESSION_SECRET", "dev-session-secret"),

		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber: getEnv("VAPID_SUBSCRIBER", "mailto:admin@example.com"),

		SESEmail:  os.Getenv("SES_EMAIL"),
		AWSRegion: getEnv("AWS_REGION", "us-east-1"),

		LLMAPIKey:  os.Getenv("OPENAI_API_KEY"),
		LLMBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMTimeout: getEnvDuration("LLM_TIMEOUT", 20*time.Second),

		DispatchInterval: getEnvDuration("DISPATCH_INTERVAL", 5*time.Minute),
		DispatchBatch:    getEnvInt("DISPATCH_BATCH", 200),
		DispatchSecret:   os.Getenv("DISPATCH_SECRET"),

		TickInterval: getEnvDuration("TICK_INTERVAL", 30*time.Second),
		DueWindow:    getEnvDuration("DUE_WINDOW", 60*time.Second),
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	if c.DispatchBatch <= 0 {
		return errors.New("DISPATCH_BATCH must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
