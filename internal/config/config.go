package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Queue / dispatcher
	UseMemoryQueue   bool
	InboundQueueURL  string
	WorkerCount      int
	ReceiveWaitSecs  int
	ReceiveBatchSize int
	JobMaxAttempts   int
	RetryBaseDelay   time.Duration

	// Conversation
	ExtractionMemoryTTL time.Duration
	DefaultTimezone     string

	// Follow-ups
	SweepInterval time.Duration

	// Messaging gateway
	GatewayBaseURL string
	GatewayAPIKey  string
	GatewayTimeout time.Duration

	// Reply generation
	ReplyTimeout time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		UseMemoryQueue:   getEnvAsBool("USE_MEMORY_QUEUE", false),
		InboundQueueURL:  getEnv("INBOUND_QUEUE_URL", ""),
		WorkerCount:      getEnvAsInt("WORKER_COUNT", 50),
		ReceiveWaitSecs:  getEnvAsInt("RECEIVE_WAIT_SECONDS", 2),
		ReceiveBatchSize: getEnvAsInt("RECEIVE_BATCH_SIZE", 5),
		JobMaxAttempts:   getEnvAsInt("JOB_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvAsDuration("JOB_RETRY_BASE_DELAY", 2*time.Second),

		ExtractionMemoryTTL: getEnvAsDuration("EXTRACTION_MEMORY_TTL", 30*time.Minute),
		DefaultTimezone:     getEnv("DEFAULT_TIMEZONE", "America/Sao_Paulo"),

		SweepInterval: getEnvAsDuration("FOLLOWUP_SWEEP_INTERVAL", time.Minute),

		GatewayBaseURL: strings.TrimRight(getEnv("GATEWAY_BASE_URL", ""), "/"),
		GatewayAPIKey:  getEnv("GATEWAY_API_KEY", ""),
		GatewayTimeout: getEnvAsDuration("GATEWAY_TIMEOUT", 10*time.Second),

		ReplyTimeout: getEnvAsDuration("REPLY_TIMEOUT", 30*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
