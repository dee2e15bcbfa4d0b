package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"mnemosyne/pkg/errors"
)

type Config struct {
	App           AppConfig
	Server        ServerConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	AI            AIConfig
	Embeddings    EmbeddingsConfig
	Query         QueryConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"mnemosyne"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ClickHouseConfig configures the usage analytics store.
// Disabled entirely when Enabled is false; the in-memory metrics
// snapshot keeps working either way.
type ClickHouseConfig struct {
	Enabled       bool          `envconfig:"CLICKHOUSE_ENABLED" default:"true"`
	Host          string        `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port          int           `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User          string        `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password      string        `envconfig:"CLICKHOUSE_PASSWORD"`
	Database      string        `envconfig:"CLICKHOUSE_DB" default:"mnemosyne"`
	FlushBatch    int           `envconfig:"CLICKHOUSE_FLUSH_BATCH" default:"500"`
	FlushInterval time.Duration `envconfig:"CLICKHOUSE_FLUSH_INTERVAL" default:"5s"`
}

type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"true"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"true"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"mnemosyne"`
}

// TelegramConfig configures the optional chat bot surface.
// The bot is not started when BotToken is empty.
type TelegramConfig struct {
	BotToken       string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	AdminIDs       []int64 `envconfig:"TELEGRAM_ADMIN_IDS"`
	DefaultContext string  `envconfig:"TELEGRAM_DEFAULT_CONTEXT"`
}

type AIConfig struct {
	ClaudeKey       string        `envconfig:"CLAUDE_API_KEY"`
	OpenAIKey       string        `envconfig:"OPENAI_API_KEY"`
	DeepSeekKey     string        `envconfig:"DEEPSEEK_API_KEY"`
	GeminiKey       string        `envconfig:"GEMINI_API_KEY"`
	OllamaURL       string        `envconfig:"OLLAMA_URL"`
	DefaultModel    string        `envconfig:"DEFAULT_AI_MODEL"`
	FallbackEnabled bool          `envconfig:"AI_FALLBACK_ENABLED" default:"true"`
	RateLimits      bool          `envconfig:"AI_RATE_LIMITS" default:"true"`
	RequestTimeout  time.Duration `envconfig:"AI_REQUEST_TIMEOUT" default:"60s"`
}

type EmbeddingsConfig struct {
	// Reuses OPENAI_API_KEY when empty
	APIKey string `envconfig:"EMBEDDINGS_API_KEY"`
	Model  string `envconfig:"EMBEDDINGS_MODEL" default:"text-embedding-3-small"`
}

// QueryConfig holds orchestration defaults applied when a request
// does not specify its own options
type QueryConfig struct {
	MaxResponseTokens int     `envconfig:"QUERY_MAX_RESPONSE_TOKENS" default:"1024"`
	Temperature       float64 `envconfig:"QUERY_TEMPERATURE" default:"0.7"`
	SystemPrompt      string  `envconfig:"QUERY_SYSTEM_PROMPT"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
