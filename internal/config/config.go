package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Chain    ChainConfig
	RabbitMQ RabbitMQConfig
	Log      LogConfig
	History  HistoryConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	QuoteTTL time.Duration
	LockTTL  time.Duration
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// ChainConfig holds the Ethereum provider and contract configuration.
// An empty RPCURL or PrivateKey leaves the gateway without a wallet.
type ChainConfig struct {
	RPCURL          string
	ChainID         int64
	ContractAddress string
	PrivateKey      string
	PollInterval    time.Duration
}

// Enabled reports whether enough is configured to build a wallet.
func (c ChainConfig) Enabled() bool {
	return c.RPCURL != "" && c.PrivateKey != ""
}

// RabbitMQConfig holds RabbitMQ configuration. An empty URL disables publishing.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string
	Format string
}

// HistoryConfig selects where completed rides are archived.
type HistoryConfig struct {
	Backend string // memory or postgres
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first when present;
// variables already set in the environment take precedence.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 2*time.Minute),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "autoride"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			QuoteTTL: getDurationEnv("REDIS_QUOTE_TTL", 5*time.Minute),
			LockTTL:  getDurationEnv("REDIS_LOCK_TTL", 30*time.Minute),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "autoride"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Chain: ChainConfig{
			RPCURL:          getEnv("CHAIN_RPC_URL", ""),
			ChainID:         getInt64Env("CHAIN_ID", 11155111),
			ContractAddress: getEnv("CONTRACT_ADDRESS", "0x0CB2585fb28a5729801F37CF20D11a88C48da07F"),
			PrivateKey:      getEnv("WALLET_PRIVATE_KEY", ""),
			PollInterval:    getDurationEnv("CHAIN_POLL_INTERVAL", 2*time.Second),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "ride_topic"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		History: HistoryConfig{
			Backend: getEnv("HISTORY_BACKEND", "memory"),
		},
	}
}

// WalletKey returns WALLET_PRIVATE_KEY for a key rotation. A value in .env
// wins over the process environment, which still holds the key read at start.
func WalletKey() string {
	if env, err := godotenv.Read(); err == nil {
		if key := env["WALLET_PRIVATE_KEY"]; key != "" {
			return key
		}
	}
	return os.Getenv("WALLET_PRIVATE_KEY")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
