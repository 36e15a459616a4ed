package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	BotScoring BotScoringConfig
	Notifier   NotifierConfig
	Alerting   AlertingConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// BotScoringConfig holds configuration for the external bot-scoring service
type BotScoringConfig struct {
	BaseURL         string
	TimeoutSeconds  int
	CacheTTLMinutes int
}

// NotifierConfig holds configuration for the evidence-request notifier
type NotifierConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// AlertingConfig holds configuration for the fraud alert webhook
type AlertingConfig struct {
	WebhookURL     string
	TimeoutSeconds int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "creatorpayouts"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		BotScoring: BotScoringConfig{
			BaseURL:         getEnv("BOT_SCORING_URL", "http://localhost:8000"),
			TimeoutSeconds:  getEnvAsInt("BOT_SCORING_TIMEOUT", 5),
			CacheTTLMinutes: getEnvAsInt("BOT_SCORING_CACHE_TTL", 10),
		},
		Notifier: NotifierConfig{
			BaseURL:        getEnv("NOTIFIER_URL", ""),
			TimeoutSeconds: getEnvAsInt("NOTIFIER_TIMEOUT", 3),
		},
		Alerting: AlertingConfig{
			WebhookURL:     getEnv("FRAUD_WEBHOOK_URL", ""),
			TimeoutSeconds: getEnvAsInt("FRAUD_WEBHOOK_TIMEOUT", 3),
		},
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
