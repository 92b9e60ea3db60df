package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Bot      BotConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AWS      AWSConfig
}

// BotConfig holds Discord connection and guild-facing behavior settings.
type BotConfig struct {
	Token    string
	Timezone string // IANA name used for guild-local calendar days (e.g. Europe/Moscow); empty = system local
}

// Location resolves the configured timezone, falling back to the system local zone.
func (c BotConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ServerConfig holds the ops HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	OpsToken           string // static bearer token for the ops endpoints; empty disables them
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/esserbot?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection and guild-document cache settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL int // guild document cache TTL in seconds; 0 disables caching
}

// AWSConfig holds AWS credentials and the snapshot bucket.
type AWSConfig struct {
	Region                  string
	AccessKeyID             string
	SecretAccessKey         string
	SnapshotBucket          string
	SnapshotIntervalMinutes int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := &Config{
		Bot: BotConfig{
			Token:    getEnv("BOT_TOKEN", ""),
			Timezone: getEnv("BOT_TIMEZONE", ""),
		},
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			OpsToken:           getEnv("OPS_TOKEN", ""),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/esserbot?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "esserbot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			CacheTTL: getEnvInt("REDIS_CACHE_TTL_SEC", 300),
		},
		AWS: AWSConfig{
			Region:                  getEnv("AWS_REGION", ""),
			AccessKeyID:             getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:         getEnv("AWS_SECRET_ACCESS_KEY", ""),
			SnapshotBucket:          getEnv("AWS_S3_SNAPSHOT_BUCKET", "esser-bot-snapshots"),
			SnapshotIntervalMinutes: getEnvInt("SNAPSHOT_INTERVAL_MINUTES", 60),
		},
	}
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
