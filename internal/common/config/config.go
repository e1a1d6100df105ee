package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Database  DatabaseConfig
	DataMall  DataMallConfig
	Collector CollectorConfig
	Retention RetentionConfig
	Routing   RoutingConfig
	Server    ServerConfig
	Logging   LoggingConfig
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	Driver   string `validate:"oneof=sqlite postgres"`
	Path     string // sqlite database file
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DataMallConfig configures the upstream transit feed client.
type DataMallConfig struct {
	BaseURL    string        `validate:"required,url"`
	AccountKey string        // empty disables the live collector
	Timeout    time.Duration `validate:"gt=0"`
	PageSize   int           `validate:"gt=0"`
}

// CollectorConfig configures the live arrival collector.
type CollectorConfig struct {
	Interval        time.Duration `validate:"gt=0"`
	Workers         int           `validate:"gt=0"`
	RateLimitPerMin int           `validate:"gt=0"`
	ChangeThreshold float64       `validate:"gte=0"`
}

// RetentionConfig configures the arrival sample retention sweep.
type RetentionConfig struct {
	Window        time.Duration `validate:"gt=0"`
	SweepInterval time.Duration `validate:"gt=0"`
}

// RoutingConfig holds the route resolution heuristics.
type RoutingConfig struct {
	MinutesPerStop  float64 `validate:"gt=0"`
	TransferPenalty float64 `validate:"gte=0"`
	MaxResults      int     `validate:"gt=0"`
	PreferDirect    bool
}

type ServerConfig struct {
	Addr           string `validate:"required"`
	AllowedOrigins []string
}

type LoggingConfig struct {
	Level      string
	FilePath   string
	DiscordURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Path:     getEnv("DB_PATH", "bus_data.db"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "bustracker"),
		},
		DataMall: DataMallConfig{
			BaseURL:    getEnv("DATAMALL_BASE_URL", "https://datamall2.mytransport.sg/ltaodataservice"),
			AccountKey: getEnv("DATAMALL_ACCOUNT_KEY", ""),
			Timeout:    getDurationEnv("DATAMALL_TIMEOUT", 10*time.Second),
			PageSize:   getIntEnv("DATAMALL_PAGE_SIZE", 500),
		},
		Collector: CollectorConfig{
			Interval:        getDurationEnv("COLLECTOR_INTERVAL", time.Minute),
			Workers:         getIntEnv("COLLECTOR_WORKERS", 4),
			RateLimitPerMin: getIntEnv("COLLECTOR_RATE_LIMIT_PER_MIN", 150),
			ChangeThreshold: getFloatEnv("COLLECTOR_CHANGE_THRESHOLD", 0.3),
		},
		Retention: RetentionConfig{
			Window:        getDurationEnv("RETENTION_WINDOW", 7*24*time.Hour),
			SweepInterval: getDurationEnv("RETENTION_SWEEP_INTERVAL", 24*time.Hour),
		},
		Routing: RoutingConfig{
			MinutesPerStop:  getFloatEnv("ROUTING_MINUTES_PER_STOP", 1.5),
			TransferPenalty: getFloatEnv("ROUTING_TRANSFER_PENALTY", 3),
			MaxResults:      getIntEnv("ROUTING_MAX_RESULTS", 3),
			PreferDirect:    getBoolEnv("ROUTING_PREFER_DIRECT", true),
		},
		Server: ServerConfig{
			Addr:           getEnv("SERVER_ADDR", ":8080"),
			AllowedOrigins: splitEnv("SERVER_ALLOWED_ORIGINS", "*"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE", "bustracker.log"),
			DiscordURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return cfg, nil
}

// DSN returns the database connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.DBName)
	}
	return c.Path
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitEnv(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
