// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/David-Botos/txn-ingress/pkg/model"
)

// Config represents the application configuration
type Config struct {
	// Database connection
	Database *DatabaseConfig

	// Stage settings
	BatchSize        int
	ChunkSize        int
	WorkerPoolSize   int
	MaxErrorSamples  int
	StrictValidation bool
	StandardizeNames bool
	SettledStatuses  []string

	// Output
	OutputDir       string
	ExtractFormat   string
	MetricsTextfile string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from an optional .env file and environment variables
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	cfg := &Config{
		// Default values
		BatchSize:        getEnvAsInt("BATCH_SIZE", 1000),
		ChunkSize:        getEnvAsInt("CHUNK_SIZE", 5000),
		WorkerPoolSize:   getEnvAsInt("WORKER_POOL_SIZE", 0), // 0 means use runtime.NumCPU()
		MaxErrorSamples:  getEnvAsInt("MAX_ERROR_SAMPLES", 100),
		StrictValidation: getEnvAsBool("STRICT_VALIDATION", false),
		StandardizeNames: getEnvAsBool("STANDARDIZE_NAMES", true),
		SettledStatuses:  getEnvAsStringSlice("SETTLED_STATUSES", []string{"paid", "refunded"}),
		OutputDir:        getEnv("OUTPUT_DATA_PATH", "./data/output"),
		ExtractFormat:    getEnv("EXTRACT_FORMAT", "parquet"),
		MetricsTextfile:  getEnv("METRICS_TEXTFILE", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
	}

	dbConfig, err := LoadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load database configuration: %w", err)
	}
	cfg.Database = dbConfig

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Database == nil {
		return errors.New("database configuration is required")
	}

	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}

	if c.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}

	if c.WorkerPoolSize < 0 {
		return errors.New("worker pool size cannot be negative")
	}

	if c.MaxErrorSamples <= 0 {
		return errors.New("max error samples must be positive")
	}

	switch c.ExtractFormat {
	case "csv", "parquet":
	default:
		return fmt.Errorf("unsupported extract format %q", c.ExtractFormat)
	}

	if len(c.SettledStatuses) == 0 {
		return errors.New("at least one settled status is required")
	}
	for _, s := range c.SettledStatuses {
		if !model.Status(s).IsRecognized() {
			return fmt.Errorf("settled status %q is not a recognized status", s)
		}
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	return c.Database.Validate()
}

// Settled returns the settled statuses as typed values
func (c *Config) Settled() []model.Status {
	out := make([]model.Status, len(c.SettledStatuses))
	for i, s := range c.SettledStatuses {
		out[i] = model.Status(s)
	}
	return out
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringSlice parses a comma-separated list, dropping empty entries
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}
