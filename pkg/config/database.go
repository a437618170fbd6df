// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Supported values of DB_DRIVER
const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds connection parameters for the raw and normalized stores
type DatabaseConfig struct {
	Driver string

	// PostgreSQL
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// SQLite
	SQLitePath string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Statement timeout
	StatementTimeout time.Duration
}

// LoadDatabaseConfig loads database configuration from environment variables
func LoadDatabaseConfig() (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{
		Driver:     getEnv("DB_DRIVER", DriverPgx),
		Host:       getEnv("POSTGRES_HOST", "localhost"),
		Port:       getEnvAsInt("POSTGRES_PORT", 5432),
		User:       os.Getenv("POSTGRES_USER"),
		Password:   os.Getenv("POSTGRES_PASSWORD"),
		Database:   os.Getenv("POSTGRES_DB"),
		SSLMode:    getEnv("POSTGRES_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "ingress.db"),

		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime:  time.Duration(getEnvAsInt("DB_CONN_MAX_LIFETIME_SECONDS", 1800)) * time.Second,
		ConnMaxIdleTime:  time.Duration(getEnvAsInt("DB_CONN_MAX_IDLE_TIME_SECONDS", 600)) * time.Second,
		StatementTimeout: time.Duration(getEnvAsInt("DB_STATEMENT_TIMEOUT_SECONDS", 300)) * time.Second,
	}

	if cfg.IsPostgres() {
		if cfg.User == "" {
			return nil, errors.New("POSTGRES_USER environment variable is required")
		}
		if cfg.Database == "" {
			return nil, errors.New("POSTGRES_DB environment variable is required")
		}
	}

	return cfg, nil
}

// Validate checks the driver selection and connection parameters
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverPgx, DriverPostgres:
		if c.Host == "" || c.Port <= 0 {
			return errors.New("postgres host and port are required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	return nil
}

// IsPostgres reports whether the configured driver talks to PostgreSQL
func (c *DatabaseConfig) IsPostgres() bool {
	return c.Driver == DriverPgx || c.Driver == DriverPostgres
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}

// SQLiteDSN returns the modernc.org/sqlite data source name with foreign keys enabled
func (c *DatabaseConfig) SQLiteDSN() string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", c.SQLitePath)
}
