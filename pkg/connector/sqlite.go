package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/David-Botos/txn-ingress/pkg/config"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

// SQLiteConnector implements the DatabaseConnector interface for an embedded SQLite file
type SQLiteConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	cfg    *config.DatabaseConfig
}

// NewSQLiteConnector opens the SQLite database at cfg.SQLitePath with foreign keys enforced
func NewSQLiteConnector(ctx context.Context, cfg *config.DatabaseConfig) (*SQLiteConnector, error) {
	logger := zap.L().Named("sqlite-connector")
	logger.Info("Opening SQLite database", zap.String("path", cfg.SQLitePath))

	db, err := sqlx.Open(config.DriverSQLite, cfg.SQLiteDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite connection: %w", err)
	}

	// SQLite allows a single writer; one connection keeps transactions from contending.
	db.SetMaxOpenConns(1)

	if err := PingWithTimeout(ctx, db.DB, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &SQLiteConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}, nil
}

// DB returns the underlying database connection
func (c *SQLiteConnector) DB() *sqlx.DB {
	return c.db
}

// Dialect returns the SQLite dialect
func (c *SQLiteConnector) Dialect() Dialect {
	return SQLiteDialect()
}

// Validate verifies the database responds and enforces foreign keys
func (c *SQLiteConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query SQLite version: %w", err)
	}

	var fk int
	if err := c.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		return fmt.Errorf("failed to query foreign key pragma: %w", err)
	}
	if fk != 1 {
		return fmt.Errorf("foreign key enforcement is disabled")
	}

	c.logger.Info("SQLite connection validated",
		zap.String("version", version),
		zap.String("path", c.cfg.SQLitePath))
	return nil
}

// Close closes the database connection
func (c *SQLiteConnector) Close() error {
	LogConnectionStats(c.logger, c.cfg.SQLitePath, c.db.DB)
	return c.db.Close()
}

// ExecWithTimeout executes a statement with a timeout
func (c *SQLiteConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	return execWithTimeout(ctx, c.db, query, timeout, args...)
}
