// pkg/cleaner/cleaner.go
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/txn-ingress/pkg/connector"
	"github.com/David-Botos/txn-ingress/pkg/model"
)

// DataCleaner persists the cleansing audit trail of a pipeline run
type DataCleaner struct {
	conn   connector.DatabaseConnector
	logger *zap.Logger
	table  string
}

// NewDataCleaner creates a new DataCleaner instance
func NewDataCleaner(conn connector.DatabaseConnector, logger *zap.Logger) (*DataCleaner, error) {
	if conn == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &DataCleaner{
		conn:   conn,
		logger: logger,
		table:  conn.Dialect().Table(model.NormalizedSchema, model.CleaningLogTable),
	}, nil
}

// EnsureTable creates the cleaned_on_ingress tracking table if it doesn't exist.
// The normalized schema must already exist.
func (c *DataCleaner) EnsureTable(ctx context.Context) error {
	createTableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id VARCHAR(36) NOT NULL,
			seq INTEGER NOT NULL,
			record_id TEXT NOT NULL,
			source_row BIGINT NOT NULL,
			field_name TEXT NOT NULL,
			original_value TEXT,
			new_value TEXT NOT NULL,
			cleaning_operation TEXT NOT NULL,
			cleaning_reason TEXT NOT NULL,
			cleaned_at TIMESTAMP NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`, c.table)

	if _, err := c.conn.ExecWithTimeout(ctx, createTableSQL, 10*time.Second); err != nil {
		return fmt.Errorf("failed to create tracking table: %w", err)
	}

	c.logger.Debug("Ensured cleaning log table exists", zap.String("table", c.table))
	return nil
}

// RecordCleaningOperations inserts the operations of one run in a single transaction
func (c *DataCleaner) RecordCleaningOperations(ctx context.Context, runID string, operations []model.CleaningOperation) (err error) {
	if len(operations) == 0 {
		return nil
	}

	db := c.conn.DB()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(fmt.Sprintf(`
		INSERT INTO %s
		(run_id, seq, record_id, source_row, field_name, original_value, new_value,
		 cleaning_operation, cleaning_reason, cleaned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, c.table)))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	dialect := c.conn.Dialect()
	now := time.Now().UTC()
	for i, op := range operations {
		cleanedAt := op.CleanedAt
		if cleanedAt.IsZero() {
			cleanedAt = now
		}
		if _, err = stmt.ExecContext(ctx,
			runID,
			i+1,
			op.RecordID,
			op.SourceRow,
			op.Field,
			op.OriginalValue,
			op.NewValue,
			op.Operation,
			op.Reason,
			dialect.TimeArg(cleanedAt),
		); err != nil {
			return fmt.Errorf("failed to insert cleaning operation: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.logger.Info("Recorded cleaning operations",
		zap.String("run_id", runID),
		zap.Int("count", len(operations)))
	return nil
}

// CountOperations returns the recorded operations of a run grouped by operation name
func (c *DataCleaner) CountOperations(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := c.conn.DB().QueryxContext(ctx, c.conn.DB().Rebind(fmt.Sprintf(
		`SELECT cleaning_operation, COUNT(*) FROM %s WHERE run_id = ? GROUP BY cleaning_operation`, c.table)), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count cleaning operations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			op string
			n  int
		)
		if err := rows.Scan(&op, &n); err != nil {
			return nil, fmt.Errorf("failed to scan cleaning operation count: %w", err)
		}
		counts[op] = n
	}
	return counts, rows.Err()
}
