// Package loader stages delimited transaction files into the raw store.
package loader

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/txn-ingress/pkg/connector"
	"github.com/David-Botos/txn-ingress/pkg/converter"
	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

// Config controls a Loader
type Config struct {
	// Rows committed per transaction
	BatchSize int
	// Error descriptors kept in the result
	MaxErrorSamples int
	// Reject statuses outside the recognized vocabulary at load time
	Strict bool
}

// DefaultConfig returns the default loader configuration
func DefaultConfig() Config {
	return Config{
		BatchSize:       1000,
		MaxErrorSamples: report.DefaultMaxSamples,
	}
}

// Loader parses, validates and stages source rows
type Loader struct {
	conn      connector.DatabaseConnector
	cfg       Config
	converter *converter.TypeConverter
	logger    *zap.Logger
	table     string
	insertSQL string
	now       func() time.Time
}

// NewLoader creates a loader writing into the raw staging table
func NewLoader(conn connector.DatabaseConnector, cfg Config, logger *zap.Logger) *Loader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	table := conn.Dialect().Table(model.RawSchema, model.RawTransactionsTable)
	columns := model.RawTableMetadata().ColumnNames()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	return &Loader{
		conn:      conn,
		cfg:       cfg,
		converter: converter.NewTypeConverter(logger),
		logger:    logger.Named("loader"),
		table:     table,
		insertSQL: conn.DB().Rebind(fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO NOTHING",
			table, strings.Join(columns, ", "), placeholders)),
		now: time.Now,
	}
}

// EnsureStagingTable creates the raw staging table if it doesn't exist
func (l *Loader) EnsureStagingTable(ctx context.Context) error {
	dialect := l.conn.Dialect()

	if ddl := dialect.CreateSchemaSQL(model.RawSchema); ddl != "" {
		if _, err := l.conn.ExecWithTimeout(ctx, ddl, 30*time.Second); err != nil {
			return report.NewStageError(report.ErrorKindSchema, "create raw schema", err)
		}
	}

	meta := model.RawTableMetadata()
	defs := make([]string, 0, len(meta.Columns)+1)
	for _, col := range meta.Columns {
		nullability := "NULL"
		if !col.Nullable {
			nullability = "NOT NULL"
		}
		defs = append(defs, fmt.Sprintf("%s %s %s", col.Name, col.SQLType, nullability))
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(meta.PrimaryKeys, ", ")))

	statements := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", l.table, strings.Join(defs, ",\n\t")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_raw_transactions_load_id ON %s (load_id)", l.table),
	}
	for _, stmt := range statements {
		if _, err := l.conn.ExecWithTimeout(ctx, stmt, 30*time.Second); err != nil {
			return report.NewStageError(report.ErrorKindSchema, "create staging table", err)
		}
	}

	l.logger.Info("Ensured staging table exists", zap.String("table", l.table))
	return nil
}

// Load stages every valid row of the delimited file at sourcePath.
// Row-level problems lower the success rate of the result. The returned error is
// non-nil only when the source is unreadable, the store is unreachable or ctx is
// cancelled between batches.
func (l *Loader) Load(ctx context.Context, sourcePath string) (report.LoadResult, error) {
	result := report.LoadResult{
		LoadID:     uuid.New().String(),
		SourcePath: sourcePath,
		StartTime:  l.now(),
	}
	errs := report.NewCollector(l.cfg.MaxErrorSamples)
	finish := func() report.LoadResult {
		result.ErrorCount = errs.Count()
		result.Errors = errs.Samples()
		result.RuleCounts = errs.RuleCounts()
		result.Duration = time.Since(result.StartTime)
		return result
	}

	file, err := os.Open(sourcePath)
	if err != nil {
		return finish(), report.NewStageError(report.ErrorKindLoading, "open source",
			fmt.Errorf("%w: %w", report.ErrSourceUnreadable, err))
	}
	defer file.Close()

	reader := csv.NewReader(bufio.NewReader(file))
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return finish(), report.NewStageError(report.ErrorKindLoading, "read header",
			fmt.Errorf("%w: %w", report.ErrSourceUnreadable, err))
	}
	index, err := headerIndex(header)
	if err != nil {
		return finish(), report.NewStageError(report.ErrorKindLoading, "read header",
			fmt.Errorf("%w: %w", report.ErrSourceUnreadable, err))
	}

	l.logger.Info("Loading source file",
		zap.String("load_id", result.LoadID),
		zap.String("source", sourcePath),
		zap.Int("batch_size", l.cfg.BatchSize))

	sourceFile := filepath.Base(sourcePath)
	loadedAt := model.NewDBTime(l.now())
	seen := make(map[string]int64)
	batch := make([]model.RawTransactionRecord, 0, l.cfg.BatchSize)

	var row int64
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		result.TotalRows++

		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return finish(), report.NewStageError(report.ErrorKindLoading, "read source",
					fmt.Errorf("%w: %w", report.ErrSourceUnreadable, err))
			}
			result.InvalidRows++
			errs.Add(report.NewRowError(report.ErrorKindValidation, RuleMalformedRow, parseErr.Err.Error()).
				WithRow(row))
			continue
		}

		rec := l.rawRecord(fields, index)
		rec.SourceFile = sourceFile
		rec.SourceRow = row
		rec.LoadedAt = loadedAt
		rec.LoadID = result.LoadID

		if rowErrs := validateRow(l.converter, rec, l.cfg.Strict); len(rowErrs) > 0 {
			result.InvalidRows++
			for _, rowErr := range rowErrs {
				errs.Add(rowErr)
			}
			continue
		}

		if first, dup := seen[rec.ID.String]; dup {
			result.InvalidRows++
			result.DuplicateRows++
			errs.Add(report.NewRowError(report.ErrorKindValidation, RuleDuplicateID,
				fmt.Sprintf("duplicate of row %d in the same load", first)).
				WithRow(row).
				WithRecord(rec.ID.String).
				WithField("id", rec.ID.String))
			continue
		}
		seen[rec.ID.String] = row
		result.ValidRows++

		batch = append(batch, rec)
		if len(batch) >= l.cfg.BatchSize {
			if err := l.flush(ctx, batch, &result, errs); err != nil {
				return finish(), err
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := l.flush(ctx, batch, &result, errs); err != nil {
			return finish(), err
		}
	}

	final := finish()
	l.logger.Info("Load completed",
		zap.String("load_id", final.LoadID),
		zap.Int("total_rows", final.TotalRows),
		zap.Int("valid_rows", final.ValidRows),
		zap.Int("invalid_rows", final.InvalidRows),
		zap.Int("duplicate_rows", final.DuplicateRows),
		zap.Int("rows_loaded", final.RowsLoaded),
		zap.Int("batches", final.Batches),
		zap.Duration("duration", final.Duration))

	return final, nil
}

// flush commits one batch. A failed batch is retried one row per transaction so a
// single bad row cannot take its neighbours down with it.
func (l *Loader) flush(
	ctx context.Context,
	batch []model.RawTransactionRecord,
	result *report.LoadResult,
	errs *report.Collector,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// A started batch runs to completion.
	batchCtx := context.WithoutCancel(ctx)

	result.Batches++
	loaded, duplicates, err := l.insertBatch(batchCtx, batch)
	if err == nil {
		l.applyBatch(result, errs, loaded, duplicates)
		return nil
	}
	if errors.Is(err, report.ErrStoreUnreachable) {
		return err
	}

	l.logger.Warn("Batch insert failed, retrying rows individually",
		zap.Int("rows", len(batch)),
		zap.Error(err))

	for i := range batch {
		loaded, duplicates, err := l.insertBatch(batchCtx, batch[i:i+1])
		if err != nil {
			if errors.Is(err, report.ErrStoreUnreachable) {
				return err
			}
			result.ValidRows--
			result.InvalidRows++
			errs.Add(report.NewRowError(report.ErrorKindLoading, RuleInsertFailed, err.Error()).
				WithRow(batch[i].SourceRow).
				WithRecord(batch[i].ID.String))
			continue
		}
		l.applyBatch(result, errs, loaded, duplicates)
	}
	return nil
}

func (l *Loader) applyBatch(result *report.LoadResult, errs *report.Collector, loaded int, duplicates []report.RowError) {
	result.RowsLoaded += loaded
	result.DuplicateRows += len(duplicates)
	for _, dup := range duplicates {
		errs.Add(dup)
	}
}

// insertBatch inserts rows in one transaction. Rows whose id is already staged are
// left untouched and returned as duplicates.
func (l *Loader) insertBatch(ctx context.Context, batch []model.RawTransactionRecord) (loaded int, duplicates []report.RowError, err error) {
	db := l.conn.DB()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, nil, report.NewStageError(report.ErrorKindLoading, "begin batch",
			fmt.Errorf("%w: %w", report.ErrStoreUnreachable, err))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				l.logger.Error("Failed to rollback batch",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	stmt, err := tx.PreparexContext(ctx, l.insertSQL)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	dialect := l.conn.Dialect()
	for _, rec := range batch {
		res, execErr := stmt.ExecContext(ctx,
			rec.ID,
			rec.Name,
			rec.CompanyID,
			rec.Amount,
			rec.Status,
			rec.CreatedAt,
			rec.PaidAt,
			rec.SourceFile,
			rec.SourceRow,
			dialect.TimeArg(rec.LoadedAt.Time),
			rec.LoadID,
		)
		if execErr != nil {
			err = fmt.Errorf("failed to insert row %d: %w", rec.SourceRow, execErr)
			if connector.IsConnectionError(execErr) {
				err = report.NewStageError(report.ErrorKindLoading, "insert batch",
					fmt.Errorf("%w: %w", report.ErrStoreUnreachable, execErr))
			}
			return 0, nil, err
		}

		n, raErr := res.RowsAffected()
		if raErr != nil {
			err = fmt.Errorf("failed to read rows affected: %w", raErr)
			return 0, nil, err
		}
		if n == 0 {
			duplicates = append(duplicates,
				report.NewRowError(report.ErrorKindLoading, RuleDuplicateID, "id already staged by a previous load").
					WithRow(rec.SourceRow).
					WithRecord(rec.ID.String).
					WithField("id", rec.ID.String))
			continue
		}
		loaded++
	}

	if err = tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return loaded, duplicates, nil
}

// rawRecord maps a source row onto the staged field set. Ragged rows yield nulls.
func (l *Loader) rawRecord(fields []string, index map[string]int) model.RawTransactionRecord {
	value := func(name string) string {
		if i := index[name]; i < len(fields) {
			return fields[i]
		}
		return ""
	}
	return model.RawTransactionRecord{
		ID:        l.converter.NullString(value("id")),
		Name:      l.converter.NullString(value("name")),
		CompanyID: l.converter.NullString(value("company_id")),
		Amount:    l.converter.NullString(value("amount")),
		Status:    l.converter.NullString(value("status")),
		CreatedAt: l.converter.NullString(value("created_at")),
		PaidAt:    l.converter.NullString(value("paid_at")),
	}
}

// headerIndex maps the expected source columns onto header positions
func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, col := range model.SourceColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("header is missing columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}
