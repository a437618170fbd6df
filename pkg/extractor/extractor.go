// Package extractor materializes the raw staging table into a portable file.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/txn-ingress/pkg/connector"
	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/portable"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

// Config controls an Extractor
type Config struct {
	// Rows read from the store and written per chunk
	ChunkSize int
}

// DefaultConfig returns the default extractor configuration
func DefaultConfig() Config {
	return Config{ChunkSize: 5000}
}

// Extractor streams the raw store into csv or parquet files
type Extractor struct {
	conn   connector.DatabaseConnector
	cfg    Config
	logger *zap.Logger
	table  string
}

// NewExtractor creates an extractor over the raw staging table
func NewExtractor(conn connector.DatabaseConnector, cfg Config, logger *zap.Logger) *Extractor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		conn:   conn,
		cfg:    cfg,
		logger: logger.Named("extractor"),
		table:  conn.Dialect().Table(model.RawSchema, model.RawTransactionsTable),
	}
}

// Extract writes every staged row to outputPath in the given format.
// The file is written next to its destination and renamed into place, so a failed
// extraction never leaves a partial file behind.
func (e *Extractor) Extract(ctx context.Context, outputPath string, format portable.Format) (report.ExtractionMetadata, error) {
	meta := report.ExtractionMetadata{
		ExtractionID: uuid.New().String(),
		SourceTable:  e.table,
		Format:       string(format),
		OutputPath:   outputPath,
		Compression:  format.Compression(),
		StartTime:    time.Now(),
	}
	fail := func(kind report.ErrorKind, op string, err error) (report.ExtractionMetadata, error) {
		meta.Duration = time.Since(meta.StartTime)
		e.logger.Error("Extraction failed",
			zap.String("extraction_id", meta.ExtractionID),
			zap.String("op", op),
			zap.Error(err))
		return meta, report.NewStageError(kind, op, err)
	}

	if _, err := portable.ParseFormat(string(format)); err != nil {
		return fail(report.ErrorKindExtraction, "check format", err)
	}
	if err := format.CheckPath(outputPath); err != nil {
		return fail(report.ErrorKindExtraction, "check format", err)
	}

	e.logger.Info("Starting extraction",
		zap.String("extraction_id", meta.ExtractionID),
		zap.String("table", e.table),
		zap.String("format", string(format)),
		zap.String("output", outputPath),
		zap.Int("chunk_size", e.cfg.ChunkSize))

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fail(report.ErrorKindExtraction, "create output directory", err)
	}

	tmpPath := outputPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fail(report.ErrorKindExtraction, "create output file", err)
	}
	committed := false
	defer func() {
		if !committed {
			file.Close()
			os.Remove(tmpPath)
		}
	}()

	writer, err := portable.NewWriter(file, format)
	if err != nil {
		return fail(report.ErrorKindExtraction, "open writer", err)
	}

	rows, err := e.FetchChunks(ctx, func(chunk []model.RawTransactionRecord) error {
		meta.Chunks++
		return writer.Write(chunk)
	})
	meta.RowCount = rows
	if err != nil {
		if errors.Is(err, errStoreRead) {
			return fail(report.ErrorKindExtraction, "read raw store", err)
		}
		return fail(report.ErrorKindExtraction, "write output", err)
	}

	if err := writer.Close(); err != nil {
		return fail(report.ErrorKindExtraction, "finalize output", err)
	}
	if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fail(report.ErrorKindExtraction, "close output", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fail(report.ErrorKindExtraction, "rename output", err)
	}
	committed = true

	if info, err := os.Stat(outputPath); err == nil {
		meta.FileSize = info.Size()
	}
	meta.Duration = time.Since(meta.StartTime)

	e.logger.Info("Extraction completed",
		zap.String("extraction_id", meta.ExtractionID),
		zap.Int64("rows", meta.RowCount),
		zap.Int("chunks", meta.Chunks),
		zap.Int64("file_size", meta.FileSize),
		zap.Duration("duration", meta.Duration))

	return meta, nil
}

var errStoreRead = errors.New("raw store read failed")

// FetchChunks reads the raw store in id order, ChunkSize rows at a time, and hands each
// chunk to processor. Only one chunk is held in memory. Cancellation is checked between chunks.
func (e *Extractor) FetchChunks(
	ctx context.Context,
	processor func(chunk []model.RawTransactionRecord) error,
) (int64, error) {
	db := e.conn.DB()
	query := db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id > ? ORDER BY id LIMIT ?",
		strings.Join(model.RawTableMetadata().ColumnNames(), ", "), e.table))

	var (
		totalRows int64
		lastID    string
	)
	for {
		select {
		case <-ctx.Done():
			return totalRows, ctx.Err()
		default:
		}

		chunk := make([]model.RawTransactionRecord, 0, e.cfg.ChunkSize)
		if err := db.SelectContext(ctx, &chunk, query, lastID, e.cfg.ChunkSize); err != nil {
			return totalRows, fmt.Errorf("%w: %w", errStoreRead, err)
		}
		if len(chunk) == 0 {
			return totalRows, nil
		}

		if err := processor(chunk); err != nil {
			return totalRows, err
		}
		totalRows += int64(len(chunk))
		lastID = chunk[len(chunk)-1].ID.String

		if len(chunk) < e.cfg.ChunkSize {
			return totalRows, nil
		}
	}
}

// CountRows returns the number of rows currently staged
func (e *Extractor) CountRows(ctx context.Context) (int64, error) {
	var n int64
	if err := e.conn.DB().GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", e.table)); err != nil {
		return 0, fmt.Errorf("failed to count staged rows: %w", err)
	}
	return n, nil
}

// ValidateOutputFile re-opens an extracted file and returns the number of records it holds
func ValidateOutputFile(path string) (int64, error) {
	n, err := portable.CountRows(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read back %s: %w", path, err)
	}
	return n, nil
}
