// Package transformer coerces, cleanses and validates extracted raw records
// into the canonical transaction schema.
package transformer

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/David-Botos/txn-ingress/pkg/cleaner"
	"github.com/David-Botos/txn-ingress/pkg/converter"
	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/portable"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

// Config controls a Transformer
type Config struct {
	Workers          int  // Concurrent chunk workers, NumCPU when 0
	ChunkSize        int  // Records per chunk
	MaxErrorSamples  int  // Error descriptors kept in the report
	StandardizeNames bool // Title-case company names
}

// DefaultConfig returns the default transformer configuration
func DefaultConfig() Config {
	return Config{
		ChunkSize:        1000,
		MaxErrorSamples:  report.DefaultMaxSamples,
		StandardizeNames: true,
	}
}

// Transformer turns raw records into canonical records
type Transformer struct {
	cfg       Config
	converter *converter.TypeConverter
	logger    *zap.Logger
}

// New creates a transformer
func New(cfg Config, logger *zap.Logger) *Transformer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	return &Transformer{
		cfg:       cfg,
		converter: converter.NewTypeConverter(logger),
		logger:    logger.Named("transformer"),
	}
}

// outcome is the result of transforming a single raw record
type outcome struct {
	record     model.CanonicalTransactionRecord
	errs       []report.RowError
	warnings   []report.RowError
	operations []model.CleaningOperation
}

// TransformFile reads an extracted file and transforms its records
func (t *Transformer) TransformFile(ctx context.Context, path string) ([]model.CanonicalTransactionRecord, report.ValidationReport, error) {
	records, err := portable.ReadAll(path)
	if err != nil {
		return nil, report.ValidationReport{}, report.NewStageError(report.ErrorKindTransformation, "read extracted file",
			fmt.Errorf("%w: %w", report.ErrSourceUnreadable, err))
	}
	t.logger.Debug("Read extracted file", zap.String("path", path), zap.Int("records", len(records)))
	return t.Transform(ctx, records)
}

// Transform validates and cleanses records. Accepted records keep input order.
// The error is non-nil only when ctx is cancelled.
func (t *Transformer) Transform(ctx context.Context, records []model.RawTransactionRecord) ([]model.CanonicalTransactionRecord, report.ValidationReport, error) {
	start := time.Now()
	result := report.ValidationReport{TotalRecords: len(records)}

	chunks := (len(records) + t.cfg.ChunkSize - 1) / t.cfg.ChunkSize
	outcomes := make([][]outcome, chunks)

	t.logger.Info("Starting transformation",
		zap.Int("records", len(records)),
		zap.Int("chunks", chunks),
		zap.Int("workers", t.cfg.Workers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Workers)
	for i := 0; i < chunks; i++ {
		i := i
		lo := i * t.cfg.ChunkSize
		hi := min(lo+t.cfg.ChunkSize, len(records))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rules := cleaner.NewRules(t.cfg.StandardizeNames)
			chunk := make([]outcome, 0, hi-lo)
			for _, raw := range records[lo:hi] {
				chunk = append(chunk, t.transformRecord(rules, raw))
			}
			outcomes[i] = chunk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		result.Duration = time.Since(start)
		t.logger.Warn("Transformation cancelled", zap.Error(err))
		return nil, result, err
	}

	errs := report.NewCollector(t.cfg.MaxErrorSamples)
	warnings := report.NewCollector(t.cfg.MaxErrorSamples)
	accepted := make([]model.CanonicalTransactionRecord, 0, len(records))
	seen := make(map[string]int64, len(records))

	for _, chunk := range outcomes {
		for _, out := range chunk {
			for _, w := range out.warnings {
				warnings.Add(w)
			}
			if len(out.errs) > 0 {
				for _, e := range out.errs {
					errs.Add(e)
				}
				result.InvalidRecords++
				continue
			}
			if firstRow, dup := seen[out.record.ID]; dup {
				errs.Add(report.NewRowError(report.ErrorKindValidation, RuleDuplicateID,
					fmt.Sprintf("duplicate id, first seen at row %d", firstRow)).
					WithRow(out.record.SourceRow).
					WithRecord(out.record.ID).
					WithField("id", out.record.ID))
				result.InvalidRecords++
				continue
			}
			seen[out.record.ID] = out.record.SourceRow
			accepted = append(accepted, out.record)
			result.Operations = append(result.Operations, out.operations...)
		}
	}

	result.ValidRecords = len(accepted)
	result.ErrorCount = errs.Count()
	result.Errors = errs.Samples()
	result.RuleCounts = errs.RuleCounts()
	result.Warnings = warnings.Samples()
	result.CleaningOps = len(result.Operations)
	result.Duration = time.Since(start)

	t.logger.Info("Transformation completed",
		zap.Int("total", result.TotalRecords),
		zap.Int("valid", result.ValidRecords),
		zap.Int("invalid", result.InvalidRecords),
		zap.Int("cleaning_operations", result.CleaningOps),
		zap.Int("warnings", warnings.Count()),
		zap.Duration("duration", result.Duration))

	return accepted, result, nil
}

// transformRecord runs coercion, cleansing and schema validation on one record
func (t *Transformer) transformRecord(rules *cleaner.Rules, raw model.RawTransactionRecord) outcome {
	var out outcome
	rec := &out.record
	rec.ID = raw.ID.String
	rec.SourceRow = raw.SourceRow

	present := func(field string, v string, valid bool) bool {
		if valid && v != "" {
			return true
		}
		out.errs = append(out.errs, report.NewRowError(report.ErrorKindValidation, RuleRequired, "required field is missing").
			WithRow(raw.SourceRow).
			WithRecord(rec.ID).
			WithField(field, ""))
		return false
	}
	coercionFailed := func(rule, field, value string, err error) {
		out.errs = append(out.errs, report.NewRowError(report.ErrorKindTransformation, rule, err.Error()).
			WithRow(raw.SourceRow).
			WithRecord(rec.ID).
			WithField(field, value))
	}

	present("id", raw.ID.String, raw.ID.Valid)
	if present("company_id", raw.CompanyID.String, raw.CompanyID.Valid) {
		rec.CompanyID = raw.CompanyID.String
	}
	if raw.Name.Valid {
		rec.CompanyName = raw.Name.String
	}
	if present("status", raw.Status.String, raw.Status.Valid) {
		rec.Status = model.Status(raw.Status.String)
	}
	if present("amount", raw.Amount.String, raw.Amount.Valid) {
		amount, err := t.converter.ParseAmount(raw.Amount.String)
		if err != nil {
			coercionFailed(RuleAmountFormat, "amount", raw.Amount.String, err)
		}
		rec.Amount = amount
	}
	if present("created_at", raw.CreatedAt.String, raw.CreatedAt.Valid) {
		createdAt, err := t.converter.ParseTimestamp(raw.CreatedAt.String)
		if err != nil {
			coercionFailed(RuleTimestampFormat, "created_at", raw.CreatedAt.String, err)
		}
		rec.CreatedAt = createdAt
	}
	if len(out.errs) > 0 {
		return out
	}

	var droppedPaidAt *string
	if raw.PaidAt.Valid && raw.PaidAt.String != "" {
		paidAt, err := t.converter.ParseTimestamp(raw.PaidAt.String)
		if err != nil {
			original := raw.PaidAt.String
			droppedPaidAt = &original
			out.warnings = append(out.warnings, report.NewRowError(report.ErrorKindTransformation, RuleTimestampFormat,
				"paid_at is not a timestamp and was dropped").
				WithRow(raw.SourceRow).
				WithRecord(rec.ID).
				WithField("paid_at", original))
		} else {
			rec.UpdatedAt = &paidAt
		}
	}

	out.operations = rules.Apply(rec)
	if droppedPaidAt != nil {
		out.operations = append(out.operations, cleaner.PaidAtDropped(rec, *droppedPaidAt))
	}

	out.errs = validateCanonical(rec)
	return out
}
