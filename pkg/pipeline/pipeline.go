// Package pipeline runs the load, extract, transform and distribute stages in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/David-Botos/txn-ingress/pkg/cleaner"
	"github.com/David-Botos/txn-ingress/pkg/config"
	"github.com/David-Botos/txn-ingress/pkg/connector"
	"github.com/David-Botos/txn-ingress/pkg/distributor"
	"github.com/David-Botos/txn-ingress/pkg/extractor"
	"github.com/David-Botos/txn-ingress/pkg/loader"
	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/portable"
	"github.com/David-Botos/txn-ingress/pkg/report"
	"github.com/David-Botos/txn-ingress/pkg/transformer"
)

// Options selects the input and output of a run. Empty fields fall back to the config.
type Options struct {
	SourcePath string
	OutputDir  string
	Format     portable.Format
}

// Pipeline wires the stages against one store
type Pipeline struct {
	conn   connector.DatabaseConnector
	cfg    *config.Config
	logger *zap.Logger

	loader      *loader.Loader
	extractor   *extractor.Extractor
	transformer *transformer.Transformer
	cleaner     *cleaner.DataCleaner
	distributor *distributor.Manager
	metrics     *Metrics
}

// New builds every stage from cfg. A nil metrics registers on a private registry.
func New(conn connector.DatabaseConnector, cfg *config.Config, metrics *Metrics, logger *zap.Logger) (*Pipeline, error) {
	if conn == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}

	dataCleaner, err := cleaner.NewDataCleaner(conn, logger.Named("cleaner"))
	if err != nil {
		return nil, fmt.Errorf("failed to create data cleaner: %w", err)
	}

	transformCfg := transformer.DefaultConfig()
	transformCfg.Workers = cfg.WorkerPoolSize
	transformCfg.MaxErrorSamples = cfg.MaxErrorSamples
	transformCfg.StandardizeNames = cfg.StandardizeNames

	return &Pipeline{
		conn:   conn,
		cfg:    cfg,
		logger: logger.Named("pipeline"),
		loader: loader.NewLoader(conn, loader.Config{
			BatchSize:       cfg.BatchSize,
			MaxErrorSamples: cfg.MaxErrorSamples,
			Strict:          cfg.StrictValidation,
		}, logger),
		extractor:   extractor.NewExtractor(conn, extractor.Config{ChunkSize: cfg.ChunkSize}, logger),
		transformer: transformer.New(transformCfg, logger),
		cleaner:     dataCleaner,
		distributor: distributor.NewManager(conn, distributor.Config{
			SettledStatuses: cfg.Settled(),
			MaxErrorSamples: cfg.MaxErrorSamples,
		}, logger),
		metrics: metrics,
	}, nil
}

// Distributor exposes the reporting queries over the normalized tables
func (p *Pipeline) Distributor() *distributor.Manager {
	return p.distributor
}

// Run executes every stage in order. Each stage commits on its own; the first fatal
// error stops the run and is returned together with the partial summary.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*RunSummary, error) {
	opts, err := p.resolve(opts)
	if err != nil {
		return nil, err
	}

	summary := newRunSummary(uuid.New().String())
	logger := p.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("Starting pipeline run",
		zap.String("source", opts.SourcePath),
		zap.String("output_dir", opts.OutputDir),
		zap.String("format", string(opts.Format)))

	err = p.run(ctx, opts, summary, logger)

	status := RunSucceeded
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = RunCancelled
	default:
		status = RunFailed
	}
	summary.complete(status)
	p.metrics.runFinished(status)

	if err != nil {
		logger.Error("Pipeline run stopped",
			zap.String("status", status),
			zap.Strings("completed", summary.StagesCompleted),
			zap.Error(err))
		return summary, err
	}

	logger.Info("Pipeline run completed",
		zap.Int("loaded", summary.Load.RowsLoaded),
		zap.Int("transformed", summary.Validation.ValidRecords),
		zap.Int("charges_inserted", summary.Distribution.ChargesInserted),
		zap.Bool("integrity_ok", summary.Integrity.OK()),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

func (p *Pipeline) resolve(opts Options) (Options, error) {
	if opts.SourcePath == "" {
		return opts, errors.New("source path is required")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = p.cfg.OutputDir
	}
	if opts.Format == "" {
		opts.Format = portable.Format(p.cfg.ExtractFormat)
	}
	format, err := portable.ParseFormat(string(opts.Format))
	if err != nil {
		return opts, err
	}
	opts.Format = format
	return opts, nil
}

func (p *Pipeline) run(ctx context.Context, opts Options, summary *RunSummary, logger *zap.Logger) error {
	err := p.stage(summary, StageLoad, func() error {
		if err := p.loader.EnsureStagingTable(ctx); err != nil {
			return err
		}
		result, err := p.loader.Load(ctx, opts.SourcePath)
		summary.Load = result
		p.metrics.addRows(StageLoad, OutcomeAccepted, result.RowsLoaded)
		p.metrics.addRows(StageLoad, OutcomeRejected, result.InvalidRows)
		p.metrics.addRows(StageLoad, OutcomeDuplicate, result.DuplicateRows)
		return err
	})
	if err != nil {
		return err
	}

	outputPath := filepath.Join(opts.OutputDir,
		fmt.Sprintf("%s_%s%s", model.RawTransactionsTable, summary.RunID, opts.Format.Extension()))
	err = p.stage(summary, StageExtract, func() error {
		meta, err := p.extractor.Extract(ctx, outputPath, opts.Format)
		summary.Extraction = meta
		if err != nil {
			return err
		}
		n, err := extractor.ValidateOutputFile(meta.OutputPath)
		if err != nil {
			return report.NewStageError(report.ErrorKindExtraction, "validate output", err)
		}
		summary.ExtractedRows = n
		if n != meta.RowCount {
			return report.NewStageError(report.ErrorKindExtraction, "validate output",
				fmt.Errorf("%s holds %d rows, %d were extracted", meta.OutputPath, n, meta.RowCount))
		}
		p.metrics.addRows(StageExtract, OutcomeAccepted, int(n))
		return nil
	})
	if err != nil {
		return err
	}

	var records []model.CanonicalTransactionRecord
	err = p.stage(summary, StageTransform, func() error {
		canonical, rep, err := p.transformer.TransformFile(ctx, summary.Extraction.OutputPath)
		summary.Validation = rep
		records = canonical
		p.metrics.addRows(StageTransform, OutcomeAccepted, rep.ValidRecords)
		p.metrics.addRows(StageTransform, OutcomeRejected, rep.InvalidRecords)
		return err
	})
	if err != nil {
		return err
	}

	err = p.stage(summary, StageClean, func() error {
		if err := p.distributor.CreateSchema(ctx); err != nil {
			return err
		}
		if err := p.cleaner.EnsureTable(ctx); err != nil {
			return report.NewStageError(report.ErrorKindSchema, "create cleaning log", err)
		}
		if err := p.cleaner.RecordCleaningOperations(ctx, summary.RunID, summary.Validation.Operations); err != nil {
			return report.NewStageError(report.ErrorKindTransformation, "record cleaning operations", err)
		}
		counts, err := p.cleaner.CountOperations(ctx, summary.RunID)
		if err != nil {
			return report.NewStageError(report.ErrorKindTransformation, "count cleaning operations", err)
		}
		summary.CleaningOps = counts
		return nil
	})
	if err != nil {
		return err
	}

	err = p.stage(summary, StageDistribute, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := p.distributor.Distribute(ctx, records)
		summary.Distribution = result
		p.metrics.addRows(StageDistribute, OutcomeAccepted, result.ChargesInserted)
		p.metrics.addRows(StageDistribute, OutcomeDuplicate, result.ChargesExisting)
		p.metrics.addRows(StageDistribute, OutcomeRejected, result.Rejected)
		return err
	})
	if err != nil {
		return err
	}

	return p.stage(summary, StageReport, func() error {
		if err := p.distributor.CreateReportingView(ctx); err != nil {
			return err
		}
		integrity, err := p.distributor.CheckIntegrity(ctx)
		if err != nil {
			return report.NewStageError(report.ErrorKindDistribution, "check integrity", err)
		}
		summary.Integrity = integrity
		if !integrity.OK() {
			logger.Warn("Integrity check found issues", zap.Int("issues", len(integrity.Issues)))
		}
		return nil
	})
}

// stage times fn and records it as completed when it succeeds
func (p *Pipeline) stage(summary *RunSummary, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.observeStage(name, time.Since(start))
	if err != nil {
		return err
	}
	summary.StagesCompleted = append(summary.StagesCompleted, name)
	return nil
}
