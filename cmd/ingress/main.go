// Command ingress loads a transactions file into the normalized store and prints a run report.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/David-Botos/txn-ingress/pkg/config"
	"github.com/David-Botos/txn-ingress/pkg/connector"
	"github.com/David-Botos/txn-ingress/pkg/distributor"
	"github.com/David-Botos/txn-ingress/pkg/logging"
	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/pipeline"
	"github.com/David-Botos/txn-ingress/pkg/portable"
)

var (
	sourcePath   = flag.String("source", "", "Path to the source transactions CSV (required)")
	outputDir    = flag.String("output-dir", "", "Directory for extracted files (default OUTPUT_DATA_PATH)")
	format       = flag.String("format", "", "Extraction format: csv or parquet (default EXTRACT_FORMAT)")
	summaryLimit = flag.Int("summary-limit", 20, "Daily summary rows to print, 0 for none")
	dotenv       = flag.String("dotenv", ".env", "Optional env file to load before reading the environment")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("error: %v", err)
	}
}

func run() error {
	if *sourcePath == "" {
		flag.Usage()
		return fmt.Errorf("-source is required")
	}

	cfg, err := config.LoadConfig(*dotenv)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := connector.NewConnectorFactory(cfg.Database, logger).Create(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	registry := prometheus.NewRegistry()
	p, err := pipeline.New(conn, cfg, pipeline.NewMetrics(registry), logger)
	if err != nil {
		return err
	}

	summary, runErr := p.Run(ctx, pipeline.Options{
		SourcePath: *sourcePath,
		OutputDir:  *outputDir,
		Format:     portable.Format(*format),
	})

	if cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, registry); err != nil {
			logger.Error("Failed to write metrics textfile",
				zap.String("path", cfg.MetricsTextfile),
				zap.Error(err))
		}
	}

	if summary != nil {
		printStages(os.Stdout, summary)
	}
	if runErr != nil {
		return runErr
	}

	if *summaryLimit > 0 {
		rows, err := p.Distributor().QueryDailySummary(ctx, distributor.SummaryFilter{Limit: *summaryLimit})
		if err != nil {
			return err
		}
		printDailySummary(os.Stdout, rows)
	}
	return nil
}

func printStages(w io.Writer, s *pipeline.RunSummary) {
	fmt.Fprintf(w, "\nRun %s: %s in %s\n", s.RunID, s.Status, s.Duration)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Stage", "In", "Accepted", "Rejected", "Duplicates", "Success %"})
	table.Append([]string{"load",
		itoa(s.Load.TotalRows), itoa(s.Load.RowsLoaded), itoa(s.Load.InvalidRows), itoa(s.Load.DuplicateRows),
		pct(s.Load.SuccessRate())})
	table.Append([]string{"extract",
		strconv.FormatInt(s.Extraction.RowCount, 10), strconv.FormatInt(s.ExtractedRows, 10), "0", "0", "-"})
	table.Append([]string{"transform",
		itoa(s.Validation.TotalRecords), itoa(s.Validation.ValidRecords), itoa(s.Validation.InvalidRecords), "-",
		pct(s.Validation.SuccessRate())})
	table.Append([]string{"distribute",
		itoa(s.Distribution.Records), itoa(s.Distribution.ChargesInserted), itoa(s.Distribution.Rejected),
		itoa(s.Distribution.ChargesExisting), pct(s.Distribution.SuccessRate())})
	table.Render()

	for _, issue := range s.Integrity.Issues {
		fmt.Fprintf(w, "integrity: %s (%d rows)\n", issue.Description, issue.AffectedRows)
	}
	for _, conflict := range s.Distribution.NameConflicts {
		fmt.Fprintf(w, "name conflict: %s kept %q, ignored %q\n", conflict.CompanyID, conflict.KeptName, conflict.IgnoredName)
	}
}

func printDailySummary(w io.Writer, rows []model.DailyTransactionSummary) {
	fmt.Fprintln(w, "\nDaily transaction summary")

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Date", "Company", "Name", "Total", "Count", "Min", "Max"})
	for _, r := range rows {
		table.Append([]string{
			r.TransactionDate.Format(distributor.DateLayout),
			r.CompanyID,
			r.CompanyName,
			r.TotalAmount.StringFixed(2),
			strconv.FormatInt(r.TransactionCount, 10),
			r.MinAmount.StringFixed(2),
			r.MaxAmount.StringFixed(2),
		})
	}
	table.Render()
}

func itoa(n int) string { return strconv.Itoa(n) }

func pct(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }
