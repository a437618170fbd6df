package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/David-Botos/txn-ingress/pkg/distributor"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

// RunSummary collects the results of every stage of one run
type RunSummary struct {
	RunID     string
	Status    string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Load          report.LoadResult
	Extraction    report.ExtractionMetadata
	ExtractedRows int64
	Validation    report.ValidationReport
	CleaningOps   map[string]int
	Distribution  report.DistributionResult
	Integrity     distributor.IntegrityReport

	StagesCompleted []string
}

func newRunSummary(runID string) *RunSummary {
	return &RunSummary{
		RunID:       runID,
		StartTime:   time.Now(),
		CleaningOps: make(map[string]int),
	}
}

func (s *RunSummary) complete(status string) {
	s.Status = status
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// Throughput returns source rows per second
func (s *RunSummary) Throughput() float64 {
	if s.Duration.Seconds() <= 0 {
		return 0
	}
	return float64(s.Load.TotalRows) / s.Duration.Seconds()
}

// GenerateReport renders a plain text report of the run
func (s *RunSummary) GenerateReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, `
Ingress Run Report
==================
Run ID:                  %s
Status:                  %s
Duration:                %s
Throughput:              %.2f rows/sec

Load
----
Source rows:             %d
Loaded:                  %d (%.1f%%)
Invalid:                 %d
Duplicates:              %d

Extraction
----------
Output:                  %s
Rows:                    %d
File size:               %s (%s)

Transformation
--------------
Valid:                   %d (%.1f%%)
Invalid:                 %d
Warnings:                %d
Cleaning operations:     %d

Distribution
------------
Companies created:       %d
Companies existing:      %d
Charges inserted:        %d
Charges existing:        %d
Rejected:                %d
Name conflicts:          %d
Integrity OK:            %t
`,
		s.RunID,
		s.Status,
		formatDuration(s.Duration),
		s.Throughput(),

		s.Load.TotalRows,
		s.Load.RowsLoaded, s.Load.SuccessRate(),
		s.Load.InvalidRows,
		s.Load.DuplicateRows,

		s.Extraction.OutputPath,
		s.Extraction.RowCount,
		formatBytes(s.Extraction.FileSize), s.Extraction.Compression,

		s.Validation.ValidRecords, s.Validation.SuccessRate(),
		s.Validation.InvalidRecords,
		len(s.Validation.Warnings),
		s.Validation.CleaningOps,

		s.Distribution.CompaniesCreated,
		s.Distribution.CompaniesExisting,
		s.Distribution.ChargesInserted,
		s.Distribution.ChargesExisting,
		s.Distribution.Rejected,
		len(s.Distribution.NameConflicts),
		s.Integrity.OK(),
	)

	rules := mergeRuleCounts(s.Load.RuleCounts, s.Validation.RuleCounts)
	if len(rules) > 0 {
		b.WriteString("\nRejections by rule\n------------------\n")
		names := make([]string, 0, len(rules))
		for name := range rules {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %d\n", name, rules[name])
		}
	}

	if len(s.Integrity.Issues) > 0 {
		b.WriteString("\nIntegrity issues\n----------------\n")
		for _, issue := range s.Integrity.Issues {
			fmt.Fprintf(&b, "- %s: %d rows\n", issue.Description, issue.AffectedRows)
		}
	}

	return b.String()
}

func mergeRuleCounts(counts ...map[string]int) map[string]int {
	out := make(map[string]int)
	for _, m := range counts {
		for rule, n := range m {
			out[rule] += n
		}
	}
	return out
}

// formatBytes converts bytes to a human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
