package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/David-Botos/txn-ingress/pkg/distributor"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.00 KB", formatBytes(1024))
	assert.Equal(t, "1.50 MB", formatBytes(1536*1024))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.50s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
}

func TestRunSummary_GenerateReport(t *testing.T) {
	s := &RunSummary{
		RunID:    "run-1",
		Status:   RunSucceeded,
		Duration: 2 * time.Second,
		Load: report.LoadResult{
			TotalRows:   10,
			RowsLoaded:  8,
			InvalidRows: 2,
			RuleCounts:  map[string]int{"amount_format": 2},
		},
		Validation: report.ValidationReport{
			TotalRecords:   8,
			ValidRecords:   7,
			InvalidRecords: 1,
			RuleCounts:     map[string]int{"amount_format": 1, "duplicate_id": 1},
		},
		Distribution: report.DistributionResult{ChargesInserted: 7},
		Integrity: distributor.IntegrityReport{
			OrphanCharges: 2,
			Issues: []distributor.IntegrityIssue{
				{IssueType: "orphan_charges", Description: "charges without a company", AffectedRows: 2},
			},
		},
	}

	out := s.GenerateReport()
	assert.Contains(t, out, "Run ID:                  run-1")
	assert.Contains(t, out, "Throughput:              5.00 rows/sec")
	assert.Contains(t, out, "Loaded:                  8 (80.0%)")
	assert.Contains(t, out, "Charges inserted:        7")
	assert.Contains(t, out, "Integrity OK:            false")
	assert.Contains(t, out, "- amount_format: 3\n")
	assert.Contains(t, out, "- duplicate_id: 1\n")
	assert.Contains(t, out, "- charges without a company: 2 rows")
}

func TestRunSummary_ThroughputZeroDuration(t *testing.T) {
	s := &RunSummary{Load: report.LoadResult{TotalRows: 5}}
	assert.Zero(t, s.Throughput())
}
