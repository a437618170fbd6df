package report

import (
	"time"

	"github.com/David-Botos/txn-ingress/pkg/model"
)

// LoadResult summarizes one load call
type LoadResult struct {
	LoadID        string
	SourcePath    string
	TotalRows     int
	ValidRows     int
	InvalidRows   int
	DuplicateRows int
	RowsLoaded    int
	Batches       int
	ErrorCount    int
	Errors        []RowError
	RuleCounts    map[string]int
	StartTime     time.Time
	Duration      time.Duration
}

// SuccessRate returns the percentage of source rows that were staged
func (r LoadResult) SuccessRate() float64 {
	return percentage(r.RowsLoaded, r.TotalRows)
}

// ExtractionMetadata describes a materialized portable file
type ExtractionMetadata struct {
	ExtractionID string
	SourceTable  string
	Format       string
	OutputPath   string
	RowCount     int64
	FileSize     int64
	Compression  string
	Chunks       int
	StartTime    time.Time
	Duration     time.Duration
}

// ValidationReport summarizes one transform call
type ValidationReport struct {
	TotalRecords   int
	ValidRecords   int
	InvalidRecords int
	ErrorCount     int
	Errors         []RowError
	RuleCounts     map[string]int
	Warnings       []RowError
	CleaningOps    int
	Operations     []model.CleaningOperation
	Duration       time.Duration
}

// SuccessRate returns the percentage of input records that passed
func (r ValidationReport) SuccessRate() float64 {
	return percentage(r.ValidRecords, r.TotalRecords)
}

// NameConflict flags a company whose incoming name differs from the one kept
type NameConflict struct {
	CompanyID     string
	KeptName      string
	IgnoredName   string
	RecordID      string
	AlreadyStored bool
}

// DistributionResult summarizes one distribute call
type DistributionResult struct {
	Records           int
	CompaniesSeen     int
	CompaniesCreated  int
	CompaniesExisting int
	ChargesInserted   int
	ChargesExisting   int
	Rejected          int
	NameConflicts     []NameConflict
	ErrorCount        int
	Errors            []RowError
	Committed         bool
	Duration          time.Duration
}

// SuccessRate returns the percentage of records that reached the charges table
func (r DistributionResult) SuccessRate() float64 {
	return percentage(r.ChargesInserted+r.ChargesExisting, r.Records)
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
