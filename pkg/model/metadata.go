// pkg/model/metadata.go
package model

import "github.com/shopspring/decimal"

// Schema and relation names shared by the stores. On SQLite the schema part is dropped.
const (
	RawSchema        = "raw_data"
	NormalizedSchema = "normalized_data"

	RawTransactionsTable = "raw_transactions"
	CompaniesTable       = "companies"
	ChargesTable         = "charges"
	CleaningLogTable     = "cleaned_on_ingress"
	DailySummaryView     = "daily_transaction_summary"
)

// TableMetadata contains the structure information for a staging table
type TableMetadata struct {
	Schema      string   // Schema name
	Table       string   // Table name
	Columns     []Column // Column definitions, in file order
	PrimaryKeys []string // List of primary key column names
}

// Column represents metadata about a staged column
type Column struct {
	Name      string // Column name
	SQLType   string // Column type used in the raw store
	MaxLength int    // Raw length ceiling, 0 when unbounded
	Nullable  bool   // Whether column allows NULL values
	Source    bool   // Whether the column comes from the source file header
}

// SourceColumns is the fixed header of the delimited source file.
var SourceColumns = []string{"id", "name", "company_id", "amount", "status", "created_at", "paid_at"}

// RawColumns mirrors the raw staging table: source fields in header order, then provenance.
var RawColumns = []Column{
	{Name: "id", SQLType: "VARCHAR(64)", MaxLength: 64, Source: true},
	{Name: "name", SQLType: "VARCHAR(130)", MaxLength: 130, Nullable: true, Source: true},
	{Name: "company_id", SQLType: "VARCHAR(64)", MaxLength: 64, Nullable: true, Source: true},
	{Name: "amount", SQLType: "VARCHAR(64)", MaxLength: 64, Nullable: true, Source: true},
	{Name: "status", SQLType: "VARCHAR(50)", MaxLength: 50, Nullable: true, Source: true},
	{Name: "created_at", SQLType: "VARCHAR(50)", MaxLength: 50, Nullable: true, Source: true},
	{Name: "paid_at", SQLType: "VARCHAR(50)", MaxLength: 50, Nullable: true, Source: true},
	{Name: "source_file", SQLType: "TEXT"},
	{Name: "source_row", SQLType: "BIGINT"},
	{Name: "loaded_at", SQLType: "TIMESTAMP"},
	{Name: "load_id", SQLType: "VARCHAR(36)"},
}

// RawTableMetadata describes the raw staging table.
func RawTableMetadata() *TableMetadata {
	return &TableMetadata{
		Schema:      RawSchema,
		Table:       RawTransactionsTable,
		Columns:     RawColumns,
		PrimaryKeys: []string{"id"},
	}
}

// ColumnNames returns the column names in table order
func (tm *TableMetadata) ColumnNames() []string {
	names := make([]string, len(tm.Columns))
	for i, col := range tm.Columns {
		names[i] = col.Name
	}
	return names
}

// Target ceilings of the normalized tables
const (
	MaxChargeIDLength    = 24
	MaxCompanyIDLength   = 24
	MaxCompanyNameLength = 130
	MaxStatusLength      = 30
)

// Charge amounts are DECIMAL(AmountPrecision, AmountScale)
const (
	AmountPrecision = 16
	AmountScale     = 2
)

// MaxAmount is the exclusive upper bound of a storable amount
var MaxAmount = decimal.New(1, AmountPrecision-AmountScale)
