package model

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a charge.
type Status string

const (
	StatusPaid           Status = "paid"
	StatusPendingPayment Status = "pending_payment"
	StatusVoided         Status = "voided"
	StatusRefunded       Status = "refunded"
	StatusPreAuthorized  Status = "pre_authorized"
	StatusChargedBack    Status = "charged_back"
)

// RecognizedStatuses is the closed status vocabulary of the canonical schema.
var RecognizedStatuses = []Status{
	StatusPaid,
	StatusPendingPayment,
	StatusVoided,
	StatusRefunded,
	StatusPreAuthorized,
	StatusChargedBack,
}

// DefaultSettledStatuses are the statuses counted by the reporting aggregate.
var DefaultSettledStatuses = []Status{StatusPaid, StatusRefunded}

// IsRecognized reports whether s belongs to the status vocabulary.
func (s Status) IsRecognized() bool {
	for _, known := range RecognizedStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// RawTransactionRecord is one staged source row. Every source field is nullable text.
type RawTransactionRecord struct {
	ID        sql.NullString `db:"id"`
	Name      sql.NullString `db:"name"`
	CompanyID sql.NullString `db:"company_id"`
	Amount    sql.NullString `db:"amount"`
	Status    sql.NullString `db:"status"`
	CreatedAt sql.NullString `db:"created_at"`
	PaidAt    sql.NullString `db:"paid_at"`

	SourceFile string `db:"source_file"`
	SourceRow  int64  `db:"source_row"`
	LoadedAt   DBTime `db:"loaded_at"`
	LoadID     string `db:"load_id"`
}

// CanonicalTransactionRecord is a transaction conforming to the target schema.
type CanonicalTransactionRecord struct {
	ID          string
	CompanyName string
	CompanyID   string
	Amount      decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   *time.Time

	SourceRow int64
}

// Company is a row of the companies master table.
type Company struct {
	CompanyID   string     `db:"company_id"`
	CompanyName string     `db:"company_name"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at"`
}

// Charge is a row of the charges table.
type Charge struct {
	ID        string          `db:"id"`
	CompanyID string          `db:"company_id"`
	Amount    decimal.Decimal `db:"amount"`
	Status    Status          `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt *time.Time      `db:"updated_at"`
}

// DailyTransactionSummary is one row of the daily reporting view.
type DailyTransactionSummary struct {
	TransactionDate  time.Time
	CompanyID        string
	CompanyName      string
	TotalAmount      decimal.Decimal
	TransactionCount int64
	MinAmount        decimal.Decimal
	MaxAmount        decimal.Decimal
}

// CompanyTotal rolls the daily view up per company.
type CompanyTotal struct {
	CompanyID        string
	CompanyName      string
	TotalAmount      decimal.Decimal
	TransactionCount int64
	ActiveDays       int64
}
