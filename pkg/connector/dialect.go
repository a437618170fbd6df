package connector

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/David-Botos/txn-ingress/pkg/model"
)

// sqliteTimeLayout is the text form SQLite's date functions understand
const sqliteTimeLayout = "2006-01-02 15:04:05"

// Dialect hides the naming and binding differences between PostgreSQL and SQLite.
// Statements are written with '?' placeholders and passed through sqlx Rebind.
type Dialect interface {
	// Name returns the dialect name
	Name() string

	// Table returns the relation name for schema.name
	Table(schema, name string) string

	// CreateSchemaSQL returns the DDL creating schema, or "" when schemas are not supported
	CreateSchemaSQL(schema string) string

	// DropViewSQL returns the DDL removing a view if it exists
	DropViewSQL(view string) string

	// TimeArg converts t into a bind argument
	TimeArg(t time.Time) interface{}

	// AmountColumnSQL returns the column type of a money column
	AmountColumnSQL() string

	// AmountArg converts a money value into a bind argument
	AmountArg(d decimal.Decimal) interface{}

	// AmountValue converts a scanned money column, or a SUM/MIN/MAX of one, into currency units
	AmountValue(d decimal.Decimal) decimal.Decimal
}

// NullTimeArg converts an optional timestamp into a bind argument
func NullTimeArg(d Dialect, t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return d.TimeArg(*t)
}

// QuoteLiteral renders s as a single-quoted SQL string literal
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type postgresDialect struct{}

// PostgresDialect is the dialect of the pgx and lib/pq connectors
func PostgresDialect() Dialect { return postgresDialect{} }

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Table(schema, name string) string {
	if schema == "" {
		return name
	}
	return fmt.Sprintf("%s.%s", schema, name)
}

func (postgresDialect) CreateSchemaSQL(schema string) string {
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)
}

func (postgresDialect) DropViewSQL(view string) string {
	return fmt.Sprintf("DROP VIEW IF EXISTS %s CASCADE", view)
}

func (postgresDialect) TimeArg(t time.Time) interface{} {
	return t.UTC()
}

func (postgresDialect) AmountColumnSQL() string {
	return fmt.Sprintf("DECIMAL(%d,%d)", model.AmountPrecision, model.AmountScale)
}

func (postgresDialect) AmountArg(d decimal.Decimal) interface{} {
	return d.StringFixed(model.AmountScale)
}

func (postgresDialect) AmountValue(d decimal.Decimal) decimal.Decimal {
	return d.Round(model.AmountScale)
}

type sqliteDialect struct{}

// SQLiteDialect is the dialect of the modernc.org/sqlite connector
func SQLiteDialect() Dialect { return sqliteDialect{} }

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Table(_, name string) string { return name }

func (sqliteDialect) CreateSchemaSQL(string) string { return "" }

func (sqliteDialect) DropViewSQL(view string) string {
	return fmt.Sprintf("DROP VIEW IF EXISTS %s", view)
}

func (sqliteDialect) TimeArg(t time.Time) interface{} {
	return t.UTC().Format(sqliteTimeLayout)
}

// SQLite has no exact decimal type. Money is stored as integer minor units,
// which keeps SUM, MIN, MAX and CHECK constraints exact.
func (sqliteDialect) AmountColumnSQL() string { return "INTEGER" }

func (sqliteDialect) AmountArg(d decimal.Decimal) interface{} {
	return d.Round(model.AmountScale).Shift(model.AmountScale).IntPart()
}

func (sqliteDialect) AmountValue(d decimal.Decimal) decimal.Decimal {
	return d.Shift(-model.AmountScale)
}
