package distributor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/David-Botos/txn-ingress/pkg/connector"
	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

// DateLayout is the format of SummaryFilter bounds
const DateLayout = "2006-01-02"

// CreateReportingView drops and re-creates the daily summary view in one transaction,
// so a changed settled-status set takes effect on the next call.
func (m *Manager) CreateReportingView(ctx context.Context) (err error) {
	statuses := make([]string, len(m.cfg.SettledStatuses))
	for i, s := range m.cfg.SettledStatuses {
		statuses[i] = connector.QuoteLiteral(string(s))
	}

	createSQL := fmt.Sprintf(`CREATE VIEW %s AS
SELECT
	DATE(c.created_at) AS transaction_date,
	c.company_id AS company_id,
	co.company_name AS company_name,
	SUM(c.amount) AS total_amount,
	COUNT(*) AS transaction_count,
	MIN(c.amount) AS min_amount,
	MAX(c.amount) AS max_amount
FROM %s c
JOIN %s co ON co.company_id = c.company_id
WHERE c.status IN (%s)
GROUP BY DATE(c.created_at), c.company_id, co.company_name`,
		m.view, m.charges, m.companies, strings.Join(statuses, ", "))

	tx, err := m.conn.DB().BeginTxx(ctx, nil)
	if err != nil {
		return report.NewStageError(report.ErrorKindSchema, "create reporting view",
			fmt.Errorf("%w: %w", report.ErrStoreUnreachable, err))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.logger.Error("Failed to rollback view transaction", zap.Error(rbErr))
			}
		}
	}()

	for _, stmt := range []string{m.conn.Dialect().DropViewSQL(m.view), createSQL} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return report.NewStageError(report.ErrorKindSchema, "create reporting view", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return report.NewStageError(report.ErrorKindSchema, "create reporting view", err)
	}

	m.logger.Info("Created reporting view",
		zap.String("view", m.view),
		zap.Strings("settled_statuses", statusStrings(m.cfg.SettledStatuses)))
	return nil
}

// SummaryFilter narrows a daily summary query. Zero values do not filter.
type SummaryFilter struct {
	From      time.Time
	To        time.Time
	CompanyID string
	Limit     int
}

type summaryRow struct {
	TransactionDate  model.DBTime    `db:"transaction_date"`
	CompanyID        string          `db:"company_id"`
	CompanyName      string          `db:"company_name"`
	TotalAmount      decimal.Decimal `db:"total_amount"`
	TransactionCount int64           `db:"transaction_count"`
	MinAmount        decimal.Decimal `db:"min_amount"`
	MaxAmount        decimal.Decimal `db:"max_amount"`
}

// QueryDailySummary reads the reporting view ordered by date then company
func (m *Manager) QueryDailySummary(ctx context.Context, filter SummaryFilter) ([]model.DailyTransactionSummary, error) {
	var (
		where []string
		args  []interface{}
	)
	if !filter.From.IsZero() {
		where = append(where, "transaction_date >= ?")
		args = append(args, filter.From.Format(DateLayout))
	}
	if !filter.To.IsZero() {
		where = append(where, "transaction_date <= ?")
		args = append(args, filter.To.Format(DateLayout))
	}
	if filter.CompanyID != "" {
		where = append(where, "company_id = ?")
		args = append(args, filter.CompanyID)
	}

	query := fmt.Sprintf(`SELECT transaction_date, company_id, company_name, total_amount,
	transaction_count, min_amount, max_amount FROM %s`, m.view)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY transaction_date, company_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	db := m.conn.DB()
	var rows []summaryRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query daily summary: %w", err)
	}

	dialect := m.conn.Dialect()
	out := make([]model.DailyTransactionSummary, len(rows))
	for i, r := range rows {
		out[i] = model.DailyTransactionSummary{
			TransactionDate:  r.TransactionDate.Time,
			CompanyID:        r.CompanyID,
			CompanyName:      r.CompanyName,
			TotalAmount:      dialect.AmountValue(r.TotalAmount),
			TransactionCount: r.TransactionCount,
			MinAmount:        dialect.AmountValue(r.MinAmount),
			MaxAmount:        dialect.AmountValue(r.MaxAmount),
		}
	}
	return out, nil
}

type companyTotalRow struct {
	CompanyID        string          `db:"company_id"`
	CompanyName      string          `db:"company_name"`
	TotalAmount      decimal.Decimal `db:"total_amount"`
	TransactionCount int64           `db:"transaction_count"`
	ActiveDays       int64           `db:"active_days"`
}

// CompanyTotals rolls the reporting view up per company, largest total first
func (m *Manager) CompanyTotals(ctx context.Context, limit int) ([]model.CompanyTotal, error) {
	query := fmt.Sprintf(`SELECT company_id, company_name,
	SUM(total_amount) AS total_amount,
	SUM(transaction_count) AS transaction_count,
	COUNT(*) AS active_days
FROM %s
GROUP BY company_id, company_name
ORDER BY SUM(total_amount) DESC, company_id`, m.view)

	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	db := m.conn.DB()
	var rows []companyTotalRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query company totals: %w", err)
	}

	dialect := m.conn.Dialect()
	out := make([]model.CompanyTotal, len(rows))
	for i, r := range rows {
		out[i] = model.CompanyTotal{
			CompanyID:        r.CompanyID,
			CompanyName:      r.CompanyName,
			TotalAmount:      dialect.AmountValue(r.TotalAmount),
			TransactionCount: r.TransactionCount,
			ActiveDays:       r.ActiveDays,
		}
	}
	return out, nil
}

func statusStrings(statuses []model.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
