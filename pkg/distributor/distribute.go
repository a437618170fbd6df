package distributor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/David-Botos/txn-ingress/pkg/connector"
	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

// Rule names reported in DistributionResult.Errors
const (
	RuleMissingCompany = "missing_company_id"
	RuleStoreRejected  = "store_rejected"
)

// pendingCompany is a company derived from the input, in first-seen order
type pendingCompany struct {
	id       string
	name     string
	recordID string
}

// Distribute writes records into companies and charges in a single transaction.
// Existing companies and charges are never overwritten. On any statement failure
// nothing is committed.
func (m *Manager) Distribute(ctx context.Context, records []model.CanonicalTransactionRecord) (report.DistributionResult, error) {
	start := time.Now()
	result := report.DistributionResult{Records: len(records)}
	errs := report.NewCollector(m.cfg.MaxErrorSamples)
	finish := func() {
		result.ErrorCount = errs.Count()
		result.Errors = errs.Samples()
		result.Duration = time.Since(start)
	}

	companies, accepted := m.deriveCompanies(records, &result, errs)
	result.CompaniesSeen = len(companies)

	m.logger.Info("Starting distribution",
		zap.Int("records", len(records)),
		zap.Int("companies", len(companies)),
		zap.Int("rejected", result.Rejected))

	if err := ctx.Err(); err != nil {
		finish()
		return result, err
	}

	inBatchConflicts := len(result.NameConflicts)
	err := m.distributeTx(context.WithoutCancel(ctx), companies, accepted, &result)
	if err != nil {
		// conflicts read from the store describe rows the rollback discarded
		result.NameConflicts = result.NameConflicts[:inBatchConflicts]
		result.CompaniesCreated, result.CompaniesExisting = 0, 0
		result.ChargesInserted, result.ChargesExisting = 0, 0
		errs.Add(report.NewRowError(report.ErrorKindDistribution, RuleStoreRejected, err.Error()))
		finish()

		cause := err
		if connector.IsConstraintViolation(err) {
			cause = fmt.Errorf("%w: %w", report.ErrConstraintViolation, err)
		} else if connector.IsConnectionError(err) {
			cause = fmt.Errorf("%w: %w", report.ErrStoreUnreachable, err)
		}
		m.logger.Error("Distribution rolled back", zap.Error(err))
		return result, report.NewStageError(report.ErrorKindDistribution, "distribute", cause)
	}

	result.Committed = true
	finish()

	for _, conflict := range result.NameConflicts {
		m.logger.Warn("Company name conflict",
			zap.String("company_id", conflict.CompanyID),
			zap.String("kept", conflict.KeptName),
			zap.String("ignored", conflict.IgnoredName),
			zap.Bool("already_stored", conflict.AlreadyStored))
	}
	m.logger.Info("Distribution completed",
		zap.Int("companies_created", result.CompaniesCreated),
		zap.Int("companies_existing", result.CompaniesExisting),
		zap.Int("charges_inserted", result.ChargesInserted),
		zap.Int("charges_existing", result.ChargesExisting),
		zap.Int("name_conflicts", len(result.NameConflicts)),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// deriveCompanies returns the distinct companies in first-seen order and the records
// that can be distributed. The first non-empty name of a company wins.
func (m *Manager) deriveCompanies(
	records []model.CanonicalTransactionRecord,
	result *report.DistributionResult,
	errs *report.Collector,
) ([]*pendingCompany, []model.CanonicalTransactionRecord) {
	var ordered []*pendingCompany
	byID := make(map[string]*pendingCompany)
	accepted := make([]model.CanonicalTransactionRecord, 0, len(records))

	for _, rec := range records {
		if rec.CompanyID == "" {
			result.Rejected++
			errs.Add(report.NewRowError(report.ErrorKindDistribution, RuleMissingCompany, "record has no company_id").
				WithRow(rec.SourceRow).
				WithRecord(rec.ID).
				WithField("company_id", ""))
			continue
		}
		accepted = append(accepted, rec)

		c, ok := byID[rec.CompanyID]
		if !ok {
			c = &pendingCompany{id: rec.CompanyID, name: rec.CompanyName, recordID: rec.ID}
			byID[rec.CompanyID] = c
			ordered = append(ordered, c)
			continue
		}
		switch {
		case rec.CompanyName == "" || rec.CompanyName == c.name:
		case c.name == "":
			c.name, c.recordID = rec.CompanyName, rec.ID
		default:
			result.NameConflicts = append(result.NameConflicts, report.NameConflict{
				CompanyID:   c.id,
				KeptName:    c.name,
				IgnoredName: rec.CompanyName,
				RecordID:    rec.ID,
			})
		}
	}
	return ordered, accepted
}

func (m *Manager) distributeTx(
	ctx context.Context,
	companies []*pendingCompany,
	records []model.CanonicalTransactionRecord,
	result *report.DistributionResult,
) (err error) {
	tx, err := m.conn.DB().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	if err = m.upsertCompanies(ctx, tx, companies, result); err != nil {
		return err
	}
	if err = m.insertCharges(ctx, tx, records, result); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (m *Manager) upsertCompanies(ctx context.Context, tx *sqlx.Tx, companies []*pendingCompany, result *report.DistributionResult) error {
	if len(companies) == 0 {
		return nil
	}

	insert, err := tx.PreparexContext(ctx, tx.Rebind(fmt.Sprintf(
		`INSERT INTO %s (company_id, company_name, created_at, updated_at)
		VALUES (?, ?, ?, NULL)
		ON CONFLICT (company_id) DO NOTHING`, m.companies)))
	if err != nil {
		return fmt.Errorf("failed to prepare company insert: %w", err)
	}
	defer insert.Close()

	lookup := tx.Rebind(fmt.Sprintf("SELECT company_name FROM %s WHERE company_id = ?", m.companies))
	createdAt := m.conn.Dialect().TimeArg(m.now())

	for _, c := range companies {
		name := c.name
		if name == "" {
			name = m.cfg.UnknownCompanyName
		}

		res, err := insert.ExecContext(ctx, c.id, name, createdAt)
		if err != nil {
			return fmt.Errorf("failed to insert company %s: %w", c.id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n > 0 {
			result.CompaniesCreated++
			continue
		}

		result.CompaniesExisting++
		var stored string
		if err := tx.GetContext(ctx, &stored, lookup, c.id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("company %s was neither inserted nor found", c.id)
			}
			return fmt.Errorf("failed to read company %s: %w", c.id, err)
		}
		if c.name != "" && c.name != stored {
			result.NameConflicts = append(result.NameConflicts, report.NameConflict{
				CompanyID:     c.id,
				KeptName:      stored,
				IgnoredName:   c.name,
				RecordID:      c.recordID,
				AlreadyStored: true,
			})
		}
	}
	return nil
}

func (m *Manager) insertCharges(ctx context.Context, tx *sqlx.Tx, records []model.CanonicalTransactionRecord, result *report.DistributionResult) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(fmt.Sprintf(
		`INSERT INTO %s (id, company_id, amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`, m.charges)))
	if err != nil {
		return fmt.Errorf("failed to prepare charge insert: %w", err)
	}
	defer stmt.Close()

	dialect := m.conn.Dialect()
	for _, rec := range records {
		res, err := stmt.ExecContext(ctx,
			rec.ID,
			rec.CompanyID,
			dialect.AmountArg(rec.Amount),
			string(rec.Status),
			dialect.TimeArg(rec.CreatedAt),
			connector.NullTimeArg(dialect, rec.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert charge %s: %w", rec.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n > 0 {
			result.ChargesInserted++
		} else {
			result.ChargesExisting++
		}
	}
	return nil
}
