package distributor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// IntegrityIssue describes one failed integrity check
type IntegrityIssue struct {
	IssueType    string
	Description  string
	AffectedRows int64
}

// IntegrityReport holds the results of CheckIntegrity
type IntegrityReport struct {
	OrphanCharges           int64
	NegativeAmounts         int64
	UpdatedBeforeCreated    int64
	CompaniesWithoutCharges int64
	Issues                  []IntegrityIssue
	CheckedAt               time.Time
	Duration                time.Duration
}

// OK reports whether every check passed
func (r IntegrityReport) OK() bool {
	return r.OrphanCharges == 0 &&
		r.NegativeAmounts == 0 &&
		r.UpdatedBeforeCreated == 0 &&
		r.CompaniesWithoutCharges == 0
}

// CheckIntegrity verifies the normalized tables
func (m *Manager) CheckIntegrity(ctx context.Context) (IntegrityReport, error) {
	start := time.Now()
	rep := IntegrityReport{CheckedAt: start.UTC()}

	checks := []struct {
		issueType   string
		description string
		query       string
		target      *int64
	}{
		{
			"orphan_charges",
			"charges referencing a missing company",
			fmt.Sprintf(`SELECT COUNT(*) FROM %s c LEFT JOIN %s co ON co.company_id = c.company_id
				WHERE co.company_id IS NULL`, m.charges, m.companies),
			&rep.OrphanCharges,
		},
		{
			"negative_amounts",
			"charges with a negative amount",
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE amount < 0", m.charges),
			&rep.NegativeAmounts,
		},
		{
			"updated_before_created",
			"charges updated before they were created",
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE updated_at IS NOT NULL AND updated_at < created_at", m.charges),
			&rep.UpdatedBeforeCreated,
		},
		{
			"companies_without_charges",
			"companies with no charges",
			fmt.Sprintf(`SELECT COUNT(*) FROM %s co
				WHERE NOT EXISTS (SELECT 1 FROM %s c WHERE c.company_id = co.company_id)`, m.companies, m.charges),
			&rep.CompaniesWithoutCharges,
		},
	}

	db := m.conn.DB()
	for _, check := range checks {
		if err := db.GetContext(ctx, check.target, check.query); err != nil {
			return rep, fmt.Errorf("integrity check %s failed: %w", check.issueType, err)
		}
		if *check.target > 0 {
			rep.Issues = append(rep.Issues, IntegrityIssue{
				IssueType:    check.issueType,
				Description:  check.description,
				AffectedRows: *check.target,
			})
			m.logger.Warn("Integrity issue found",
				zap.String("issue", check.issueType),
				zap.Int64("affected_rows", *check.target))
		}
	}

	rep.Duration = time.Since(start)
	m.logger.Info("Integrity check completed",
		zap.Bool("ok", rep.OK()),
		zap.Int("issues", len(rep.Issues)),
		zap.Duration("duration", rep.Duration))
	return rep, nil
}
