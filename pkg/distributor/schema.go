package distributor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

const ddlTimeout = 30 * time.Second

// CreateSchema creates the normalized schema, tables and indexes. It is safe to call repeatedly.
func (m *Manager) CreateSchema(ctx context.Context) error {
	var statements []string
	if ddl := m.conn.Dialect().CreateSchemaSQL(model.NormalizedSchema); ddl != "" {
		statements = append(statements, ddl)
	}

	statements = append(statements,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	company_id VARCHAR(%d) NOT NULL PRIMARY KEY,
	company_name VARCHAR(%d) NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NULL
)`, m.companies, model.MaxCompanyIDLength, model.MaxCompanyNameLength),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(%d) NOT NULL PRIMARY KEY,
	company_id VARCHAR(%d) NOT NULL,
	amount %s NOT NULL CHECK (amount >= 0),
	status VARCHAR(%d) NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NULL,
	CONSTRAINT fk_charges_company FOREIGN KEY (company_id)
		REFERENCES %s (company_id) ON DELETE RESTRICT ON UPDATE CASCADE
)`, m.charges, model.MaxChargeIDLength, model.MaxCompanyIDLength,
			m.conn.Dialect().AmountColumnSQL(), model.MaxStatusLength, m.companies),

		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_charges_company_id ON %s (company_id)", m.charges),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_charges_status ON %s (status)", m.charges),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_charges_created_at ON %s (created_at)", m.charges),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_charges_created_company ON %s (created_at, company_id)", m.charges),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_companies_name ON %s (company_name)", m.companies),
	)

	for _, stmt := range statements {
		if _, err := m.conn.ExecWithTimeout(ctx, stmt, ddlTimeout); err != nil {
			return report.NewStageError(report.ErrorKindSchema, "create normalized schema", err)
		}
	}

	m.logger.Info("Ensured normalized schema exists",
		zap.String("companies", m.companies),
		zap.String("charges", m.charges))
	return nil
}
