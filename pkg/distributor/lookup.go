package distributor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/David-Botos/txn-ingress/pkg/model"
)

type companyRow struct {
	CompanyID   string       `db:"company_id"`
	CompanyName string       `db:"company_name"`
	CreatedAt   model.DBTime `db:"created_at"`
	UpdatedAt   model.DBTime `db:"updated_at"`
}

type chargeRow struct {
	ID        string          `db:"id"`
	CompanyID string          `db:"company_id"`
	Amount    decimal.Decimal `db:"amount"`
	Status    string          `db:"status"`
	CreatedAt model.DBTime    `db:"created_at"`
	UpdatedAt model.DBTime    `db:"updated_at"`
}

// Company returns the stored company. A missing company yields sql.ErrNoRows.
func (m *Manager) Company(ctx context.Context, companyID string) (model.Company, error) {
	db := m.conn.DB()
	var row companyRow
	if err := db.GetContext(ctx, &row, db.Rebind(fmt.Sprintf(
		`SELECT company_id, company_name, created_at, updated_at FROM %s WHERE company_id = ?`, m.companies)), companyID); err != nil {
		return model.Company{}, fmt.Errorf("failed to read company %s: %w", companyID, err)
	}

	company := model.Company{
		CompanyID:   row.CompanyID,
		CompanyName: row.CompanyName,
		CreatedAt:   row.CreatedAt.Time,
	}
	if row.UpdatedAt.Valid {
		updatedAt := row.UpdatedAt.Time
		company.UpdatedAt = &updatedAt
	}
	return company, nil
}

// Charge returns the stored charge with its amount in currency units.
// A missing charge yields sql.ErrNoRows.
func (m *Manager) Charge(ctx context.Context, id string) (model.Charge, error) {
	db := m.conn.DB()
	var row chargeRow
	if err := db.GetContext(ctx, &row, db.Rebind(fmt.Sprintf(
		`SELECT id, company_id, amount, status, created_at, updated_at FROM %s WHERE id = ?`, m.charges)), id); err != nil {
		return model.Charge{}, fmt.Errorf("failed to read charge %s: %w", id, err)
	}

	charge := model.Charge{
		ID:        row.ID,
		CompanyID: row.CompanyID,
		Amount:    m.conn.Dialect().AmountValue(row.Amount),
		Status:    model.Status(row.Status),
		CreatedAt: row.CreatedAt.Time,
	}
	if row.UpdatedAt.Valid {
		updatedAt := row.UpdatedAt.Time
		charge.UpdatedAt = &updatedAt
	}
	return charge, nil
}
