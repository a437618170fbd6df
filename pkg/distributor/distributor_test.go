package distributor

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/txn-ingress/pkg/connector"
	"github.com/David-Botos/txn-ingress/pkg/connector/connectortest"
	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsPtr(s string) *time.Time {
	t := ts(s)
	return &t
}

func charge(id, companyID, name, amount string, status model.Status, createdAt string) model.CanonicalTransactionRecord {
	return model.CanonicalTransactionRecord{
		ID:          id,
		CompanyID:   companyID,
		CompanyName: name,
		Amount:      decimal.RequireFromString(amount),
		Status:      status,
		CreatedAt:   ts(createdAt),
	}
}

func fixtureRecords() []model.CanonicalTransactionRecord {
	first := charge("ch_001", "co_acme", "Acme Corp", "100.00", model.StatusPaid, "2024-03-01 09:15:00")
	first.UpdatedAt = tsPtr("2024-03-01 09:20:00")
	return []model.CanonicalTransactionRecord{
		first,
		charge("ch_002", "co_acme", "Acme Corp", "50.00", model.StatusRefunded, "2024-03-01 12:00:00"),
		charge("ch_004", "co_globex", "Globex", "75.25", model.StatusPendingPayment, "2024-03-02 10:30:00"),
		charge("ch_005", "co_initech", "", "20.10", model.StatusVoided, "2024-03-03 00:00:00"),
	}
}

func newManager(t *testing.T, cfg Config) (*Manager, connector.DatabaseConnector) {
	t.Helper()
	conn := connectortest.New(t)
	m := NewManager(conn, cfg, zaptest.NewLogger(t))
	require.NoError(t, m.CreateSchema(context.Background()))
	return m, conn
}

func count(t *testing.T, conn connector.DatabaseConnector, table string) int {
	t.Helper()
	var n int
	require.NoError(t, conn.DB().Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

func companyName(t *testing.T, conn connector.DatabaseConnector, id string) string {
	t.Helper()
	var name string
	require.NoError(t, conn.DB().Get(&name, conn.DB().Rebind("SELECT company_name FROM companies WHERE company_id = ?"), id))
	return name
}

func TestCreateSchema_Idempotent(t *testing.T) {
	m, conn := newManager(t, DefaultConfig())
	require.NoError(t, m.CreateSchema(context.Background()))

	var indexes int
	require.NoError(t, conn.DB().Get(&indexes,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'"))
	assert.Equal(t, 5, indexes)
}

func TestDistribute_Fixture(t *testing.T) {
	m, conn := newManager(t, DefaultConfig())

	result, err := m.Distribute(context.Background(), fixtureRecords())
	require.NoError(t, err)

	assert.True(t, result.Committed)
	assert.Equal(t, 4, result.Records)
	assert.Equal(t, 3, result.CompaniesSeen)
	assert.Equal(t, 3, result.CompaniesCreated)
	assert.Equal(t, 4, result.ChargesInserted)
	assert.Empty(t, result.NameConflicts)
	assert.InDelta(t, 100.0, result.SuccessRate(), 0.001)

	assert.Equal(t, 3, count(t, conn, "companies"))
	assert.Equal(t, 4, count(t, conn, "charges"))
	assert.Equal(t, "Acme Corp", companyName(t, conn, "co_acme"))
	assert.Equal(t, DefaultUnknownCompanyName, companyName(t, conn, "co_initech"))

	stored, err := m.Charge(context.Background(), "ch_002")
	require.NoError(t, err)
	assert.Equal(t, "50.00", stored.Amount.StringFixed(2))
	assert.Equal(t, model.StatusRefunded, stored.Status)
	assert.Equal(t, "co_acme", stored.CompanyID)
	assert.True(t, ts("2024-03-01 12:00:00").Equal(stored.CreatedAt))
	assert.Nil(t, stored.UpdatedAt)

	first, err := m.Charge(context.Background(), "ch_001")
	require.NoError(t, err)
	require.NotNil(t, first.UpdatedAt)
	assert.True(t, ts("2024-03-01 09:20:00").Equal(*first.UpdatedAt))

	company, err := m.Company(context.Background(), "co_globex")
	require.NoError(t, err)
	assert.Equal(t, "Globex", company.CompanyName)
	assert.False(t, company.CreatedAt.IsZero())
	assert.Nil(t, company.UpdatedAt)
}

func TestLookup_Missing(t *testing.T) {
	m, _ := newManager(t, DefaultConfig())

	_, err := m.Charge(context.Background(), "ch_none")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = m.Company(context.Background(), "co_none")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDistribute_LargeAmountsAreExact(t *testing.T) {
	m, _ := newManager(t, DefaultConfig())
	ctx := context.Background()

	_, err := m.Distribute(ctx, []model.CanonicalTransactionRecord{
		charge("ch_big", "co_big", "Big Co", "99999999999999.99", model.StatusPaid, "2024-03-01 08:00:00"),
		charge("ch_small", "co_big", "Big Co", "0.01", model.StatusPaid, "2024-03-01 09:00:00"),
		charge("ch_mid", "co_mid", "Mid Co", "20000000000.00", model.StatusPaid, "2024-03-01 10:00:00"),
	})
	require.NoError(t, err)

	big, err := m.Charge(ctx, "ch_big")
	require.NoError(t, err)
	assert.Equal(t, "99999999999999.99", big.Amount.StringFixed(2))

	require.NoError(t, m.CreateReportingView(ctx))
	rows, err := m.QueryDailySummary(ctx, SummaryFilter{CompanyID: "co_big"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "100000000000000.00", rows[0].TotalAmount.StringFixed(2))
	assert.Equal(t, "99999999999999.99", rows[0].MaxAmount.StringFixed(2))
	assert.Equal(t, "0.01", rows[0].MinAmount.StringFixed(2))

	totals, err := m.CompanyTotals(ctx, 0)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "co_big", totals[0].CompanyID)
	assert.Equal(t, "100000000000000.00", totals[0].TotalAmount.StringFixed(2))
	assert.Equal(t, "20000000000.00", totals[1].TotalAmount.StringFixed(2))
}

func TestDistribute_IsIdempotent(t *testing.T) {
	m, conn := newManager(t, DefaultConfig())
	ctx := context.Background()

	_, err := m.Distribute(ctx, fixtureRecords())
	require.NoError(t, err)

	result, err := m.Distribute(ctx, fixtureRecords())
	require.NoError(t, err)
	assert.Zero(t, result.CompaniesCreated)
	assert.Equal(t, 3, result.CompaniesExisting)
	assert.Zero(t, result.ChargesInserted)
	assert.Equal(t, 4, result.ChargesExisting)
	assert.Empty(t, result.NameConflicts)

	assert.Equal(t, 3, count(t, conn, "companies"))
	assert.Equal(t, 4, count(t, conn, "charges"))
}

func TestDistribute_FirstCompanyNameWins(t *testing.T) {
	m, conn := newManager(t, DefaultConfig())
	ctx := context.Background()

	_, err := m.Distribute(ctx, fixtureRecords())
	require.NoError(t, err)

	result, err := m.Distribute(ctx, []model.CanonicalTransactionRecord{
		charge("ch_010", "co_acme", "Acme Corporation", "1.00", model.StatusPaid, "2024-03-04 08:00:00"),
		charge("ch_011", "co_initech", "Initech", "2.00", model.StatusPaid, "2024-03-04 08:00:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChargesInserted)

	require.Len(t, result.NameConflicts, 2)
	assert.Equal(t, report.NameConflict{
		CompanyID:     "co_acme",
		KeptName:      "Acme Corp",
		IgnoredName:   "Acme Corporation",
		RecordID:      "ch_010",
		AlreadyStored: true,
	}, result.NameConflicts[0])
	assert.Equal(t, DefaultUnknownCompanyName, result.NameConflicts[1].KeptName)

	assert.Equal(t, "Acme Corp", companyName(t, conn, "co_acme"))
	assert.Equal(t, DefaultUnknownCompanyName, companyName(t, conn, "co_initech"))
}

func TestDistribute_NameConflictWithinBatch(t *testing.T) {
	m, conn := newManager(t, DefaultConfig())

	result, err := m.Distribute(context.Background(), []model.CanonicalTransactionRecord{
		charge("ch_1", "co_x", "", "1.00", model.StatusPaid, "2024-03-01 08:00:00"),
		charge("ch_2", "co_x", "Xenon", "1.00", model.StatusPaid, "2024-03-01 08:00:00"),
		charge("ch_3", "co_x", "Xenon Ltd", "1.00", model.StatusPaid, "2024-03-01 08:00:00"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.CompaniesCreated)
	require.Len(t, result.NameConflicts, 1)
	assert.Equal(t, "Xenon", result.NameConflicts[0].KeptName)
	assert.Equal(t, "Xenon Ltd", result.NameConflicts[0].IgnoredName)
	assert.False(t, result.NameConflicts[0].AlreadyStored)
	assert.Equal(t, "Xenon", companyName(t, conn, "co_x"))
}

func TestDistribute_RejectsMissingCompany(t *testing.T) {
	m, conn := newManager(t, DefaultConfig())

	records := append(fixtureRecords(), charge("ch_009", "", "Nobody", "3.00", model.StatusPaid, "2024-03-01 08:00:00"))
	result, err := m.Distribute(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Rejected)
	assert.Equal(t, 4, result.ChargesInserted)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, RuleMissingCompany, result.Errors[0].Rule)
	assert.Equal(t, "ch_009", result.Errors[0].RecordID)
	assert.Equal(t, 4, count(t, conn, "charges"))
}

func TestDistribute_CheckViolationRollsBack(t *testing.T) {
	m, conn := newManager(t, DefaultConfig())

	result, err := m.Distribute(context.Background(), []model.CanonicalTransactionRecord{
		charge("ch_a", "co_new", "New Co", "1.00", model.StatusPaid, "2024-03-01 08:00:00"),
		charge("ch_b", "co_new", "New Co", "-5.00", model.StatusPaid, "2024-03-01 09:00:00"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrConstraintViolation)
	assert.Equal(t, report.ErrorKindDistribution, report.KindOf(err))

	assert.False(t, result.Committed)
	assert.Zero(t, result.CompaniesCreated)
	assert.Zero(t, result.ChargesInserted)
	assert.Equal(t, 1, result.ErrorCount)

	assert.Zero(t, count(t, conn, "companies"))
	assert.Zero(t, count(t, conn, "charges"))
}

func TestDistribute_RollbackDropsStoredNameConflicts(t *testing.T) {
	m, conn := newManager(t, DefaultConfig())
	ctx := context.Background()

	_, err := m.Distribute(ctx, fixtureRecords())
	require.NoError(t, err)

	result, err := m.Distribute(ctx, []model.CanonicalTransactionRecord{
		charge("ch_a", "co_acme", "Acme Corporation", "1.00", model.StatusPaid, "2024-03-04 08:00:00"),
		charge("ch_b", "co_new", "New Co", "1.00", model.StatusPaid, "2024-03-04 08:00:00"),
		charge("ch_c", "co_new", "New Company", "1.00", model.StatusPaid, "2024-03-04 08:00:00"),
		charge("ch_d", "co_new", "New Co", "-5.00", model.StatusPaid, "2024-03-04 09:00:00"),
	})
	require.ErrorIs(t, err, report.ErrConstraintViolation)

	require.Len(t, result.NameConflicts, 1)
	assert.Equal(t, "co_new", result.NameConflicts[0].CompanyID)
	assert.False(t, result.NameConflicts[0].AlreadyStored)
	assert.Zero(t, result.CompaniesExisting)
	assert.Equal(t, 3, count(t, conn, "companies"))
	assert.Equal(t, 4, count(t, conn, "charges"))
}

func TestDistribute_CancelledWritesNothing(t *testing.T) {
	m, conn := newManager(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Distribute(ctx, fixtureRecords())
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, count(t, conn, "charges"))
}
