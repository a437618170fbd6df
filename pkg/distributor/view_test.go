package distributor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/txn-ingress/pkg/model"
)

// reportingRecords spans three companies over three days with mixed statuses
func reportingRecords() []model.CanonicalTransactionRecord {
	return []model.CanonicalTransactionRecord{
		charge("a1", "co_a", "Alpha", "10.00", model.StatusPaid, "2024-03-01 09:00:00"),
		charge("a2", "co_a", "Alpha", "5.50", model.StatusPaid, "2024-03-01 17:30:00"),
		charge("a3", "co_a", "Alpha", "100.00", model.StatusVoided, "2024-03-01 18:00:00"),
		charge("a4", "co_a", "Alpha", "2.25", model.StatusRefunded, "2024-03-02 10:00:00"),
		charge("a5", "co_a", "Alpha", "7.00", model.StatusPendingPayment, "2024-03-03 10:00:00"),

		charge("b1", "co_b", "Beta", "1.00", model.StatusPendingPayment, "2024-03-01 11:00:00"),
		charge("b2", "co_b", "Beta", "20.00", model.StatusPaid, "2024-03-02 08:00:00"),
		charge("b3", "co_b", "Beta", "30.00", model.StatusPaid, "2024-03-02 12:00:00"),
		charge("b4", "co_b", "Beta", "0.10", model.StatusRefunded, "2024-03-02 23:59:59"),
		charge("b5", "co_b", "Beta", "1.11", model.StatusPaid, "2024-03-03 00:00:00"),

		charge("c1", "co_c", "Gamma", "9.00", model.StatusChargedBack, "2024-03-01 09:00:00"),
		charge("c2", "co_c", "Gamma", "99.99", model.StatusPaid, "2024-03-03 09:00:00"),
		charge("c3", "co_c", "Gamma", "0.01", model.StatusPaid, "2024-03-03 10:00:00"),
	}
}

type summaryExpectation struct {
	date     string
	company  string
	total    string
	count    int64
	min, max string
	name     string
}

func assertSummary(t *testing.T, expected []summaryExpectation, got []model.DailyTransactionSummary) {
	t.Helper()
	require.Len(t, got, len(expected))
	for i, want := range expected {
		row := got[i]
		day, err := time.Parse(DateLayout, want.date)
		require.NoError(t, err)
		assert.Equal(t, day, row.TransactionDate, "row %d date", i)
		assert.Equal(t, want.company, row.CompanyID, "row %d company", i)
		assert.Equal(t, want.name, row.CompanyName, "row %d name", i)
		assert.Equal(t, want.total, row.TotalAmount.StringFixed(2), "row %d total", i)
		assert.Equal(t, want.count, row.TransactionCount, "row %d count", i)
		assert.Equal(t, want.min, row.MinAmount.StringFixed(2), "row %d min", i)
		assert.Equal(t, want.max, row.MaxAmount.StringFixed(2), "row %d max", i)
	}
}

func reportingManager(t *testing.T) *Manager {
	t.Helper()
	m, _ := newManager(t, DefaultConfig())
	_, err := m.Distribute(context.Background(), reportingRecords())
	require.NoError(t, err)
	require.NoError(t, m.CreateReportingView(context.Background()))
	return m
}

func TestReportingView_DailyAggregates(t *testing.T) {
	m := reportingManager(t)

	rows, err := m.QueryDailySummary(context.Background(), SummaryFilter{})
	require.NoError(t, err)

	assertSummary(t, []summaryExpectation{
		{date: "2024-03-01", company: "co_a", name: "Alpha", total: "15.50", count: 2, min: "5.50", max: "10.00"},
		{date: "2024-03-02", company: "co_a", name: "Alpha", total: "2.25", count: 1, min: "2.25", max: "2.25"},
		{date: "2024-03-02", company: "co_b", name: "Beta", total: "50.10", count: 3, min: "0.10", max: "30.00"},
		{date: "2024-03-03", company: "co_b", name: "Beta", total: "1.11", count: 1, min: "1.11", max: "1.11"},
		{date: "2024-03-03", company: "co_c", name: "Gamma", total: "100.00", count: 2, min: "0.01", max: "99.99"},
	}, rows)
}

func TestReportingView_Filters(t *testing.T) {
	m := reportingManager(t)
	ctx := context.Background()
	day := func(s string) time.Time {
		d, err := time.Parse(DateLayout, s)
		require.NoError(t, err)
		return d
	}

	rows, err := m.QueryDailySummary(ctx, SummaryFilter{CompanyID: "co_b"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "co_b", rows[0].CompanyID)

	rows, err = m.QueryDailySummary(ctx, SummaryFilter{From: day("2024-03-02"), To: day("2024-03-02")})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "co_a", rows[0].CompanyID)
	assert.Equal(t, "co_b", rows[1].CompanyID)

	rows, err = m.QueryDailySummary(ctx, SummaryFilter{From: day("2024-03-03"), Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "co_b", rows[0].CompanyID)
}

func TestReportingView_CompanyTotals(t *testing.T) {
	m := reportingManager(t)

	totals, err := m.CompanyTotals(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, totals, 3)

	assert.Equal(t, "co_c", totals[0].CompanyID)
	assert.Equal(t, "100.00", totals[0].TotalAmount.StringFixed(2))
	assert.Equal(t, int64(2), totals[0].TransactionCount)
	assert.Equal(t, int64(1), totals[0].ActiveDays)

	assert.Equal(t, "co_b", totals[1].CompanyID)
	assert.Equal(t, "51.21", totals[1].TotalAmount.StringFixed(2))
	assert.Equal(t, int64(4), totals[1].TransactionCount)
	assert.Equal(t, int64(2), totals[1].ActiveDays)

	assert.Equal(t, "co_a", totals[2].CompanyID)
	assert.Equal(t, "17.75", totals[2].TotalAmount.StringFixed(2))

	limited, err := m.CompanyTotals(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestReportingView_RecreatedWithNewStatusSet(t *testing.T) {
	m := reportingManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreateReportingView(ctx))

	paidOnly := NewManager(m.conn, Config{SettledStatuses: []model.Status{model.StatusPaid}}, zaptest.NewLogger(t))
	require.NoError(t, paidOnly.CreateReportingView(ctx))

	rows, err := paidOnly.QueryDailySummary(ctx, SummaryFilter{})
	require.NoError(t, err)
	assertSummary(t, []summaryExpectation{
		{date: "2024-03-01", company: "co_a", name: "Alpha", total: "15.50", count: 2, min: "5.50", max: "10.00"},
		{date: "2024-03-02", company: "co_b", name: "Beta", total: "50.00", count: 2, min: "20.00", max: "30.00"},
		{date: "2024-03-03", company: "co_b", name: "Beta", total: "1.11", count: 1, min: "1.11", max: "1.11"},
		{date: "2024-03-03", company: "co_c", name: "Gamma", total: "100.00", count: 2, min: "0.01", max: "99.99"},
	}, rows)
}

func TestReportingView_EmptyTables(t *testing.T) {
	m, _ := newManager(t, DefaultConfig())
	require.NoError(t, m.CreateReportingView(context.Background()))

	rows, err := m.QueryDailySummary(context.Background(), SummaryFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
