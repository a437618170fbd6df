package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/txn-ingress/pkg/connector"
	"github.com/David-Botos/txn-ingress/pkg/connector/connectortest"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

const header = "id,name,company_id,amount,status,created_at,paid_at\n"

func newLoader(t *testing.T, cfg Config) (*Loader, connector.DatabaseConnector) {
	t.Helper()
	conn := connectortest.New(t)
	l := NewLoader(conn, cfg, zaptest.NewLogger(t))
	require.NoError(t, l.EnsureStagingTable(context.Background()))
	return l, conn
}

func writeSource(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func stagedCount(t *testing.T, conn connector.DatabaseConnector) int {
	t.Helper()
	var n int
	require.NoError(t, conn.DB().Get(&n, "SELECT COUNT(*) FROM raw_transactions"))
	return n
}

func TestLoad_FixtureWithMalformedRow(t *testing.T) {
	l, conn := newLoader(t, DefaultConfig())

	result, err := l.Load(context.Background(), "testdata/transactions.csv")
	require.NoError(t, err)

	assert.Equal(t, 5, result.TotalRows)
	assert.Equal(t, 4, result.ValidRows)
	assert.Equal(t, 1, result.InvalidRows)
	assert.Equal(t, 4, result.RowsLoaded)
	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, 1, result.RuleCounts[RuleAmountFormat])
	require.Len(t, result.Errors, 1)
	assert.Equal(t, int64(3), result.Errors[0].Row)
	assert.Equal(t, "amount", result.Errors[0].Field)
	assert.Equal(t, report.ErrorKindValidation, result.Errors[0].Kind)
	assert.InDelta(t, 80.0, result.SuccessRate(), 0.001)

	assert.Equal(t, 4, stagedCount(t, conn))

	var provenance struct {
		SourceFile string `db:"source_file"`
		SourceRow  int64  `db:"source_row"`
		LoadID     string `db:"load_id"`
	}
	require.NoError(t, conn.DB().Get(&provenance,
		"SELECT source_file, source_row, load_id FROM raw_transactions WHERE id = 'ch_004'"))
	assert.Equal(t, "transactions.csv", provenance.SourceFile)
	assert.Equal(t, int64(4), provenance.SourceRow)
	assert.Equal(t, result.LoadID, provenance.LoadID)
}

func TestLoad_RerunDoesNotDuplicate(t *testing.T) {
	l, conn := newLoader(t, DefaultConfig())
	ctx := context.Background()

	_, err := l.Load(ctx, "testdata/transactions.csv")
	require.NoError(t, err)

	var before string
	require.NoError(t, conn.DB().Get(&before, "SELECT load_id FROM raw_transactions WHERE id = 'ch_001'"))

	result, err := l.Load(ctx, "testdata/transactions.csv")
	require.NoError(t, err)

	assert.Equal(t, 4, result.ValidRows)
	assert.Equal(t, 0, result.RowsLoaded)
	assert.Equal(t, 4, result.DuplicateRows)
	assert.Equal(t, 4, result.RuleCounts[RuleDuplicateID])
	assert.Equal(t, 4, stagedCount(t, conn))

	var after string
	require.NoError(t, conn.DB().Get(&after, "SELECT load_id FROM raw_transactions WHERE id = 'ch_001'"))
	assert.Equal(t, before, after)
}

func TestLoad_DuplicateWithinFile(t *testing.T) {
	l, conn := newLoader(t, DefaultConfig())

	path := writeSource(t, header+
		"ch_1,Acme,co_1,10.00,paid,2024-03-01,\n"+
		"ch_1,Acme,co_1,99.00,paid,2024-03-02,\n")

	result, err := l.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ValidRows)
	assert.Equal(t, 1, result.InvalidRows)
	assert.Equal(t, 1, result.DuplicateRows)
	assert.Equal(t, 1, result.RowsLoaded)

	var amount string
	require.NoError(t, conn.DB().Get(&amount, "SELECT amount FROM raw_transactions WHERE id = 'ch_1'"))
	assert.Equal(t, "10.00", amount)
}

func TestLoad_RowValidation(t *testing.T) {
	l, _ := newLoader(t, DefaultConfig())

	path := writeSource(t, header+
		",Acme,co_1,10.00,paid,2024-03-01,\n"+ // missing id
		"ch_2,Acme,,10.00,paid,2024-03-01,\n"+ // missing company
		"ch_3,Acme,co_1,10.00,paid,tomorrow,\n"+ // bad created_at
		"ch_4,Acme,co_1,10.00,paid,2024-03-01,soon\n"+ // bad paid_at
		"ch_5,"+strings.Repeat("x", 131)+",co_1,10.00,paid,2024-03-01,\n"+ // name too long
		"ch_6,Acme,co_1,10.00,NULL,2024-03-01,\n"+ // null status
		"ch_7,Acme,co_1,+10.00,mystery,2024-03-01\n") // ragged row, lenient status

	result, err := l.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 7, result.TotalRows)
	assert.Equal(t, 1, result.ValidRows)
	assert.Equal(t, 6, result.InvalidRows)
	assert.Equal(t, 3, result.RuleCounts[RuleRequired])
	assert.Equal(t, 2, result.RuleCounts[RuleTimestampFormat])
	assert.Equal(t, 1, result.RuleCounts[RuleMaxLength])
}

func TestLoad_StrictRejectsUnknownStatus(t *testing.T) {
	l, _ := newLoader(t, Config{BatchSize: 10, Strict: true})

	path := writeSource(t, header+
		"ch_1,Acme,co_1,10.00,Paid,2024-03-01,\n"+
		"ch_2,Acme,co_1,10.00,mystery,2024-03-01,\n")

	result, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ValidRows)
	assert.Equal(t, 1, result.RuleCounts[RuleUnknownStatus])
}

func TestLoad_BatchesAndSampleCap(t *testing.T) {
	l, conn := newLoader(t, Config{BatchSize: 2, MaxErrorSamples: 2})

	var body strings.Builder
	body.WriteString(header)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		body.WriteString(id + ",Acme,co_1,1.00,paid,2024-03-01,\n")
	}
	for _, id := range []string{"x", "y", "z"} {
		body.WriteString(id + ",Acme,co_1,oops,paid,2024-03-01,\n")
	}

	result, err := l.Load(context.Background(), writeSource(t, body.String()))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Batches)
	assert.Equal(t, 5, result.RowsLoaded)
	assert.Equal(t, 3, result.ErrorCount)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, 5, stagedCount(t, conn))
}

func TestLoad_FailedBatchIsolatesBadRow(t *testing.T) {
	l, conn := newLoader(t, DefaultConfig())

	_, err := conn.DB().Exec(`CREATE TRIGGER reject_bad BEFORE INSERT ON raw_transactions
		WHEN NEW.id = 'bad'
		BEGIN SELECT RAISE(ABORT, 'row rejected by trigger'); END`)
	require.NoError(t, err)

	path := writeSource(t, header+
		"ok_1,Acme,co_1,10.00,paid,2024-03-01,\n"+
		"bad,Acme,co_1,10.00,paid,2024-03-01,\n"+
		"ok_2,Acme,co_1,10.00,paid,2024-03-01,\n")

	result, err := l.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalRows)
	assert.Equal(t, 2, result.ValidRows)
	assert.Equal(t, 1, result.InvalidRows)
	assert.Equal(t, 2, result.RowsLoaded)
	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, 1, result.RuleCounts[RuleInsertFailed])
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bad", result.Errors[0].RecordID)
	assert.Equal(t, int64(2), result.Errors[0].Row)
	assert.Equal(t, report.ErrorKindLoading, result.Errors[0].Kind)

	assert.Equal(t, 2, stagedCount(t, conn))
	assert.Equal(t, result.TotalRows, result.ValidRows+result.InvalidRows)
}

func TestLoad_MalformedQuoting(t *testing.T) {
	l, _ := newLoader(t, DefaultConfig())

	path := writeSource(t, header+
		"ch_1,Acme,co_1,10.00,paid,2024-03-01,\n"+
		"ch_2,Ac\"me,co_1,10.00,paid,2024-03-01,\n"+
		"ch_3,Acme,co_1,10.00,paid,2024-03-01,\n")

	result, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsLoaded)
	assert.Equal(t, 1, result.RuleCounts[RuleMalformedRow])
}

func TestLoad_FatalSourceErrors(t *testing.T) {
	l, _ := newLoader(t, DefaultConfig())
	ctx := context.Background()

	_, err := l.Load(ctx, filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, report.ErrSourceUnreadable)
	assert.Equal(t, report.ErrorKindLoading, report.KindOf(err))

	_, err = l.Load(ctx, writeSource(t, "id,name,amount\nch_1,Acme,1\n"))
	assert.ErrorIs(t, err, report.ErrSourceUnreadable)
	assert.ErrorContains(t, err, "company_id")

	_, err = l.Load(ctx, writeSource(t, ""))
	assert.ErrorIs(t, err, report.ErrSourceUnreadable)
}

func TestLoad_HeaderOrderAndBOM(t *testing.T) {
	l, _ := newLoader(t, DefaultConfig())

	path := writeSource(t, "\ufeffstatus,id,company_id,amount,created_at,paid_at,name,extra\n"+
		"paid,ch_1,co_1,10.00,2024-03-01,,Acme,ignored\n")

	result, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsLoaded)
}

func TestLoad_CancelledBeforeBatch(t *testing.T) {
	l, conn := newLoader(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := l.Load(ctx, "testdata/transactions.csv")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.RowsLoaded)
	assert.Equal(t, 0, stagedCount(t, conn))
}

func TestEnsureStagingTable_Idempotent(t *testing.T) {
	l, _ := newLoader(t, DefaultConfig())
	assert.NoError(t, l.EnsureStagingTable(context.Background()))
}
