package portable

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

func str(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

func sampleRecords() []model.RawTransactionRecord {
	loadedAt := model.NewDBTime(time.Date(2024, 3, 2, 8, 0, 0, 123000, time.UTC))
	return []model.RawTransactionRecord{
		{
			ID: str("ch_1"), Name: str("Acme Corp"), CompanyID: str("co_1"), Amount: str("10.50"),
			Status: str("paid"), CreatedAt: str("2024-03-01 10:00:00"), PaidAt: str("2024-03-01 11:00:00"),
			SourceFile: "fixture.csv", SourceRow: 1, LoadedAt: loadedAt, LoadID: "load-1",
		},
		{
			ID: str("ch_2"), CompanyID: str("co_2"), Amount: str("-3"),
			Status: str("voided"), CreatedAt: str("2024-03-01"),
			SourceFile: "fixture.csv", SourceRow: 2, LoadedAt: loadedAt, LoadID: "load-1",
		},
	}
}

func writeFile(t *testing.T, path string, format Format, chunks ...[]model.RawTransactionRecord) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)

	w, err := NewWriter(f, format)
	require.NoError(t, err)
	for _, chunk := range chunks {
		require.NoError(t, w.Write(chunk))
	}
	require.NoError(t, w.Close())
	_ = f.Close()
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatParquet} {
		t.Run(string(format), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "raw"+format.Extension())
			records := sampleRecords()
			writeFile(t, path, format, records[:1], records[1:])

			got, err := ReadAll(path)
			require.NoError(t, err)
			require.Len(t, got, 2)

			assert.Equal(t, records[0].ID, got[0].ID)
			assert.Equal(t, records[0].Name, got[0].Name)
			assert.Equal(t, records[0].PaidAt, got[0].PaidAt)
			assert.Equal(t, int64(2), got[1].SourceRow)
			assert.False(t, got[1].Name.Valid)
			assert.False(t, got[1].PaidAt.Valid)
			assert.Equal(t, "-3", got[1].Amount.String)
			assert.Equal(t, "load-1", got[1].LoadID)
			assert.True(t, records[0].LoadedAt.Time.Equal(got[0].LoadedAt.Time))

			n, err := CountRows(path)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
		})
	}
}

func TestChunkedRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	writeFile(t, path, FormatCSV, sampleRecords())

	r, err := OpenReader(path, 1)
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	assert.Len(t, first, 1)
	second, err := r.Next()
	require.NoError(t, err)
	assert.Len(t, second, 1)
	_, err = r.Next()
	assert.Error(t, err)
}

func TestEmptyFilesAreWellFormed(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatParquet} {
		t.Run(string(format), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "empty"+format.Extension())
			writeFile(t, path, format)

			got, err := ReadAll(path)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestFormatHelpers(t *testing.T) {
	f, err := ParseFormat(" Parquet ")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)
	assert.Equal(t, "snappy", f.Compression())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)

	f, err = FormatFromPath("/tmp/out/raw.csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	assert.NoError(t, FormatCSV.CheckPath("a/b.CSV"))
	assert.ErrorIs(t, FormatParquet.CheckPath("a/b.csv"), report.ErrFormatMismatch)
}

func TestCSVReader_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\nch_1,Acme\n"), 0o644))

	_, err := OpenReader(path, 10)
	assert.ErrorContains(t, err, "missing column")
}
