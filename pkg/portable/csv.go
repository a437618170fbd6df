package portable

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/David-Botos/txn-ingress/pkg/model"
)

type csvWriter struct {
	w *csv.Writer
}

func newCSVWriter(w io.Writer) (*csvWriter, error) {
	cw := &csvWriter{w: csv.NewWriter(w)}
	if err := cw.w.Write(model.RawTableMetadata().ColumnNames()); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	return cw, nil
}

func (cw *csvWriter) Write(records []model.RawTransactionRecord) error {
	for _, rec := range records {
		if err := cw.w.Write(toCSVRow(rec)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.w.Flush()
	return cw.w.Error()
}

func (cw *csvWriter) Close() error {
	cw.w.Flush()
	return cw.w.Error()
}

func toCSVRow(rec model.RawTransactionRecord) []string {
	loadedAt := ""
	if rec.LoadedAt.Valid {
		loadedAt = rec.LoadedAt.Time.UTC().Format(time.RFC3339Nano)
	}
	return []string{
		rec.ID.String,
		rec.Name.String,
		rec.CompanyID.String,
		rec.Amount.String,
		rec.Status.String,
		rec.CreatedAt.String,
		rec.PaidAt.String,
		rec.SourceFile,
		strconv.FormatInt(rec.SourceRow, 10),
		loadedAt,
		rec.LoadID,
	}
}

type csvReader struct {
	file      *os.File
	r         *csv.Reader
	index     map[string]int
	chunkSize int
}

func openCSVReader(path string, chunkSize int) (*csvReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read csv header of %s: %w", path, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, col := range model.RawColumns {
		if _, ok := index[col.Name]; !ok {
			file.Close()
			return nil, fmt.Errorf("%s is missing column %q", path, col.Name)
		}
	}

	return &csvReader{file: file, r: r, index: index, chunkSize: chunkSize}, nil
}

func (cr *csvReader) Next() ([]model.RawTransactionRecord, error) {
	chunk := make([]model.RawTransactionRecord, 0, cr.chunkSize)
	for len(chunk) < cr.chunkSize {
		row, err := cr.r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		rec, err := cr.fromRow(row)
		if err != nil {
			return nil, err
		}
		chunk = append(chunk, rec)
	}
	if len(chunk) == 0 {
		return nil, io.EOF
	}
	return chunk, nil
}

func (cr *csvReader) Close() error {
	return cr.file.Close()
}

func (cr *csvReader) fromRow(row []string) (model.RawTransactionRecord, error) {
	field := func(name string) string {
		if i := cr.index[name]; i < len(row) {
			return row[i]
		}
		return ""
	}
	nullable := func(name string) sql.NullString {
		v := field(name)
		return sql.NullString{String: v, Valid: v != ""}
	}

	rec := model.RawTransactionRecord{
		ID:         nullable("id"),
		Name:       nullable("name"),
		CompanyID:  nullable("company_id"),
		Amount:     nullable("amount"),
		Status:     nullable("status"),
		CreatedAt:  nullable("created_at"),
		PaidAt:     nullable("paid_at"),
		SourceFile: field("source_file"),
		LoadID:     field("load_id"),
	}

	if v := field("source_row"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return rec, fmt.Errorf("invalid source_row %q: %w", v, err)
		}
		rec.SourceRow = n
	}
	if v := field("loaded_at"); v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return rec, fmt.Errorf("invalid loaded_at %q: %w", v, err)
		}
		rec.LoadedAt = model.NewDBTime(ts)
	}
	return rec, nil
}
