package portable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/array"
	"github.com/apache/arrow/go/v16/arrow/memory"
	"github.com/apache/arrow/go/v16/parquet"
	"github.com/apache/arrow/go/v16/parquet/compress"
	"github.com/apache/arrow/go/v16/parquet/file"
	"github.com/apache/arrow/go/v16/parquet/pqarrow"

	"github.com/David-Botos/txn-ingress/pkg/model"
)

var loadedAtType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// arrowSchema maps model.RawColumns onto arrow types: provenance row numbers are int64,
// the load timestamp is a UTC microsecond timestamp and every source field is a nullable string.
func arrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(model.RawColumns))
	for i, col := range model.RawColumns {
		switch col.Name {
		case "source_row":
			fields[i] = arrow.Field{Name: col.Name, Type: arrow.PrimitiveTypes.Int64}
		case "loaded_at":
			fields[i] = arrow.Field{Name: col.Name, Type: loadedAtType, Nullable: true}
		default:
			fields[i] = arrow.Field{Name: col.Name, Type: arrow.BinaryTypes.String, Nullable: true}
		}
	}
	return arrow.NewSchema(fields, nil)
}

type parquetWriter struct {
	fw     *pqarrow.FileWriter
	schema *arrow.Schema
	mem    memory.Allocator
}

func newParquetWriter(w io.Writer) (*parquetWriter, error) {
	schema := arrowSchema()
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))

	fw, err := pqarrow.NewFileWriter(schema, w, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	return &parquetWriter{fw: fw, schema: schema, mem: memory.NewGoAllocator()}, nil
}

// Write appends one row group built from records
func (pw *parquetWriter) Write(records []model.RawTransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	bldr := array.NewRecordBuilder(pw.mem, pw.schema)
	defer bldr.Release()

	for _, rec := range records {
		for i, col := range model.RawColumns {
			switch b := bldr.Field(i).(type) {
			case *array.StringBuilder:
				appendString(b, sourceField(rec, col.Name))
			case *array.Int64Builder:
				b.Append(rec.SourceRow)
			case *array.TimestampBuilder:
				if rec.LoadedAt.Valid {
					b.Append(arrow.Timestamp(rec.LoadedAt.Time.UnixMicro()))
				} else {
					b.AppendNull()
				}
			}
		}
	}

	batch := bldr.NewRecord()
	defer batch.Release()

	if err := pw.fw.Write(batch); err != nil {
		return fmt.Errorf("failed to write parquet row group: %w", err)
	}
	return nil
}

func (pw *parquetWriter) Close() error {
	if err := pw.fw.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

func appendString(b *array.StringBuilder, v sql.NullString) {
	if !v.Valid {
		b.AppendNull()
		return
	}
	b.Append(v.String)
}

// sourceField returns the text columns of rec by name
func sourceField(rec model.RawTransactionRecord, name string) sql.NullString {
	switch name {
	case "id":
		return rec.ID
	case "name":
		return rec.Name
	case "company_id":
		return rec.CompanyID
	case "amount":
		return rec.Amount
	case "status":
		return rec.Status
	case "created_at":
		return rec.CreatedAt
	case "paid_at":
		return rec.PaidAt
	case "source_file":
		return sql.NullString{String: rec.SourceFile, Valid: true}
	case "load_id":
		return sql.NullString{String: rec.LoadID, Valid: true}
	default:
		return sql.NullString{}
	}
}

type parquetReader struct {
	pf *file.Reader
	rr pqarrow.RecordReader
}

func openParquetReader(path string, chunkSize int) (*parquetReader, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: int64(chunkSize)}, memory.DefaultAllocator)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("failed to read parquet schema of %s: %w", path, err)
	}

	rr, err := fr.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("failed to open record reader for %s: %w", path, err)
	}

	return &parquetReader{pf: pf, rr: rr}, nil
}

func (pr *parquetReader) Next() ([]model.RawTransactionRecord, error) {
	if !pr.rr.Next() {
		if err := pr.rr.Err(); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read parquet batch: %w", err)
		}
		return nil, io.EOF
	}
	return fromArrowRecord(pr.rr.Record())
}

func (pr *parquetReader) Close() error {
	pr.rr.Release()
	return pr.pf.Close()
}

func fromArrowRecord(batch arrow.Record) ([]model.RawTransactionRecord, error) {
	columns := make(map[string]arrow.Array, len(model.RawColumns))
	for _, col := range model.RawColumns {
		idx := batch.Schema().FieldIndices(col.Name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("parquet file is missing column %q", col.Name)
		}
		columns[col.Name] = batch.Column(idx[0])
	}

	n := int(batch.NumRows())
	out := make([]model.RawTransactionRecord, n)
	for i := 0; i < n; i++ {
		rec := model.RawTransactionRecord{
			ID:         stringAt(columns["id"], i),
			Name:       stringAt(columns["name"], i),
			CompanyID:  stringAt(columns["company_id"], i),
			Amount:     stringAt(columns["amount"], i),
			Status:     stringAt(columns["status"], i),
			CreatedAt:  stringAt(columns["created_at"], i),
			PaidAt:     stringAt(columns["paid_at"], i),
			SourceFile: stringAt(columns["source_file"], i).String,
			LoadID:     stringAt(columns["load_id"], i).String,
		}

		row, err := int64At(columns["source_row"], i)
		if err != nil {
			return nil, err
		}
		rec.SourceRow = row

		loadedAt, err := timeAt(columns["loaded_at"], i)
		if err != nil {
			return nil, err
		}
		rec.LoadedAt = loadedAt

		out[i] = rec
	}
	return out, nil
}

func stringAt(arr arrow.Array, i int) sql.NullString {
	if arr.IsNull(i) {
		return sql.NullString{}
	}
	switch a := arr.(type) {
	case *array.String:
		return sql.NullString{String: a.Value(i), Valid: true}
	case *array.LargeString:
		return sql.NullString{String: a.Value(i), Valid: true}
	case *array.Binary:
		return sql.NullString{String: string(a.Value(i)), Valid: true}
	default:
		return sql.NullString{}
	}
}

func int64At(arr arrow.Array, i int) (int64, error) {
	if arr.IsNull(i) {
		return 0, nil
	}
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(i), nil
	case *array.Int32:
		return int64(a.Value(i)), nil
	default:
		return 0, fmt.Errorf("unexpected arrow type %s for source_row", arr.DataType())
	}
}

func timeAt(arr arrow.Array, i int) (model.DBTime, error) {
	if arr.IsNull(i) {
		return model.DBTime{}, nil
	}
	switch a := arr.(type) {
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return model.NewDBTime(a.Value(i).ToTime(unit)), nil
	case *array.String:
		var t model.DBTime
		err := t.Scan(a.Value(i))
		return t, err
	default:
		return model.DBTime{}, fmt.Errorf("unexpected arrow type %s for loaded_at", arr.DataType())
	}
}
