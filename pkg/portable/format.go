// Package portable reads and writes the extraction file formats.
// Both formats carry model.RawColumns in order.
package portable

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

// Format is a portable file format
type Format string

const (
	// FormatCSV is row-oriented delimited text with a header row
	FormatCSV Format = "csv"
	// FormatParquet is columnar binary with snappy compression
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// FormatFromPath infers the format from the file extension
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Extension returns the file extension including the dot
func (f Format) Extension() string {
	return "." + string(f)
}

// Compression returns the codec applied by the writer
func (f Format) Compression() string {
	if f == FormatParquet {
		return "snappy"
	}
	return "none"
}

// CheckPath returns report.ErrFormatMismatch when path does not carry f's extension
func (f Format) CheckPath(path string) error {
	if !strings.EqualFold(filepath.Ext(path), f.Extension()) {
		return fmt.Errorf("%w: %s is not a %s path", report.ErrFormatMismatch, path, f)
	}
	return nil
}

// RecordWriter writes chunks of raw records
type RecordWriter interface {
	// Write appends a chunk of records
	Write(records []model.RawTransactionRecord) error
	// Close flushes buffered data and finalizes the file
	Close() error
}

// RecordReader streams chunks of raw records
type RecordReader interface {
	// Next returns the next chunk, or io.EOF when exhausted
	Next() ([]model.RawTransactionRecord, error)
	// Close releases the underlying file
	Close() error
}

// NewWriter returns a writer for format f over w
func NewWriter(w io.Writer, f Format) (RecordWriter, error) {
	switch f {
	case FormatCSV:
		return newCSVWriter(w)
	case FormatParquet:
		return newParquetWriter(w)
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

// OpenReader opens path for chunked reading, inferring the format from its extension
func OpenReader(path string, chunkSize int) (RecordReader, error) {
	if chunkSize <= 0 {
		chunkSize = 1000
	}

	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	switch f {
	case FormatCSV:
		return openCSVReader(path, chunkSize)
	default:
		return openParquetReader(path, chunkSize)
	}
}

// ReadAll reads every record of the file at path
func ReadAll(path string) ([]model.RawTransactionRecord, error) {
	r, err := OpenReader(path, 0)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []model.RawTransactionRecord
	for {
		chunk, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, chunk...)
	}
}

// CountRows returns the number of records in the file at path
func CountRows(path string) (int64, error) {
	r, err := OpenReader(path, 0)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	var n int64
	for {
		chunk, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n += int64(len(chunk))
	}
}
