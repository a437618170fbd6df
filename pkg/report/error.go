package report

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures raised by the pipeline stages
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	// ErrorKindValidation is a row-level rule violation, recorded and skipped
	ErrorKindValidation
	// ErrorKindTransformation is a failure to coerce or rewrite a record, recorded and skipped
	ErrorKindTransformation
	// ErrorKindLoading is an I/O or duplicate-key failure while staging a row
	ErrorKindLoading
	// ErrorKindExtraction is a failure to materialize the portable file
	ErrorKindExtraction
	// ErrorKindSchema is a DDL failure
	ErrorKindSchema
	// ErrorKindDistribution is a constraint violation while populating the normalized store
	ErrorKindDistribution
)

// String returns a string representation of the error kind
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "None"
	case ErrorKindValidation:
		return "ValidationError"
	case ErrorKindTransformation:
		return "TransformationError"
	case ErrorKindLoading:
		return "LoadingError"
	case ErrorKindExtraction:
		return "ExtractionError"
	case ErrorKindSchema:
		return "SchemaError"
	case ErrorKindDistribution:
		return "DistributionError"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

var (
	// ErrSourceUnreadable is returned when the source file cannot be opened or has no usable header
	ErrSourceUnreadable = errors.New("source unreadable")
	// ErrStoreUnreachable is returned when the target store rejects connections or transactions
	ErrStoreUnreachable = errors.New("store unreachable")
	// ErrFormatMismatch is returned when an output path does not match the requested format
	ErrFormatMismatch = errors.New("format does not match file extension")
	// ErrConstraintViolation is returned when the store rejects a batch on an integrity constraint
	ErrConstraintViolation = errors.New("constraint violation")
)

// StageError is the fatal failure of a stage call
type StageError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewStageError wraps err as a fatal stage failure
func NewStageError(kind ErrorKind, op string, err error) *StageError {
	return &StageError{Kind: kind, Op: op, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first StageError in err's chain
func KindOf(err error) ErrorKind {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Kind
	}
	return ErrorKindNone
}

// RowError describes a single row or record that was excluded or flagged
type RowError struct {
	Kind     ErrorKind
	Row      int64
	RecordID string
	Field    string
	Value    string
	Rule     string
	Message  string
}

// NewRowError creates a row error for the violated rule
func NewRowError(kind ErrorKind, rule, message string) RowError {
	return RowError{
		Kind:    kind,
		Rule:    rule,
		Message: message,
	}
}

// WithRow adds the source row number
func (e RowError) WithRow(row int64) RowError {
	e.Row = row
	return e
}

// WithRecord adds the record identifier
func (e RowError) WithRecord(id string) RowError {
	e.RecordID = id
	return e
}

// WithField adds the offending field and its value
func (e RowError) WithField(field, value string) RowError {
	e.Field = field
	e.Value = value
	return e
}

// Error returns a formatted error message
func (e RowError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", e.Kind))

	if e.Row > 0 {
		sb.WriteString(fmt.Sprintf("row %d ", e.Row))
	}
	if e.RecordID != "" {
		sb.WriteString(fmt.Sprintf("id %s ", e.RecordID))
	}
	if e.Field != "" {
		sb.WriteString(fmt.Sprintf("field %s ", e.Field))
		if e.Value != "" {
			sb.WriteString(fmt.Sprintf("value %q ", e.Value))
		}
	}

	sb.WriteString(fmt.Sprintf("%s: %s", e.Rule, e.Message))
	return sb.String()
}
