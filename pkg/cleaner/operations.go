// pkg/cleaner/operations.go
package cleaner

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/David-Botos/txn-ingress/pkg/model"
)

// Cleaning operation names recorded in the audit trail
const (
	OpStatusNormalized   = "status_normalization"
	OpRefundReinterpret  = "refund_reinterpretation"
	OpNameStandardized   = "name_standardization"
	OpPaidAtDropped      = "paid_at_dropped"
	reasonCaseWhitespace = "status_case_or_whitespace"
	reasonNegativeAmount = "negative_amount"
	reasonNameFormatting = "name_formatting"
)

// Rules applies the business-rule cleansing step to a coerced record.
// A Rules value holds a text caser and must not be shared between goroutines.
type Rules struct {
	standardizeNames bool
	caser            cases.Caser
}

// NewRules creates the cleansing rules
func NewRules(standardizeNames bool) *Rules {
	return &Rules{
		standardizeNames: standardizeNames,
		caser:            cases.Title(language.Und),
	}
}

// Apply rewrites rec in place and returns the operations performed, in rule order:
// status normalization, refund reinterpretation, company name standardization.
func (r *Rules) Apply(rec *model.CanonicalTransactionRecord) []model.CleaningOperation {
	var operations []model.CleaningOperation

	if op := normalizeStatus(rec); op != nil {
		operations = append(operations, *op)
	}
	operations = append(operations, reinterpretRefund(rec)...)
	if r.standardizeNames {
		if op := r.standardizeName(rec); op != nil {
			operations = append(operations, *op)
		}
	}

	return operations
}

// normalizeStatus lower-cases and trims the status
func normalizeStatus(rec *model.CanonicalTransactionRecord) *model.CleaningOperation {
	original := string(rec.Status)
	normalized := strings.ToLower(strings.TrimSpace(original))
	if normalized == original {
		return nil
	}
	rec.Status = model.Status(normalized)
	return newOperation(rec, "status", &original, normalized, OpStatusNormalized, reasonCaseWhitespace)
}

// reinterpretRefund turns a negative amount into a refund of its absolute value
func reinterpretRefund(rec *model.CanonicalTransactionRecord) []model.CleaningOperation {
	if !rec.Amount.IsNegative() {
		return nil
	}

	var operations []model.CleaningOperation

	originalAmount := rec.Amount.StringFixed(2)
	rec.Amount = rec.Amount.Abs()
	operations = append(operations,
		*newOperation(rec, "amount", &originalAmount, rec.Amount.StringFixed(2), OpRefundReinterpret, reasonNegativeAmount))

	if rec.Status != model.StatusRefunded {
		originalStatus := string(rec.Status)
		rec.Status = model.StatusRefunded
		operations = append(operations,
			*newOperation(rec, "status", &originalStatus, string(rec.Status), OpRefundReinterpret, reasonNegativeAmount))
	}

	return operations
}

// standardizeName collapses inner whitespace and title-cases the company name
func (r *Rules) standardizeName(rec *model.CanonicalTransactionRecord) *model.CleaningOperation {
	if rec.CompanyName == "" {
		return nil
	}
	original := rec.CompanyName
	standardized := r.caser.String(strings.Join(strings.Fields(original), " "))
	if standardized == original {
		return nil
	}
	rec.CompanyName = standardized
	return newOperation(rec, "company_name", &original, standardized, OpNameStandardized, reasonNameFormatting)
}

// PaidAtDropped records that an unparseable paid_at was discarded
func PaidAtDropped(rec *model.CanonicalTransactionRecord, original string) model.CleaningOperation {
	return *newOperation(rec, "paid_at", &original, "", OpPaidAtDropped, "unparseable_timestamp")
}

func newOperation(
	rec *model.CanonicalTransactionRecord,
	field string,
	original *string,
	newValue, operation, reason string,
) *model.CleaningOperation {
	return &model.CleaningOperation{
		RecordID:      rec.ID,
		SourceRow:     rec.SourceRow,
		Field:         field,
		OriginalValue: original,
		NewValue:      newValue,
		Operation:     operation,
		Reason:        reason,
	}
}
