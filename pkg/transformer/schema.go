package transformer

import (
	"fmt"
	"unicode/utf8"

	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

// Rule names reported in ValidationReport.RuleCounts
const (
	RuleRequired        = "required_field"
	RuleAmountFormat    = "amount_format"
	RuleAmountRange     = "amount_range"
	RuleTimestampFormat = "timestamp_format"
	RuleMaxLength       = "max_length"
	RuleUnknownStatus   = "unknown_status"
	RuleTimeOrder       = "created_after_updated"
	RuleDuplicateID     = "duplicate_id"
)

type ceiling struct {
	field string
	max   int
	value func(*model.CanonicalTransactionRecord) string
}

var ceilings = []ceiling{
	{"id", model.MaxChargeIDLength, func(r *model.CanonicalTransactionRecord) string { return r.ID }},
	{"company_id", model.MaxCompanyIDLength, func(r *model.CanonicalTransactionRecord) string { return r.CompanyID }},
	{"company_name", model.MaxCompanyNameLength, func(r *model.CanonicalTransactionRecord) string { return r.CompanyName }},
	{"status", model.MaxStatusLength, func(r *model.CanonicalTransactionRecord) string { return string(r.Status) }},
}

// validateCanonical checks a cleansed record against the target schema
func validateCanonical(rec *model.CanonicalTransactionRecord) []report.RowError {
	var errs []report.RowError
	fail := func(rule, field, value, msg string) {
		errs = append(errs, report.NewRowError(report.ErrorKindValidation, rule, msg).
			WithRow(rec.SourceRow).
			WithRecord(rec.ID).
			WithField(field, value))
	}

	for _, c := range ceilings {
		if v := c.value(rec); utf8.RuneCountInString(v) > c.max {
			fail(RuleMaxLength, c.field, v, fmt.Sprintf("value exceeds %d characters", c.max))
		}
	}

	if rec.Amount.Abs().GreaterThanOrEqual(model.MaxAmount) {
		fail(RuleAmountRange, "amount", rec.Amount.StringFixed(model.AmountScale),
			fmt.Sprintf("amount does not fit DECIMAL(%d,%d)", model.AmountPrecision, model.AmountScale))
	}

	if !rec.Status.IsRecognized() {
		fail(RuleUnknownStatus, "status", string(rec.Status), "status is not in the recognized set")
	}

	if rec.UpdatedAt != nil && rec.CreatedAt.After(*rec.UpdatedAt) {
		fail(RuleTimeOrder, "updated_at", rec.UpdatedAt.Format(timeLayout), "created_at is after updated_at")
	}

	return errs
}

const timeLayout = "2006-01-02 15:04:05"
