package loader

import (
	"database/sql"
	"strings"
	"unicode/utf8"

	"github.com/David-Botos/txn-ingress/pkg/converter"
	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

// Validation rule names reported in LoadResult.RuleCounts
const (
	RuleRequired        = "required_field"
	RuleAmountFormat    = "amount_format"
	RuleTimestampFormat = "timestamp_format"
	RuleMaxLength       = "max_length"
	RuleUnknownStatus   = "unknown_status"
	RuleDuplicateID     = "duplicate_id"
	RuleMalformedRow    = "malformed_row"
	RuleInsertFailed    = "insert_failed"
)

var requiredFields = []string{"id", "company_id", "amount", "status", "created_at"}

// validateRow checks a staged row and returns every violation found
func validateRow(conv *converter.TypeConverter, rec model.RawTransactionRecord, strict bool) []report.RowError {
	var errs []report.RowError
	fail := func(rule, field, value, msg string) {
		errs = append(errs, report.NewRowError(report.ErrorKindValidation, rule, msg).
			WithRow(rec.SourceRow).
			WithRecord(rec.ID.String).
			WithField(field, value))
	}

	for _, field := range requiredFields {
		if !fieldValue(rec, field).Valid {
			fail(RuleRequired, field, "", "required field is missing")
		}
	}

	for _, col := range model.RawColumns {
		if !col.Source || col.MaxLength == 0 {
			continue
		}
		v := fieldValue(rec, col.Name)
		if v.Valid && utf8.RuneCountInString(v.String) > col.MaxLength {
			fail(RuleMaxLength, col.Name, v.String, "value exceeds maximum length")
		}
	}

	if rec.Amount.Valid {
		if _, err := conv.ParseDecimal(rec.Amount.String); err != nil {
			fail(RuleAmountFormat, "amount", rec.Amount.String, "amount is not a decimal number")
		}
	}

	for _, field := range []string{"created_at", "paid_at"} {
		v := fieldValue(rec, field)
		if v.Valid && conv.DetectTimeFormat(v.String) == "" {
			fail(RuleTimestampFormat, field, v.String, "timestamp matches no accepted format")
		}
	}

	if strict && rec.Status.Valid {
		if !model.Status(strings.ToLower(rec.Status.String)).IsRecognized() {
			fail(RuleUnknownStatus, "status", rec.Status.String, "status is not a recognized value")
		}
	}

	return errs
}

func fieldValue(rec model.RawTransactionRecord, field string) sql.NullString {
	switch field {
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
	}
	return sql.NullString{}
}
