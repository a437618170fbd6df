package converter

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrEmptyValue is returned when a required value is absent
var ErrEmptyValue = errors.New("empty value")

// NullString trims value and maps the configured null tokens to an invalid NullString
func (c *TypeConverter) NullString(value string) sql.NullString {
	trimmed := strings.TrimSpace(value)
	for _, token := range c.config.NullTokens {
		if trimmed == token {
			return sql.NullString{}
		}
	}
	return sql.NullString{String: trimmed, Valid: true}
}

// DetectTimeFormat returns the first configured layout that parses value, or ""
func (c *TypeConverter) DetectTimeFormat(value string) string {
	value = strings.TrimSpace(value)
	for _, layout := range c.config.TimestampLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return layout
		}
	}
	return ""
}

// ParseTimestamp parses value with the first matching layout and returns it in UTC.
// Values without a zone are read as UTC.
func (c *TypeConverter) ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptyValue
	}

	layout := c.DetectTimeFormat(value)
	if layout == "" {
		return time.Time{}, fmt.Errorf("cannot parse '%s' as timestamp", value)
	}

	parsed, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse '%s' as timestamp: %w", value, err)
	}
	return parsed.UTC(), nil
}

// ParseDecimal parses value as a signed decimal without rounding
func (c *TypeConverter) ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, ErrEmptyValue
	}
	value = strings.TrimPrefix(value, "+")

	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot convert '%s' to numeric: %w", value, err)
	}
	return d, nil
}

// ParseAmount parses value as a signed decimal rounded to the configured scale
func (c *TypeConverter) ParseAmount(value string) (decimal.Decimal, error) {
	d, err := c.ParseDecimal(value)
	if err != nil {
		return decimal.Zero, err
	}
	return c.FixedScale(d), nil
}

// FixedScale rounds d half away from zero to the configured scale
func (c *TypeConverter) FixedScale(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.config.AmountScale)
}

// FormatAmount renders d with exactly the configured number of fractional digits
func (c *TypeConverter) FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(c.config.AmountScale)
}
