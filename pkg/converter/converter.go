// pkg/converter/converter.go
package converter

import (
	"go.uber.org/zap"
)

// DefaultTimestampLayouts is the ordered list of accepted source timestamp layouts.
// The first layout that parses a value wins, so day-first forms take precedence
// over month-first forms for ambiguous dates.
var DefaultTimestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"01/02/2006",
}

// DefaultNullTokens are source values treated as absent
var DefaultNullTokens = []string{"", "NULL", "null", "None"}

// TypeConverter coerces loosely-typed source text into typed values
type TypeConverter struct {
	logger *zap.Logger
	// Configuration options
	config TypeConverterConfig
}

// TypeConverterConfig provides configuration options for type conversion
type TypeConverterConfig struct {
	// Timestamp layouts tried in order
	TimestampLayouts []string
	// Fractional digits kept on amounts
	AmountScale int32
	// Values treated as NULL after trimming
	NullTokens []string
}

// DefaultConfig returns the default configuration
func DefaultConfig() TypeConverterConfig {
	return TypeConverterConfig{
		TimestampLayouts: DefaultTimestampLayouts,
		AmountScale:      2,
		NullTokens:       DefaultNullTokens,
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	return NewTypeConverterWithConfig(logger, DefaultConfig())
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration
func NewTypeConverterWithConfig(logger *zap.Logger, config TypeConverterConfig) *TypeConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(config.TimestampLayouts) == 0 {
		config.TimestampLayouts = DefaultTimestampLayouts
	}
	if config.AmountScale <= 0 {
		config.AmountScale = 2
	}
	if config.NullTokens == nil {
		config.NullTokens = DefaultNullTokens
	}
	return &TypeConverter{
		logger: logger,
		config: config,
	}
}
