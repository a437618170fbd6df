package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

var dbTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DBTime scans timestamps from drivers that return either time.Time or text.
type DBTime struct {
	Time  time.Time
	Valid bool
}

// NewDBTime wraps t as a valid DBTime in UTC.
func NewDBTime(t time.Time) DBTime {
	return DBTime{Time: t.UTC(), Valid: true}
}

// Scan implements sql.Scanner
func (t *DBTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into DBTime", value)
	}
}

// Value implements driver.Valuer
func (t DBTime) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time, nil
}

func (t *DBTime) parse(s string) error {
	for _, layout := range dbTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
