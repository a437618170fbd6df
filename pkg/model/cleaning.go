// pkg/model/cleaning.go
package model

import "time"

// CleaningOperation records a single business-rule rewrite applied to a record
type CleaningOperation struct {
	RecordID      string    `db:"record_id"`
	SourceRow     int64     `db:"source_row"`
	Field         string    `db:"field_name"`
	OriginalValue *string   `db:"original_value"`
	NewValue      string    `db:"new_value"`
	Operation     string    `db:"cleaning_operation"`
	Reason        string    `db:"cleaning_reason"`
	CleanedAt     time.Time `db:"cleaned_at"`
}
