package sqlite

import (
	"fmt"
	"time"
)

// sqliteTimeFormat is how timestamps are written; CURRENT_TIMESTAMP uses the same layout.
const sqliteTimeFormat = "2006-01-02 15:04:05"

// parseTime accepts the layouts SQLite and the driver produce for DATETIME columns.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		sqliteTimeFormat,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
