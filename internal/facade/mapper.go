package facade

import (
	"database/sql"
	"time"
)

// NULL-tolerant scan targets. Feature tables live in databases the
// users own, so any column may come back NULL regardless of what our
// schema suggestions say. A NULL always maps to the zero value.

func strVal(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return ""
}

func intVal(v sql.NullInt64) int64 {
	if v.Valid {
		return v.Int64
	}
	return 0
}

func floatVal(v sql.NullFloat64) float64 {
	if v.Valid {
		return v.Float64
	}
	return 0
}

// boolVal tolerates the integer booleans MySQL hands back for TINYINT(1)
// columns as well as real booleans from postgres.
func boolVal(v sql.NullBool) bool {
	return v.Valid && v.Bool
}

func timeVal(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
