package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"skill-sync-engine/internal/database"
)

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullInt16(v sql.NullInt16) *int16 {
	if !v.Valid {
		return nil
	}
	n := v.Int16
	return &n
}

// collectUUIDs drains a single-column id result set and closes it.
func collectUUIDs(rows database.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	out := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
