package data

import (
	"database/sql"
	"time"

	"pipedash/internal/core"
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Record(e *core.ConnectionEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	res, err := r.db.Exec(
		`INSERT INTO connection_audit (timestamp, user_id, event, detail) VALUES (?, ?, ?, ?)`,
		e.Timestamp, e.UserID, e.Event, e.Detail)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	e.ID = id
	return nil
}

func (r *AuditRepo) GetRecent(limit int) ([]core.ConnectionEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, timestamp, user_id, event, detail FROM connection_audit ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []core.ConnectionEvent
	for rows.Next() {
		var e core.ConnectionEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.UserID, &e.Event, &e.Detail); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.Local()
		events = append(events, e)
	}
	return events, rows.Err()
}
