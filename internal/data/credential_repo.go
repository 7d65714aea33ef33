package data

import (
	"database/sql"
	"time"

	"pipedash/internal/core"
)

type CredentialRepo struct {
	db *sql.DB
}

func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Save inserts a new active credential for the user and deactivates any
// prior active rows in the same transaction. Rows are never deleted so
// the registration history stays auditable.
func (r *CredentialRepo) Save(cred *core.DBCredential) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.Exec(
		`UPDATE user_db_credentials SET is_active=0, updated_at=? WHERE user_id=? AND is_active=1`,
		now, cred.UserID); err != nil {
		return err
	}

	if cred.SSLMode == "" {
		cred.SSLMode = core.SSLModeAuto
	}
	if cred.ConnectTimeoutMs <= 0 {
		cred.ConnectTimeoutMs = 10_000
	}

	res, err := tx.Exec(
		`INSERT INTO user_db_credentials
			(user_id, host, port, db_name, username, password_enc, ssl_mode, connect_timeout_ms, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		cred.UserID, cred.Host, cred.Port, cred.DBName, cred.Username,
		cred.PasswordEnc, cred.SSLMode, cred.ConnectTimeoutMs, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	cred.ID = id
	cred.IsActive = true
	cred.CreatedAt = now
	cred.UpdatedAt = now

	return tx.Commit()
}

// GetActive returns the newest active credential for the user, or nil
// when none exists. A missing credential is a normal state, not an error.
func (r *CredentialRepo) GetActive(userID string) (*core.DBCredential, error) {
	row := r.db.QueryRow(
		`SELECT id, user_id, host, port, db_name, username, password_enc, ssl_mode,
			connect_timeout_ms, is_active, created_at, updated_at
		 FROM user_db_credentials
		 WHERE user_id=? AND is_active=1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, userID)

	cred, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// Deactivate soft-deletes the user's active credential rows.
func (r *CredentialRepo) Deactivate(userID string) error {
	_, err := r.db.Exec(
		`UPDATE user_db_credentials SET is_active=0, updated_at=? WHERE user_id=? AND is_active=1`,
		time.Now(), userID)
	return err
}

// History lists the user's credential rows newest-first, including
// deactivated ones.
func (r *CredentialRepo) History(userID string, limit int) ([]core.DBCredential, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, host, port, db_name, username, password_enc, ssl_mode,
			connect_timeout_ms, is_active, created_at, updated_at
		 FROM user_db_credentials
		 WHERE user_id=?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []core.DBCredential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *cred)
	}
	return creds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*core.DBCredential, error) {
	var c core.DBCredential
	// SQLite stores booleans as integers (0 or 1)
	var isActive int
	err := row.Scan(&c.ID, &c.UserID, &c.Host, &c.Port, &c.DBName, &c.Username,
		&c.PasswordEnc, &c.SSLMode, &c.ConnectTimeoutMs, &isActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.IsActive = isActive == 1
	return &c, nil
}
