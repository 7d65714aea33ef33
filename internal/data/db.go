package data

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// InitDB opens the admin SQLite database at the given path and runs
// migrations. The admin store holds users, API keys, external-database
// credentials, and connection audit events; the users' actual pipeline
// data never lands here.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

func runMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		is_active INTEGER DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		key_prefix TEXT NOT NULL,
		key_hash TEXT NOT NULL,
		description TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME,
		is_active INTEGER DEFAULT 1,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS user_db_credentials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		db_name TEXT NOT NULL,
		username TEXT NOT NULL,
		password_enc TEXT NOT NULL,
		ssl_mode TEXT NOT NULL DEFAULT 'auto',
		connect_timeout_ms INTEGER NOT NULL DEFAULT 10000,
		is_active INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_credentials_user
		ON user_db_credentials(user_id, is_active, created_at);

	CREATE TABLE IF NOT EXISTS connection_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		user_id TEXT,
		event TEXT,
		detail TEXT
	);
	`
	_, err := db.Exec(schema)
	return err
}
