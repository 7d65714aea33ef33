package data

import (
	"database/sql"
	"time"

	"pipedash/internal/core"
)

type ApiKeyRepo struct {
	db *sql.DB
}

func NewApiKeyRepo(db *sql.DB) *ApiKeyRepo {
	return &ApiKeyRepo{db: db}
}

func (r *ApiKeyRepo) Create(key *core.ApiKey) error {
	res, err := r.db.Exec(
		`INSERT INTO api_keys (user_id, key_prefix, key_hash, description, created_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key.UserID, key.KeyPrefix, key.KeyHash, key.Description, key.CreatedAt, key.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	key.ID = id
	return nil
}

func (r *ApiKeyRepo) ListByUser(userID int64) ([]core.ApiKey, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, key_prefix, description, created_at, last_used_at, is_active
		 FROM api_keys
		 WHERE user_id = ?
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []core.ApiKey
	for rows.Next() {
		var k core.ApiKey
		var lastUsed sql.NullTime
		var desc sql.NullString
		var isActive int
		if err := rows.Scan(&k.ID, &k.UserID, &k.KeyPrefix, &desc, &k.CreatedAt, &lastUsed, &isActive); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			k.LastUsedAt = &lastUsed.Time
		}
		if desc.Valid {
			k.Description = desc.String
		}
		k.IsActive = isActive == 1
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *ApiKeyRepo) GetByHash(hash string) (*core.ApiKey, error) {
	row := r.db.QueryRow(
		`SELECT id, user_id, key_prefix, key_hash, description, created_at, last_used_at, is_active
		 FROM api_keys
		 WHERE key_hash = ? AND is_active = 1`, hash)

	var k core.ApiKey
	var lastUsed sql.NullTime
	var desc sql.NullString
	var isActive int
	if err := row.Scan(&k.ID, &k.UserID, &k.KeyPrefix, &k.KeyHash, &desc, &k.CreatedAt, &lastUsed, &isActive); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if lastUsed.Valid {
		k.LastUsedAt = &lastUsed.Time
	}
	if desc.Valid {
		k.Description = desc.String
	}
	k.IsActive = isActive == 1
	return &k, nil
}

func (r *ApiKeyRepo) Revoke(id, userID int64) error {
	_, err := r.db.Exec(`UPDATE api_keys SET is_active = 0 WHERE id = ? AND user_id = ?`, id, userID)
	return err
}

func (r *ApiKeyRepo) UpdateLastUsed(id int64) error {
	_, err := r.db.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, time.Now(), id)
	return err
}
