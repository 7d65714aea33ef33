package data

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipedash/internal/core"
)

func testApiKeyRepo(t *testing.T) *ApiKeyRepo {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewApiKeyRepo(db)
}

func sampleApiKey(userID int64, prefix string) *core.ApiKey {
	return &core.ApiKey{
		UserID:    userID,
		KeyPrefix: prefix,
		KeyHash:   "hash-" + prefix,
		CreatedAt: time.Now(),
		IsActive:  true,
	}
}

func TestApiKeyListScopedToUser(t *testing.T) {
	repo := testApiKeyRepo(t)

	require.NoError(t, repo.Create(sampleApiKey(1, "aaaa1111")))
	require.NoError(t, repo.Create(sampleApiKey(2, "bbbb2222")))
	require.NoError(t, repo.Create(sampleApiKey(1, "cccc3333")))

	keys, err := repo.ListByUser(1)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, k := range keys {
		assert.Equal(t, int64(1), k.UserID)
	}

	keys, err = repo.ListByUser(2)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "bbbb2222", keys[0].KeyPrefix)
}

func TestApiKeyRevokeScopedToUser(t *testing.T) {
	repo := testApiKeyRepo(t)

	victim := sampleApiKey(2, "bbbb2222")
	require.NoError(t, repo.Create(victim))

	// Another user cannot revoke a key they do not own.
	require.NoError(t, repo.Revoke(victim.ID, 1))
	k, err := repo.GetByHash(victim.KeyHash)
	require.NoError(t, err)
	require.NotNil(t, k, "key must still be active")

	// The owner can.
	require.NoError(t, repo.Revoke(victim.ID, 2))
	k, err = repo.GetByHash(victim.KeyHash)
	require.NoError(t, err)
	assert.Nil(t, k)
}
