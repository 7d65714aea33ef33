package data

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipedash/internal/core"
)

func testRepo(t *testing.T) *CredentialRepo {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCredentialRepo(db)
}

func sampleCredential(userID string) *core.DBCredential {
	return &core.DBCredential{
		UserID:      userID,
		Host:        "db.internal",
		Port:        5432,
		DBName:      "pipelines",
		Username:    "ops",
		PasswordEnc: "ZW5jcnlwdGVk",
	}
}

func TestCredentialSaveAndGetActive(t *testing.T) {
	repo := testRepo(t)

	cred := sampleCredential("7")
	require.NoError(t, repo.Save(cred))
	assert.NotZero(t, cred.ID)
	assert.True(t, cred.IsActive)
	assert.Equal(t, core.SSLModeAuto, cred.SSLMode, "missing ssl_mode defaults to auto")
	assert.Equal(t, 10_000, cred.ConnectTimeoutMs)

	got, err := repo.GetActive("7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cred.ID, got.ID)
	assert.Equal(t, "db.internal", got.Host)
	assert.Equal(t, 5432, got.Port)
}

func TestCredentialGetActiveWhenNoneIsNil(t *testing.T) {
	repo := testRepo(t)

	got, err := repo.GetActive("nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCredentialUpdateDeactivatesPrior(t *testing.T) {
	repo := testRepo(t)

	first := sampleCredential("7")
	require.NoError(t, repo.Save(first))

	second := sampleCredential("7")
	second.Host = "db2.internal"
	second.Port = 3306
	require.NoError(t, repo.Save(second))

	got, err := repo.GetActive("7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID, "newest active row wins")
	assert.Equal(t, "db2.internal", got.Host)

	// The old row stays in history, deactivated
	hist, err := repo.History("7", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)

	active := 0
	for _, h := range hist {
		if h.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestCredentialDeactivate(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.Save(sampleCredential("7")))
	require.NoError(t, repo.Deactivate("7"))

	got, err := repo.GetActive("7")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Other users are untouched
	require.NoError(t, repo.Save(sampleCredential("8")))
	require.NoError(t, repo.Deactivate("7"))
	got, err = repo.GetActive("8")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestCredentialIsolationBetweenUsers(t *testing.T) {
	repo := testRepo(t)

	a := sampleCredential("7")
	require.NoError(t, repo.Save(a))

	b := sampleCredential("8")
	b.Host = "other.internal"
	require.NoError(t, repo.Save(b))

	got, err := repo.GetActive("7")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", got.Host)

	got, err = repo.GetActive("8")
	require.NoError(t, err)
	assert.Equal(t, "other.internal", got.Host)
}
