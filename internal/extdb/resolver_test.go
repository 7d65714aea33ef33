package extdb

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipedash/internal/core"
)

func testCredential(host string, port int) *core.DBCredential {
	return &core.DBCredential{
		ID:        1,
		UserID:    "7",
		Host:      host,
		Port:      port,
		DBName:    "pipelines",
		Username:  "ops",
		SSLMode:   core.SSLModeAuto,
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEngineDispatch(t *testing.T) {
	r := NewResolver(nil, nil, 10*time.Second)

	t.Run("postgres on 5432", func(t *testing.T) {
		cfg, err := r.FromCredential(testCredential("db.internal", 5432), "secret")
		require.NoError(t, err)
		assert.Equal(t, EnginePostgres, cfg.Engine)
	})

	t.Run("mysql on 3306", func(t *testing.T) {
		cfg, err := r.FromCredential(testCredential("db.internal", 3306), "secret")
		require.NoError(t, err)
		assert.Equal(t, EngineMySQL, cfg.Engine)
	})

	t.Run("anything else is rejected before dialing", func(t *testing.T) {
		for _, port := range []int{1433, 1521, 6379, 8080} {
			cfg, err := r.FromCredential(testCredential("db.internal", port), "secret")
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, ErrUnsupportedPort)
		}
	})

	t.Run("dispatch is deterministic", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			cfg, err := r.FromCredential(testCredential("db.internal", 5432), "secret")
			require.NoError(t, err)
			assert.Equal(t, EnginePostgres, cfg.Engine)
		}
	})
}

func TestSSLHeuristic(t *testing.T) {
	r := NewResolver(nil, nil, 10*time.Second)

	cases := []struct {
		name string
		host string
		mode string
		want bool
	}{
		{"managed neon host", "ep-cool-star-123.us-east-2.aws.neon.tech", core.SSLModeAuto, true},
		{"managed supabase host", "db.abcdefgh.supabase.co", core.SSLModeAuto, true},
		{"managed rds host", "prod.cluster-xyz.eu-west-1.rds.amazonaws.com", core.SSLModeAuto, true},
		{"plain host defaults off", "localhost", core.SSLModeAuto, false},
		{"internal docker host defaults off", "warehouse-db", core.SSLModeAuto, false},
		{"require override on plain host", "localhost", core.SSLModeRequire, true},
		{"disable override on managed host", "db.abcdefgh.supabase.co", core.SSLModeDisable, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cred := testCredential(tc.host, 5432)
			cred.SSLMode = tc.mode
			cfg, err := r.FromCredential(cred, "secret")
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.SSLRequired)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	r := NewResolver(nil, nil, 10*time.Second)

	t.Run("ssl required uses url form", func(t *testing.T) {
		cred := testCredential("db.neon.tech", 5432)
		cfg, err := r.FromCredential(cred, "p@ss word")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(cfg.DSN, "postgres://"))
		assert.Contains(t, cfg.DSN, "sslmode=require")
		assert.Contains(t, cfg.DSN, "connect_timeout=10")
		// Password must survive URL encoding
		assert.NotContains(t, cfg.DSN, "p@ss word")
	})

	t.Run("ssl off uses keyword form", func(t *testing.T) {
		cred := testCredential("localhost", 5432)
		cfg, err := r.FromCredential(cred, "secret")
		require.NoError(t, err)
		assert.Contains(t, cfg.DSN, "host=localhost")
		assert.Contains(t, cfg.DSN, "sslmode=disable")
		assert.Contains(t, cfg.DSN, "connect_timeout=10")
	})

	t.Run("keyword values with spaces are quoted", func(t *testing.T) {
		cred := testCredential("localhost", 5432)
		cfg, err := r.FromCredential(cred, "two words")
		require.NoError(t, err)
		assert.Contains(t, cfg.DSN, "password='two words'")
	})

	t.Run("credential timeout overrides default", func(t *testing.T) {
		cred := testCredential("localhost", 5432)
		cred.ConnectTimeoutMs = 3000
		cfg, err := r.FromCredential(cred, "secret")
		require.NoError(t, err)
		assert.Contains(t, cfg.DSN, "connect_timeout=3")
		assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	})
}

func TestMySQLDSN(t *testing.T) {
	r := NewResolver(nil, nil, 10*time.Second)

	t.Run("managed host gets tls", func(t *testing.T) {
		cred := testCredential("mysql.db.aivencloud.com", 3306)
		cfg, err := r.FromCredential(cred, "secret")
		require.NoError(t, err)
		assert.Contains(t, cfg.DSN, "tls=skip-verify")
		assert.Contains(t, cfg.DSN, "timeout=10s")
		assert.Contains(t, cfg.DSN, "parseTime=true")
	})

	t.Run("plain host has no tls param", func(t *testing.T) {
		cred := testCredential("localhost", 3306)
		cfg, err := r.FromCredential(cred, "secret")
		require.NoError(t, err)
		assert.NotContains(t, cfg.DSN, "tls=")
	})
}

func TestFingerprintTracksCredentialGeneration(t *testing.T) {
	r := NewResolver(nil, nil, 10*time.Second)

	cred := testCredential("localhost", 5432)
	cfg1, err := r.FromCredential(cred, "secret")
	require.NoError(t, err)

	same, err := r.FromCredential(cred, "secret")
	require.NoError(t, err)
	assert.Equal(t, cfg1.Fingerprint(), same.Fingerprint())

	cred.UpdatedAt = cred.UpdatedAt.Add(time.Minute)
	changed, err := r.FromCredential(cred, "secret")
	require.NoError(t, err)
	assert.NotEqual(t, cfg1.Fingerprint(), changed.Fingerprint())
}
