package extdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockHandle(t *testing.T, engine Engine, fingerprint string) (*Handle, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Handle{DB: db, Engine: engine, fingerprint: fingerprint}, mock
}

func TestProbeTableExists(t *testing.T) {
	t.Run("mysql found", func(t *testing.T) {
		h, mock := mockHandle(t, EngineMySQL, "fp1")
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM information_schema.tables").
			WithArgs("pipeline_config").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		p := NewProbe(time.Minute)
		res := p.TableExists(context.Background(), h, "pipeline_config")
		assert.True(t, res.Exists)
		assert.Empty(t, res.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("postgres missing", func(t *testing.T) {
		h, mock := mockHandle(t, EnginePostgres, "fp2")
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM information_schema.tables").
			WithArgs("dq_results").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		p := NewProbe(time.Minute)
		res := p.TableExists(context.Background(), h, "dq_results")
		assert.False(t, res.Exists)
		assert.Empty(t, res.Reason)
	})

	t.Run("probe failure degrades with a reason", func(t *testing.T) {
		h, mock := mockHandle(t, EngineMySQL, "fp3")
		mock.ExpectQuery("SELECT COUNT").
			WithArgs("recon_results").
			WillReturnError(errors.New("connection refused"))

		p := NewProbe(time.Minute)
		res := p.TableExists(context.Background(), h, "recon_results")
		assert.False(t, res.Exists)
		assert.Contains(t, res.Reason, "connection refused")
	})
}

func TestProbeCaches(t *testing.T) {
	h, mock := mockHandle(t, EngineMySQL, "fp4")
	// Only one round trip expected for repeated asks
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("pipeline_config").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	p := NewProbe(time.Minute)
	for i := 0; i < 5; i++ {
		res := p.TableExists(context.Background(), h, "pipeline_config")
		assert.True(t, res.Exists)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProbeKeyedByFingerprint(t *testing.T) {
	p := NewProbe(time.Minute)

	h1, mock1 := mockHandle(t, EngineMySQL, "gen1")
	mock1.ExpectQuery("SELECT COUNT").
		WithArgs("saved_charts").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	assert.False(t, p.TableExists(context.Background(), h1, "saved_charts").Exists)

	// A replaced credential gets a fresh answer, not the stale cache entry.
	h2, mock2 := mockHandle(t, EngineMySQL, "gen2")
	mock2.ExpectQuery("SELECT COUNT").
		WithArgs("saved_charts").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	assert.True(t, p.TableExists(context.Background(), h2, "saved_charts").Exists)
}

func TestProbeDoesNotCacheFailures(t *testing.T) {
	p := NewProbe(time.Minute)

	h, mock := mockHandle(t, EngineMySQL, "gen1")
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("pipeline_config").
		WillReturnError(errors.New("connection refused"))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("pipeline_config").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	res := p.TableExists(context.Background(), h, "pipeline_config")
	assert.False(t, res.Exists)
	assert.Contains(t, res.Reason, "connection refused")

	// A failed check is retried on the next ask, not pinned for the TTL.
	res = p.TableExists(context.Background(), h, "pipeline_config")
	assert.True(t, res.Exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProbeInvalidateScopedToUser(t *testing.T) {
	p := NewProbe(time.Minute)

	h7, mock7 := mockHandle(t, EngineMySQL, "gen1")
	h7.UserID = "7"
	h8, mock8 := mockHandle(t, EngineMySQL, "gen1")
	h8.UserID = "8"

	mock7.ExpectQuery("SELECT COUNT").
		WithArgs("chat_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock8.ExpectQuery("SELECT COUNT").
		WithArgs("chat_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	assert.False(t, p.TableExists(context.Background(), h7, "chat_sessions").Exists)
	assert.False(t, p.TableExists(context.Background(), h8, "chat_sessions").Exists)

	p.Invalidate("7")

	// User 7 probes again; user 8 is still served from cache.
	mock7.ExpectQuery("SELECT COUNT").
		WithArgs("chat_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	assert.True(t, p.TableExists(context.Background(), h7, "chat_sessions").Exists)
	assert.False(t, p.TableExists(context.Background(), h8, "chat_sessions").Exists)

	assert.NoError(t, mock7.ExpectationsWereMet())
	assert.NoError(t, mock8.ExpectationsWereMet())
}
