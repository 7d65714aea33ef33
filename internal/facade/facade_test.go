package facade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipedash/internal/core"
	"pipedash/internal/extdb"
)

var mysqlTableMissing = mysql.MySQLError{Number: 1146, Message: "Table 'warehouse.pipeline_audit' doesn't exist"}

// fakeSource stands in for the pool broker.
type fakeSource struct {
	h   *extdb.Handle
	err error
}

func (s *fakeSource) Get(ctx context.Context, userID string) (*extdb.Handle, error) {
	return s.h, s.err
}

func newTestFacade(t *testing.T, engine extdb.Engine) (*Facade, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &extdb.Handle{DB: db, Engine: engine}
	f := New(&fakeSource{h: h}, extdb.NewProbe(time.Minute), 5*time.Second)
	return f, mock
}

func newUnconfiguredFacade(t *testing.T) *Facade {
	t.Helper()
	return New(&fakeSource{}, extdb.NewProbe(time.Minute), 5*time.Second)
}

func expectProbe(mock sqlmock.Sqlmock, table string, exists bool) {
	n := 0
	if exists {
		n = 1
	}
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM information_schema.tables").
		WithArgs(table).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}

func TestUnconfiguredReadsReturnEmpty(t *testing.T) {
	f := newUnconfiguredFacade(t)
	ctx := context.Background()

	metrics, err := f.DashboardMetrics(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, &core.DashboardMetrics{}, metrics)

	pipelines, err := f.ListPipelines(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, pipelines)

	dict, err := f.ListDictionary(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, dict)

	recon, err := f.ListReconRules(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, recon)

	quality, err := f.ListQualityRules(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, quality)

	sessions, err := f.ListChatSessions(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	charts, err := f.ListSavedCharts(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, charts)

	schemas, err := f.ListSchemas(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, schemas)
}

func TestUnconfiguredWritesFail(t *testing.T) {
	f := newUnconfiguredFacade(t)
	ctx := context.Background()

	err := f.CreatePipeline(ctx, "7", &core.PipelineConfig{PipelineName: "orders"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = f.SaveChart(ctx, "7", &core.SavedChart{Title: "daily volume"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = f.CreateChatSession(ctx, "7", "help")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDashboardMetricsAdditive(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)
	mock.MatchExpectationsInOrder(false) // sources are counted concurrently

	expectProbe(mock, "pipeline_config", true)
	expectProbe(mock, "pipeline_audit", true)
	expectProbe(mock, "dq_results", false) // missing source contributes zero
	expectProbe(mock, "recon_results", true)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM pipeline_config").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM pipeline_audit").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM recon_results").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	m, err := f.DashboardMetrics(context.Background(), "7")
	require.NoError(t, err)

	assert.Equal(t, int64(2), m.Pipelines)
	assert.Equal(t, int64(5), m.PipelineRuns)
	assert.Equal(t, int64(0), m.QualityResults)
	assert.Equal(t, int64(3), m.ReconResults)
	assert.Equal(t, int64(8), m.TotalActivities)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardMetricsFailedSourceDegrades(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)
	mock.MatchExpectationsInOrder(false)

	expectProbe(mock, "pipeline_config", true)
	expectProbe(mock, "pipeline_audit", true)
	expectProbe(mock, "dq_results", false)
	expectProbe(mock, "recon_results", false)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM pipeline_config").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	// The runs table vanished between probe and count (dropped mid-flight)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM pipeline_audit").
		WillReturnError(&mysqlTableMissing)

	m, err := f.DashboardMetrics(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, int64(4), m.Pipelines)
	assert.Equal(t, int64(0), m.PipelineRuns)
	assert.Equal(t, int64(0), m.TotalActivities)
}

func TestListPipelinesMapsRows(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)

	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM pipeline_config").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "pipeline_name", "source_system", "target_system",
			"schedule_cron", "layer", "owner", "description", "is_active",
			"created_at", "updated_at",
		}).
			AddRow(2, "orders_daily", "sap", "warehouse", "0 2 * * *", "silver", "data-eng", "Daily orders load", true, created, created).
			AddRow(1, "legacy_sync", nil, nil, nil, nil, nil, nil, nil, nil, nil))

	out, err := f.ListPipelines(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "orders_daily", out[0].PipelineName)
	assert.Equal(t, "sap", out[0].SourceSystem)
	assert.Equal(t, "0 2 * * *", out[0].ScheduleCron)
	assert.True(t, out[0].IsActive)
	require.NotNil(t, out[0].CreatedAt)
	assert.Equal(t, created, *out[0].CreatedAt)

	// NULL columns map to zero values, never a scan failure
	assert.Equal(t, "legacy_sync", out[1].PipelineName)
	assert.Empty(t, out[1].SourceSystem)
	assert.False(t, out[1].IsActive)
	assert.Nil(t, out[1].CreatedAt)
}

func TestCreatePipelineBindsEveryField(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)

	expectProbe(mock, "pipeline_config", true)
	mock.ExpectExec("INSERT INTO pipeline_config").
		WithArgs("orders_daily", "sap", "warehouse", "0 2 * * *", "silver", "data-eng", "Daily orders load", true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := f.CreatePipeline(context.Background(), "7", &core.PipelineConfig{
		PipelineName: "orders_daily",
		SourceSystem: "sap",
		TargetSystem: "warehouse",
		ScheduleCron: "0 2 * * *",
		Layer:        "silver",
		Owner:        "data-eng",
		Description:  "Daily orders load",
		IsActive:     true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteWithoutTableFails(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)

	expectProbe(mock, "recon_config", false)

	err := f.CreateReconRule(context.Background(), "7", &core.ReconRule{RuleName: "row counts"})
	assert.ErrorIs(t, err, ErrMissingTable)
}

func TestWriteProbeFailureIsNotMissingTable(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)

	// The existence check itself fails; that must not read as a schema
	// problem.
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM information_schema.tables").
		WithArgs("saved_charts").
		WillReturnError(errors.New("dial tcp 10.0.0.5:3306: connect: connection refused"))

	_, err := f.SaveChart(context.Background(), "7", &core.SavedChart{Title: "volume"})
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.NotErrorIs(t, err, ErrMissingTable)
}

func TestSoftFailureReturnsEmptyList(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)

	mock.ExpectQuery("FROM data_dictionary").WillReturnError(&mysqlTableMissing)

	out, err := f.ListDictionary(context.Background(), "7")
	require.NoError(t, err)
	assert.Empty(t, out)
}
