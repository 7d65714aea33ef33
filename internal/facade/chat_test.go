package facade

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipedash/internal/core"
	"pipedash/internal/extdb"
)

func TestChatTablesEnsuredOncePerHandle(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)

	// First session create runs the DDL
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chat_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chat_messages").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO chat_sessions").
		WithArgs(sqlmock.AnyArg(), "7", "first").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// Second one goes straight to the insert
	mock.ExpectExec("INSERT INTO chat_sessions").
		WithArgs(sqlmock.AnyArg(), "7", "second").
		WillReturnResult(sqlmock.NewResult(1, 1))

	s1, err := f.CreateChatSession(context.Background(), "7", "first")
	require.NoError(t, err)
	assert.NotEmpty(t, s1.ID)
	assert.Equal(t, "7", s1.UserID)

	s2, err := f.CreateChatSession(context.Background(), "7", "second")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendChatMessageTouchesSession(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chat_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chat_messages").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM chat_sessions WHERE id").
		WithArgs("sess-1", "7").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs(sqlmock.AnyArg(), "sess-1", "user", "show failed runs", "", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE chat_sessions SET updated_at").
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	m, err := f.AppendChatMessage(context.Background(), "7", &core.ChatMessage{
		SessionID: "sess-1",
		Role:      "user",
		Content:   "show failed runs",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendChatMessageRejectsForeignSession(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chat_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chat_messages").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// The session exists but belongs to user 8, so user 7 sees no row.
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM chat_sessions WHERE id").
		WithArgs("sess-8", "7").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := f.AppendChatMessage(context.Background(), "7", &core.ChatMessage{
		SessionID: "sess-8",
		Role:      "user",
		Content:   "hello",
	})
	assert.ErrorIs(t, err, ErrNotFound)
	// No insert reached the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteChatSessionScopedToOwner(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)

	expectProbe(mock, "chat_sessions", true)
	mock.ExpectExec("DELETE FROM chat_messages").
		WithArgs("sess-1", "7").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM chat_sessions").
		WithArgs("sess-1", "7").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, f.DeleteChatSession(context.Background(), "7", "sess-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListChatMessagesScopedToOwner(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)

	expectProbe(mock, "chat_messages", true)
	mock.ExpectQuery("FROM chat_messages m").
		WithArgs("sess-1", "7").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "role", "content", "sql_text", "chart_type", "created_at",
		}).
			AddRow("m1", "sess-1", "user", "count orders", nil, nil, nil).
			AddRow("m2", "sess-1", "assistant", "There are 42 orders.", "SELECT COUNT(*) FROM orders", "bar", nil))

	out, err := f.ListChatMessages(context.Background(), "7", "sess-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "user", out[0].Role)
	assert.Empty(t, out[0].SQLText)
	assert.Equal(t, "SELECT COUNT(*) FROM orders", out[1].SQLText)
	assert.Equal(t, "bar", out[1].ChartType)
}

func TestSavedChartsMissingTableIsEmpty(t *testing.T) {
	f, mock := newTestFacade(t, extdb.EngineMySQL)

	expectProbe(mock, "saved_charts", false)

	out, err := f.ListSavedCharts(context.Background(), "7")
	require.NoError(t, err)
	assert.Empty(t, out)

	// Writing still requires the table
	_, err = f.SaveChart(context.Background(), "7", &core.SavedChart{Title: "volume"})
	assert.ErrorIs(t, err, ErrMissingTable)
}
