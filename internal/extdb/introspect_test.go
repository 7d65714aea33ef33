package extdb

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	pg := &Handle{Engine: EnginePostgres}
	my := &Handle{Engine: EngineMySQL}

	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2",
		pg.Rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?",
		my.Rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	// Question marks inside string literals stay put
	assert.Equal(t, "SELECT 'really?' WHERE a = $1",
		pg.Rebind("SELECT 'really?' WHERE a = ?"))
}

func TestListSchemas(t *testing.T) {
	h, mock := mockHandle(t, EnginePostgres, "fp")
	mock.ExpectQuery("SELECT schema_name FROM information_schema.schemata").
		WillReturnRows(sqlmock.NewRows([]string{"schema_name"}).
			AddRow("analytics").AddRow("public").AddRow("staging"))

	in := NewIntrospector()
	schemas, err := in.ListSchemas(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, []string{"analytics", "public", "staging"}, schemas)
}

func TestListTables(t *testing.T) {
	h, mock := mockHandle(t, EngineMySQL, "fp")
	mock.ExpectQuery("SELECT table_name FROM information_schema.tables").
		WithArgs("warehouse").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("dim_customer").AddRow("fact_orders"))

	in := NewIntrospector()
	tables, err := in.ListTables(context.Background(), h, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, []string{"dim_customer", "fact_orders"}, tables)
}

func TestListColumnsOrdinalOrder(t *testing.T) {
	h, mock := mockHandle(t, EnginePostgres, "fp")
	// Rows arrive in ordinal_position order and must stay that way,
	// not be resorted alphabetically.
	mock.ExpectQuery("SELECT column_name FROM information_schema.columns").
		WithArgs("public", "fact_orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).
			AddRow("id").AddRow("customer_id").AddRow("amount").AddRow("created_at"))

	in := NewIntrospector()
	cols, err := in.ListColumns(context.Background(), h, "public", "fact_orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "customer_id", "amount", "created_at"}, cols)
}

func TestListColumnMetadata(t *testing.T) {
	metaCols := []string{"column_name", "data_type", "length", "precision", "scale",
		"is_nullable", "is_pk", "is_fk", "fk_table"}

	t.Run("postgres", func(t *testing.T) {
		h, mock := mockHandle(t, EnginePostgres, "fp")
		mock.ExpectQuery("FROM information_schema.columns c").
			WithArgs("public", "fact_orders").
			WillReturnRows(sqlmock.NewRows(metaCols).
				AddRow("id", "bigint", 0, 64, 0, "NO", true, false, "").
				AddRow("customer_id", "bigint", 0, 64, 0, "NO", false, true, "dim_customer").
				AddRow("note", "character varying", 255, 0, 0, "YES", false, false, ""))

		in := NewIntrospector()
		meta, err := in.ListColumnMetadata(context.Background(), h, "public", "fact_orders")
		require.NoError(t, err)
		require.Len(t, meta, 3)

		assert.Equal(t, "id", meta[0].AttributeName)
		assert.True(t, meta[0].IsPrimaryKey)
		assert.True(t, meta[0].IsNotNull)

		assert.True(t, meta[1].IsForeignKey)
		assert.Equal(t, "dim_customer", meta[1].ForeignKeyTable)

		assert.Equal(t, int64(255), meta[2].Length)
		assert.False(t, meta[2].IsNotNull)
	})

	t.Run("mysql", func(t *testing.T) {
		h, mock := mockHandle(t, EngineMySQL, "fp")
		mock.ExpectQuery("FROM information_schema.columns c").
			WithArgs("warehouse", "fact_orders", "warehouse", "fact_orders").
			WillReturnRows(sqlmock.NewRows(metaCols).
				AddRow("id", "bigint", 0, 20, 0, "NO", true, false, "").
				AddRow("amount", "decimal", 0, 10, 2, "YES", false, false, ""))

		in := NewIntrospector()
		meta, err := in.ListColumnMetadata(context.Background(), h, "warehouse", "fact_orders")
		require.NoError(t, err)
		require.Len(t, meta, 2)
		assert.Equal(t, int64(10), meta[1].Precision)
		assert.Equal(t, int64(2), meta[1].Scale)
	})
}
