package extdb

import (
	"context"
	"database/sql"
	"fmt"

	"pipedash/internal/core"
)

// Introspector reads schema structure off a user's external database
// through information_schema, so the same calls work on both engines.
type Introspector struct{}

func NewIntrospector() *Introspector { return &Introspector{} }

// ListSchemas returns user-visible schemas, alphabetically. System
// schemas are filtered out on both engines.
func (in *Introspector) ListSchemas(ctx context.Context, h *Handle) ([]string, error) {
	var q string
	switch h.Engine {
	case EnginePostgres:
		q = `SELECT schema_name FROM information_schema.schemata
		     WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		     ORDER BY schema_name`
	case EngineMySQL:
		q = `SELECT schema_name FROM information_schema.schemata
		     WHERE schema_name NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
		     ORDER BY schema_name`
	default:
		return nil, fmt.Errorf("unknown engine %q", h.Engine)
	}
	return scanStrings(ctx, h.DB, q)
}

// ListTables returns the tables of one schema, alphabetically.
func (in *Introspector) ListTables(ctx context.Context, h *Handle, schema string) ([]string, error) {
	q := h.Rebind(`SELECT table_name FROM information_schema.tables
	     WHERE table_schema = ? AND table_type = 'BASE TABLE'
	     ORDER BY table_name`)
	return scanStrings(ctx, h.DB, q, schema)
}

// ListColumns returns the column names of a table in ordinal order.
func (in *Introspector) ListColumns(ctx context.Context, h *Handle, schema, table string) ([]string, error) {
	q := h.Rebind(`SELECT column_name FROM information_schema.columns
	     WHERE table_schema = ? AND table_name = ?
	     ORDER BY ordinal_position`)
	return scanStrings(ctx, h.DB, q, schema, table)
}

// ListColumnMetadata returns full column detail in ordinal order, with
// primary and foreign key participation resolved through the
// constraint catalogs.
func (in *Introspector) ListColumnMetadata(ctx context.Context, h *Handle, schema, table string) ([]core.ColumnMetadata, error) {
	switch h.Engine {
	case EnginePostgres:
		return in.postgresColumnMetadata(ctx, h, schema, table)
	case EngineMySQL:
		return in.mysqlColumnMetadata(ctx, h, schema, table)
	default:
		return nil, fmt.Errorf("unknown engine %q", h.Engine)
	}
}

func (in *Introspector) postgresColumnMetadata(ctx context.Context, h *Handle, schema, table string) ([]core.ColumnMetadata, error) {
	q := `
		SELECT
			c.column_name,
			c.data_type,
			COALESCE(c.character_maximum_length, 0),
			COALESCE(c.numeric_precision, 0),
			COALESCE(c.numeric_scale, 0),
			c.is_nullable,
			COALESCE(pk.column_name, '') <> '',
			COALESCE(fk.column_name, '') <> '',
			COALESCE(fk.foreign_table, '')
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON kcu.constraint_name = tc.constraint_name
				AND kcu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
				AND tc.table_schema = $1 AND tc.table_name = $2
		) pk ON pk.column_name = c.column_name
		LEFT JOIN (
			SELECT kcu.column_name, ccu.table_name AS foreign_table
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON kcu.constraint_name = tc.constraint_name
				AND kcu.table_schema = tc.table_schema
			JOIN information_schema.constraint_column_usage ccu
				ON ccu.constraint_name = tc.constraint_name
				AND ccu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
				AND tc.table_schema = $1 AND tc.table_name = $2
		) fk ON fk.column_name = c.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`

	rows, err := h.DB.QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, fmt.Errorf("describe %s.%s: %w", schema, table, err)
	}
	defer rows.Close()
	return scanColumnMetadata(rows)
}

func (in *Introspector) mysqlColumnMetadata(ctx context.Context, h *Handle, schema, table string) ([]core.ColumnMetadata, error) {
	q := `
		SELECT
			c.column_name,
			c.data_type,
			COALESCE(c.character_maximum_length, 0),
			COALESCE(c.numeric_precision, 0),
			COALESCE(c.numeric_scale, 0),
			c.is_nullable,
			c.column_key = 'PRI',
			COALESCE(fk.column_name, '') <> '',
			COALESCE(fk.referenced_table_name, '')
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT column_name, referenced_table_name
			FROM information_schema.key_column_usage
			WHERE table_schema = ? AND table_name = ?
				AND referenced_table_name IS NOT NULL
		) fk ON fk.column_name = c.column_name
		WHERE c.table_schema = ? AND c.table_name = ?
		ORDER BY c.ordinal_position`

	rows, err := h.DB.QueryContext(ctx, q, schema, table, schema, table)
	if err != nil {
		return nil, fmt.Errorf("describe %s.%s: %w", schema, table, err)
	}
	defer rows.Close()
	return scanColumnMetadata(rows)
}

func scanColumnMetadata(rows *sql.Rows) ([]core.ColumnMetadata, error) {
	var out []core.ColumnMetadata
	for rows.Next() {
		var (
			m        core.ColumnMetadata
			nullable string
		)
		if err := rows.Scan(&m.AttributeName, &m.DataType, &m.Length, &m.Precision, &m.Scale,
			&nullable, &m.IsPrimaryKey, &m.IsForeignKey, &m.ForeignKeyTable); err != nil {
			return nil, err
		}
		m.IsNotNull = nullable == "NO"
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanStrings(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
