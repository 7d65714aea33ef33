package facade

import (
	"context"
	"database/sql"
	"fmt"

	"pipedash/internal/core"
)

// ListDictionary returns data-dictionary entries ordered by table then
// column name.
func (f *Facade) ListDictionary(ctx context.Context, userID string) ([]core.DictionaryEntry, error) {
	const op = "dictionary.list"
	h, err := f.readHandle(ctx, userID, op)
	if err != nil || h == nil {
		return []core.DictionaryEntry{}, err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	rows, err := h.DB.QueryContext(qctx, `
		SELECT id, schema_name, table_name, column_name, data_type,
			business_name, description, layer, is_pii, created_at, updated_at
		FROM data_dictionary ORDER BY table_name, column_name`)
	if err != nil {
		if f.soft(op, err) {
			return []core.DictionaryEntry{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []core.DictionaryEntry{}
	for rows.Next() {
		var (
			e                    core.DictionaryEntry
			schema, dtype        sql.NullString
			business, descr, lay sql.NullString
			pii                  sql.NullBool
			created, updated     sql.NullTime
		)
		if err := rows.Scan(&e.ID, &schema, &e.TableName, &e.ColumnName, &dtype,
			&business, &descr, &lay, &pii, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan dictionary row: %w", err)
		}
		e.SchemaName = strVal(schema)
		e.DataType = strVal(dtype)
		e.BusinessName = strVal(business)
		e.Description = strVal(descr)
		e.Layer = strVal(lay)
		e.IsPII = boolVal(pii)
		e.CreatedAt = timeVal(created)
		e.UpdatedAt = timeVal(updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (f *Facade) CreateDictionaryEntry(ctx context.Context, userID string, e *core.DictionaryEntry) error {
	h, err := f.writeHandle(ctx, userID, "data_dictionary")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	_, err = h.DB.ExecContext(qctx, h.Rebind(`
		INSERT INTO data_dictionary
			(schema_name, table_name, column_name, data_type, business_name, description, layer, is_pii)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		e.SchemaName, e.TableName, e.ColumnName, e.DataType,
		e.BusinessName, e.Description, e.Layer, e.IsPII)
	if err != nil {
		return fmt.Errorf("create dictionary entry %s.%s: %w", e.TableName, e.ColumnName, err)
	}
	return nil
}

func (f *Facade) UpdateDictionaryEntry(ctx context.Context, userID string, e *core.DictionaryEntry) error {
	h, err := f.writeHandle(ctx, userID, "data_dictionary")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	_, err = h.DB.ExecContext(qctx, h.Rebind(`
		UPDATE data_dictionary SET
			schema_name = ?, table_name = ?, column_name = ?, data_type = ?,
			business_name = ?, description = ?, layer = ?, is_pii = ?
		WHERE id = ?`),
		e.SchemaName, e.TableName, e.ColumnName, e.DataType,
		e.BusinessName, e.Description, e.Layer, e.IsPII, e.ID)
	if err != nil {
		return fmt.Errorf("update dictionary entry %d: %w", e.ID, err)
	}
	return nil
}

func (f *Facade) DeleteDictionaryEntry(ctx context.Context, userID string, id int64) error {
	h, err := f.writeHandle(ctx, userID, "data_dictionary")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	if _, err := h.DB.ExecContext(qctx, h.Rebind("DELETE FROM data_dictionary WHERE id = ?"), id); err != nil {
		return fmt.Errorf("delete dictionary entry %d: %w", id, err)
	}
	return nil
}
