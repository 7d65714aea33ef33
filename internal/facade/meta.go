package facade

import (
	"context"

	"pipedash/internal/core"
)

// Schema browsing pass-throughs. Same degradation contract as the
// feature reads: no database or an unreachable one means empty lists.

func (f *Facade) ListSchemas(ctx context.Context, userID string) ([]string, error) {
	const op = "meta.schemas"
	h, err := f.readHandle(ctx, userID, op)
	if err != nil || h == nil {
		return []string{}, err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	out, err := f.inspector.ListSchemas(qctx, h)
	if err != nil {
		if f.soft(op, err) {
			return []string{}, nil
		}
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (f *Facade) ListTables(ctx context.Context, userID, schema string) ([]string, error) {
	const op = "meta.tables"
	h, err := f.readHandle(ctx, userID, op)
	if err != nil || h == nil {
		return []string{}, err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	out, err := f.inspector.ListTables(qctx, h, schema)
	if err != nil {
		if f.soft(op, err) {
			return []string{}, nil
		}
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (f *Facade) ListColumns(ctx context.Context, userID, schema, table string) ([]string, error) {
	const op = "meta.columns"
	h, err := f.readHandle(ctx, userID, op)
	if err != nil || h == nil {
		return []string{}, err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	out, err := f.inspector.ListColumns(qctx, h, schema, table)
	if err != nil {
		if f.soft(op, err) {
			return []string{}, nil
		}
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (f *Facade) ListColumnMetadata(ctx context.Context, userID, schema, table string) ([]core.ColumnMetadata, error) {
	const op = "meta.columnMetadata"
	h, err := f.readHandle(ctx, userID, op)
	if err != nil || h == nil {
		return []core.ColumnMetadata{}, err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	out, err := f.inspector.ListColumnMetadata(qctx, h, schema, table)
	if err != nil {
		if f.soft(op, err) {
			return []core.ColumnMetadata{}, nil
		}
		return nil, err
	}
	if out == nil {
		out = []core.ColumnMetadata{}
	}
	return out, nil
}
