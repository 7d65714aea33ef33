package facade

import (
	"context"
	"database/sql"
	"fmt"

	"pipedash/internal/core"
)

// Reconciliation rules and data-quality rules share the same CRUD shape
// against recon_config and dq_config.

func (f *Facade) ListReconRules(ctx context.Context, userID string) ([]core.ReconRule, error) {
	const op = "recon.list"
	h, err := f.readHandle(ctx, userID, op)
	if err != nil || h == nil {
		return []core.ReconRule{}, err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	rows, err := h.DB.QueryContext(qctx, `
		SELECT id, rule_name, source_table, target_table, source_column,
			target_column, tolerance, is_active, created_at
		FROM recon_config ORDER BY id DESC`)
	if err != nil {
		if f.soft(op, err) {
			return []core.ReconRule{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []core.ReconRule{}
	for rows.Next() {
		var (
			r              core.ReconRule
			srcCol, tgtCol sql.NullString
			tolerance      sql.NullFloat64
			active         sql.NullBool
			created        sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.RuleName, &r.SourceTable, &r.TargetTable,
			&srcCol, &tgtCol, &tolerance, &active, &created); err != nil {
			return nil, fmt.Errorf("scan recon rule: %w", err)
		}
		r.SourceColumn = strVal(srcCol)
		r.TargetColumn = strVal(tgtCol)
		r.Tolerance = floatVal(tolerance)
		r.IsActive = boolVal(active)
		r.CreatedAt = timeVal(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (f *Facade) CreateReconRule(ctx context.Context, userID string, r *core.ReconRule) error {
	h, err := f.writeHandle(ctx, userID, "recon_config")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	_, err = h.DB.ExecContext(qctx, h.Rebind(`
		INSERT INTO recon_config
			(rule_name, source_table, target_table, source_column, target_column, tolerance, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.RuleName, r.SourceTable, r.TargetTable, r.SourceColumn,
		r.TargetColumn, r.Tolerance, r.IsActive)
	if err != nil {
		return fmt.Errorf("create recon rule %s: %w", r.RuleName, err)
	}
	return nil
}

func (f *Facade) UpdateReconRule(ctx context.Context, userID string, r *core.ReconRule) error {
	h, err := f.writeHandle(ctx, userID, "recon_config")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	_, err = h.DB.ExecContext(qctx, h.Rebind(`
		UPDATE recon_config SET
			rule_name = ?, source_table = ?, target_table = ?,
			source_column = ?, target_column = ?, tolerance = ?, is_active = ?
		WHERE id = ?`),
		r.RuleName, r.SourceTable, r.TargetTable, r.SourceColumn,
		r.TargetColumn, r.Tolerance, r.IsActive, r.ID)
	if err != nil {
		return fmt.Errorf("update recon rule %d: %w", r.ID, err)
	}
	return nil
}

func (f *Facade) DeleteReconRule(ctx context.Context, userID string, id int64) error {
	h, err := f.writeHandle(ctx, userID, "recon_config")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	if _, err := h.DB.ExecContext(qctx, h.Rebind("DELETE FROM recon_config WHERE id = ?"), id); err != nil {
		return fmt.Errorf("delete recon rule %d: %w", id, err)
	}
	return nil
}

func (f *Facade) ListQualityRules(ctx context.Context, userID string) ([]core.QualityRule, error) {
	const op = "quality.list"
	h, err := f.readHandle(ctx, userID, op)
	if err != nil || h == nil {
		return []core.QualityRule{}, err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	rows, err := h.DB.QueryContext(qctx, `
		SELECT id, rule_name, target_table, target_column, check_type,
			threshold, severity, is_active, created_at
		FROM dq_config ORDER BY id DESC`)
	if err != nil {
		if f.soft(op, err) {
			return []core.QualityRule{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []core.QualityRule{}
	for rows.Next() {
		var (
			r                core.QualityRule
			column, severity sql.NullString
			threshold        sql.NullFloat64
			active           sql.NullBool
			created          sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.RuleName, &r.TargetTable, &column,
			&r.CheckType, &threshold, &severity, &active, &created); err != nil {
			return nil, fmt.Errorf("scan quality rule: %w", err)
		}
		r.TargetColumn = strVal(column)
		r.Threshold = floatVal(threshold)
		r.Severity = strVal(severity)
		r.IsActive = boolVal(active)
		r.CreatedAt = timeVal(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (f *Facade) CreateQualityRule(ctx context.Context, userID string, r *core.QualityRule) error {
	h, err := f.writeHandle(ctx, userID, "dq_config")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	_, err = h.DB.ExecContext(qctx, h.Rebind(`
		INSERT INTO dq_config
			(rule_name, target_table, target_column, check_type, threshold, severity, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.RuleName, r.TargetTable, r.TargetColumn, r.CheckType,
		r.Threshold, r.Severity, r.IsActive)
	if err != nil {
		return fmt.Errorf("create quality rule %s: %w", r.RuleName, err)
	}
	return nil
}

func (f *Facade) UpdateQualityRule(ctx context.Context, userID string, r *core.QualityRule) error {
	h, err := f.writeHandle(ctx, userID, "dq_config")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	_, err = h.DB.ExecContext(qctx, h.Rebind(`
		UPDATE dq_config SET
			rule_name = ?, target_table = ?, target_column = ?,
			check_type = ?, threshold = ?, severity = ?, is_active = ?
		WHERE id = ?`),
		r.RuleName, r.TargetTable, r.TargetColumn, r.CheckType,
		r.Threshold, r.Severity, r.IsActive, r.ID)
	if err != nil {
		return fmt.Errorf("update quality rule %d: %w", r.ID, err)
	}
	return nil
}

func (f *Facade) DeleteQualityRule(ctx context.Context, userID string, id int64) error {
	h, err := f.writeHandle(ctx, userID, "dq_config")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	if _, err := h.DB.ExecContext(qctx, h.Rebind("DELETE FROM dq_config WHERE id = ?"), id); err != nil {
		return fmt.Errorf("delete quality rule %d: %w", id, err)
	}
	return nil
}
