package facade

import (
	"context"
	"database/sql"
	"fmt"

	"pipedash/internal/core"
)

const pipelineColumns = `id, pipeline_name, source_system, target_system,
	schedule_cron, layer, owner, description, is_active, created_at, updated_at`

// ListPipelines returns every pipeline configuration, newest first.
func (f *Facade) ListPipelines(ctx context.Context, userID string) ([]core.PipelineConfig, error) {
	const op = "pipelines.list"
	h, err := f.readHandle(ctx, userID, op)
	if err != nil || h == nil {
		return []core.PipelineConfig{}, err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	rows, err := h.DB.QueryContext(qctx,
		"SELECT "+pipelineColumns+" FROM pipeline_config ORDER BY id DESC")
	if err != nil {
		if f.soft(op, err) {
			return []core.PipelineConfig{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []core.PipelineConfig{}
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (f *Facade) CreatePipeline(ctx context.Context, userID string, p *core.PipelineConfig) error {
	h, err := f.writeHandle(ctx, userID, "pipeline_config")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	_, err = h.DB.ExecContext(qctx, h.Rebind(`
		INSERT INTO pipeline_config
			(pipeline_name, source_system, target_system, schedule_cron, layer, owner, description, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		p.PipelineName, p.SourceSystem, p.TargetSystem, p.ScheduleCron,
		p.Layer, p.Owner, p.Description, p.IsActive)
	if err != nil {
		return fmt.Errorf("create pipeline %s: %w", p.PipelineName, err)
	}
	return nil
}

func (f *Facade) UpdatePipeline(ctx context.Context, userID string, p *core.PipelineConfig) error {
	h, err := f.writeHandle(ctx, userID, "pipeline_config")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	_, err = h.DB.ExecContext(qctx, h.Rebind(`
		UPDATE pipeline_config SET
			pipeline_name = ?, source_system = ?, target_system = ?,
			schedule_cron = ?, layer = ?, owner = ?, description = ?, is_active = ?
		WHERE id = ?`),
		p.PipelineName, p.SourceSystem, p.TargetSystem, p.ScheduleCron,
		p.Layer, p.Owner, p.Description, p.IsActive, p.ID)
	if err != nil {
		return fmt.Errorf("update pipeline %d: %w", p.ID, err)
	}
	return nil
}

func (f *Facade) DeletePipeline(ctx context.Context, userID string, id int64) error {
	h, err := f.writeHandle(ctx, userID, "pipeline_config")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	if _, err := h.DB.ExecContext(qctx, h.Rebind("DELETE FROM pipeline_config WHERE id = ?"), id); err != nil {
		return fmt.Errorf("delete pipeline %d: %w", id, err)
	}
	return nil
}

// ListPipelineRuns returns recent run records from the audit table,
// newest start first.
func (f *Facade) ListPipelineRuns(ctx context.Context, userID string, limit int) ([]core.PipelineRun, error) {
	const op = "pipelines.runs"
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	h, err := f.readHandle(ctx, userID, op)
	if err != nil || h == nil {
		return []core.PipelineRun{}, err
	}
	if cap := f.probe.TableExists(ctx, h, "pipeline_audit"); !cap.Exists {
		return []core.PipelineRun{}, nil
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	rows, err := h.DB.QueryContext(qctx, h.Rebind(`
		SELECT id, pipeline_name, run_id, status, records_processed, started_at, finished_at
		FROM pipeline_audit ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		if f.soft(op, err) {
			return []core.PipelineRun{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []core.PipelineRun{}
	for rows.Next() {
		var (
			r       core.PipelineRun
			runID   sql.NullString
			status  sql.NullString
			records sql.NullInt64
			started sql.NullTime
			done    sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.PipelineName, &runID, &status, &records, &started, &done); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		r.RunID = strVal(runID)
		r.Status = strVal(status)
		r.RecordsProcessed = intVal(records)
		r.StartedAt = timeVal(started)
		r.FinishedAt = timeVal(done)
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanPipeline(rows *sql.Rows) (core.PipelineConfig, error) {
	var (
		p                                         core.PipelineConfig
		source, target, cron, layer, owner, descr sql.NullString
		active                                    sql.NullBool
		created, updated                          sql.NullTime
	)
	err := rows.Scan(&p.ID, &p.PipelineName, &source, &target, &cron,
		&layer, &owner, &descr, &active, &created, &updated)
	if err != nil {
		return p, err
	}
	p.SourceSystem = strVal(source)
	p.TargetSystem = strVal(target)
	p.ScheduleCron = strVal(cron)
	p.Layer = strVal(layer)
	p.Owner = strVal(owner)
	p.Description = strVal(descr)
	p.IsActive = boolVal(active)
	p.CreatedAt = timeVal(created)
	p.UpdatedAt = timeVal(updated)
	return p, nil
}
