package facade

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"pipedash/internal/core"
	"pipedash/internal/extdb"
)

// DashboardMetrics aggregates counts across the feature tables. Each
// run/result source is independently optional: a source that is missing
// or failing contributes zero without taking its siblings down, so the
// totals are additive over whatever answered.
func (f *Facade) DashboardMetrics(ctx context.Context, userID string) (*core.DashboardMetrics, error) {
	m := &core.DashboardMetrics{}

	h, err := f.readHandle(ctx, userID, "dashboard.metrics")
	if err != nil {
		return nil, err
	}
	if h == nil {
		return m, nil
	}

	var pipelines, runs, quality, recon atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(f.countInto(gctx, h, "dashboard.pipelines", "pipeline_config", &pipelines))
	g.Go(f.countInto(gctx, h, "dashboard.runs", "pipeline_audit", &runs))
	g.Go(f.countInto(gctx, h, "dashboard.quality", "dq_results", &quality))
	g.Go(f.countInto(gctx, h, "dashboard.recon", "recon_results", &recon))
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m.Pipelines = pipelines.Load()
	m.PipelineRuns = runs.Load()
	m.QualityResults = quality.Load()
	m.ReconResults = recon.Load()
	m.TotalActivities = m.PipelineRuns + m.QualityResults + m.ReconResults
	return m, nil
}

// countInto counts one table's rows into dst. Soft failures leave dst
// at zero and return nil so the errgroup keeps the other sources alive.
func (f *Facade) countInto(ctx context.Context, h *extdb.Handle, op, table string, dst *atomic.Int64) func() error {
	return func() error {
		if cap := f.probe.TableExists(ctx, h, table); !cap.Exists {
			return nil
		}
		qctx, cancel := f.queryCtx(ctx)
		defer cancel()

		var n int64
		err := h.DB.QueryRowContext(qctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
		if err != nil {
			if f.soft(op, err) {
				return nil
			}
			return err
		}
		dst.Store(n)
		return nil
	}
}
