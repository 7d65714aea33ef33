package facade

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"pipedash/internal/core"
)

// ListSavedCharts returns the user's saved charts, newest first. A
// database without the saved_charts table simply has no saved charts.
func (f *Facade) ListSavedCharts(ctx context.Context, userID string) ([]core.SavedChart, error) {
	const op = "charts.list"
	h, err := f.readHandle(ctx, userID, op)
	if err != nil || h == nil {
		return []core.SavedChart{}, err
	}
	if cap := f.probe.TableExists(ctx, h, "saved_charts"); !cap.Exists {
		return []core.SavedChart{}, nil
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	rows, err := h.DB.QueryContext(qctx, h.Rebind(`
		SELECT id, user_id, title, chart_type, sql_text, config_json, created_at
		FROM saved_charts WHERE user_id = ? ORDER BY created_at DESC`), userID)
	if err != nil {
		if f.soft(op, err) {
			return []core.SavedChart{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []core.SavedChart{}
	for rows.Next() {
		var (
			c            core.SavedChart
			sqlText, cfg sql.NullString
			created      sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.ChartType, &sqlText, &cfg, &created); err != nil {
			return nil, fmt.Errorf("scan saved chart: %w", err)
		}
		c.SQLText = strVal(sqlText)
		c.ConfigJSON = strVal(cfg)
		c.CreatedAt = timeVal(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveChart stores a chart definition. The saved_charts table must
// already exist on the user's database.
func (f *Facade) SaveChart(ctx context.Context, userID string, c *core.SavedChart) (*core.SavedChart, error) {
	h, err := f.writeHandle(ctx, userID, "saved_charts")
	if err != nil {
		return nil, err
	}

	c.ID = uuid.NewString()
	c.UserID = userID

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	_, err = h.DB.ExecContext(qctx, h.Rebind(`
		INSERT INTO saved_charts (id, user_id, title, chart_type, sql_text, config_json)
		VALUES (?, ?, ?, ?, ?, ?)`),
		c.ID, c.UserID, c.Title, c.ChartType, c.SQLText, c.ConfigJSON)
	if err != nil {
		return nil, fmt.Errorf("save chart %s: %w", c.Title, err)
	}
	return c, nil
}

func (f *Facade) DeleteChart(ctx context.Context, userID, chartID string) error {
	h, err := f.writeHandle(ctx, userID, "saved_charts")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	if _, err := h.DB.ExecContext(qctx,
		h.Rebind("DELETE FROM saved_charts WHERE id = ? AND user_id = ?"), chartID, userID); err != nil {
		return fmt.Errorf("delete chart %s: %w", chartID, err)
	}
	return nil
}
