package facade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"pipedash/internal/extdb"
)

const (
	defaultMaxRows = 1000
	hardMaxRows    = 5000
)

// ExecutionResult carries the rows a user-submitted statement produced.
type ExecutionResult struct {
	Columns  []string                 `json:"columns"`
	Rows     []map[string]interface{} `json:"rows"`
	RowCount int                      `json:"rowCount"`
}

// ExecuteQuery runs one SELECT against the user's database and returns
// at most maxRows rows. The statement is validated with EXPLAIN before
// it runs, so syntax errors and missing tables come back as a rejection
// rather than a half-executed query.
func (f *Facade) ExecuteQuery(ctx context.Context, userID, sqlText string, maxRows int) (*ExecutionResult, error) {
	h, err := f.broker.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrNotConfigured
	}
	return f.runStatement(ctx, h, sqlText, maxRows)
}

// ValidateSQL checks a statement without executing it. A nil error
// means the database accepted the plan.
func (f *Facade) ValidateSQL(ctx context.Context, userID, sqlText string) error {
	h, err := f.broker.Get(ctx, userID)
	if err != nil {
		return err
	}
	if h == nil {
		return ErrNotConfigured
	}
	stmt, err := checkStatement(sqlText)
	if err != nil {
		return err
	}
	return f.explain(ctx, h, stmt)
}

// RunSavedChart executes the SQL stored with a saved chart. This is
// what turns a saved definition back into data.
func (f *Facade) RunSavedChart(ctx context.Context, userID, chartID string) (*ExecutionResult, error) {
	h, err := f.broker.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrNotConfigured
	}

	qctx, cancel := f.queryCtx(ctx)
	var sqlText sql.NullString
	err = h.DB.QueryRowContext(qctx,
		h.Rebind("SELECT sql_text FROM saved_charts WHERE id = ? AND user_id = ?"),
		chartID, userID).Scan(&sqlText)
	cancel()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chart %s: %w", chartID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load chart %s: %w", chartID, err)
	}
	if strVal(sqlText) == "" {
		return nil, fmt.Errorf("%w: chart %s has no query", ErrQueryRejected, chartID)
	}
	return f.runStatement(ctx, h, sqlText.String, defaultMaxRows)
}

func (f *Facade) runStatement(ctx context.Context, h *extdb.Handle, sqlText string, maxRows int) (*ExecutionResult, error) {
	if maxRows <= 0 || maxRows > hardMaxRows {
		maxRows = defaultMaxRows
	}
	stmt, err := checkStatement(sqlText)
	if err != nil {
		return nil, err
	}
	if err := f.explain(ctx, h, stmt); err != nil {
		return nil, err
	}

	// Cap the result server-side when the statement does not limit
	// itself.
	if !strings.Contains(strings.ToUpper(stmt), "LIMIT") {
		stmt = fmt.Sprintf("%s LIMIT %d", stmt, maxRows)
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	rows, err := h.DB.QueryContext(qctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []map[string]interface{}{}
	for len(out) < maxRows && rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range columns {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rowMap := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				rowMap[col] = string(b)
			} else {
				rowMap[col] = values[i]
			}
		}
		out = append(out, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ExecutionResult{Columns: columns, Rows: out, RowCount: len(out)}, nil
}

// checkStatement normalizes a user statement and restricts it to the
// read-only shapes the dashboard runs.
func checkStatement(sqlText string) (string, error) {
	stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sqlText), ";"))
	if stmt == "" {
		return "", fmt.Errorf("%w: empty statement", ErrQueryRejected)
	}
	upper := strings.ToUpper(stmt)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", fmt.Errorf("%w: only SELECT statements can be executed", ErrQueryRejected)
	}
	return stmt, nil
}

// explain asks the database to plan the statement. That catches syntax
// errors and missing tables or columns without touching any data.
func (f *Facade) explain(ctx context.Context, h *extdb.Handle, stmt string) error {
	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	rows, err := h.DB.QueryContext(qctx, "EXPLAIN "+stmt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQueryRejected, err)
	}
	rows.Close()
	return nil
}
