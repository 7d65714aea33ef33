package facade

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"pipedash/internal/core"
	"pipedash/internal/extdb"
)

// Chat history lives in the user's own database. Unlike the other
// feature tables pipedash creates these itself, because chat is a
// dashboard feature rather than pipeline metadata the user already has.
// CREATE TABLE IF NOT EXISTS keeps the migration idempotent; ensured
// tracks which handle generations have already run it.

type chatEnsurer struct {
	mu      sync.Mutex
	ensured map[string]bool
}

func (e *chatEnsurer) done(fingerprint string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensured[fingerprint]
}

func (e *chatEnsurer) mark(fingerprint string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ensured == nil {
		e.ensured = make(map[string]bool)
	}
	e.ensured[fingerprint] = true
}

var chatDDL = map[extdb.Engine][]string{
	extdb.EnginePostgres: {
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id VARCHAR(36) PRIMARY KEY,
			session_id VARCHAR(36) NOT NULL,
			role VARCHAR(16) NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			sql_text TEXT,
			chart_type VARCHAR(32),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages (session_id)`,
	},
	extdb.EngineMySQL: {
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			title TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id VARCHAR(36) PRIMARY KEY,
			session_id VARCHAR(36) NOT NULL,
			role VARCHAR(16) NOT NULL,
			content TEXT NOT NULL,
			sql_text TEXT,
			chart_type VARCHAR(32),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_chat_messages_session (session_id)
		)`,
	},
}

// ensureChatTables runs the chat DDL once per handle generation. The
// statements are idempotent, so a lost race just runs them twice.
func (f *Facade) ensureChatTables(ctx context.Context, h *extdb.Handle) error {
	if f.chat.done(h.Fingerprint()) {
		return nil
	}
	for _, ddl := range chatDDL[h.Engine] {
		qctx, cancel := f.queryCtx(ctx)
		_, err := h.DB.ExecContext(qctx, ddl)
		cancel()
		if err != nil {
			return fmt.Errorf("ensure chat tables: %w", err)
		}
	}
	f.chat.mark(h.Fingerprint())
	return nil
}

// CreateChatSession opens a new session and returns it.
func (f *Facade) CreateChatSession(ctx context.Context, userID, title string) (*core.ChatSession, error) {
	h, err := f.broker.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrNotConfigured
	}
	if err := f.ensureChatTables(ctx, h); err != nil {
		return nil, err
	}

	s := &core.ChatSession{ID: uuid.NewString(), UserID: userID, Title: title}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()
	_, err = h.DB.ExecContext(qctx,
		h.Rebind("INSERT INTO chat_sessions (id, user_id, title) VALUES (?, ?, ?)"),
		s.ID, s.UserID, s.Title)
	if err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}
	return s, nil
}

// ListChatSessions returns the user's sessions, most recently updated
// first. No configured database or no chat tables yet means no history.
func (f *Facade) ListChatSessions(ctx context.Context, userID string) ([]core.ChatSession, error) {
	const op = "chat.sessions"
	h, err := f.readHandle(ctx, userID, op)
	if err != nil || h == nil {
		return []core.ChatSession{}, err
	}
	if cap := f.probe.TableExists(ctx, h, "chat_sessions"); !cap.Exists {
		return []core.ChatSession{}, nil
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	rows, err := h.DB.QueryContext(qctx, h.Rebind(`
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_sessions WHERE user_id = ? ORDER BY updated_at DESC`), userID)
	if err != nil {
		if f.soft(op, err) {
			return []core.ChatSession{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []core.ChatSession{}
	for rows.Next() {
		var (
			s                core.ChatSession
			title            sql.NullString
			created, updated sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.UserID, &title, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		s.Title = strVal(title)
		s.CreatedAt = timeVal(created)
		s.UpdatedAt = timeVal(updated)
		out = append(out, s)
	}
	return out, rows.Err()
}

// AppendChatMessage stores one message and bumps the session's
// updated_at so the session list keeps its recency order.
func (f *Facade) AppendChatMessage(ctx context.Context, userID string, m *core.ChatMessage) (*core.ChatMessage, error) {
	h, err := f.broker.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrNotConfigured
	}
	if err := f.ensureChatTables(ctx, h); err != nil {
		return nil, err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	// The session must belong to the caller; on a shared database the
	// session id alone proves nothing.
	var owned int
	err = h.DB.QueryRowContext(qctx,
		h.Rebind("SELECT COUNT(*) FROM chat_sessions WHERE id = ? AND user_id = ?"),
		m.SessionID, userID).Scan(&owned)
	if err != nil {
		return nil, fmt.Errorf("check chat session %s: %w", m.SessionID, err)
	}
	if owned == 0 {
		return nil, fmt.Errorf("chat session %s: %w", m.SessionID, ErrNotFound)
	}

	m.ID = uuid.NewString()

	_, err = h.DB.ExecContext(qctx, h.Rebind(`
		INSERT INTO chat_messages (id, session_id, role, content, sql_text, chart_type)
		VALUES (?, ?, ?, ?, ?, ?)`),
		m.ID, m.SessionID, m.Role, m.Content, m.SQLText, m.ChartType)
	if err != nil {
		return nil, fmt.Errorf("append chat message: %w", err)
	}

	_, err = h.DB.ExecContext(qctx,
		h.Rebind("UPDATE chat_sessions SET updated_at = CURRENT_TIMESTAMP WHERE id = ?"), m.SessionID)
	if err != nil {
		return nil, fmt.Errorf("touch chat session %s: %w", m.SessionID, err)
	}
	return m, nil
}

// ListChatMessages returns a session's messages oldest first.
func (f *Facade) ListChatMessages(ctx context.Context, userID, sessionID string) ([]core.ChatMessage, error) {
	const op = "chat.messages"
	h, err := f.readHandle(ctx, userID, op)
	if err != nil || h == nil {
		return []core.ChatMessage{}, err
	}
	if cap := f.probe.TableExists(ctx, h, "chat_messages"); !cap.Exists {
		return []core.ChatMessage{}, nil
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	rows, err := h.DB.QueryContext(qctx, h.Rebind(`
		SELECT m.id, m.session_id, m.role, m.content, m.sql_text, m.chart_type, m.created_at
		FROM chat_messages m
		JOIN chat_sessions s ON s.id = m.session_id
		WHERE m.session_id = ? AND s.user_id = ?
		ORDER BY m.created_at ASC`), sessionID, userID)
	if err != nil {
		if f.soft(op, err) {
			return []core.ChatMessage{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []core.ChatMessage{}
	for rows.Next() {
		var (
			m               core.ChatMessage
			sqlText, chartT sql.NullString
			created         sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &sqlText, &chartT, &created); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.SQLText = strVal(sqlText)
		m.ChartType = strVal(chartT)
		m.CreatedAt = timeVal(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteChatSession removes a session and its messages.
func (f *Facade) DeleteChatSession(ctx context.Context, userID, sessionID string) error {
	h, err := f.writeHandle(ctx, userID, "chat_sessions")
	if err != nil {
		return err
	}

	qctx, cancel := f.queryCtx(ctx)
	defer cancel()

	// Scope the message purge through the owning session row so one
	// user cannot empty another's session.
	if _, err := h.DB.ExecContext(qctx, h.Rebind(`
		DELETE FROM chat_messages
		WHERE session_id IN (SELECT id FROM chat_sessions WHERE id = ? AND user_id = ?)`),
		sessionID, userID); err != nil {
		return fmt.Errorf("delete chat messages for %s: %w", sessionID, err)
	}
	if _, err := h.DB.ExecContext(qctx,
		h.Rebind("DELETE FROM chat_sessions WHERE id = ? AND user_id = ?"), sessionID, userID); err != nil {
		return fmt.Errorf("delete chat session %s: %w", sessionID, err)
	}
	return nil
}
