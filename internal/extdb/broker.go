package extdb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pipedash/internal/core"
	"pipedash/internal/logger"
	"pipedash/internal/observe"
)

// Handle wraps an open pool for one user's external database.
type Handle struct {
	DB          *sql.DB
	Engine      Engine
	UserID      string
	SSLRequired bool
	CreatedAt   time.Time

	fingerprint string
}

// Fingerprint identifies the credential generation this handle was
// opened from.
func (h *Handle) Fingerprint() string { return h.fingerprint }

// Rebind rewrites ? placeholders into the engine's native form. MySQL
// passes through untouched; postgres gets $1..$n. Question marks inside
// single-quoted literals are left alone.
func (h *Handle) Rebind(query string) string {
	if h.Engine != EnginePostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PoolOptions tune every pool the broker opens.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Broker owns one lazily opened pool per user. Pools are created on
// first use, deduplicated under concurrent first use, and replaced when
// the credential they were opened from changes.
type Broker struct {
	resolver *Resolver
	opts     PoolOptions

	mu    sync.Mutex
	pools map[string]*Handle
	group singleflight.Group

	// openFn exists so tests can count and fake pool creation.
	openFn func(ctx context.Context, cfg *ResolvedConfig) (*sql.DB, error)
}

func NewBroker(resolver *Resolver, opts PoolOptions) *Broker {
	b := &Broker{
		resolver: resolver,
		opts:     opts,
		pools:    make(map[string]*Handle),
	}
	b.openFn = b.defaultOpen
	return b
}

// Get returns the user's pool, opening it if needed. It returns
// (nil, nil) when the user has no credential configured; callers treat
// that as "no external database" and answer with empty results.
func (b *Broker) Get(ctx context.Context, userID string) (*Handle, error) {
	cfg, err := b.resolver.Resolve(userID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		// A credential may have been deactivated since the pool opened.
		b.Invalidate(userID)
		return nil, nil
	}

	b.mu.Lock()
	if h, ok := b.pools[userID]; ok {
		if h.fingerprint == cfg.Fingerprint() {
			b.mu.Unlock()
			return h, nil
		}
		// Stale generation: close before the replacement opens so we
		// never hold two pools against the same server.
		delete(b.pools, userID)
		b.mu.Unlock()
		h.DB.Close()
		observe.PoolCloses.Inc()
		logger.Info.Printf("closed stale pool for user %s", userID)
	} else {
		b.mu.Unlock()
	}

	// The flight key carries the fingerprint so a caller holding a newer
	// credential generation never joins an open already in progress for
	// the previous one.
	v, err, _ := b.group.Do(userID+"\x00"+cfg.Fingerprint(), func() (interface{}, error) {
		// Re-check under the flight: a concurrent caller may have
		// finished opening while this one waited.
		b.mu.Lock()
		if h, ok := b.pools[userID]; ok && h.fingerprint == cfg.Fingerprint() {
			b.mu.Unlock()
			return h, nil
		}
		b.mu.Unlock()

		db, err := b.openFn(ctx, cfg)
		if err != nil {
			return nil, err
		}
		h := &Handle{
			DB:          db,
			Engine:      cfg.Engine,
			UserID:      userID,
			SSLRequired: cfg.SSLRequired,
			CreatedAt:   time.Now(),
			fingerprint: cfg.Fingerprint(),
		}
		b.mu.Lock()
		old := b.pools[userID]
		b.pools[userID] = h
		b.mu.Unlock()
		if old != nil && old.fingerprint != h.fingerprint {
			// A flight for another generation stored first. One pool per
			// user: close the one we displaced.
			old.DB.Close()
			observe.PoolCloses.Inc()
		}
		observe.PoolOpens.WithLabelValues(string(cfg.Engine)).Inc()
		logger.Info.Printf("opened %s pool for user %s (%s:%d/%s)", cfg.Engine, userID, cfg.Host, cfg.Port, cfg.DBName)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (b *Broker) defaultOpen(ctx context.Context, cfg *ResolvedConfig) (*sql.DB, error) {
	db, err := sql.Open(string(cfg.Engine), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", cfg.Engine, err)
	}
	db.SetMaxOpenConns(b.opts.MaxOpenConns)
	db.SetMaxIdleConns(b.opts.MaxIdleConns)
	db.SetConnMaxLifetime(b.opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s at %s:%d: %w", cfg.Engine, cfg.Host, cfg.Port, err)
	}
	return db, nil
}

// Invalidate drops and closes the user's pool if one is open. Called
// after a credential save or delete.
func (b *Broker) Invalidate(userID string) {
	b.mu.Lock()
	h, ok := b.pools[userID]
	if ok {
		delete(b.pools, userID)
	}
	b.mu.Unlock()
	if ok {
		h.DB.Close()
		observe.PoolCloses.Inc()
		logger.Info.Printf("invalidated pool for user %s", userID)
	}
}

// Shutdown closes every pool. Safe to call more than once.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	pools := b.pools
	b.pools = make(map[string]*Handle)
	b.mu.Unlock()
	for userID, h := range pools {
		if err := h.DB.Close(); err != nil {
			logger.Error.Printf("closing pool for user %s: %v", userID, err)
		}
		observe.PoolCloses.Inc()
	}
}

// TestConnection opens a throwaway connection with the user's saved
// credential. Unlike Get it never caches, and unlike the query paths it
// reports failures in full detail.
func (b *Broker) TestConnection(ctx context.Context, userID string) core.TestResult {
	cfg, err := b.resolver.Resolve(userID)
	if err != nil {
		return core.TestResult{Success: false, Message: "Could not load connection settings", Details: err.Error()}
	}
	if cfg == nil {
		return core.TestResult{Success: false, Message: "No database connection configured"}
	}
	return b.testResolved(ctx, cfg)
}

// TestCandidate tests form input that has not been saved yet.
func (b *Broker) TestCandidate(ctx context.Context, cred *core.DBCredential, password string) core.TestResult {
	cfg, err := b.resolver.FromCredential(cred, password)
	if err != nil {
		return core.TestResult{Success: false, Message: "Unsupported or invalid connection settings", Details: err.Error()}
	}
	return b.testResolved(ctx, cfg)
}

func (b *Broker) testResolved(ctx context.Context, cfg *ResolvedConfig) core.TestResult {
	db, err := b.openFn(ctx, cfg)
	if err != nil {
		return core.TestResult{
			Success: false,
			Message: fmt.Sprintf("Could not connect to %s at %s:%d", cfg.Engine, cfg.Host, cfg.Port),
			Details: err.Error(),
		}
	}
	defer db.Close()
	return core.TestResult{
		Success: true,
		Message: "Connection successful",
		Details: fmt.Sprintf("%s %s:%d/%s ssl=%t", cfg.Engine, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLRequired),
	}
}
