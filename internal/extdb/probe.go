package extdb

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"pipedash/internal/logger"
	"pipedash/internal/observe"
)

// CapabilityResult says whether a feature table exists on the user's
// database. Reason carries the failure text when the check itself
// could not run; absence of the table is not a failure.
type CapabilityResult struct {
	Exists bool
	Reason string
}

// Probe answers "does this table exist over there" with a short TTL
// cache in front, so the dashboard does not hammer information_schema
// on every page load. Cache keys include the owning user and the
// handle fingerprint, so a replaced credential naturally starts cold
// and one user's entries can be dropped without touching anyone else's.
type Probe struct {
	cache *gocache.Cache
}

func NewProbe(ttl time.Duration) *Probe {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Probe{cache: gocache.New(ttl, 2*ttl)}
}

// TableExists checks for a table in the connection's current database.
// A definite answer is cached; a check that could not run is not, so a
// transient outage does not pin "missing" for the whole TTL.
func (p *Probe) TableExists(ctx context.Context, h *Handle, table string) CapabilityResult {
	key := probeKey(h.UserID, h.Fingerprint(), table)
	if v, ok := p.cache.Get(key); ok {
		return v.(CapabilityResult)
	}
	observe.ProbeMisses.WithLabelValues(table).Inc()

	res := p.query(ctx, h, table)
	if res.Reason == "" {
		p.cache.SetDefault(key, res)
	}
	return res
}

// Invalidate drops one user's cached answers. Called when that user's
// credential changes so the next dashboard load probes the new
// database immediately.
func (p *Probe) Invalidate(userID string) {
	prefix := userID + "\x00"
	for key := range p.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			p.cache.Delete(key)
		}
	}
}

func probeKey(userID, fingerprint, table string) string {
	return userID + "\x00" + fingerprint + "\x00" + table
}

func (p *Probe) query(ctx context.Context, h *Handle, table string) CapabilityResult {
	var q string
	switch h.Engine {
	case EnginePostgres:
		q = `SELECT COUNT(*) FROM information_schema.tables
		     WHERE table_schema NOT IN ('pg_catalog', 'information_schema') AND table_name = $1`
	case EngineMySQL:
		q = `SELECT COUNT(*) FROM information_schema.tables
		     WHERE table_schema = DATABASE() AND table_name = ?`
	default:
		return CapabilityResult{Reason: "unknown engine"}
	}

	var count int
	if err := h.DB.QueryRowContext(ctx, q, table).Scan(&count); err != nil {
		logger.Error.Printf("capability probe for %s failed: %v", table, err)
		return CapabilityResult{Reason: err.Error()}
	}
	return CapabilityResult{Exists: count > 0}
}
