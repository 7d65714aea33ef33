// Package facade exposes the dashboard's feature operations against a
// user's external database. Reads degrade to empty results when the
// database is unconfigured, unreachable, or missing a feature table;
// writes fail with typed errors the HTTP layer can map to status codes.
package facade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pipedash/internal/extdb"
	"pipedash/internal/logger"
	"pipedash/internal/observe"
)

var (
	// ErrNotConfigured means the user has no external database registered.
	// Reads never return it; writes do.
	ErrNotConfigured = errors.New("no database connection configured")

	// ErrMissingTable means the target feature table does not exist on the
	// user's database.
	ErrMissingTable = errors.New("required table does not exist")

	// ErrUnreachable means the user's database could not be reached or
	// refused the check that had to run before the operation.
	ErrUnreachable = errors.New("database unreachable")

	// ErrNotFound means the addressed row does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("not found")

	// ErrQueryRejected means a user-submitted statement failed validation
	// and was never executed.
	ErrQueryRejected = errors.New("query rejected")
)

// handleSource is what the facade needs from the pool broker.
type handleSource interface {
	Get(ctx context.Context, userID string) (*extdb.Handle, error)
}

type Facade struct {
	broker       handleSource
	probe        *extdb.Probe
	inspector    *extdb.Introspector
	queryTimeout time.Duration
	chat         chatEnsurer
}

func New(broker handleSource, probe *extdb.Probe, queryTimeout time.Duration) *Facade {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &Facade{
		broker:       broker,
		probe:        probe,
		inspector:    extdb.NewIntrospector(),
		queryTimeout: queryTimeout,
	}
}

// queryCtx bounds one external statement.
func (f *Facade) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.queryTimeout)
}

// soft reports whether err is the kind of failure a read should absorb.
// A dashboard tile showing zero beats a dashboard tile showing a stack
// trace; the log line and counter keep the failure visible to operators.
func (f *Facade) soft(op string, err error) bool {
	kind := extdb.Classify(err)
	switch kind {
	case extdb.KindUnreachable, extdb.KindMissingCapability:
		logger.Error.Printf("%s degraded (%s): %v", op, kind, err)
		observe.DegradedCalls.WithLabelValues(op, kind.String()).Inc()
		return true
	}
	return false
}

// readHandle resolves the pool for a read. (nil, nil) means answer with
// the empty value: either nothing is configured or the database could
// not be reached.
func (f *Facade) readHandle(ctx context.Context, userID, op string) (*extdb.Handle, error) {
	h, err := f.broker.Get(ctx, userID)
	if err != nil {
		if f.soft(op, err) {
			return nil, nil
		}
		return nil, err
	}
	return h, nil
}

// writeHandle resolves the pool for a write and requires the target
// table to exist. Writes do not degrade.
func (f *Facade) writeHandle(ctx context.Context, userID, table string) (*extdb.Handle, error) {
	h, err := f.broker.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrNotConfigured
	}
	cap := f.probe.TableExists(ctx, h, table)
	if cap.Reason != "" {
		// The probe itself failed; that is a connectivity problem, not a
		// schema one.
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, cap.Reason)
	}
	if !cap.Exists {
		return nil, ErrMissingTable
	}
	return h, nil
}
