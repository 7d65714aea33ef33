// Package extdb routes requests to per-user external databases. It owns
// credential resolution, the pool registry, capability probing, and
// catalog introspection; feature code goes through the facade package
// and never touches connection lifecycle directly.
package extdb

import (
	"context"
	"errors"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Engine identifies the external database engine, which doubles as the
// database/sql driver name.
type Engine string

const (
	EnginePostgres Engine = "postgres"
	EngineMySQL    Engine = "mysql"
)

// Kind classifies an external-database failure so callers can branch on
// the outcome instead of sniffing error strings.
type Kind int

const (
	KindNone Kind = iota
	// KindUnconfigured: the user has no active credential. Not a failure.
	KindUnconfigured
	// KindUnreachable: network, timeout or authentication failure.
	KindUnreachable
	// KindUnsupportedEngine: credential port maps to no known engine.
	KindUnsupportedEngine
	// KindMissingCapability: the database answered but the expected
	// table or column is absent.
	KindMissingCapability
	// KindMappingDefect: a row was missing a column the mapping expects.
	KindMappingDefect
)

func (k Kind) String() string {
	switch k {
	case KindUnconfigured:
		return "unconfigured"
	case KindUnreachable:
		return "unreachable"
	case KindUnsupportedEngine:
		return "unsupported_engine"
	case KindMissingCapability:
		return "missing_capability"
	case KindMappingDefect:
		return "mapping_defect"
	default:
		return "none"
	}
}

// ErrUnsupportedPort is returned by the resolver for any port other than
// 5432 or 3306; no connection is ever attempted for such credentials.
var ErrUnsupportedPort = errors.New("unsupported database port")

// Classify maps a driver error to a Kind. It is the backstop for races
// between a capability probe and the query it guarded; the probe itself
// is the primary mechanism.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrUnsupportedPort) {
		return KindUnsupportedEngine
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P01", "3D000", "3F000", "42703": // undefined table/db/schema/column
			return KindMissingCapability
		case "28000", "28P01": // authentication
			return KindUnreachable
		}
		return KindNone
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1146, 1049, 1054: // missing table/db/column
			return KindMissingCapability
		case 1044, 1045: // access denied
			return KindUnreachable
		}
		return KindNone
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnreachable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindUnreachable
	}
	return KindNone
}
