// Package observe exposes Prometheus metrics for the external-database broker.
package observe

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PoolOpens counts physical connection-pool constructions, labeled by
	// engine. Exactly one increment per user per credential set is the
	// expected steady state.
	PoolOpens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipedash_ext_pool_opens_total",
		Help: "External connection pools opened",
	}, []string{"engine"})

	PoolCloses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipedash_ext_pool_closes_total",
		Help: "External connection pools closed",
	})

	ProbeMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipedash_ext_probe_misses_total",
		Help: "Capability probe cache misses that hit the external database",
	}, []string{"table"})

	DegradedCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipedash_facade_degraded_total",
		Help: "Facade calls that returned a neutral result instead of data",
	}, []string{"op", "reason"})
)

// Register must be called once from main
func Register() {
	prometheus.MustRegister(PoolOpens, PoolCloses, ProbeMisses, DegradedCalls)
}

// Handler returns the /metrics HTTP handler
func Handler() http.Handler { return promhttp.Handler() }
