// Package metrics provides Prometheus instrumentation for policy
// matching and security-operation outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector tracks policy-match, cache, security-operation, and
// failure-event counts. All methods are nil-receiver safe: a nil
// *Collector is a valid no-op instrumentation target, so callers don't
// need to thread a "metrics enabled" flag through every processor call.
type Collector struct {
	policyMatches *prometheus.CounterVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	securityOps   *prometheus.CounterVec
	failureEvents *prometheus.CounterVec
}

// NewCollector creates and registers metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		policyMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bpsecpolicy",
			Name:      "policy_matches_total",
			Help:      "Number of successful policy lookups, by role.",
		}, []string{"role"}),

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bpsecpolicy",
			Name:      "policy_cache_hits_total",
			Help:      "Number of SearchCache hits across all lookups.",
		}),

		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bpsecpolicy",
			Name:      "policy_cache_misses_total",
			Help:      "Number of SearchCache misses across all lookups.",
		}),

		securityOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bpsecpolicy",
			Name:      "security_operations_total",
			Help:      "Security operations processed, by service and outcome.",
		}, []string{"service", "outcome"}),

		failureEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bpsecpolicy",
			Name:      "failure_events_total",
			Help:      "Failure events fired, by event and the action taken.",
		}, []string{"event", "action"}),
	}

	reg.MustRegister(c.policyMatches, c.cacheHits, c.cacheMisses, c.securityOps, c.failureEvents)
	return c
}

// ObservePolicyMatch records a successful Find for role.
func (c *Collector) ObservePolicyMatch(role string) {
	if c == nil {
		return
	}
	c.policyMatches.WithLabelValues(role).Inc()
}

// ObserveCacheResult records a SearchCache hit or miss.
func (c *Collector) ObserveCacheResult(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.cacheHits.Inc()
		return
	}
	c.cacheMisses.Inc()
}

// ObserveSecurityOperation records one processed security operation.
func (c *Collector) ObserveSecurityOperation(service, outcome string) {
	if c == nil {
		return
	}
	c.securityOps.WithLabelValues(service, outcome).Inc()
}

// ObserveFailureEvent records one fired action for event.
func (c *Collector) ObserveFailureEvent(event, action string) {
	if c == nil {
		return
	}
	c.failureEvents.WithLabelValues(event, action).Inc()
}
