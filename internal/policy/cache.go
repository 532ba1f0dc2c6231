package policy

import "github.com/dtn-go/bpsecpolicy/internal/eid"

// query identifies one matcher lookup.
type query struct {
	secSrc eid.ID
	bSrc   eid.ID
	bDst   eid.ID
	role   Role
}

// SearchCache is a single-slot memoizer for repeated Matcher queries
// (spec.md §4.4). It holds the last query, not the last successful match,
// so a re-query with any differing field always misses. It is not safe to
// share across goroutines; each caller should own its own instance.
type SearchCache struct {
	last      query
	result    *Policy
	hasResult bool
	// WasCacheHit reports whether the most recent FindWithCache call was
	// served from the cache, kept public for observability the way the
	// reference implementation exposes it directly on the cache struct.
	WasCacheHit bool
}

// NewSearchCache returns an empty cache.
func NewSearchCache() *SearchCache {
	return &SearchCache{}
}

// FindWithCache resolves (secSrc, bSrc, bDst, role) via the cache, falling
// back to matcher.Find on a miss. Updates c.WasCacheHit.
func (m *Matcher) FindWithCache(secSrc, bSrc, bDst eid.ID, role Role, c *SearchCache) *Policy {
	q := query{secSrc: secSrc, bSrc: bSrc, bDst: bDst, role: role}
	if c.hasResult && c.last == q {
		c.WasCacheHit = true
		return c.result
	}
	c.WasCacheHit = false
	result := m.Find(secSrc, bSrc, bDst, role)
	c.last = q
	c.result = result
	c.hasResult = true
	return result
}
