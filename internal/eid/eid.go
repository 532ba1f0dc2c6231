// Package eid parses and matches ipn-scheme Bundle Protocol endpoint IDs
// and their wildcard patterns.
package eid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadSyntax is returned when an endpoint pattern does not match
// ipn:<N|*>.<S|*>.
var ErrBadSyntax = errors.New("eid: bad pattern syntax")

// ID is a concrete ipn-scheme endpoint identifier.
type ID struct {
	NodeID    uint64
	ServiceID uint64
}

// String renders the ID in ipn:node.service form.
func (id ID) String() string {
	return fmt.Sprintf("ipn:%d.%d", id.NodeID, id.ServiceID)
}

// component is one half of a pattern: either a wildcard or an exact value.
type component struct {
	exact   uint64
	isExact bool
}

func (c component) matches(v uint64) bool {
	if !c.isExact {
		return true
	}
	return c.exact == v
}

// specificity orders two components of the same field: Exact is strictly
// more specific than Any. Returns -1 if c is more specific than other, 1 if
// less specific, 0 if equally specific.
func (c component) specificityCompare(other component) int {
	switch {
	case c.isExact == other.isExact:
		return 0
	case c.isExact:
		return -1
	default:
		return 1
	}
}

func (c component) String() string {
	if !c.isExact {
		return "*"
	}
	return strconv.FormatUint(c.exact, 10)
}

// Pattern is a parsed "ipn:<N|*>.<S|*>" wildcard endpoint pattern.
type Pattern struct {
	node    component
	service component
	text    string
}

// Parse parses the textual form "ipn:<N|*>.<S|*>" where each of N, S is
// either a non-empty decimal integer with no leading sign, or a single "*".
// Any other syntax is rejected with ErrBadSyntax.
func Parse(text string) (Pattern, error) {
	const prefix = "ipn:"
	if !strings.HasPrefix(text, prefix) {
		return Pattern{}, fmt.Errorf("%w: %q: missing ipn: scheme", ErrBadSyntax, text)
	}
	rest := text[len(prefix):]
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return Pattern{}, fmt.Errorf("%w: %q: missing '.' separator", ErrBadSyntax, text)
	}
	nodePart, servicePart := rest[:dot], rest[dot+1:]
	if strings.IndexByte(servicePart, '.') >= 0 {
		return Pattern{}, fmt.Errorf("%w: %q: too many '.' separators", ErrBadSyntax, text)
	}

	node, err := parseComponent(nodePart)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: %q: node component: %v", ErrBadSyntax, text, err)
	}
	service, err := parseComponent(servicePart)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: %q: service component: %v", ErrBadSyntax, text, err)
	}

	return Pattern{node: node, service: service, text: text}, nil
}

// ParseID parses a concrete "ipn:<N>.<S>" endpoint, rejecting wildcards.
func ParseID(text string) (ID, error) {
	pat, err := Parse(text)
	if err != nil {
		return ID{}, err
	}
	if !pat.node.isExact || !pat.service.isExact {
		return ID{}, fmt.Errorf("%w: %q: wildcards not allowed here", ErrBadSyntax, text)
	}
	return ID{NodeID: pat.node.exact, ServiceID: pat.service.exact}, nil
}

func parseComponent(s string) (component, error) {
	if s == "*" {
		return component{isExact: false}, nil
	}
	if s == "" {
		return component{}, errors.New("empty component")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return component{}, fmt.Errorf("non-numeric component %q", s)
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return component{}, fmt.Errorf("component %q out of range: %w", s, err)
	}
	return component{exact: v, isExact: true}, nil
}

// Matches reports whether the pattern matches the concrete ID, componentwise.
func (p Pattern) Matches(id ID) bool {
	return p.node.matches(id.NodeID) && p.service.matches(id.ServiceID)
}

// String returns the original parsed text.
func (p Pattern) String() string {
	return p.text
}

// MoreSpecificThan reports whether p is strictly more specific than other:
// componentwise p <= other (Exact counts as "less than" Any) with strict
// inequality in at least one component. Patterns with no specificity
// relation (incomparable) return false for both directions.
func (p Pattern) MoreSpecificThan(other Pattern) bool {
	nodeCmp := p.node.specificityCompare(other.node)
	svcCmp := p.service.specificityCompare(other.service)
	if nodeCmp > 0 || svcCmp > 0 {
		return false
	}
	return nodeCmp < 0 || svcCmp < 0
}

// Comparable reports whether p and other have a specificity relation, i.e.
// one is more specific than (or equally specific to) the other in every
// component.
func (p Pattern) Comparable(other Pattern) bool {
	nodeCmp := p.node.specificityCompare(other.node)
	svcCmp := p.service.specificityCompare(other.service)
	if nodeCmp == 0 || svcCmp == 0 {
		return true
	}
	return nodeCmp == svcCmp
}

// Equal reports whether p and other parsed from the same textual pattern.
func (p Pattern) Equal(other Pattern) bool {
	return p.text == other.text
}

// ExactCount returns the number of components (0, 1, or 2) that are Exact
// rather than Any. Used only for the deterministic tie-break among
// otherwise-incomparable patterns (spec.md §4.3).
func (p Pattern) ExactCount() int {
	n := 0
	if p.node.isExact {
		n++
	}
	if p.service.isExact {
		n++
	}
	return n
}
