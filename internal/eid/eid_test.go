package eid

import (
	"errors"
	"testing"
)

func TestParse_ValidSyntax(t *testing.T) {
	cases := []string{"ipn:*.*", "ipn:1.1", "ipn:1.*", "ipn:*.1", "ipn:0.0", "ipn:18446744073709551615.1"}
	for _, text := range cases {
		if _, err := Parse(text); err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", text, err)
		}
	}
}

func TestParse_BadSyntax(t *testing.T) {
	cases := []string{
		"ipn:**.*",
		"ipn:*.**",
		"ipn:***.*",
		"ipn:*.*.1",
		"ipn:.1",
		"ipn:1.",
		"ipn:1. 1",
		"ipn: 1.1",
		"ipn:-1.1",
		"dtn:none",
		"ipn:1",
		"",
	}
	for _, text := range cases {
		if _, err := Parse(text); !errors.Is(err, ErrBadSyntax) {
			t.Errorf("Parse(%q) = %v, want ErrBadSyntax", text, err)
		}
	}
}

func TestPattern_Matches(t *testing.T) {
	p, err := Parse("ipn:1.*")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Matches(ID{1, 5}) {
		t.Error("expected match on wildcard service")
	}
	if p.Matches(ID{2, 5}) {
		t.Error("expected no match on different node")
	}

	any, err := Parse("ipn:*.*")
	if err != nil {
		t.Fatal(err)
	}
	if !any.Matches(ID{99, 99}) {
		t.Error("ipn:*.* must match anything")
	}
}

func TestPattern_MoreSpecificThan(t *testing.T) {
	any, _ := Parse("ipn:*.*")
	nodeOnly, _ := Parse("ipn:1.*")
	exact, _ := Parse("ipn:1.1")

	if !nodeOnly.MoreSpecificThan(any) {
		t.Error("ipn:1.* should be more specific than ipn:*.*")
	}
	if !exact.MoreSpecificThan(nodeOnly) {
		t.Error("ipn:1.1 should be more specific than ipn:1.*")
	}
	if !exact.MoreSpecificThan(any) {
		t.Error("ipn:1.1 should be more specific than ipn:*.*")
	}
	if any.MoreSpecificThan(nodeOnly) {
		t.Error("ipn:*.* must not be more specific than ipn:1.*")
	}
	if nodeOnly.MoreSpecificThan(exact) {
		t.Error("ipn:1.* must not be more specific than ipn:1.1")
	}
}

func TestPattern_Incomparable(t *testing.T) {
	nodeOnly, _ := Parse("ipn:1.*")
	serviceOnly, _ := Parse("ipn:*.1")

	if nodeOnly.MoreSpecificThan(serviceOnly) || serviceOnly.MoreSpecificThan(nodeOnly) {
		t.Error("ipn:1.* and ipn:*.1 should be incomparable")
	}
	if nodeOnly.Comparable(serviceOnly) {
		t.Error("ipn:1.* and ipn:*.1 should not report as comparable")
	}
}

func TestID_String(t *testing.T) {
	if got, want := (ID{10, 1}).String(), "ipn:10.1"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
