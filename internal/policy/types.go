// Package policy holds BPSec security policies, resolves a policy for a
// concrete bundle/role triple, and maps recognized security-operation
// outcomes to configured reactions.
package policy

import (
	"errors"

	"github.com/dtn-go/bpsecpolicy/internal/eid"
	"github.com/dtn-go/bpsecpolicy/internal/seccontext"
)

// Role identifies which of the three BPSec roles a policy governs.
type Role int

const (
	Source Role = iota
	Verifier
	Acceptor
	// ReservedMax is not a usable role; policies created with it are rejected.
	ReservedMax
)

func (r Role) String() string {
	switch r {
	case Source:
		return "source"
	case Verifier:
		return "verifier"
	case Acceptor:
		return "acceptor"
	default:
		return "reserved"
	}
}

// Service identifies the BPSec security service a policy applies.
type Service int

const (
	Integrity Service = iota
	Confidentiality
)

// ContextID identifies the cryptographic security context a policy uses.
type ContextID int

const (
	AesGcm ContextID = iota
	HmacSha
)

// EventID identifies a recognized security-operation outcome.
type EventID string

const (
	SopMissingAtAcceptor       EventID = "sopMissingAtAcceptor"
	SopMissingAtVerifier       EventID = "sopMissingAtVerifier"
	SopCorruptedAtAcceptor     EventID = "sopCorruptedAtAcceptor"
	SopCorruptedAtVerifier     EventID = "sopCorruptedAtVerifier"
	SopMisconfiguredAtAcceptor EventID = "sopMisconfiguredAtAcceptor"
	SopMisconfiguredAtVerifier EventID = "sopMisconfiguredAtVerifier"
)

// ActionKind identifies a reaction that can be taken for a fired event.
type ActionKind string

const (
	ActionRemoveSecurityOperation           ActionKind = "removeSecurityOperation"
	ActionRemoveSecurityOperationTargetBlock ActionKind = "removeSecurityOperationTargetBlock"
	ActionRemoveAllSecurityTargetOperations  ActionKind = "removeAllSecurityTargetOperations"
	ActionFailBundleForwarding              ActionKind = "failBundleForwarding"
	ActionRequestBundleStorage              ActionKind = "requestBundleStorage"
	ActionReportReasonCode                  ActionKind = "reportReasonCode"
	ActionOverrideSecurityTargetBlockBpcf   ActionKind = "overrideSecurityTargetBlockBpcf"
	ActionOverrideSopBlockBpcf              ActionKind = "overrideSopBlockBpcf"
)

// Action is one entry in a FailureEventSet's ordered action list for an event.
type Action struct {
	Kind ActionKind
	// Params carries action-specific parameters, e.g. the override BPCF
	// value for the two overrideXxxBpcf actions ("bpcf" key).
	Params map[string]string
}

// FailureEventSet is a named mapping from EventID to an ordered Action list.
type FailureEventSet struct {
	Name        string
	Description string
	Events      map[EventID][]Action
}

// ActionsFor returns the ordered actions configured for an event, or nil if
// the event set does not recognize the event.
func (s *FailureEventSet) ActionsFor(id EventID) []Action {
	if s == nil {
		return nil
	}
	return s.Events[id]
}

// Policy is an immutable, resolved security policy.
type Policy struct {
	ID      int
	Role    Role
	SecSrc  eid.Pattern
	BSrc    eid.Pattern
	BDst    eid.Pattern

	TargetBlockTypes map[uint8]struct{}
	Service          Service
	Context          ContextID
	Params           seccontext.Params
	FailureEvents    *FailureEventSet

	Description string
}

// key identifies a policy's uniqueness within a Store: per spec.md §3, the
// tuple (secSrcPat, bSrcPat, bDstPat, role) is unique within a store.
type key struct {
	secSrc string
	bSrc   string
	bDst   string
	role   Role
}

// ErrReservedRole is returned when a policy is created with Role == ReservedMax.
var ErrReservedRole = errors.New("policy: reserved role is not a usable role")
