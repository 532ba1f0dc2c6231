// Package config parses the BPSec policy configuration (spec.md §6),
// populating a policy.Store and cross-referencing named FailureEventSets
// at load time.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/dtn-go/bpsecpolicy/internal/policy"
	"github.com/dtn-go/bpsecpolicy/internal/seccontext"
)

// ErrBadConfig is returned for any structural or referential problem in
// the configuration file: unknown role/service/context strings, an
// unresolved securityFailureEventSetReference, or an unrecognized
// paramName.
var ErrBadConfig = fmt.Errorf("config: invalid configuration")

type wireConfig struct {
	BpsecConfigName          string         `json:"bpsecConfigName"`
	PolicyRules               []wireRule     `json:"policyRules"`
	SecurityFailureEventSets []wireEventSet `json:"securityFailureEventSets"`
}

type wireRule struct {
	SecurityPolicyRuleID             int         `json:"securityPolicyRuleId"`
	Description                      string      `json:"description"`
	SecurityRole                     string      `json:"securityRole"`
	SecuritySource                   string      `json:"securitySource"`
	BundleSource                     []string    `json:"bundleSource"`
	BundleFinalDestination           []string    `json:"bundleFinalDestination"`
	SecurityTargetBlockTypes         []int       `json:"securityTargetBlockTypes"`
	SecurityService                  string      `json:"securityService"`
	SecurityContext                  string      `json:"securityContext"`
	SecurityFailureEventSetReference string      `json:"securityFailureEventSetReference"`
	SecurityContextParams            []wireParam `json:"securityContextParams"`
}

type wireParam struct {
	ParamName string `json:"paramName"`
	Value     any    `json:"value"`
}

type wireEventSet struct {
	Name                    string            `json:"name"`
	Description             string            `json:"description"`
	SecurityOperationEvents []wireOpEvent     `json:"securityOperationEvents"`
}

type wireOpEvent struct {
	EventID string            `json:"eventId"`
	Actions []json.RawMessage `json:"actions"`
}

// Manager holds the policies and named failure-event sets loaded from
// one configuration file.
type Manager struct {
	Name    string
	Store   *policy.Store
	Matcher *policy.Matcher

	eventSets map[string]*policy.FailureEventSet
}

// EventSet returns a named FailureEventSet, or nil if name is unknown.
func (m *Manager) EventSet(name string) *policy.FailureEventSet {
	return m.eventSets[name]
}

// Load reads path, strips // and /* */ comments, and builds a Manager.
func Load(path string) (*Manager, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}
	stripped := jsonc.ToJSON(raw)

	var wc wireConfig
	if err := json.Unmarshal(stripped, &wc); err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %v", ErrBadConfig, path, err)
	}
	return build(wc)
}

func build(wc wireConfig) (*Manager, error) {
	m := &Manager{
		Name:      wc.BpsecConfigName,
		Store:     policy.NewStore(),
		eventSets: make(map[string]*policy.FailureEventSet, len(wc.SecurityFailureEventSets)),
	}
	for _, es := range wc.SecurityFailureEventSets {
		set, err := buildEventSet(es)
		if err != nil {
			return nil, fmt.Errorf("%w: event set %q: %v", ErrBadConfig, es.Name, err)
		}
		m.eventSets[es.Name] = set
	}

	for _, rule := range wc.PolicyRules {
		if err := applyRule(m, rule); err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrBadConfig, rule.SecurityPolicyRuleID, err)
		}
	}
	m.Matcher = policy.NewMatcher(m.Store)
	return m, nil
}

// applyRule expands one PolicyRule's bundleSource × bundleFinalDestination
// cross product into individual policy.CreateOrGet calls (spec.md §6).
func applyRule(m *Manager, rule wireRule) error {
	role, err := parseRole(rule.SecurityRole)
	if err != nil {
		return err
	}
	service, err := parseService(rule.SecurityService)
	if err != nil {
		return err
	}
	contextID, err := parseContext(rule.SecurityContext)
	if err != nil {
		return err
	}
	params, err := resolveParams(rule.SecurityContextParams)
	if err != nil {
		return err
	}
	var eventSet *policy.FailureEventSet
	if rule.SecurityFailureEventSetReference != "" {
		eventSet = m.eventSets[rule.SecurityFailureEventSetReference]
		if eventSet == nil {
			return fmt.Errorf("unresolved securityFailureEventSetReference %q", rule.SecurityFailureEventSetReference)
		}
	}
	targetTypes := make(map[uint8]struct{}, len(rule.SecurityTargetBlockTypes))
	for _, t := range rule.SecurityTargetBlockTypes {
		targetTypes[uint8(t)] = struct{}{}
	}

	bundleSources := rule.BundleSource
	if len(bundleSources) == 0 {
		bundleSources = []string{"ipn:*.*"}
	}
	bundleDests := rule.BundleFinalDestination
	if len(bundleDests) == 0 {
		bundleDests = []string{"ipn:*.*"}
	}

	for _, bSrc := range bundleSources {
		for _, bDst := range bundleDests {
			pol, _, err := m.Store.CreateOrGet(rule.SecuritySource, bSrc, bDst, role)
			if err != nil {
				return err
			}
			pol.TargetBlockTypes = targetTypes
			pol.Service = service
			pol.Context = contextID
			pol.Params = params
			pol.FailureEvents = eventSet
			pol.Description = rule.Description
		}
	}
	return nil
}

func parseRole(s string) (policy.Role, error) {
	switch s {
	case "source":
		return policy.Source, nil
	case "verifier":
		return policy.Verifier, nil
	case "acceptor":
		return policy.Acceptor, nil
	default:
		return 0, fmt.Errorf("unrecognized securityRole %q", s)
	}
}

func parseService(s string) (policy.Service, error) {
	switch s {
	case "integrity":
		return policy.Integrity, nil
	case "confidentiality":
		return policy.Confidentiality, nil
	default:
		return 0, fmt.Errorf("unrecognized securityService %q", s)
	}
}

func parseContext(s string) (policy.ContextID, error) {
	switch s {
	case "aesGcm":
		return policy.AesGcm, nil
	case "hmacSha":
		return policy.HmacSha, nil
	default:
		return 0, fmt.Errorf("unrecognized securityContext %q", s)
	}
}

// resolveParams converts the wire list of {paramName,value} pairs into a
// typed seccontext.Params, rejecting unknown paramNames and duplicate
// paramNames (spec.md §6).
func resolveParams(wps []wireParam) (seccontext.Params, error) {
	var p seccontext.Params
	seen := make(map[string]bool, len(wps))
	for _, wp := range wps {
		if seen[wp.ParamName] {
			return p, fmt.Errorf("duplicate paramName %q", wp.ParamName)
		}
		seen[wp.ParamName] = true
		switch wp.ParamName {
		case "aesVariant":
			n, err := intValue(wp.Value)
			if err != nil {
				return p, err
			}
			p.AesVariant = n
		case "shaVariant":
			n, err := intValue(wp.Value)
			if err != nil {
				return p, err
			}
			p.ShaVariant = n
		case "ivSizeBytes":
			n, err := intValue(wp.Value)
			if err != nil {
				return p, err
			}
			p.IVSizeBytes = n
		case "scopeFlags":
			n, err := intValue(wp.Value)
			if err != nil {
				return p, err
			}
			p.ScopeFlags = seccontext.ScopeFlags(n)
		case "securityBlockCrc":
			n, err := intValue(wp.Value)
			if err != nil {
				return p, err
			}
			p.SecurityBlockCRC = n
		case "keyFile":
			path, ok := wp.Value.(string)
			if !ok {
				return p, fmt.Errorf("keyFile value must be a string, got %T", wp.Value)
			}
			key, err := seccontext.LoadKeyFile(path)
			if err != nil {
				return p, err
			}
			p.KeyFile = path
			p.KeyMaterial = key
		default:
			return p, fmt.Errorf("unrecognized paramName %q", wp.ParamName)
		}
	}
	return p, nil
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("expected numeric parameter value, got %T", v)
	}
}

// buildEventSet parses one EventSet, resolving each action entry, which
// is either a bare action-name string or an object {name, ...params}.
func buildEventSet(es wireEventSet) (*policy.FailureEventSet, error) {
	set := &policy.FailureEventSet{
		Name: es.Name, Description: es.Description,
		Events: make(map[policy.EventID][]policy.Action, len(es.SecurityOperationEvents)),
	}
	for _, ev := range es.SecurityOperationEvents {
		actions := make([]policy.Action, 0, len(ev.Actions))
		for _, raw := range ev.Actions {
			action, err := parseAction(raw)
			if err != nil {
				return nil, fmt.Errorf("event %q: %w", ev.EventID, err)
			}
			actions = append(actions, action)
		}
		set.Events[policy.EventID(ev.EventID)] = actions
	}
	return set, nil
}

func parseAction(raw json.RawMessage) (policy.Action, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return policy.Action{Kind: policy.ActionKind(name)}, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return policy.Action{}, fmt.Errorf("action entry is neither a string nor an object: %w", err)
	}
	name, _ = obj["name"].(string)
	if name == "" {
		return policy.Action{}, fmt.Errorf("action object missing \"name\"")
	}
	params := make(map[string]string, len(obj)-1)
	for k, v := range obj {
		if k == "name" {
			continue
		}
		params[k] = fmt.Sprint(v)
	}
	return policy.Action{Kind: policy.ActionKind(name), Params: params}, nil
}
