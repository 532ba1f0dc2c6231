package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dtn-go/bpsecpolicy/internal/policy"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.jsonc")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func writeTempKeyFile(t *testing.T, key []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")
	if err := os.WriteFile(path, key, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_CrossProductExpansion(t *testing.T) {
	keyPath := writeTempKeyFile(t, make([]byte, 32))
	cfgJSON := `{
		"bpsecConfigName": "test-config",
		// comment tolerated
		"policyRules": [
			{
				"securityPolicyRuleId": 1,
				"description": "example",
				"securityRole": "source",
				"securitySource": "ipn:10.1",
				"bundleSource": ["ipn:1.1", "ipn:2.1"],
				"bundleFinalDestination": ["ipn:100.1", "ipn:200.1"],
				"securityTargetBlockTypes": [1],
				"securityService": "confidentiality",
				"securityContext": "aesGcm",
				"securityContextParams": [
					{"paramName": "aesVariant", "value": 256},
					{"paramName": "ivSizeBytes", "value": 12},
					{"paramName": "scopeFlags", "value": 7},
					{"paramName": "keyFile", "value": "` + jsonEscape(keyPath) + `"}
				]
			}
		],
		"securityFailureEventSets": []
	}`
	path := writeTempConfig(t, cfgJSON)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Store.Len() != 4 {
		t.Fatalf("Store.Len() = %d, want 4 (2x2 cross product)", m.Store.Len())
	}
	policies := m.Store.PoliciesForRole(policy.Source)
	if len(policies) != 4 {
		t.Fatalf("PoliciesForRole(Source) = %d, want 4", len(policies))
	}
	for _, p := range policies {
		if len(p.Params.KeyMaterial) != 32 {
			t.Errorf("policy %d KeyMaterial len = %d, want 32", p.ID, len(p.Params.KeyMaterial))
		}
		if p.Params.AesVariant != 256 {
			t.Errorf("policy %d AesVariant = %d, want 256", p.ID, p.Params.AesVariant)
		}
	}
}

func TestLoad_EventSetCrossReference(t *testing.T) {
	cfgJSON := `{
		"bpsecConfigName": "test-config",
		"policyRules": [
			{
				"securityPolicyRuleId": 1,
				"securityRole": "acceptor",
				"securitySource": "ipn:10.1",
				"bundleSource": ["ipn:1.1"],
				"bundleFinalDestination": ["ipn:2.1"],
				"securityTargetBlockTypes": [1],
				"securityService": "integrity",
				"securityContext": "hmacSha",
				"securityFailureEventSetReference": "default-reactions",
				"securityContextParams": [{"paramName": "shaVariant", "value": 256}]
			}
		],
		"securityFailureEventSets": [
			{
				"name": "default-reactions",
				"description": "defaults",
				"securityOperationEvents": [
					{
						"eventId": "sopCorruptedAtAcceptor",
						"actions": ["failBundleForwarding", {"name": "reportReasonCode"}]
					}
				]
			}
		]
	}`
	path := writeTempConfig(t, cfgJSON)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	policies := m.Store.PoliciesForRole(policy.Acceptor)
	if len(policies) != 1 {
		t.Fatalf("PoliciesForRole(Acceptor) = %d, want 1", len(policies))
	}
	actions := policies[0].FailureEvents.ActionsFor(policy.SopCorruptedAtAcceptor)
	if len(actions) != 2 {
		t.Fatalf("actions = %v, want 2", actions)
	}
	if actions[0].Kind != policy.ActionFailBundleForwarding {
		t.Errorf("actions[0].Kind = %v, want ActionFailBundleForwarding", actions[0].Kind)
	}
}

func TestLoad_UnresolvedEventSetReference(t *testing.T) {
	cfgJSON := `{
		"bpsecConfigName": "test-config",
		"policyRules": [
			{
				"securityPolicyRuleId": 1,
				"securityRole": "acceptor",
				"securitySource": "ipn:10.1",
				"bundleSource": ["ipn:1.1"],
				"bundleFinalDestination": ["ipn:2.1"],
				"securityTargetBlockTypes": [1],
				"securityService": "integrity",
				"securityContext": "hmacSha",
				"securityFailureEventSetReference": "does-not-exist",
				"securityContextParams": [{"paramName": "shaVariant", "value": 256}]
			}
		],
		"securityFailureEventSets": []
	}`
	path := writeTempConfig(t, cfgJSON)
	if _, err := Load(path); err == nil {
		t.Fatal("Load with unresolved event set reference = nil error, want ErrBadConfig")
	}
}

func TestLoad_UnrecognizedParamName(t *testing.T) {
	cfgJSON := `{
		"bpsecConfigName": "test-config",
		"policyRules": [
			{
				"securityPolicyRuleId": 1,
				"securityRole": "source",
				"securitySource": "ipn:10.1",
				"bundleSource": ["ipn:1.1"],
				"bundleFinalDestination": ["ipn:2.1"],
				"securityTargetBlockTypes": [1],
				"securityService": "integrity",
				"securityContext": "hmacSha",
				"securityContextParams": [{"paramName": "notAThing", "value": 1}]
			}
		],
		"securityFailureEventSets": []
	}`
	path := writeTempConfig(t, cfgJSON)
	if _, err := Load(path); err == nil {
		t.Fatal("Load with unrecognized paramName = nil error, want ErrBadConfig")
	}
}

func TestLoad_DuplicateParamName(t *testing.T) {
	cfgJSON := `{
		"bpsecConfigName": "test-config",
		"policyRules": [
			{
				"securityPolicyRuleId": 1,
				"securityRole": "source",
				"securitySource": "ipn:10.1",
				"bundleSource": ["ipn:1.1"],
				"bundleFinalDestination": ["ipn:2.1"],
				"securityTargetBlockTypes": [1],
				"securityService": "integrity",
				"securityContext": "hmacSha",
				"securityContextParams": [
					{"paramName": "shaVariant", "value": 256},
					{"paramName": "shaVariant", "value": 384}
				]
			}
		],
		"securityFailureEventSets": []
	}`
	path := writeTempConfig(t, cfgJSON)
	if _, err := Load(path); err == nil {
		t.Fatal("Load with duplicate paramName = nil error, want ErrBadConfig")
	}
}

func jsonEscape(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return string(b[1 : len(b)-1])
}
