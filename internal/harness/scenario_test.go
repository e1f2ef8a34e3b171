package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenarioFromTestdata(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "engineering_grant.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "engineering_grant", scenario.Name)
	assert.NotEmpty(t, scenario.Description)
	assert.Contains(t, scenario.Policies, "r-eng")
	require.Len(t, scenario.Requests, 1)
	assert.Equal(t, "req-1", scenario.Requests[0].RequestID)
	require.NotNil(t, scenario.Requests[0].Expect)
	assert.Equal(t, "success", scenario.Requests[0].Expect.Status)
	assert.Len(t, scenario.Assertions, 3)
}

func TestLoadScenarioRejectsUnknownFields(t *testing.T) {
	path := writeScenarioFile(t, `
name: typo
description: "unknown key"
policies: "rules: {}"
requests:
  - request_id: req-1
    focus_oid: oid-1
assertion:
  - type: focus_state
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read scenario file")
}

func TestValidateScenario(t *testing.T) {
	valid := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Policies:    "rules: {}",
			Requests:    []RequestStep{{RequestID: "req-1", FocusOID: "oid-1"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr string
	}{
		{"valid", func(s *Scenario) {}, ""},
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"missing policies", func(s *Scenario) { s.Policies = "" }, "policies is required"},
		{"no requests", func(s *Scenario) { s.Requests = nil }, "requests list is required"},
		{"request without id", func(s *Scenario) { s.Requests[0].RequestID = "" }, "request_id is required"},
		{
			"request without target",
			func(s *Scenario) { s.Requests[0].FocusOID = "" },
			"focus_oid or delta is required",
		},
		{
			"seed without oid",
			func(s *Scenario) { s.Setup = []SeedObject{{Name: "x"}} },
			"oid is required",
		},
		{
			"assertion without type",
			func(s *Scenario) { s.Assertions = []Assertion{{}} },
			"type is required",
		},
		{
			"unknown assertion type",
			func(s *Scenario) { s.Assertions = []Assertion{{Type: "bogus"}} },
			"unknown assertion type",
		},
		{
			"focus_state without oid",
			func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertFocusState}} },
			"oid is required",
		},
		{
			"absent with expectations",
			func(s *Scenario) {
				s.Assertions = []Assertion{{Type: AssertFocusState, OID: "o", Absent: true, Situations: []string{"x"}}}
			},
			"absent excludes",
		},
		{
			"audit_count without stage",
			func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertAuditCount}} },
			"stage is required",
		},
		{
			"audit_order without stages",
			func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertAuditOrder}} },
			"stages list is required",
		},
		{
			"counter_value without rule",
			func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertCounterValue, Group: "g"}} },
			"group and rule are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := validateScenario(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
