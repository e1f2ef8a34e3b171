package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a policy set, seeded
// focus objects, a sequence of change requests and assertions on the
// outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are stored
	// under this name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policies is inline CUE source declaring rules and syncPolicies.
	Policies string `yaml:"policies"`

	// Setup lists focus objects created before the first request.
	Setup []SeedObject `yaml:"setup,omitempty"`

	// Requests are processed in order, each as one engine run.
	Requests []RequestStep `yaml:"requests"`

	// Assertions validate the final state and audit trail.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SeedObject is a focus object persisted before the scenario's requests
// run.
type SeedObject struct {
	OID   string         `yaml:"oid"`
	Type  string         `yaml:"type"`
	Name  string         `yaml:"name"`
	Attrs map[string]any `yaml:"attrs,omitempty"`
}

// RequestStep is one change request processed by the engine.
type RequestStep struct {
	RequestID string        `yaml:"request_id"`
	Channel   string        `yaml:"channel,omitempty"`
	FocusOID  string        `yaml:"focus_oid,omitempty"`
	MaxWave   int           `yaml:"max_wave,omitempty"`
	Preview   bool          `yaml:"preview,omitempty"`
	Delta     *DeltaStep    `yaml:"delta,omitempty"`
	Sync      *SyncStep     `yaml:"sync,omitempty"`
	Expect    *ExpectClause `yaml:"expect,omitempty"`
}

// SyncStep marks the request as an inbound resource synchronization
// event handled under the named policy.
type SyncStep struct {
	Policy      string `yaml:"policy"`
	Situation   string `yaml:"situation"`
	ResourceOID string `yaml:"resource_oid,omitempty"`
	Tombstone   bool   `yaml:"tombstone,omitempty"`
}

// DeltaStep is the requested object delta.
type DeltaStep struct {
	Type       string     `yaml:"type"`
	OID        string     `yaml:"oid"`
	ObjectType string     `yaml:"object_type,omitempty"`
	Items      []ItemStep `yaml:"items,omitempty"`
}

// ItemStep is one attribute modification.
type ItemStep struct {
	Path   string `yaml:"path"`
	Kind   string `yaml:"kind"`
	Values []any  `yaml:"values,omitempty"`
}

// ExpectClause specifies the expected run outcome. If nil, the run is
// only required to finish without error.
type ExpectClause struct {
	// Status is the expected operation result status ("success",
	// "in_progress", "warning", "fatal").
	Status string `yaml:"status,omitempty"`

	// Error is a substring expected in the run error. When set, the run
	// must fail; when empty, it must succeed.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final state or audit trail.
type Assertion struct {
	// Type is one of focus_state, audit_count, audit_order,
	// counter_value.
	Type string `yaml:"type"`

	// OID identifies the focus object (focus_state).
	OID string `yaml:"oid,omitempty"`

	// Expect contains expected attribute values, subset match
	// (focus_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Situations lists policy situations that must be recorded on the
	// object (focus_state).
	Situations []string `yaml:"situations,omitempty"`

	// Absent requires the object to not exist (focus_state).
	Absent bool `yaml:"absent,omitempty"`

	// Stage is the audited stage name (audit_count).
	Stage string `yaml:"stage,omitempty"`

	// Stages is the expected stage order (audit_order).
	Stages []string `yaml:"stages,omitempty"`

	// Count is the expected number of occurrences (audit_count,
	// counter_value).
	Count int `yaml:"count,omitempty"`

	// Group and Rule identify a persisted counter (counter_value).
	Group string `yaml:"group,omitempty"`
	Rule  string `yaml:"rule,omitempty"`
}

// Assertion type constants.
const (
	AssertFocusState   = "focus_state"
	AssertAuditCount   = "audit_count"
	AssertAuditOrder   = "audit_order"
	AssertCounterValue = "counter_value"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently weakening a test.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Policies == "" {
		return fmt.Errorf("policies is required")
	}
	if len(s.Requests) == 0 {
		return fmt.Errorf("requests list is required and must be non-empty")
	}

	for i, seed := range s.Setup {
		if seed.OID == "" {
			return fmt.Errorf("setup[%d]: oid is required", i)
		}
	}

	for i, step := range s.Requests {
		if step.RequestID == "" {
			return fmt.Errorf("requests[%d]: request_id is required for deterministic traces", i)
		}
		if step.FocusOID == "" && step.Delta == nil {
			return fmt.Errorf("requests[%d]: focus_oid or delta is required", i)
		}
		if step.Sync != nil && (step.Sync.Policy == "" || step.Sync.Situation == "") {
			return fmt.Errorf("requests[%d]: sync requires policy and situation", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertFocusState:
		if a.OID == "" {
			return fmt.Errorf("assertions[%d]: oid is required for focus_state", index)
		}
		if a.Absent && (len(a.Expect) > 0 || len(a.Situations) > 0) {
			return fmt.Errorf("assertions[%d]: absent excludes expect and situations", index)
		}
	case AssertAuditCount:
		if a.Stage == "" {
			return fmt.Errorf("assertions[%d]: stage is required for audit_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertAuditOrder:
		if len(a.Stages) == 0 {
			return fmt.Errorf("assertions[%d]: stages list is required for audit_order", index)
		}
	case AssertCounterValue:
		if a.Group == "" || a.Rule == "" {
			return fmt.Errorf("assertions[%d]: group and rule are required for counter_value", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
