// Package harness provides conformance testing for the warden decision
// core.
//
// The harness loads a scenario, seeds focus objects, drives change
// requests through the real clockwork engine against a fresh in-memory
// database, and validates the resulting audit trail and final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	policies: |
//	  rules: {
//	    "r-eng": {
//	      situation: "engineering"
//	      record:    "situationOnly"
//	      condition: "focus.attrs.department == \"eng\""
//	    }
//	  }
//	setup:
//	  - oid: oid-9
//	    type: user
//	    name: mallory
//	    attrs: { department: sales }
//	requests:
//	  - request_id: req-1
//	    channel: rest
//	    focus_oid: oid-1
//	    delta:
//	      type: add
//	      oid: oid-1
//	      object_type: user
//	      items:
//	        - path: department
//	          kind: replace
//	          values: ["eng"]
//	    expect:
//	      status: success
//	assertions:
//	  - type: focus_state
//	    oid: oid-1
//	    expect: { department: eng }
//	    situations: [engineering]
//	  - type: audit_order
//	    stages: [request, execution, final_execution]
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - focus_state: Reads a focus object and verifies attribute values
//     and recorded policy situations (or its absence with absent: true)
//   - audit_count: Verifies a stage appears exactly N times in the trail
//   - audit_order: Verifies stages appear in the given order
//   - counter_value: Verifies a persisted rule counter value
//
// # Deterministic Testing
//
// Every scenario runs with fixed token generation and a fresh in-memory
// SQLite database, so sequence numbers, watcher tokens and the audit
// trail are identical across runs. Audit event identifiers are
// content-addressed hashes and are excluded from trace snapshots; the
// remaining fields fully determine them.
//
// # Usage
//
// Load and run a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/grant.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
//
// Or compare the audit trail against a golden file:
//
//	harness.RunWithGolden(t, scenario)
package harness
