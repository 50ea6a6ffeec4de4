// Package harness runs conformance scenarios against the full txsignal
// stack: durable store, scopes, dispatcher, listeners and entry points.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	kind: MyModel
//	listeners:
//	  - name: demo_all
//	    delay: 3s
//	    fail_on: ["Rollback Test"]
//	steps:
//	  - create: "Sync Test"
//	    expect:
//	      status: committed
//	      count_after: 1
//	  - create: "Rollback Test"
//	    explicit: true
//	    expect:
//	      status: rolled_back
//	      error: listener_failure
//	assertions:
//	  - type: dispatch_order
//	    listeners: [demo_all]
//	  - type: final_count
//	    count: 1
//	  - type: final_state
//	    table: records
//	    where: { name: "Sync Test" }
//	    expect: { seq: 1 }
//
// # Assertion Types
//
//   - dispatch_order: listeners were first invoked in the given order
//   - invocation_count: a listener was invoked exactly N times
//   - listener_saw: a listener observed a given count while handling a record
//   - final_count: committed record count for a kind
//   - final_state: queries a table and verifies expected values
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory database, sequential execution, scope,
// provisional and permanent IDs (testutil.SequentialIDs), a stepping wall
// clock (testutil.StepClock), and a sleeper that advances that clock instead
// of blocking. Two runs of the same scenario produce byte-identical traces,
// which RunWithGolden compares against testdata/golden.
package harness
