// Package harness runs recording scenarios against an in-process service.
//
// A scenario hosts a fresh service implementation on a private socket,
// records a sequence of calls through the same client path the CLI uses,
// and then checks both what the caller saw and what landed in the log.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: counter_add
//	description: "Adds accumulate and are recorded in order"
//	interface: demo.ICounter
//	analyzers: ../../examples/analyzers
//	setup:
//	  - call: reset
//	flow:
//	  - call: add
//	    args: { delta: 2 }
//	    expect:
//	      status: NO_ERROR
//	      reply: { value: 2 }
//	  - code: 99
//	    data: "garbage"
//	    expect:
//	      status: UNKNOWN_TRANSACTION
//	assertions:
//	  - type: log_count
//	    count: 2
//	  - type: log_contains
//	    method: add
//	    args: { delta: 2 }
//	  - type: log_order
//	    methods: [add, get]
//	  - type: log_status
//	    method: add
//	    status: NO_ERROR
//	    count: 1
//	  - type: replay_matches
//
// Setup calls are issued before recording starts and never reach the log.
// A step names its method either by name, resolved through the interface
// definition found under analyzers, or by numeric code. Args are encoded as
// a JSON object; data sends a raw payload instead.
//
// # Golden Files
//
// RunWithGolden renders the recorded log the way the inspect command does and
// compares it with testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
