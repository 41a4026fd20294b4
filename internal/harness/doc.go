// Package harness runs conformance scenarios against the provider.
//
// A scenario submits write operations through a real provider, coordinator
// and in-memory store, waits for each result channel to deliver its
// terminal event, and then asserts on the trace and the final store
// contents.
//
// # Scenario Format
//
//	name: adopt_rex
//	description: "Mapping an owner wires its pets"
//	schemas:
//	  - schema/petshop.cue
//	setup:
//	  - op: map
//	    entity: Pet
//	    records: [{id: 1, name: Rex}]
//	flow:
//	  - op: map
//	    entity: Owner
//	    records: [{id: o1, name: Ann, pets: [1]}]
//	  - op: delete
//	    entity: Pet
//	    ids: [1, 999]
//	  - op: map
//	    entity: Pet
//	    records: [{name: nameless}]
//	    expect:
//	      outcome: MAPPING_ERROR
//	assertions:
//	  - type: trace_order
//	    actions: [map.Owner, delete.Pet]
//	  - type: final_state
//	    entity: Owner
//	    where: {id: o1}
//	    expect: {pets: []}
//	  - type: absent
//	    entity: Pet
//	    ids: [1]
//
// A schema may also be given inline as CUE source under "schema".
//
// # Assertion Types
//
//   - trace_contains: an action completed, optionally with a given outcome
//   - trace_order: actions were submitted in the given order
//   - trace_count: an action was submitted exactly N times
//   - final_state: exactly one record matches and holds the expected values
//   - count: N records match
//   - absent: none of the given keys exist
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory database, a testutil.DeterministicClock
// for trace sequence numbers, and sequential operation IDs. Traces and
// final state are therefore identical across runs, which golden snapshot
// comparison (RunWithGolden) relies on.
package harness
