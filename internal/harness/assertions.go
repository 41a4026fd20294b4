package harness

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/provider"
	"github.com/roach88/dbsync/internal/queryir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if event.Type == EventCompletion {
				fmt.Fprintf(&buf, "  [%d] %s -> %s\n", i+1, event.Action, event.Outcome)
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks that the trace holds a completion of the
// action, with the given outcome when one is specified.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type != EventCompletion || event.Action != assertion.Action {
			continue
		}
		if assertion.Outcome == "" || assertion.Outcome == event.Outcome {
			return nil
		}
	}

	expected := "action " + assertion.Action
	if assertion.Outcome != "" {
		expected += " with outcome " + assertion.Outcome
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventOperation {
			continue
		}
		for _, expected := range assertion.Actions {
			if event.Action == expected && positions[expected] == 0 {
				positions[expected] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the action was submitted exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventOperation && event.Action == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks that exactly one record matches Where and that
// it holds every Expect value. Values compare by canonical JSON.
func assertFinalState(ctx context.Context, p *provider.Provider, assertion Assertion) error {
	filter, err := whereFilter(assertion.Where)
	if err != nil {
		return err
	}

	records := p.FetchModels(ctx, assertion.Entity, filter)
	whereDesc := formatWhereClause(assertion.Where)
	switch {
	case records == nil:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query %s where %s", assertion.Entity, whereDesc),
			Actual:   "query failed",
		}
	case len(records) == 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record in %s where %s", assertion.Entity, whereDesc),
			Actual:   "record not found",
		}
	case len(records) > 1:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one record in %s where %s", assertion.Entity, whereDesc),
			Actual:   fmt.Sprintf("%d records matched (assertion is ambiguous)", len(records)),
		}
	}

	actual := records[0]
	for _, key := range sortedKeys(assertion.Expect) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in %s", key, assertion.Entity),
			}
		}
		if !valuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v", key, actualValue),
			}
		}
	}
	return nil
}

// assertCount checks the number of records matching Where.
func assertCount(ctx context.Context, p *provider.Provider, assertion Assertion) error {
	filter, err := whereFilter(assertion.Where)
	if err != nil {
		return err
	}

	n := p.Count(ctx, assertion.Entity, filter)
	if n != int64(assertion.Count) {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d records in %s where %s", assertion.Count, assertion.Entity, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d records", n),
		}
	}
	return nil
}

// assertAbsent checks that no record of the entity has one of the keys.
func assertAbsent(ctx context.Context, p *provider.Provider, assertion Assertion) error {
	es, ok := p.Schema().Lookup(assertion.Entity)
	if !ok {
		return fmt.Errorf("absent: unknown entity %q", assertion.Entity)
	}

	keyField := es.KeyField()
	values := make([]ir.IRValue, 0, len(assertion.IDs))
	for _, id := range assertion.IDs {
		v, _, err := ir.CanonicalKey(keyField.Type, id)
		if err != nil {
			return fmt.Errorf("absent: id %v: %w", id, err)
		}
		values = append(values, v)
	}

	found := p.FetchModels(ctx, assertion.Entity, queryir.In{Field: keyField.Name, Values: values})
	if len(found) > 0 {
		present := make([]string, len(found))
		for i, rec := range found {
			present[i] = fmt.Sprint(rec[keyField.Name])
		}
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("no %s with %s in %v", assertion.Entity, keyField.Name, assertion.IDs),
			Actual:   fmt.Sprintf("found %s", strings.Join(present, ", ")),
		}
	}
	return nil
}

// whereFilter turns a where map into an And of Equals predicates.
// Keys are sorted for determinism.
func whereFilter(where map[string]any) (queryir.Predicate, error) {
	if len(where) == 0 {
		return nil, nil
	}

	preds := make([]queryir.Predicate, 0, len(where))
	for _, key := range sortedKeys(where) {
		v, err := ir.FromGo(where[key])
		if err != nil {
			return nil, fmt.Errorf("where %q: %w", key, err)
		}
		preds = append(preds, queryir.Equals{Field: key, Value: v})
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return queryir.And{Predicates: preds}, nil
}

// formatWhereClause creates a human-readable description of where conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// valuesEqual compares two values by their canonical JSON form, so YAML
// ints match stored int64s and key lists match in order.
func valuesEqual(expected, actual any) bool {
	a, err := ir.MarshalCanonical(expected)
	if err != nil {
		return false
	}
	b, err := ir.MarshalCanonical(actual)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// AssertionContext provides context for evaluating state assertions.
type AssertionContext struct {
	Provider *provider.Provider
	Ctx      context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// State assertions read through actx.Provider.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState, AssertCount, AssertAbsent:
			if actx == nil || actx.Provider == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a provider", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertFinalState:
				err = assertFinalState(actx.Ctx, actx.Provider, assertion)
			case AssertCount:
				err = assertCount(actx.Ctx, actx.Provider, assertion)
			default:
				err = assertAbsent(actx.Ctx, actx.Provider, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
