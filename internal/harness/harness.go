package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/dbsync/internal/engine"
	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/provider"
	"github.com/roach88/dbsync/internal/result"
	"github.com/roach88/dbsync/internal/schema"
	"github.com/roach88/dbsync/internal/store"
	"github.com/roach88/dbsync/internal/testutil"
)

// stepTimeout bounds the wait for one operation's terminal event.
const stepTimeout = 10 * time.Second

// Harness is the test execution engine.
// It drives a provider over a fresh in-memory store with a deterministic
// clock and operation IDs.
type Harness struct {
	store    *store.Store
	provider *provider.Provider
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Setup steps must
// commit; flow steps are checked against their expect clause. Assertion
// failures are reported in the result, not as an error.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with the given logger wired through the store,
// coordinator and provider.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	sch, err := loadSchema(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	st, err := store.Open(":memory:", store.WithSchema(sch), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	p := provider.New(st,
		provider.WithLogger(logger),
		provider.WithEngineOptions(engine.WithIDGenerator(testutil.NewSequentialIDGenerator("op"))),
	)
	defer p.Close()

	h := &Harness{
		store:    st,
		provider: p,
		clock:    testutil.NewDeterministicClock(),
		logger:   logger,
	}

	ctx := context.Background()
	res := NewResult()

	for i, step := range scenario.Setup {
		outcome, err := h.execute(ctx, step, res)
		if err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
		if outcome != OutcomeCommitted {
			return nil, fmt.Errorf("setup step %d: %s did not commit: %s", i, step.Action(), outcome)
		}
	}

	for i, step := range scenario.Flow {
		outcome, err := h.execute(ctx, step, res)
		if err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}

		expected := OutcomeCommitted
		if step.Expect != nil {
			expected = step.Expect.Outcome
		}
		if outcome != expected {
			res.AddError(fmt.Sprintf("flow[%d] %s: expected outcome %s, got %s", i, step.Action(), expected, outcome))
		}
		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Action(),
			"outcome", outcome,
		)
	}

	res.State = h.snapshot(ctx)

	actx := &AssertionContext{
		Provider: p,
		Ctx:      ctx,
	}
	for _, msg := range EvaluateAssertions(res, scenario.Assertions, actx) {
		res.AddError(msg)
	}

	return res, nil
}

func loadSchema(scenario *Scenario) (*ir.Schema, error) {
	if scenario.Schema != "" {
		return schema.CompileString(scenario.Schema, scenario.Name+".cue")
	}
	return schema.Load(scenario.Schemas...)
}

// execute submits one step, waits for its terminal event and records
// both in the trace. The returned error is a harness failure, never an
// operation outcome.
func (h *Harness) execute(ctx context.Context, step Step, res *Result) (string, error) {
	action := step.Action()
	res.AddOperationTrace(action, stepArgs(step), h.clock.Next())

	ch, err := h.submit(step)
	if err != nil {
		return "", err
	}

	events, terminal, err := await(ctx, ch)
	if err != nil {
		return "", fmt.Errorf("%s: %w", action, err)
	}

	outcome := outcomeOf(terminal.Err)
	res.AddCompletionTrace(action, outcome, events, h.clock.Next())
	return outcome, nil
}

func (h *Harness) submit(step Step) (*result.Channel, error) {
	switch step.Op {
	case OpMap:
		records := make([]ir.Record, len(step.Records))
		for i, rec := range step.Records {
			records[i] = ir.Record(rec)
		}
		return h.provider.MapBatch(step.Entity, records), nil
	case OpDelete:
		return h.provider.DeleteByIDs(step.Entity, step.IDs), nil
	case OpPurge:
		return h.provider.Purge(step.Exclude...), nil
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

// await subscribes to ch and collects event names until a terminal event,
// which is returned.
func await(ctx context.Context, ch *result.Channel) ([]string, result.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	delivered := make(chan result.Event, 2)
	stop, ok := ch.Subscribe(func(e result.Event) { delivered <- e })
	if !ok {
		return nil, result.Event{}, errors.New("result channel refused subscription")
	}
	defer stop()

	var events []string
	for {
		select {
		case e := <-delivered:
			events = append(events, e.Kind.String())
			if e.Terminal() {
				return events, e, nil
			}
		case <-ctx.Done():
			return events, result.Event{}, fmt.Errorf("waiting for result: %w", ctx.Err())
		}
	}
}

// outcomeOf names an operation result: "committed" or an error code.
func outcomeOf(err error) string {
	if err == nil {
		return OutcomeCommitted
	}
	if code := store.CodeOf(err); code != "" {
		return string(code)
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return "ERROR"
}

func stepArgs(step Step) any {
	switch step.Op {
	case OpMap:
		out := make([]any, len(step.Records))
		for i, rec := range step.Records {
			out[i] = rec
		}
		return out
	case OpDelete:
		if len(step.IDs) == 0 {
			return nil
		}
		return step.IDs
	case OpPurge:
		if len(step.Exclude) == 0 {
			return nil
		}
		out := make([]any, len(step.Exclude))
		for i, name := range step.Exclude {
			out[i] = name
		}
		return out
	}
	return nil
}

// snapshot exports every entity type's own records in insertion order.
func (h *Harness) snapshot(ctx context.Context) map[string][]map[string]any {
	state := make(map[string][]map[string]any)
	m := h.provider.EntityMapper()
	for _, name := range h.provider.Schema().Names() {
		records := []map[string]any{}
		for _, e := range h.provider.FetchEntities(ctx, name, nil) {
			if e.Type != name {
				continue
			}
			records = append(records, m.Export(e))
		}
		state[name] = records
	}
	return state
}
