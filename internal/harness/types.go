package harness

// TraceEvent records one submitted operation or its completion.
type TraceEvent struct {
	Type    string `json:"type"` // "operation" or "completion"
	Action  string `json:"action"`
	Args    any    `json:"args,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	// Events lists the result-channel events delivered for a completion.
	Events []string `json:"events,omitempty"`
	Seq    int64    `json:"seq"`
}

// Trace event types.
const (
	EventOperation  = "operation"
	EventCompletion = "completion"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains every operation and completion in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State maps each entity type to its exported records, exact type
	// only, in insertion order.
	State map[string][]map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]map[string]any),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddOperationTrace adds a submitted operation to the trace.
func (r *Result) AddOperationTrace(action string, args any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventOperation,
		Action: action,
		Args:   args,
		Seq:    seq,
	})
}

// AddCompletionTrace adds an operation's outcome to the trace.
func (r *Result) AddCompletionTrace(action, outcome string, events []string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventCompletion,
		Action:  action,
		Outcome: outcome,
		Events:  events,
		Seq:     seq,
	})
}
