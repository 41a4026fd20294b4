package harness

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios drive the provider through a flow of write operations and
// assert on the resulting trace and final store contents.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schemas lists CUE schema files or package directories.
	// Paths are relative to the scenario file location.
	Schemas []string `yaml:"schemas,omitempty"`

	// Schema is inline CUE source, used instead of Schemas.
	Schema string `yaml:"schema,omitempty"`

	// Setup contains operations run before the flow. They must commit.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the operations under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one write operation submitted through the provider.
type Step struct {
	// Op is the operation kind: map, delete or purge.
	Op string `yaml:"op"`

	// Entity is the target entity type (map and delete).
	Entity string `yaml:"entity,omitempty"`

	// Records are the records mapped by a map step.
	Records []map[string]any `yaml:"records,omitempty"`

	// IDs are the primary keys removed by a delete step.
	IDs []any `yaml:"ids,omitempty"`

	// Exclude names entity types a purge step keeps.
	Exclude []string `yaml:"exclude,omitempty"`

	// Expect is the expected outcome. Defaults to committed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Action returns the trace label of the step, e.g. "map.Pet" or "purge".
func (s Step) Action() string {
	if s.Entity == "" {
		return s.Op
	}
	return s.Op + "." + s.Entity
}

// ExpectClause specifies the expected operation outcome.
type ExpectClause struct {
	// Outcome is "committed" or an error code such as MAPPING_ERROR.
	Outcome string `yaml:"outcome"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an action appears in the trace
	// - "trace_order": actions appear in order
	// - "trace_count": an action appears exactly N times
	// - "final_state": exactly one record matches Where and contains Expect
	// - "count": Count records of Entity match Where
	// - "absent": no record of Entity has any of IDs
	Type string `yaml:"type"`

	// Action is a step label (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Outcome optionally narrows trace_contains to one outcome.
	Outcome string `yaml:"outcome,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Entity is the queried entity type. Descendants are included.
	Entity string `yaml:"entity,omitempty"`

	// Where filters records by exact field values.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`

	// IDs are primary keys that must not exist (absent).
	IDs []any `yaml:"ids,omitempty"`

	// Count is the expected number of matches.
	Count int `yaml:"count,omitempty"`
}

// Step operation kinds.
const (
	OpMap    = "map"
	OpDelete = "delete"
	OpPurge  = "purge"
)

// Outcome of a committed operation.
const OutcomeCommitted = "committed"

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertCount         = "count"
	AssertAbsent        = "absent"
)

// LoadScenario reads and parses a scenario YAML file. Schema paths are
// resolved relative to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving schema paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	for i, p := range scenario.Schemas {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.Schemas[i] = filepath.Join(basePath, p)
		}
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without validating it.
// Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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

	if len(s.Schemas) == 0 && s.Schema == "" {
		return fmt.Errorf("schemas or schema is required")
	}

	if len(s.Schemas) > 0 && s.Schema != "" {
		return fmt.Errorf("schemas and schema are mutually exclusive")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, p := range s.Schemas {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("schema file not found: %s", p)
		}
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
		if step.Expect != nil && step.Expect.Outcome != OutcomeCommitted {
			return fmt.Errorf("setup[%d]: setup steps must commit", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(where string, step Step) error {
	switch step.Op {
	case OpMap:
		if step.Entity == "" {
			return fmt.Errorf("%s: entity is required for map", where)
		}
		if step.Records == nil {
			return fmt.Errorf("%s: records is required for map (use an empty list for none)", where)
		}
	case OpDelete:
		if step.Entity == "" {
			return fmt.Errorf("%s: entity is required for delete", where)
		}
	case OpPurge:
		if step.Entity != "" {
			return fmt.Errorf("%s: purge takes no entity", where)
		}
	case "":
		return fmt.Errorf("%s: op is required", where)
	default:
		return fmt.Errorf("%s: unknown op %q", where, step.Op)
	}

	if step.Expect != nil && step.Expect.Outcome == "" {
		return fmt.Errorf("%s.expect: outcome is required", where)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertCount:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertAbsent:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for absent", index)
		}
		if len(a.IDs) == 0 {
			return fmt.Errorf("assertions[%d]: ids is required for absent", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
