package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ResolvesSchemaPaths(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "adopt_rex.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "adopt_rex", s.Name)
	require.Len(t, s.Schemas, 1)
	assert.Equal(t, filepath.Join("testdata", "schema", "petshop.cue"), s.Schemas[0])
	require.Len(t, s.Setup, 1)
	assert.Len(t, s.Setup[0].Records, 2)
	require.Len(t, s.Flow, 4)
	assert.Equal(t, "delete.Pet", s.Flow[2].Action())
	assert.Equal(t, []any{1, 999}, s.Flow[2].IDs)
	require.NotNil(t, s.Flow[3].Expect)
	assert.Equal(t, "MAPPING_ERROR", s.Flow[3].Expect.Outcome)
}

func TestLoadScenario_InlineSchema(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "purge_keep_owners.yaml"))
	require.NoError(t, err)

	assert.Empty(t, s.Schemas)
	assert.Contains(t, s.Schema, "entity: VIP")
	assert.Equal(t, "purge", s.Flow[0].Action())
	assert.Equal(t, []string{"Owner"}, s.Flow[0].Exclude)
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: typo
description: "has a typo"
schema: "entity: A: {primary_key: \"id\", fields: id: string}"
flow:
  - op: map
    entity: A
    records: []
assertion:
  - type: count
    entity: A
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestValidateScenario(t *testing.T) {
	valid := func() *Scenario {
		return &Scenario{
			Name:        "ok",
			Description: "valid",
			Schema:      "entity: A: {}",
			Flow:        []Step{{Op: OpMap, Entity: "A", Records: []map[string]any{}}},
			Assertions:  []Assertion{{Type: AssertCount, Entity: "A"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(s *Scenario)
		errMsg string
	}{
		{"valid", func(*Scenario) {}, ""},
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no schema", func(s *Scenario) { s.Schema = "" }, "schemas or schema is required"},
		{"both schemas", func(s *Scenario) { s.Schemas = []string{"x.cue"} }, "mutually exclusive"},
		{"empty flow", func(s *Scenario) { s.Flow = nil }, "flow list is required"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"missing op", func(s *Scenario) { s.Flow[0].Op = "" }, "flow[0]: op is required"},
		{"unknown op", func(s *Scenario) { s.Flow[0].Op = "upsert" }, `unknown op "upsert"`},
		{"map without records", func(s *Scenario) { s.Flow[0].Records = nil }, "records is required"},
		{"delete without entity", func(s *Scenario) { s.Flow[0] = Step{Op: OpDelete} }, "entity is required for delete"},
		{"purge with entity", func(s *Scenario) { s.Flow[0] = Step{Op: OpPurge, Entity: "A"} }, "purge takes no entity"},
		{"empty expect", func(s *Scenario) { s.Flow[0].Expect = &ExpectClause{} }, "flow[0].expect: outcome is required"},
		{
			"failing setup",
			func(s *Scenario) {
				s.Setup = []Step{{Op: OpMap, Entity: "A", Records: []map[string]any{}, Expect: &ExpectClause{Outcome: "MAPPING_ERROR"}}}
			},
			"setup steps must commit",
		},
		{"unknown assertion", func(s *Scenario) { s.Assertions[0].Type = "magic" }, `unknown assertion type "magic"`},
		{"final_state without expect", func(s *Scenario) { s.Assertions[0] = Assertion{Type: AssertFinalState, Entity: "A"} }, "expect is required"},
		{"absent without ids", func(s *Scenario) { s.Assertions[0] = Assertion{Type: AssertAbsent, Entity: "A"} }, "ids is required"},
		{"trace_order without actions", func(s *Scenario) { s.Assertions[0] = Assertion{Type: AssertTraceOrder} }, "actions list is required"},
		{"negative count", func(s *Scenario) { s.Assertions[0].Count = -1 }, "count must be non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := validateScenario(s)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
