package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_AdoptRex(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "adopt_rex.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.AddOperationTrace("delete.Pet", []any{2, 1}, 1)
	result.AddCompletionTrace("delete.Pet", OutcomeCommitted, []string{"next", "completed"}, 2)
	result.State["Pet"] = []map[string]any{{"name": "Rex", "id": int64(2)}}

	data, err := MarshalSnapshot("tiny", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"tiny","state":{"Pet":[{"id":2,"name":"Rex"}]},"trace":[`+
			`{"action":"delete.Pet","args":[2,1],"seq":1,"type":"operation"},`+
			`{"action":"delete.Pet","events":["next","completed"],"outcome":"committed","seq":2,"type":"completion"}]}`,
		string(data))
}
