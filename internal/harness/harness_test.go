package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ScenarioFiles(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			s, err := LoadScenario(f)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %s", strings.Join(result.Errors, "\n"))
			assert.Len(t, result.Trace, len(s.Steps))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/demo_views.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalSnapshot(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ExpectMismatch(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: mismatch
description: "expects a rollback that never happens"
steps:
  - create: "A"
    expect:
      status: rolled_back
      error: listener_failure
      count_after: 0
assertions:
  - type: final_count
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "expected status rolled_back, got committed")
	assert.Contains(t, result.Errors[1], "expected error listener_failure")
	assert.Contains(t, result.Errors[2], "expected count_after 0, got 1")
}

func TestRun_AssertionFailure(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_order
description: "asserts the reverse of registration order"
listeners:
  - name: first
  - name: second
steps:
  - create: "A"
assertions:
  - type: dispatch_order
    listeners: [second, first]
  - type: final_count
    count: 5
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "second (pos 2) should be before first (pos 1)")
	assert.Contains(t, result.Errors[1], "5 committed MyModel records")
}

func TestRun_InvalidNameIsTraced(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: overlong
description: "an overlong name fails validation before dispatch"
listeners:
  - name: watcher
steps:
  - create: "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"
    expect:
      status: rolled_back
      error: invalid_name
assertions:
  - type: invocation_count
    listener: watcher
    count: 0
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace[0].Listeners)
}
