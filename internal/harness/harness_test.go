package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(t.Context(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ReportsMismatches(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: mismatch
description: "expectations that do not hold"
steps:
  - action: feed
    proposals:
      - { tx_hash: abc, index: 0, block_time: 10 }
  - action: check
    expect: { posted: 2 }
assertions:
  - type: proposal
    gaid: "abc#0"
    expect: { processed: true }
  - type: thread_count
    count: 5
`))
	require.NoError(t, err)

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "expected 2 posted items, got 1")
	assert.Contains(t, result.Errors[1], `processed: want "true", got "false"`)
	assert.Contains(t, result.Errors[2], "5 threads")
}

func TestRun_FeedErrorFailsPass(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: feed_down
description: "a feed outage fails the whole pass"
steps:
  - action: feed_error
    error: "indexer unavailable"
  - action: check
    expect: { posted: 0 }
assertions:
  - type: proposal_count
    count: 0
`))
	require.NoError(t, err)

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "error", result.Trace[1].Status)
	assert.Contains(t, result.Trace[1].Detail, "indexer unavailable")
}

func TestRun_UnknownGAIDAborts(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_vote
description: "votes on a proposal that was never posted"
steps:
  - action: vote
    gaid: "missing#0"
    votes: { "Yes": 1 }
assertions:
  - type: proposal_count
    count: 0
`))
	require.NoError(t, err)

	_, err = Run(t.Context(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0 (vote)")
}
