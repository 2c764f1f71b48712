package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govpoll/internal/engine"
	"github.com/roach88/govpoll/internal/gov"
	"github.com/roach88/govpoll/internal/store"
)

var testPostedAt = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "governance.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := t.Context()
	for i, gaid := range []string{"aaa#0", "bbb#1"} {
		require.NoError(t, st.InsertProposal(ctx, gov.ProposalRecord{
			GAID:         gaid,
			ThreadID:     "thread-" + gaid[:3],
			PollID:       "poll-" + gaid[:3],
			OriginTime:   int64(100 + i),
			PostedAt:     testPostedAt,
			PollDeadline: testPostedAt.Add(14 * 24 * time.Hour),
		}))
	}
	_, err = st.AppendRationale(ctx, gov.Rationale{GAID: "aaa#0", AuthorID: "1", AuthorName: "alice", Text: "ok", PostedAt: testPostedAt})
	require.NoError(t, err)
	require.NoError(t, st.MarkProcessed(ctx, "aaa#0", gov.No, "digest"))
	return path
}

func TestStatusCommand_Text(t *testing.T) {
	db := seedStore(t)

	var out, errOut bytes.Buffer
	code := Execute(t.Context(), []string{"status", "--env-file", "", "--db", db}, &out, &errOut)
	require.Equal(t, ExitSuccess, code, errOut.String())

	text := out.String()
	assert.Contains(t, text, "aaa#0  thread=thread-aaa  closed: No  (1 rationale)")
	assert.Contains(t, text, "bbb#1  thread=thread-bbb  open until 2024-09-15T12:00:00Z  (0 rationales)")
	assert.Contains(t, text, "2 proposals")
}

func TestStatusCommand_PendingJSON(t *testing.T) {
	db := seedStore(t)

	var out, errOut bytes.Buffer
	code := Execute(t.Context(), []string{"status", "--pending", "--format", "json", "--env-file", "", "--db", db}, &out, &errOut)
	require.Equal(t, ExitSuccess, code, errOut.String())

	var resp struct {
		Status string        `json:"status"`
		Data   []StatusEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "bbb#1", resp.Data[0].GAID)
	assert.False(t, resp.Data[0].Processed)
}

func TestFeedCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/proposal_list", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"proposal_tx_hash": "aaa", "proposal_index": 0, "block_time": 100, "proposal_type": "InfoAction"},
			{"proposal_tx_hash": "bbb", "proposal_index": 1, "block_time": 200, "proposal_type": "TreasuryWithdrawals", "title": "Audit"},
			{"proposal_index": 7, "block_time": 250},
			{"proposal_tx_hash": "ccc", "proposal_index": 2, "block_time": 300}
		]`))
	}))
	defer srv.Close()
	t.Setenv("KOIOS_BASE_URL", srv.URL)

	var out, errOut bytes.Buffer
	code := Execute(t.Context(), []string{"feed", "--env-file", "", "--since-proposal", "aaa#0", "--max", "1"}, &out, &errOut)
	require.Equal(t, ExitSuccess, code, errOut.String())

	assert.Equal(t, "bbb#1\t200\tAudit\n1 proposal\n", out.String())
}

func TestSelectFeedEntries(t *testing.T) {
	raws := []gov.Raw{
		{"proposal_tx_hash": "b", "proposal_index": int64(0), "block_time": int64(2)},
		{"proposal_tx_hash": "a", "proposal_index": int64(0)},
		{"block_time": int64(3)},
	}

	all := selectFeedEntries(raws, "", 0)
	require.Len(t, all, 2)
	assert.Equal(t, "b#0", all[0].GAID)
	require.NotNil(t, all[0].BlockTime)
	assert.Nil(t, all[1].BlockTime)

	assert.Len(t, selectFeedEntries(raws, "a#0", 0), 1)
	assert.Empty(t, selectFeedEntries(nil, "", 5))
}

func TestWritePostingReport(t *testing.T) {
	wm := int64(100)
	var buf bytes.Buffer
	writePostingReport(&buf, engine.PostingReport{
		RunID:     "run-1",
		Watermark: &wm,
		Fetched:   3,
		Items: []engine.PostingItem{
			{GAID: "a#0", Status: engine.StatusPosted, ThreadID: "t1", PollID: "p1"},
			{Status: engine.StatusSkipped, Reason: engine.SkipNoIdentity},
			{GAID: "c#0", Status: engine.StatusFailed, Error: "create poll: boom"},
		},
	})

	assert.Equal(t, "Posting run run-1: fetched 3, posted 1, skipped 1, failed 1\n"+
		"  watermark: 100\n"+
		"  ✓ a#0 thread=t1 poll=p1\n"+
		"  - (no identity) (no_identity)\n"+
		"  ✗ c#0: create poll: boom\n", buf.String())
}

func TestWriteCollectionReport(t *testing.T) {
	var buf bytes.Buffer
	writeCollectionReport(&buf, engine.CollectionReport{
		RunID: "run-2",
		Due:   2,
		Items: []engine.CollectionItem{
			{GAID: "a#0", Status: engine.StatusProcessed, Outcome: gov.Yes, Tally: gov.Tally{gov.Yes: 2, gov.No: 1}, Rationales: 1},
			{GAID: "b#0", Status: engine.StatusSkipped, Reason: engine.SkipTargetMissing},
		},
	})

	assert.Equal(t, "Collection run run-2: due 2, processed 1, skipped 1, failed 0\n"+
		"  ✓ a#0 Yes (3 votes, 1 rationale)\n"+
		"  - b#0 (target_missing)\n", buf.String())
}

func TestSimulateCommand_Scenarios(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Execute(t.Context(), []string{"simulate", filepath.Join("..", "harness", "testdata", "scenarios")}, &out, &errOut)
	require.Equal(t, ExitSuccess, code, out.String()+errOut.String())

	assert.Contains(t, out.String(), "✓ abc123_lifecycle")
	assert.Contains(t, out.String(), "0 failed")
}

const failingScenario = `
name: wrong_count
description: "expects a post that never happens"
steps:
  - action: check
    expect: { posted: 1 }
assertions:
  - type: proposal_count
    count: 0
`

func TestSimulateCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wrong.yaml")
	require.NoError(t, os.WriteFile(path, []byte(failingScenario), 0o644))

	var out, errOut bytes.Buffer
	code := Execute(t.Context(), []string{"simulate", "--format", "json", path}, &out, &errOut)
	assert.Equal(t, ExitFailure, code)

	var result SimulateResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Scenarios, 1)
	assert.Contains(t, result.Scenarios[0].Errors[0], "expected 1 posted items, got 0")
}

func TestSimulateCommand_UpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "empty.yaml"), []byte(`
name: empty_feed
description: "nothing to post"
steps:
  - action: check
    expect: { posted: 0 }
assertions:
  - type: proposal_count
    count: 0
`), 0o644))

	var out, errOut bytes.Buffer
	code := Execute(t.Context(), []string{"simulate", "--update", scenarios}, &out, &errOut)
	require.Equal(t, ExitSuccess, code, out.String())
	assert.Contains(t, out.String(), "✓ empty_feed (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "empty_feed.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name": "empty_feed"`)

	out.Reset()
	code = Execute(t.Context(), []string{"simulate", scenarios}, &out, &errOut)
	assert.Equal(t, ExitSuccess, code, out.String())
}

func TestSimulateCommand_MissingPath(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Execute(t.Context(), []string{"simulate", filepath.Join(t.TempDir(), "nope")}, &out, &errOut)
	assert.Equal(t, ExitCommandError, code)
}
