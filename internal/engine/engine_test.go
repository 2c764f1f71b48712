package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/govpoll/internal/chat"
	"github.com/roach88/govpoll/internal/gov"
	"github.com/roach88/govpoll/internal/store"
	"github.com/roach88/govpoll/internal/summarize"
	"github.com/roach88/govpoll/internal/testutil"
)

var testStart = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *store.Store
	feed    *testutil.ScriptedFeed
	chat    *testutil.FakePlatform
	gen     *testutil.CannedGenerator
	clock   *testutil.FakeClock
	sleeper *testutil.RecordingSleeper
	engine  *Engine
}

func newFixture(t *testing.T, cfg Config, records ...gov.Raw) *fixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:   s,
		feed:    testutil.NewScriptedFeed(records...),
		gen:     testutil.NewCannedGenerator("Generated summary."),
		clock:   testutil.NewFakeClock(testStart),
		sleeper: &testutil.RecordingSleeper{},
	}
	f.chat = testutil.NewFakePlatform(f.clock.Now)

	if cfg.PollDuration == 0 {
		cfg.PollDuration = DefaultPollDuration
	}
	logger := zap.NewNop()
	f.engine = New(s, f.feed, f.chat, summarize.New(f.gen, logger), cfg, logger,
		WithClock(f.clock),
		WithSleeper(f.sleeper.Sleep),
		WithRunIDs(&testutil.SequentialRunIDs{}),
	)
	return f
}

func (f *fixture) watermark(t *testing.T) (int64, bool) {
	t.Helper()
	ts, ok, err := f.store.HighestKnownTimestamp(context.Background())
	require.NoError(t, err)
	return ts, ok
}

func (f *fixture) proposals(t *testing.T) []gov.ProposalRecord {
	t.Helper()
	recs, err := f.store.ListProposals(context.Background(), false)
	require.NoError(t, err)
	return recs
}

func reasons(items []PostingItem) []SkipReason {
	out := make([]SkipReason, 0, len(items))
	for _, it := range items {
		out = append(out, it.Reason)
	}
	return out
}

// --- posting pass ---

func TestCheckProposals_EndToEndSingleProposal(t *testing.T) {
	f := newFixture(t, Config{}, testutil.Proposal("abc123", 1, 1000))
	ctx := t.Context()

	report, err := f.engine.CheckProposals(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Nil(t, report.Watermark)
	assert.Equal(t, []string{"abc123#1"}, report.Posted())

	rec, err := f.store.ReadProposal(ctx, "abc123#1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rec.OriginTime)
	assert.False(t, rec.Processed)
	assert.Equal(t, testStart, rec.PostedAt)
	assert.Equal(t, testStart.Add(DefaultPollDuration), rec.PollDeadline)

	// Second fetch of the same record is a no-op.
	report, err = f.engine.CheckProposals(ctx)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, StatusSkipped, report.Items[0].Status)
	assert.Equal(t, SkipExists, report.Items[0].Reason)
	assert.Len(t, f.proposals(t), 1)

	ts, ok := f.watermark(t)
	assert.True(t, ok)
	assert.Equal(t, int64(1000), ts)

	calls := f.feed.Calls()
	require.Len(t, calls, 2)
	assert.Nil(t, calls[0])
	require.NotNil(t, calls[1])
	assert.Equal(t, int64(1000), *calls[1])
}

func TestCheckProposals_PostsThreadSummaryAndPoll(t *testing.T) {
	f := newFixture(t, Config{FeedBaseURL: "https://api.koios.rest/api/v1"}, testutil.Proposal("abc123", 1, 1000))

	_, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)

	threads := f.chat.Threads()
	require.Len(t, threads, 1)
	th := threads[0]
	assert.Equal(t, "Governance Action: InfoAction (abc123#1...)", th.Title)

	require.Len(t, th.Messages, 1)
	msg := th.Messages[0].Content
	assert.Contains(t, msg, "**GAID:** `abc123#1`")
	assert.Contains(t, msg, "Generated summary.")
	assert.Contains(t, msg, "https://gov.tools/outcomes/governance_actions/abc123#1")

	require.Len(t, th.Polls, 1)
	for _, poll := range th.Polls {
		assert.Equal(t, "How should we vote on this proposal?", poll.Question)
		assert.Equal(t, gov.Options, poll.Answers)
		assert.Equal(t, DefaultPollDuration, poll.Duration)
	}

	// Thread, summary, then poll.
	calls := f.chat.Calls()
	require.Len(t, calls, 3)
	assert.True(t, strings.HasPrefix(calls[0], testutil.OpCreateThread))
	assert.True(t, strings.HasPrefix(calls[1], testutil.OpPostMessage))
	assert.True(t, strings.HasPrefix(calls[2], testutil.OpCreatePoll))
}

func TestCheckProposals_SameBatchTwiceIsIdempotent(t *testing.T) {
	batch := []gov.Raw{
		testutil.Proposal("aaa", 0, 100),
		testutil.Proposal("bbb", 0, 200),
		testutil.Proposal("bbb", 1, 200),
	}
	f := newFixture(t, Config{}, batch...)

	first, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Count(StatusPosted))

	second, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Count(StatusPosted))
	assert.Equal(t, []SkipReason{SkipExists, SkipExists, SkipExists}, reasons(second.Items))

	assert.Len(t, f.proposals(t), 3)
	assert.Len(t, f.chat.Threads(), 3)
}

func TestCheckProposals_DuplicateWithinBatch(t *testing.T) {
	f := newFixture(t, Config{},
		testutil.Proposal("aaa", 0, 100),
		testutil.Proposal("aaa", 0, 100),
	)

	report, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(StatusPosted))
	assert.Equal(t, SkipExists, report.Items[1].Reason)
	assert.Len(t, f.proposals(t), 1)
}

func TestCheckProposals_SkipReasons(t *testing.T) {
	noHash := gov.Raw{"proposal_index": int64(0), "block_time": int64(500)}
	noTime := testutil.Proposal("ccc", 0, 0)
	delete(noTime, "block_time")
	initial := int64(150)

	f := newFixture(t, Config{InitialWatermark: &initial},
		noHash,
		noTime,
		testutil.Proposal("old", 0, 100),
		testutil.Proposal("edge", 0, 150),
		testutil.Proposal("new", 0, 151),
	)

	report, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)
	require.NotNil(t, report.Watermark)
	assert.Equal(t, int64(150), *report.Watermark)

	byGAID := make(map[string]PostingItem)
	for _, it := range report.Items {
		byGAID[it.GAID] = it
	}
	assert.Equal(t, SkipNoIdentity, byGAID[""].Reason)
	assert.Equal(t, SkipNoTimestamp, byGAID["ccc#0"].Reason)
	assert.Equal(t, SkipNotAfterWatermark, byGAID["old#0"].Reason)
	assert.Equal(t, SkipNotAfterWatermark, byGAID["edge#0"].Reason)
	assert.Equal(t, StatusPosted, byGAID["new#0"].Status)

	recs := f.proposals(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "new#0", recs[0].GAID)
}

func TestCheckProposals_MalformedIndexPostsAsZero(t *testing.T) {
	raw := testutil.Proposal("abc", 0, 100)
	raw["proposal_index"] = "n/a"
	f := newFixture(t, Config{}, raw)

	core, logs := observer.New(zap.WarnLevel)
	f.engine.logger = zap.New(core)

	report, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"abc#0"}, report.Posted())

	warned := logs.FilterMessageSnippet("action index").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "abc#0", warned[0].ContextMap()["gaid"])
}

func TestCheckProposals_WatermarkSources(t *testing.T) {
	t.Run("initial watermark when store empty", func(t *testing.T) {
		initial := int64(42)
		f := newFixture(t, Config{InitialWatermark: &initial})

		_, err := f.engine.CheckProposals(t.Context())
		require.NoError(t, err)

		calls := f.feed.Calls()
		require.Len(t, calls, 1)
		require.NotNil(t, calls[0])
		assert.Equal(t, int64(42), *calls[0])
	})

	t.Run("stored maximum beats initial watermark", func(t *testing.T) {
		initial := int64(42)
		f := newFixture(t, Config{InitialWatermark: &initial}, testutil.Proposal("aaa", 0, 900))

		_, err := f.engine.CheckProposals(t.Context())
		require.NoError(t, err)
		_, err = f.engine.CheckProposals(t.Context())
		require.NoError(t, err)

		calls := f.feed.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, int64(900), *calls[1])
	})
}

func TestCheckProposals_WatermarkMonotonic(t *testing.T) {
	f := newFixture(t, Config{}, testutil.Proposal("aaa", 0, 500))

	_, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)
	before, _ := f.watermark(t)

	f.feed.SetRecords(
		testutil.Proposal("bbb", 0, 400),
		testutil.Proposal("ccc", 0, 700),
	)
	_, err = f.engine.CheckProposals(t.Context())
	require.NoError(t, err)

	after, _ := f.watermark(t)
	assert.GreaterOrEqual(t, after, before)
	assert.Equal(t, int64(700), after)
}

func TestCheckProposals_AscendingOriginOrder(t *testing.T) {
	f := newFixture(t, Config{},
		testutil.Proposal("third", 0, 3000),
		testutil.Proposal("first", 0, 1000),
		testutil.Proposal("second", 0, 2000),
	)

	report, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"first#0", "second#0", "third#0"}, report.Posted())
}

func TestCheckProposals_PartialFailure(t *testing.T) {
	f := newFixture(t, Config{PostDelay: 2 * time.Second},
		testutil.Proposal("good1", 0, 100),
		testutil.Proposal("bad", 0, 200),
		testutil.Proposal("good2", 0, 300),
	)
	f.chat.FailOnTitle(testutil.OpCreatePoll, "(bad#0", errors.New("platform down"))

	report, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(StatusPosted))
	assert.Equal(t, 1, report.Count(StatusFailed))
	assert.Contains(t, report.Items[1].Error, "create poll")

	exists, err := f.store.Exists(t.Context(), "bad#0")
	require.NoError(t, err)
	assert.False(t, exists, "failed proposal must not be recorded")

	// Every attempt that reached the platform is followed by the delay.
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, f.sleeper.Delays())
}

func TestCheckProposals_SkipsAreNotThrottled(t *testing.T) {
	f := newFixture(t, Config{PostDelay: time.Second},
		gov.Raw{"block_time": int64(1)},
		testutil.Proposal("aaa", 0, 100),
	)

	_, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)
	assert.Len(t, f.sleeper.Delays(), 1)
}

func TestCheckProposals_PollDurationFloor(t *testing.T) {
	f := newFixture(t, Config{PollDuration: time.Minute}, testutil.Proposal("aaa", 0, 100))
	assert.Equal(t, MinPollDuration, f.engine.Config().PollDuration)

	_, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)

	rec, err := f.store.ReadProposal(t.Context(), "aaa#0")
	require.NoError(t, err)
	assert.Equal(t, testStart.Add(15*time.Minute), rec.PollDeadline)
}

func TestCheckProposals_SummaryFallbackStillPosts(t *testing.T) {
	f := newFixture(t, Config{}, testutil.Proposal("aaa", 0, 100))
	f.gen.SetError(errors.New("quota exceeded"))

	report, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(StatusPosted))

	th := f.chat.Threads()[0]
	assert.Contains(t, th.Messages[0].Content, summarize.SummaryFallback)
}

func TestCheckProposals_FeedErrorFailsPass(t *testing.T) {
	f := newFixture(t, Config{})
	f.feed.SetError(errors.New("indexer down"))

	_, err := f.engine.CheckProposals(t.Context())
	assert.ErrorContains(t, err, "fetch proposals")
	assert.Empty(t, f.chat.Threads())
}

func TestCheckProposals_ShutdownStopsAfterCurrentProposal(t *testing.T) {
	f := newFixture(t, Config{PostDelay: time.Minute},
		testutil.Proposal("aaa", 0, 100),
		testutil.Proposal("bbb", 0, 200),
	)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	WithSleeper(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})(f.engine)

	report, err := f.engine.CheckProposals(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa#0"}, report.Posted())
	assert.Len(t, f.proposals(t), 1)
}

// cancellingPlatform cancels the pass context right after a poll exists,
// the way a shutdown signal can land between two platform calls.
type cancellingPlatform struct {
	*testutil.FakePlatform
	cancel context.CancelFunc
}

func (p *cancellingPlatform) CreatePoll(ctx context.Context, threadID string, poll chat.Poll) (string, error) {
	id, err := p.FakePlatform.CreatePoll(ctx, threadID, poll)
	p.cancel()
	return id, err
}

func TestCheckProposals_ShutdownMidProposalStillCommits(t *testing.T) {
	f := newFixture(t, Config{},
		testutil.Proposal("aaa", 0, 100),
		testutil.Proposal("bbb", 0, 200),
	)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	f.engine.chat = &cancellingPlatform{FakePlatform: f.chat, cancel: cancel}

	report, err := f.engine.CheckProposals(ctx)
	require.NoError(t, err)
	require.Len(t, report.Items, 1, "no new record starts after cancellation")
	assert.Equal(t, StatusPosted, report.Items[0].Status)
	assert.Len(t, f.proposals(t), 1)
	assert.Len(t, f.chat.Threads(), 1)

	// The restart pass must not announce aaa#0 a second time.
	f.engine.chat = f.chat
	report, err = f.engine.CheckProposals(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"bbb#0"}, report.Posted())
	assert.Len(t, f.chat.Threads(), 2)
}

// --- collection pass ---

// postOne runs a posting pass for a single proposal and returns its record.
func postOne(t *testing.T, f *fixture, txHash string, originTime int64) gov.ProposalRecord {
	t.Helper()
	f.feed.SetRecords(testutil.Proposal(txHash, 0, originTime))
	_, err := f.engine.CheckProposals(t.Context())
	require.NoError(t, err)
	rec, err := f.store.ReadProposal(t.Context(), txHash+"#0")
	require.NoError(t, err)
	return rec
}

func TestProcessEndedPolls_TalliesAndRecords(t *testing.T) {
	f := newFixture(t, Config{})
	rec := postOne(t, f, "aaa", 100)

	f.chat.SetVotes(rec.PollID, gov.Tally{gov.Yes: 5, gov.No: 2, gov.Abstain: 1})
	require.NoError(t, f.chat.AddMessage(rec.ThreadID, chat.Message{AuthorID: "u1", AuthorName: "alice", Content: "RATIONAL: Good proposal"}))
	require.NoError(t, f.chat.AddMessage(rec.ThreadID, chat.Message{AuthorID: "u2", AuthorName: "bob", Content: "just chatting"}))

	f.clock.Advance(DefaultPollDuration + time.Second)
	report, err := f.engine.ProcessEndedPolls(t.Context())
	require.NoError(t, err)
	require.Len(t, report.Items, 1)

	item := report.Items[0]
	assert.Equal(t, StatusProcessed, item.Status)
	assert.Equal(t, gov.Yes, item.Outcome)
	assert.Equal(t, 1, item.Rationales)

	got, err := f.store.ReadProposal(t.Context(), "aaa#0")
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.Equal(t, gov.Yes, *got.FinalVote)
	assert.Equal(t, "Generated summary.", *got.FinalRationale)

	rationales, err := f.store.ReadRationales(t.Context(), "aaa#0")
	require.NoError(t, err)
	require.Len(t, rationales, 1)
	assert.Equal(t, "Good proposal", rationales[0].Text)
	assert.Equal(t, "alice", rationales[0].AuthorName)

	th, _ := f.chat.Thread(rec.ThreadID)
	last := th.Messages[len(th.Messages)-1].Content
	assert.Contains(t, last, "**Final Vote:** Yes")
	assert.Contains(t, last, "**Total Votes:** 8")
	assert.Contains(t, last, "Generated summary.")

	prompts := f.gen.Prompts()
	assert.Contains(t, prompts[len(prompts)-1], "(Yes won with 5 votes)")
	assert.Contains(t, prompts[len(prompts)-1], "- alice: Good proposal")
}

func TestProcessEndedPolls_ZeroVotesNoRationales(t *testing.T) {
	f := newFixture(t, Config{})
	rec := postOne(t, f, "aaa", 100)
	promptsBefore := len(f.gen.Prompts())

	f.clock.Advance(DefaultPollDuration)
	report, err := f.engine.ProcessEndedPolls(t.Context())
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, gov.Abstain, report.Items[0].Outcome)

	got, err := f.store.ReadProposal(t.Context(), rec.GAID)
	require.NoError(t, err)
	assert.Equal(t, gov.Abstain, *got.FinalVote)
	assert.Equal(t, summarize.NoRationales, *got.FinalRationale)
	assert.Len(t, f.gen.Prompts(), promptsBefore, "digest must not call the generator without rationales")
}

func TestProcessEndedPolls_OnlyDueRecords(t *testing.T) {
	f := newFixture(t, Config{})
	postOne(t, f, "aaa", 100)

	f.clock.Advance(DefaultPollDuration - time.Second)
	report, err := f.engine.ProcessEndedPolls(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)

	f.clock.Advance(2 * time.Second)
	report, err = f.engine.ProcessEndedPolls(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(StatusProcessed))

	// Processed records are never collected again.
	f.clock.Advance(time.Hour)
	report, err = f.engine.ProcessEndedPolls(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)
}

func TestProcessEndedPolls_MissingThreadIsRetried(t *testing.T) {
	f := newFixture(t, Config{})
	gone := postOne(t, f, "gone", 100)
	kept := postOne(t, f, "kept", 200)
	f.chat.DeleteThread(gone.ThreadID)

	f.clock.Advance(DefaultPollDuration)
	report, err := f.engine.ProcessEndedPolls(t.Context())
	require.NoError(t, err)
	require.Len(t, report.Items, 2)

	assert.Equal(t, StatusSkipped, report.Items[0].Status)
	assert.Equal(t, SkipTargetMissing, report.Items[0].Reason)
	assert.Equal(t, StatusProcessed, report.Items[1].Status)

	got, err := f.store.ReadProposal(t.Context(), gone.GAID)
	require.NoError(t, err)
	assert.False(t, got.Processed)

	got, err = f.store.ReadProposal(t.Context(), kept.GAID)
	require.NoError(t, err)
	assert.True(t, got.Processed)
}

func TestProcessEndedPolls_PostFailureLeavesUnprocessed(t *testing.T) {
	f := newFixture(t, Config{CollectDelay: time.Second})
	rec := postOne(t, f, "aaa", 100)
	f.chat.FailOn(testutil.OpPostMessage, errors.New("rate limited"))

	f.clock.Advance(DefaultPollDuration)
	report, err := f.engine.ProcessEndedPolls(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, report.Items[0].Status)
	assert.Contains(t, report.Items[0].Error, "post results")

	got, err := f.store.ReadProposal(t.Context(), rec.GAID)
	require.NoError(t, err)
	assert.False(t, got.Processed)
	assert.Equal(t, time.Second, f.sleeper.Delays()[len(f.sleeper.Delays())-1])
}

func TestProcessEndedPolls_DigestFallback(t *testing.T) {
	f := newFixture(t, Config{})
	rec := postOne(t, f, "aaa", 100)
	f.chat.SetVotes(rec.PollID, gov.Tally{gov.No: 2})
	require.NoError(t, f.chat.AddMessage(rec.ThreadID, chat.Message{AuthorName: "carol", Content: "RATIONAL: too expensive"}))
	f.gen.SetError(errors.New("down"))

	f.clock.Advance(DefaultPollDuration)
	_, err := f.engine.ProcessEndedPolls(t.Context())
	require.NoError(t, err)

	got, err := f.store.ReadProposal(t.Context(), rec.GAID)
	require.NoError(t, err)
	assert.Equal(t, gov.No, *got.FinalVote)
	assert.Equal(t, "The community voted No based on 1 submitted rationals.", *got.FinalRationale)
}

func TestProcessEndedPolls_TieUsesPrecedence(t *testing.T) {
	f := newFixture(t, Config{})
	rec := postOne(t, f, "aaa", 100)
	f.chat.SetVotes(rec.PollID, gov.Tally{gov.No: 3, gov.Abstain: 3})

	f.clock.Advance(DefaultPollDuration)
	report, err := f.engine.ProcessEndedPolls(t.Context())
	require.NoError(t, err)
	assert.Equal(t, gov.No, report.Items[0].Outcome)
}

func TestProcessEndedPolls_RetryStoresRationalesOnce(t *testing.T) {
	f := newFixture(t, Config{})
	rec := postOne(t, f, "aaa", 100)
	require.NoError(t, f.chat.AddMessage(rec.ThreadID, chat.Message{AuthorID: "u1", AuthorName: "alice", Content: "RATIONAL: Good proposal"}))
	f.clock.Advance(DefaultPollDuration)

	f.chat.FailOn(testutil.OpPostMessage, errors.New("rate limited"))
	report, err := f.engine.ProcessEndedPolls(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, report.Items[0].Status)

	stored, err := f.store.ReadRationales(t.Context(), rec.GAID)
	require.NoError(t, err)
	assert.Empty(t, stored, "nothing is persisted before the results are posted")

	f.chat.FailOn(testutil.OpPostMessage, nil)
	report, err = f.engine.ProcessEndedPolls(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, report.Items[0].Status)

	stored, err = f.store.ReadRationales(t.Context(), rec.GAID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Good proposal", stored[0].Text)
	assert.Equal(t, "alice", stored[0].AuthorName)
}
