package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/govpoll/internal/chat"
	"github.com/roach88/govpoll/internal/engine"
	"github.com/roach88/govpoll/internal/gov"
	"github.com/roach88/govpoll/internal/store"
	"github.com/roach88/govpoll/internal/summarize"
	"github.com/roach88/govpoll/internal/testutil"
)

// DefaultStart is the clock reading of scenarios without a start time.
var DefaultStart = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

// DefaultSummary is the generator reply of scenarios without a summary.
const DefaultSummary = "Scenario summary."

// Harness holds the collaborators of one scenario run.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	feed     *testutil.ScriptedFeed
	platform *testutil.FakePlatform
	gen      *testutil.CannedGenerator
	clock    *testutil.FakeClock
}

// Option configures a run.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger routes engine logs to l. Runs are silent by default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Run executes a scenario in a fresh in-memory store and returns its
// result. The error is reserved for infrastructure failures; scenario
// mismatches are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := newHarness(st, scenario, o.logger)

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions, result) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario, logger *zap.Logger) *Harness {
	start := scenario.Start
	if start.IsZero() {
		start = DefaultStart
	}
	summary := scenario.Summary
	if summary == "" {
		summary = DefaultSummary
	}

	h := &Harness{
		store: st,
		feed:  testutil.NewScriptedFeed(),
		gen:   testutil.NewCannedGenerator(summary),
		clock: testutil.NewFakeClock(start),
	}
	h.platform = testutil.NewFakePlatform(h.clock.Now)

	cfg := engine.Config{
		InitialWatermark: scenario.Config.InitialBlockTime,
		PollDuration:     engine.DefaultPollDuration,
		PostDelay:        2 * time.Second,
		CollectDelay:     time.Second,
		FeedBaseURL:      scenario.Config.FeedBaseURL,
	}
	if m := scenario.Config.PollDurationMinutes; m > 0 {
		cfg.PollDuration = time.Duration(m) * time.Minute
	}
	if cfg.FeedBaseURL == "" {
		cfg.FeedBaseURL = "https://api.koios.rest/api/v1"
	}

	sleeper := &testutil.RecordingSleeper{}
	h.engine = engine.New(st, h.feed, h.platform, summarize.New(h.gen, logger), cfg, logger,
		engine.WithClock(h.clock),
		engine.WithSleeper(sleeper.Sleep),
		engine.WithRunIDs(&testutil.SequentialRunIDs{}),
	)
	return h
}

// executeStep applies one step. Returned errors abort the run; mismatches
// against step expectations are added to result.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	switch step.Action {
	case ActionFeed:
		raws := make([]gov.Raw, 0, len(step.Proposals))
		for _, rec := range step.Proposals {
			raws = append(raws, rec.Raw())
		}
		h.feed.SetRecords(raws...)
		result.addEvent(TraceEvent{Step: i, Action: step.Action, Detail: fmt.Sprintf("%d records", len(raws))})

	case ActionFeedError:
		h.feed.SetError(optionalError(step.Error))
		result.addEvent(TraceEvent{Step: i, Action: step.Action, Detail: step.Error})

	case ActionGeneratorError:
		h.gen.SetError(optionalError(step.Error))
		result.addEvent(TraceEvent{Step: i, Action: step.Action, Detail: step.Error})

	case ActionFail:
		h.platform.FailOn(step.Op, optionalError(step.Error))
		result.addEvent(TraceEvent{Step: i, Action: step.Action, Detail: step.Op})

	case ActionAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		result.addEvent(TraceEvent{Step: i, Action: step.Action, Detail: d.String()})

	case ActionVote:
		rec, err := h.store.ReadProposal(ctx, step.GAID)
		if err != nil {
			return err
		}
		tally := gov.NewTally()
		for label, n := range step.Votes {
			opt, err := gov.ParseOption(label)
			if err != nil {
				return err
			}
			tally[opt] = n
		}
		h.platform.SetVotes(rec.PollID, tally)
		result.addEvent(TraceEvent{Step: i, Action: step.Action, GAID: step.GAID,
			Detail: fmt.Sprintf("Yes=%d No=%d Abstain=%d", tally[gov.Yes], tally[gov.No], tally[gov.Abstain])})

	case ActionComment:
		rec, err := h.store.ReadProposal(ctx, step.GAID)
		if err != nil {
			return err
		}
		msg := chat.Message{AuthorID: "id-" + step.Author, AuthorName: step.Author, Bot: step.Bot, Content: step.Text}
		if err := h.platform.AddMessage(rec.ThreadID, msg); err != nil {
			return err
		}
		result.addEvent(TraceEvent{Step: i, Action: step.Action, GAID: step.GAID, Detail: step.Author})

	case ActionDeleteThread:
		rec, err := h.store.ReadProposal(ctx, step.GAID)
		if err != nil {
			return err
		}
		h.platform.DeleteThread(rec.ThreadID)
		result.addEvent(TraceEvent{Step: i, Action: step.Action, GAID: step.GAID})

	case ActionCheck:
		report, err := h.engine.CheckProposals(ctx)
		if err != nil {
			result.addEvent(TraceEvent{Step: i, Action: step.Action, Status: "error", Detail: err.Error()})
			return expectCounts(i, step, nil, result)
		}
		counts := make(map[string]int)
		for _, it := range report.Items {
			counts[string(it.Status)]++
			result.addEvent(TraceEvent{Step: i, Action: step.Action, GAID: it.GAID,
				Status: string(it.Status), Reason: string(it.Reason), Detail: it.Error})
		}
		return expectCounts(i, step, counts, result)

	case ActionCollect:
		report, err := h.engine.ProcessEndedPolls(ctx)
		if err != nil {
			result.addEvent(TraceEvent{Step: i, Action: step.Action, Status: "error", Detail: err.Error()})
			return expectCounts(i, step, nil, result)
		}
		counts := make(map[string]int)
		for _, it := range report.Items {
			counts[string(it.Status)]++
			detail := it.Error
			if it.Status == engine.StatusProcessed {
				detail = fmt.Sprintf("%s with %d rationales", it.Outcome, it.Rationales)
			}
			result.addEvent(TraceEvent{Step: i, Action: step.Action, GAID: it.GAID,
				Status: string(it.Status), Reason: string(it.Reason), Detail: detail})
		}
		return expectCounts(i, step, counts, result)

	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

// expectCounts compares a pass's status counts with the step expectation.
// A nil counts map means the pass itself failed.
func expectCounts(i int, step Step, counts map[string]int, result *Result) error {
	if step.Expect == nil {
		return nil
	}
	if counts == nil {
		result.AddError(fmt.Sprintf("steps[%d]: %s pass failed", i, step.Action))
		return nil
	}
	for _, status := range slices.Sorted(maps.Keys(step.Expect)) {
		want := step.Expect[status]
		if got := counts[status]; got != want {
			result.AddError(fmt.Sprintf("steps[%d]: expected %d %s items, got %d", i, want, status, got))
		}
	}
	return nil
}

func optionalError(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
