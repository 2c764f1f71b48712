package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/govpoll/internal/chat"
	"github.com/roach88/govpoll/internal/feed"
	"github.com/roach88/govpoll/internal/gov"
	"github.com/roach88/govpoll/internal/present"
	"github.com/roach88/govpoll/internal/store"
	"github.com/roach88/govpoll/internal/summarize"
)

// MinPollDuration is the shortest poll the tracker will open.
const MinPollDuration = 15 * time.Minute

// DefaultPollDuration is two weeks.
const DefaultPollDuration = 14 * 24 * time.Hour

// ItemTimeout bounds the work on one record once it has started. Shutdown
// does not interrupt that work, this timeout does.
const ItemTimeout = 2 * time.Minute

// itemContext detaches one record's work from the pass context so that
// cancellation lets it reach its commit point.
func itemContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ItemTimeout)
}

// Store is the durable state the tracker reads and commits to.
// Implemented by *store.Store.
type Store interface {
	HighestKnownTimestamp(ctx context.Context) (int64, bool, error)
	Exists(ctx context.Context, gaid string) (bool, error)
	InsertProposal(ctx context.Context, rec gov.ProposalRecord) error
	DueForCollection(ctx context.Context, now time.Time) ([]gov.ProposalRecord, error)
	CompleteCollection(ctx context.Context, gaid string, vote gov.Option, digest string, rationales []gov.Rationale) error
}

// Feed lists raw proposals newer than an optional origin time.
// Implemented by *feed.Client.
type Feed interface {
	Fetch(ctx context.Context, after *int64) ([]gov.Raw, error)
}

// Enricher fills in proposal metadata before summarization.
// Implemented by *feed.MetadataFetcher.
type Enricher interface {
	Enrich(ctx context.Context, raw gov.Raw)
}

// Summarizer produces summaries that never fail.
// Implemented by *summarize.Summarizer.
type Summarizer interface {
	ProposalSummary(ctx context.Context, gaid string, raw gov.Raw) string
	RationaleDigest(ctx context.Context, gaid string, outcome gov.Option, tally gov.Tally, rationales []gov.Rationale) string
}

var (
	_ Store      = (*store.Store)(nil)
	_ Feed       = (*feed.Client)(nil)
	_ Enricher   = (*feed.MetadataFetcher)(nil)
	_ Summarizer = (*summarize.Summarizer)(nil)
)

// Config holds the tracker's tunables.
type Config struct {
	// InitialWatermark is used while the store is empty. Nil fetches the
	// whole feed.
	InitialWatermark *int64

	// PollDuration is how long polls stay open. Values below
	// MinPollDuration are raised to it.
	PollDuration time.Duration

	// PostDelay separates successive proposal postings.
	PostDelay time.Duration

	// CollectDelay separates successive due-poll collections.
	CollectDelay time.Duration

	// FeedBaseURL selects the explorer network for links.
	FeedBaseURL string
}

// Engine drives proposals through their lifecycle.
//
// Thread-safety: CheckProposals and ProcessEndedPolls may run concurrently
// with each other and with themselves; all coordination goes through the
// store.
type Engine struct {
	store      Store
	feed       Feed
	chat       chat.Platform
	summarizer Summarizer
	enricher   Enricher
	cfg        Config
	logger     *zap.Logger
	clock      Clock
	sleep      Sleeper
	runIDs     RunIDGenerator
}

// Option allows configuration of engine collaborators.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithSleeper replaces the throttle's sleep function.
// Use a no-op sleeper in tests to skip the delays.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) {
		e.sleep = s
	}
}

// WithRunIDs replaces the UUIDv7 run ID generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithEnricher fetches off-chain metadata for proposals that lack it.
func WithEnricher(en Enricher) Option {
	return func(e *Engine) {
		e.enricher = en
	}
}

// New creates an Engine. The poll duration is floored at MinPollDuration.
func New(
	st Store,
	feed Feed,
	platform chat.Platform,
	summarizer Summarizer,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	if cfg.PollDuration < MinPollDuration {
		cfg.PollDuration = MinPollDuration
	}

	e := &Engine{
		store:      st,
		feed:       feed,
		chat:       platform,
		summarizer: summarizer,
		cfg:        cfg,
		logger:     logger.Named("engine"),
		clock:      WallClock{},
		sleep:      Sleep,
		runIDs:     UUIDv7Generator{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// CheckProposals fetches the feed past the watermark and posts every new
// proposal. Per-proposal failures are reported, not returned.
func (e *Engine) CheckProposals(ctx context.Context) (PostingReport, error) {
	report := PostingReport{
		RunID:     e.runIDs.Generate(),
		StartedAt: e.clock.Now(),
		Items:     []PostingItem{},
	}
	log := e.logger.With(zap.String("run_id", report.RunID), zap.String("pass", "posting"))

	watermark, err := e.watermark(ctx)
	if err != nil {
		report.FinishedAt = e.clock.Now()
		return report, err
	}
	report.Watermark = watermark

	if watermark != nil {
		log.Info("fetching proposals", zap.Int64("after", *watermark))
	} else {
		log.Info("fetching all proposals")
	}

	raws, err := e.feed.Fetch(ctx, watermark)
	if err != nil {
		report.FinishedAt = e.clock.Now()
		return report, fmt.Errorf("fetch proposals: %w", err)
	}
	report.Fetched = len(raws)
	log.Info("proposals fetched", zap.Int("count", len(raws)))

	sortByOriginTime(raws)
	throttle := NewThrottle(e.cfg.PostDelay, e.sleep)

	for _, raw := range raws {
		if ctx.Err() != nil {
			log.Info("posting pass interrupted", zap.Error(ctx.Err()))
			break
		}

		itemCtx, cancel := itemContext(ctx)
		item := e.postOne(itemCtx, log, raw, watermark)
		cancel()
		report.Items = append(report.Items, item)

		// Only attempts that reached the platform are throttled.
		if item.Status == StatusPosted || item.Status == StatusFailed {
			if err := throttle.Wait(ctx); err != nil {
				break
			}
		}
	}

	report.FinishedAt = e.clock.Now()
	log.Info("posting pass finished",
		zap.Int("posted", report.Count(StatusPosted)),
		zap.Int("skipped", report.Count(StatusSkipped)),
		zap.Int("failed", report.Count(StatusFailed)),
	)
	return report, nil
}

// watermark resolves the lower fetch bound: the highest stored origin time,
// else the configured initial watermark, else none.
func (e *Engine) watermark(ctx context.Context) (*int64, error) {
	ts, ok, err := e.store.HighestKnownTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	if ok {
		return &ts, nil
	}
	if e.cfg.InitialWatermark != nil {
		w := *e.cfg.InitialWatermark
		return &w, nil
	}
	return nil, nil
}

func (e *Engine) postOne(ctx context.Context, log *zap.Logger, raw gov.Raw, watermark *int64) PostingItem {
	id, ok := gov.ResolveGAID(raw)
	if !ok {
		log.Debug("skipping record without identity")
		return PostingItem{Status: StatusSkipped, Reason: SkipNoIdentity}
	}
	gaid := id.String()
	item := PostingItem{GAID: gaid}
	log = log.With(zap.String("gaid", gaid))
	if gov.HasMalformedIndex(raw) {
		log.Warn("action index is not a non-negative integer, using 0")
	}

	exists, err := e.store.Exists(ctx, gaid)
	if err != nil {
		log.Error("existence check failed", zap.Error(err))
		item.Status = StatusFailed
		item.Error = err.Error()
		return item
	}
	if exists {
		item.Status = StatusSkipped
		item.Reason = SkipExists
		return item
	}

	originTime, ok := raw.OriginTime()
	if !ok {
		log.Warn("skipping proposal without block time")
		item.Status = StatusSkipped
		item.Reason = SkipNoTimestamp
		return item
	}
	item.OriginTime = &originTime

	if watermark != nil && originTime <= *watermark {
		log.Debug("skipping proposal at or below watermark",
			zap.Int64("origin_time", originTime), zap.Int64("watermark", *watermark))
		item.Status = StatusSkipped
		item.Reason = SkipNotAfterWatermark
		return item
	}

	rec, err := e.post(ctx, raw, id, originTime)
	if err != nil {
		level := zap.WarnLevel
		if store.IsIntegrityError(err) {
			level = zap.ErrorLevel
		}
		log.Log(level, "posting proposal failed", zap.Error(err))
		item.Status = StatusFailed
		item.Error = err.Error()
		return item
	}

	log.Info("posted proposal",
		zap.Int64("origin_time", originTime),
		zap.String("thread_id", rec.ThreadID),
		zap.Time("poll_deadline", rec.PollDeadline),
	)
	item.Status = StatusPosted
	item.ThreadID = rec.ThreadID
	item.PollID = rec.PollID
	return item
}

// post announces one proposal and commits it. The insert happens only after
// every platform call succeeded.
func (e *Engine) post(ctx context.Context, raw gov.Raw, id gov.GAID, originTime int64) (gov.ProposalRecord, error) {
	gaid := id.String()

	if e.enricher != nil {
		e.enricher.Enrich(ctx, raw)
	}
	summary := e.summarizer.ProposalSummary(ctx, gaid, raw)
	proposal := present.NewProposal(raw, id, e.cfg.FeedBaseURL)

	threadID, err := e.chat.CreateThread(ctx, present.ThreadTitle(proposal.Title, gaid))
	if err != nil {
		return gov.ProposalRecord{}, stepErr("create thread", err)
	}

	if err := e.chat.PostMessage(ctx, threadID, proposal.Message(summary)); err != nil {
		return gov.ProposalRecord{}, stepErr("post summary", err)
	}

	pollID, err := e.chat.CreatePoll(ctx, threadID, chat.Poll{
		Question: present.PollQuestion,
		Answers:  gov.Options,
		Duration: e.cfg.PollDuration,
	})
	if err != nil {
		return gov.ProposalRecord{}, stepErr("create poll", err)
	}

	now := e.clock.Now()
	rec := gov.ProposalRecord{
		GAID:         gaid,
		ThreadID:     threadID,
		PollID:       pollID,
		OriginTime:   originTime,
		PostedAt:     now,
		PollDeadline: now.Add(e.cfg.PollDuration),
	}
	if err := e.store.InsertProposal(ctx, rec); err != nil {
		return gov.ProposalRecord{}, stepErr("insert proposal", err)
	}
	return rec, nil
}

// ProcessEndedPolls tallies every poll past its deadline, posts the results
// and marks the record processed.
func (e *Engine) ProcessEndedPolls(ctx context.Context) (CollectionReport, error) {
	report := CollectionReport{
		RunID:     e.runIDs.Generate(),
		StartedAt: e.clock.Now(),
		Items:     []CollectionItem{},
	}
	log := e.logger.With(zap.String("run_id", report.RunID), zap.String("pass", "collection"))

	due, err := e.store.DueForCollection(ctx, report.StartedAt)
	if err != nil {
		report.FinishedAt = e.clock.Now()
		return report, fmt.Errorf("query due polls: %w", err)
	}
	report.Due = len(due)
	log.Info("due polls", zap.Int("count", len(due)))

	throttle := NewThrottle(e.cfg.CollectDelay, e.sleep)

	for _, rec := range due {
		if ctx.Err() != nil {
			log.Info("collection pass interrupted", zap.Error(ctx.Err()))
			break
		}

		itemCtx, cancel := itemContext(ctx)
		report.Items = append(report.Items, e.collectOne(itemCtx, log, rec))
		cancel()

		if err := throttle.Wait(ctx); err != nil {
			break
		}
	}

	report.FinishedAt = e.clock.Now()
	log.Info("collection pass finished",
		zap.Int("processed", report.Count(StatusProcessed)),
		zap.Int("skipped", report.Count(StatusSkipped)),
		zap.Int("failed", report.Count(StatusFailed)),
	)
	return report, nil
}

func (e *Engine) collectOne(ctx context.Context, log *zap.Logger, rec gov.ProposalRecord) CollectionItem {
	item := CollectionItem{GAID: rec.GAID}
	log = log.With(zap.String("gaid", rec.GAID))

	tally, err := e.chat.PollCounts(ctx, rec.ThreadID, rec.PollID)
	if err != nil {
		return e.collectFailed(log, item, stepErr("read poll", err))
	}
	tally = normalizeTally(tally)
	outcome := tally.Outcome()
	item.Tally = tally
	item.Outcome = outcome

	history, err := e.chat.History(ctx, rec.ThreadID, chat.HistoryLimit)
	if err != nil {
		return e.collectFailed(log, item, stepErr("read history", err))
	}

	rationales := chat.Rationales(rec.GAID, history)
	item.Rationales = len(rationales)

	digest := e.summarizer.RationaleDigest(ctx, rec.GAID, outcome, tally, rationales)
	results := present.Results{Outcome: outcome, Tally: tally, Digest: digest}

	if err := e.chat.PostMessage(ctx, rec.ThreadID, results.Message()); err != nil {
		return e.collectFailed(log, item, stepErr("post results", err))
	}

	// Rationales are committed with the outcome, so a retry after any
	// earlier failure rescans the thread without duplicating them.
	if err := e.store.CompleteCollection(ctx, rec.GAID, outcome, digest, rationales); err != nil {
		return e.collectFailed(log, item, stepErr("complete collection", err))
	}

	log.Info("processed poll",
		zap.String("outcome", string(outcome)),
		zap.Int("votes", tally.Total()),
		zap.Int("rationales", len(rationales)),
	)
	item.Status = StatusProcessed
	return item
}

func (e *Engine) collectFailed(log *zap.Logger, item CollectionItem, err error) CollectionItem {
	item.Error = err.Error()
	switch {
	case errors.Is(err, chat.ErrNotFound):
		log.Warn("poll target missing, will retry", zap.Error(err))
		item.Status = StatusSkipped
		item.Reason = SkipTargetMissing
	case store.IsIntegrityError(err):
		log.Error("store integrity violation", zap.Error(err))
		item.Status = StatusFailed
	default:
		log.Warn("collecting poll failed", zap.Error(err))
		item.Status = StatusFailed
	}
	return item
}

// normalizeTally keeps only the fixed options, each present.
func normalizeTally(in gov.Tally) gov.Tally {
	out := gov.NewTally()
	for _, opt := range gov.Options {
		out[opt] = in[opt]
	}
	return out
}

// sortByOriginTime orders records by ascending origin time. Records without
// one sort first; they are skipped anyway.
func sortByOriginTime(raws []gov.Raw) {
	slices.SortStableFunc(raws, func(a, b gov.Raw) int {
		ta, okA := a.OriginTime()
		tb, okB := b.OriginTime()
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return -1
		case !okB:
			return 1
		}
		return cmp.Compare(ta, tb)
	})
}
