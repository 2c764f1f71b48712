package engine

import (
	"time"

	"github.com/samber/lo"

	"github.com/roach88/govpoll/internal/gov"
)

// PostingItem is the outcome for one feed record in a posting pass.
type PostingItem struct {
	GAID       string     `json:"gaid,omitempty"`
	OriginTime *int64     `json:"origin_time,omitempty"`
	Status     ItemStatus `json:"status"`
	Reason     SkipReason `json:"reason,omitempty"`
	ThreadID   string     `json:"thread_id,omitempty"`
	PollID     string     `json:"poll_id,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// PostingReport summarizes one CheckProposals run.
type PostingReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Watermark  *int64        `json:"watermark,omitempty"`
	Fetched    int           `json:"fetched"`
	Items      []PostingItem `json:"items"`
}

// Count returns how many items ended with status.
func (r PostingReport) Count(status ItemStatus) int {
	return lo.CountBy(r.Items, func(it PostingItem) bool { return it.Status == status })
}

// Posted returns the GAIDs posted in this run, in posting order.
func (r PostingReport) Posted() []string {
	return lo.FilterMap(r.Items, func(it PostingItem, _ int) (string, bool) {
		return it.GAID, it.Status == StatusPosted
	})
}

// CollectionItem is the outcome for one due record in a collection pass.
type CollectionItem struct {
	GAID       string     `json:"gaid"`
	Status     ItemStatus `json:"status"`
	Reason     SkipReason `json:"reason,omitempty"`
	Outcome    gov.Option `json:"outcome,omitempty"`
	Tally      gov.Tally  `json:"tally,omitempty"`
	Rationales int        `json:"rationales"`
	Error      string     `json:"error,omitempty"`
}

// CollectionReport summarizes one ProcessEndedPolls run.
type CollectionReport struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Due        int              `json:"due"`
	Items      []CollectionItem `json:"items"`
}

// Count returns how many items ended with status.
func (r CollectionReport) Count(status ItemStatus) int {
	return lo.CountBy(r.Items, func(it CollectionItem) bool { return it.Status == status })
}
