package gov

import "time"

// ProposalRecord is the persisted lifecycle state of one posted proposal.
//
// ThreadID and PollID are opaque chat-platform handles written once at
// posting time. FinalVote and FinalRationale stay nil until the poll has
// been collected, at which point Processed becomes true.
type ProposalRecord struct {
	GAID           string    `json:"gaid"`
	ThreadID       string    `json:"thread_id"`
	PollID         string    `json:"poll_id"`
	OriginTime     int64     `json:"origin_time"`
	PostedAt       time.Time `json:"posted_at"`
	PollDeadline   time.Time `json:"poll_deadline"`
	FinalVote      *Option   `json:"final_vote,omitempty"`
	FinalRationale *string   `json:"final_rationale,omitempty"`
	Processed      bool      `json:"processed"`
}

// DueAt reports whether the record is eligible for result collection at now.
func (p ProposalRecord) DueAt(now time.Time) bool {
	return !p.Processed && !now.Before(p.PollDeadline)
}

// Rationale is a participant's free-text justification found in a proposal
// thread. Rationales are append-only.
type Rationale struct {
	ID         int64     `json:"id,omitempty"`
	GAID       string    `json:"gaid"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	PostedAt   time.Time `json:"posted_at"`
}
