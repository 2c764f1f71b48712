package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/govpoll/internal/gov"
)

// toMillis converts a wall-clock time to the stored representation.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// fromMillis converts a stored timestamp back to a UTC time.
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const proposalColumns = `gaid, thread_handle, poll_handle, origin_time, posted_at,
	poll_deadline, final_vote, final_rationale, processed`

// scanProposal scans a proposals row selected with proposalColumns.
func scanProposal(row rowScanner) (gov.ProposalRecord, error) {
	var (
		rec            gov.ProposalRecord
		postedAt       int64
		pollDeadline   int64
		finalVote      sql.NullString
		finalRationale sql.NullString
		processed      int
	)

	err := row.Scan(
		&rec.GAID,
		&rec.ThreadID,
		&rec.PollID,
		&rec.OriginTime,
		&postedAt,
		&pollDeadline,
		&finalVote,
		&finalRationale,
		&processed,
	)
	if err != nil {
		return gov.ProposalRecord{}, err
	}

	rec.PostedAt = fromMillis(postedAt)
	rec.PollDeadline = fromMillis(pollDeadline)
	rec.Processed = processed == 1

	if finalVote.Valid {
		opt, err := gov.ParseOption(finalVote.String)
		if err != nil {
			return gov.ProposalRecord{}, fmt.Errorf("scan final_vote for %s: %w", rec.GAID, err)
		}
		rec.FinalVote = &opt
	}
	if finalRationale.Valid {
		text := finalRationale.String
		rec.FinalRationale = &text
	}

	return rec, nil
}

// scanRationale scans a rationales row.
func scanRationale(row rowScanner) (gov.Rationale, error) {
	var (
		r        gov.Rationale
		postedAt int64
	)
	if err := row.Scan(&r.ID, &r.GAID, &r.AuthorID, &r.AuthorName, &r.Text, &postedAt); err != nil {
		return gov.Rationale{}, err
	}
	r.PostedAt = fromMillis(postedAt)
	return r, nil
}
