package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/govpoll/internal/gov"
)

// HighestKnownTimestamp returns the largest origin_time across all stored
// proposals. ok is false when the store is empty.
func (s *Store) HighestKnownTimestamp(ctx context.Context) (ts int64, ok bool, err error) {
	var maxTS sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT MAX(origin_time) FROM proposals`).Scan(&maxTS)
	if err != nil {
		return 0, false, fmt.Errorf("query highest timestamp: %w", err)
	}
	if !maxTS.Valid {
		return 0, false, nil
	}
	return maxTS.Int64, true, nil
}

// Exists reports whether a proposal record exists for gaid.
func (s *Store) Exists(ctx context.Context, gaid string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM proposals WHERE gaid = ?`, gaid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query exists %s: %w", gaid, err)
	}
	return true, nil
}

// ReadProposal returns the record for gaid, or ErrNotFound.
func (s *Store) ReadProposal(ctx context.Context, gaid string) (gov.ProposalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE gaid = ?`, gaid)

	rec, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return gov.ProposalRecord{}, fmt.Errorf("read proposal %s: %w", gaid, ErrNotFound)
	}
	if err != nil {
		return gov.ProposalRecord{}, fmt.Errorf("read proposal %s: %w", gaid, err)
	}
	return rec, nil
}

// DueForCollection returns every unprocessed record whose poll deadline is at
// or before now.
//
// Results are ordered by deadline, then GAID, so repeated passes visit
// records in the same order.
func (s *Store) DueForCollection(ctx context.Context, now time.Time) ([]gov.ProposalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals
		WHERE processed = 0 AND poll_deadline <= ?
		ORDER BY poll_deadline ASC, gaid ASC
	`, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("query due proposals: %w", err)
	}
	defer rows.Close()

	return collectProposals(rows)
}

// ListProposals returns stored records ordered by origin time, newest first.
// With pendingOnly set, processed records are omitted.
func (s *Store) ListProposals(ctx context.Context, pendingOnly bool) ([]gov.ProposalRecord, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals`
	if pendingOnly {
		query += ` WHERE processed = 0`
	}
	query += ` ORDER BY origin_time DESC, gaid ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query proposals: %w", err)
	}
	defer rows.Close()

	return collectProposals(rows)
}

// ReadRationales returns the rationale entries stored for gaid in insertion
// order.
func (s *Store) ReadRationales(ctx context.Context, gaid string) ([]gov.Rationale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, gaid, author_id, author_name, text, posted_at
		FROM rationales
		WHERE gaid = ?
		ORDER BY id ASC
	`, gaid)
	if err != nil {
		return nil, fmt.Errorf("query rationales %s: %w", gaid, err)
	}
	defer rows.Close()

	// Return empty slice, not nil
	result := []gov.Rationale{}
	for rows.Next() {
		r, err := scanRationale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rationale: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rationales: %w", err)
	}
	return result, nil
}

// RationaleCounts returns the number of rationale entries per GAID. GAIDs
// without rationales are absent from the map.
func (s *Store) RationaleCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT gaid, COUNT(*) FROM rationales GROUP BY gaid`)
	if err != nil {
		return nil, fmt.Errorf("query rationale counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			gaid string
			n    int
		)
		if err := rows.Scan(&gaid, &n); err != nil {
			return nil, fmt.Errorf("scan rationale count: %w", err)
		}
		counts[gaid] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rationale counts: %w", err)
	}
	return counts, nil
}

func collectProposals(rows *sql.Rows) ([]gov.ProposalRecord, error) {
	// Return empty slice, not nil
	result := []gov.ProposalRecord{}
	for rows.Next() {
		rec, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return result, nil
}
