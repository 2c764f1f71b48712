package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/govpoll/internal/gov"
)

// InsertProposal inserts a newly posted proposal record.
//
// Unlike an upsert, a second insert for the same GAID fails with ErrDuplicate
// and leaves the stored row untouched. Callers check Exists first; reaching
// ErrDuplicate means that check raced with another pass.
//
// Records are always inserted unprocessed. Final vote and rationale are only
// written by MarkProcessed.
func (s *Store) InsertProposal(ctx context.Context, rec gov.ProposalRecord) error {
	if rec.GAID == "" {
		return fmt.Errorf("insert proposal: empty gaid")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals
		(gaid, thread_handle, poll_handle, origin_time, posted_at, poll_deadline, processed)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`,
		rec.GAID,
		rec.ThreadID,
		rec.PollID,
		rec.OriginTime,
		toMillis(rec.PostedAt),
		toMillis(rec.PollDeadline),
	)
	if err != nil {
		if code, ok := constraintCode(err); ok &&
			(code == sqlite3.ErrConstraintPrimaryKey || code == sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("insert proposal %s: %w", rec.GAID, ErrDuplicate)
		}
		return fmt.Errorf("insert proposal %s: %w", rec.GAID, err)
	}

	return nil
}

// dbtx is the part of *sql.DB and *sql.Tx the write helpers need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MarkProcessed records the final outcome of a proposal's poll.
//
// The update only applies to unprocessed rows, so a record transitions to
// processed exactly once. Returns ErrNotFound for an unknown GAID and
// ErrAlreadyProcessed when the row was already finalized.
func (s *Store) MarkProcessed(ctx context.Context, gaid string, vote gov.Option, rationale string) error {
	return markProcessed(ctx, s.db, gaid, vote, rationale)
}

// AppendRationale stores a rationale entry and returns its row id.
// The referenced proposal must exist; otherwise ErrNotFound is returned.
func (s *Store) AppendRationale(ctx context.Context, r gov.Rationale) (int64, error) {
	return appendRationale(ctx, s.db, r)
}

// CompleteCollection finalizes a poll: it marks the proposal processed and
// stores the rationales scanned from its thread in one transaction. Either
// everything is committed or nothing is, so a collection that is retried
// after a failure never stores a thread's rationales twice.
func (s *Store) CompleteCollection(ctx context.Context, gaid string, vote gov.Option, digest string, rationales []gov.Rationale) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("complete collection %s: %w", gaid, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := markProcessed(ctx, tx, gaid, vote, digest); err != nil {
		return err
	}
	for _, r := range rationales {
		if r.GAID != gaid {
			return fmt.Errorf("complete collection %s: rationale belongs to %s", gaid, r.GAID)
		}
		if _, err := appendRationale(ctx, tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("complete collection %s: %w", gaid, err)
	}
	return nil
}

func markProcessed(ctx context.Context, db dbtx, gaid string, vote gov.Option, rationale string) error {
	if _, err := gov.ParseOption(string(vote)); err != nil {
		return fmt.Errorf("mark processed %s: %w", gaid, err)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE proposals
		SET final_vote = ?, final_rationale = ?, processed = 1
		WHERE gaid = ? AND processed = 0
	`, string(vote), rationale, gaid)
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", gaid, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", gaid, err)
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: tell an unknown gaid from a finalized one.
	var one int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM proposals WHERE gaid = ?`, gaid).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("mark processed %s: %w", gaid, ErrNotFound)
	case err != nil:
		return fmt.Errorf("mark processed %s: %w", gaid, err)
	}
	return fmt.Errorf("mark processed %s: %w", gaid, ErrAlreadyProcessed)
}

func appendRationale(ctx context.Context, db dbtx, r gov.Rationale) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO rationales (gaid, author_id, author_name, text, posted_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		r.GAID,
		r.AuthorID,
		r.AuthorName,
		r.Text,
		toMillis(r.PostedAt),
	)
	if err != nil {
		if code, ok := constraintCode(err); ok && code == sqlite3.ErrConstraintForeignKey {
			return 0, fmt.Errorf("append rationale for %s: %w", r.GAID, ErrNotFound)
		}
		return 0, fmt.Errorf("append rationale for %s: %w", r.GAID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append rationale for %s: %w", r.GAID, err)
	}
	return id, nil
}

// IsIntegrityError reports whether err is one of the store's integrity
// violations rather than an I/O or driver failure.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyProcessed)
}
