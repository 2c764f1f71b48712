package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/govpoll/internal/gov"
)

// createTestStore creates a new file-backed store under t.TempDir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

// createTestProposal creates a posted record with minimal required fields.
func createTestProposal(gaid string, originTime int64, deadline time.Time) gov.ProposalRecord {
	return gov.ProposalRecord{
		GAID:         gaid,
		ThreadID:     "thread-" + gaid,
		PollID:       "poll-" + gaid,
		OriginTime:   originTime,
		PostedAt:     testEpoch,
		PollDeadline: deadline,
	}
}
