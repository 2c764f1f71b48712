package testutil

import (
	"context"
	"maps"
	"sync"

	"github.com/roach88/govpoll/internal/gov"
)

// ScriptedFeed serves a fixed list of raw proposals.
//
// Unlike a real indexer it ignores the after bound, so callers see exactly
// what the script says and the engine's own filtering is exercised.
type ScriptedFeed struct {
	mu      sync.Mutex
	records []gov.Raw
	err     error
	calls   []*int64
}

// NewScriptedFeed creates a feed serving records.
func NewScriptedFeed(records ...gov.Raw) *ScriptedFeed {
	return &ScriptedFeed{records: records}
}

// SetRecords replaces the served records.
func (f *ScriptedFeed) SetRecords(records ...gov.Raw) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

// SetError makes Fetch fail with err until cleared with nil.
func (f *ScriptedFeed) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Fetch returns clones of the scripted records.
func (f *ScriptedFeed) Fetch(_ context.Context, after *int64) ([]gov.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var bound *int64
	if after != nil {
		v := *after
		bound = &v
	}
	f.calls = append(f.calls, bound)

	if f.err != nil {
		return nil, f.err
	}
	out := make([]gov.Raw, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, maps.Clone(r))
	}
	return out, nil
}

// Calls returns the after bound of every Fetch call; nil means unfiltered.
func (f *ScriptedFeed) Calls() []*int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*int64(nil), f.calls...)
}

// Proposal builds a raw feed record the way the indexer renders one.
func Proposal(txHash string, index int64, blockTime int64) gov.Raw {
	return gov.Raw{
		"proposal_tx_hash": txHash,
		"proposal_index":   index,
		"proposal_type":    "InfoAction",
		"block_time":       blockTime,
		"deposit":          "100000000000",
		"expiration":       int64(520),
	}
}
