package gov

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTitle(t *testing.T) {
	withMeta := Raw{
		"title":     "feed title",
		"meta_json": map[string]any{"body": map[string]any{"title": "Anchored Title"}},
	}
	assert.Equal(t, "Anchored Title", Title(withMeta))
	assert.Equal(t, "feed title", Title(Raw{"title": "feed title"}))
	assert.Equal(t, "Governance Action: TreasuryWithdrawals", Title(Raw{"proposal_type": "TreasuryWithdrawals"}))
	assert.Equal(t, "Governance Action", Title(Raw{}))
}

func TestFormatADA(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "?"},
		{"string", "?"},
		{"", "?"},
		{"100000000000", "100,000 ₳"},
		{float64(1_500_000), "2 ₳"},
		{"2500000", "2 ₳"},
		{"n/a", "n/a"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatADA(tt.in), "%v", tt.in)
	}
}

func TestExplorerLinks(t *testing.T) {
	id := GAID{TxHash: "abc", Index: 2}

	main := ExplorerLinks("https://api.koios.rest/api/v1", id)
	assert.Equal(t, "https://gov.tools/outcomes/governance_actions/abc#2", main.GovTool)
	assert.Equal(t, "https://adastat.net/governances/abc2", main.AdaStat)

	preview := ExplorerLinks("https://preview.koios.rest/api/v1", id)
	assert.Equal(t, "https://preview.gov.tools/outcomes/governance_actions/abc#2", preview.GovTool)
}

func TestProposalRecord_DueAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	past := ProposalRecord{PollDeadline: now.Add(-time.Second)}
	assert.True(t, past.DueAt(now))

	exact := ProposalRecord{PollDeadline: now}
	assert.True(t, exact.DueAt(now))

	future := ProposalRecord{PollDeadline: now.Add(time.Second)}
	assert.False(t, future.DueAt(now))

	done := ProposalRecord{PollDeadline: now.Add(-time.Hour), Processed: true}
	assert.False(t, done.DueAt(now))
}
