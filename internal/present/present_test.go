package present

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/govpoll/internal/gov"
)

func newGolden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func sampleRaw() gov.Raw {
	return gov.Raw{
		"proposal_tx_hash": "abc123",
		"proposal_index":   json.Number("1"),
		"proposal_type":    "TreasuryWithdrawals",
		"deposit":          json.Number("100000000000"),
		"expiration":       json.Number("512"),
		"block_time":       json.Number("1000"),
		"meta_json": map[string]any{
			"body": map[string]any{"title": "Fund the Cardano Developer Portal"},
		},
	}
}

func TestProposalMessage_Golden(t *testing.T) {
	p := NewProposal(sampleRaw(), gov.GAID{TxHash: "abc123", Index: 1}, "https://api.koios.rest/api/v1")
	got := p.Message("**Summary**\n- point one\n- point two\n")

	newGolden(t).Assert(t, "proposal_message", []byte(got))
}

func TestProposalMessage_MissingFields(t *testing.T) {
	p := NewProposal(gov.Raw{"tx_hash": "ff"}, gov.GAID{TxHash: "ff"}, "https://preview.koios.rest/api/v1")

	assert.Equal(t, "Governance Action", p.Title)
	assert.Equal(t, "Unknown", p.ActionType)
	assert.Equal(t, "?", p.Deposit)
	assert.Equal(t, "?", p.Expiration)
	assert.Equal(t, "https://preview.gov.tools/outcomes/governance_actions/ff#0", p.Links.GovTool)
}

func TestProposalMessage_Capped(t *testing.T) {
	p := NewProposal(sampleRaw(), gov.GAID{TxHash: "abc123", Index: 1}, "")
	got := p.Message(strings.Repeat("x", 5000))

	assert.Equal(t, 2000, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, Ellipsis))
}

func TestResultsMessage_Golden(t *testing.T) {
	r := Results{
		Outcome: gov.Yes,
		Tally:   gov.Tally{gov.Yes: 5, gov.No: 2, gov.Abstain: 1},
		Digest:  "Most voters liked the budget transparency.",
	}

	newGolden(t).Assert(t, "results_message", []byte(r.Message()))
}

func TestResultsMessage_PartialTally(t *testing.T) {
	r := Results{Outcome: gov.Abstain, Tally: gov.Tally{}, Digest: "No rationals provided by the community."}
	got := r.Message()

	assert.Contains(t, got, "- ❌ No: 0 votes\n")
	assert.Contains(t, got, "**Total Votes:** 0")
}

func TestThreadTitle(t *testing.T) {
	assert.Equal(t, "Short (abc123#1...)", ThreadTitle("Short", "abc123#1"))

	long := strings.Repeat("é", 120)
	got := ThreadTitle(long, "0123456789abcdef#3")
	assert.Equal(t, strings.Repeat("é", 90)+" (0123456789...)", got)
}

func TestTruncate(t *testing.T) {
	body := strings.Repeat("a", 2500)
	got := Truncate(body, 2000)

	assert.Equal(t, 2000, utf8.RuneCountInString(got))
	assert.Equal(t, strings.Repeat("a", 1997)+"...", got)

	assert.Equal(t, "short", Truncate("short", 2000))
	assert.Equal(t, "..", Truncate("abcdef", 2))
}

func TestTruncate_PreservesInputText(t *testing.T) {
	// "e" + combining acute is two runes and stays two runes.
	decomposed := strings.Repeat("e\u0301", 5)
	assert.Equal(t, decomposed, Truncate(decomposed, 10))

	// Counting happens on the input, not on a normalized form.
	got := Truncate(strings.Repeat("e\u0301", 10), 10)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 10)
	assert.True(t, strings.HasPrefix(got, "e\u0301"))
}

func TestTruncate_KeepsCombiningMarksWithBase(t *testing.T) {
	// A plain cut at 7 runes would leave "e" without its accent.
	got := Truncate(strings.Repeat("e\u0301", 10), 10)
	assert.Equal(t, strings.Repeat("e\u0301", 3)+"...", got)
}
