package present

import (
	"fmt"
	"strings"

	"github.com/roach88/govpoll/internal/gov"
)

// PollQuestion is asked on every proposal poll.
const PollQuestion = "How should we vote on this proposal?"

const (
	threadTitleRunes = 90
	threadGAIDRunes  = 10
)

// Proposal holds the displayed fields of one governance action.
type Proposal struct {
	Title      string
	GAID       gov.GAID
	ActionType string
	Deposit    string
	Expiration string
	Links      gov.Links
}

// NewProposal extracts display fields from a raw feed record.
func NewProposal(raw gov.Raw, id gov.GAID, feedBaseURL string) Proposal {
	expiration, ok := raw.String(gov.FieldExpiration)
	if !ok {
		expiration = "?"
	}
	deposit, _ := raw.Lookup(gov.FieldDeposit)

	return Proposal{
		Title:      gov.Title(raw),
		GAID:       id,
		ActionType: gov.ProposalType(raw),
		Deposit:    gov.FormatADA(deposit),
		Expiration: expiration,
		Links:      gov.ExplorerLinks(feedBaseURL, id),
	}
}

// Message renders the proposal announcement with its generated summary.
func (p Proposal) Message(summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title)
	fmt.Fprintf(&b, "**GAID:** `%s`\n", p.GAID)
	fmt.Fprintf(&b, "**Action Type:** %s\n", p.ActionType)
	fmt.Fprintf(&b, "**Deposit:** %s\n", p.Deposit)
	fmt.Fprintf(&b, "**Expiration:** %s\n\n", p.Expiration)
	fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(summary))
	fmt.Fprintf(&b, "**Links:** [AdaStat](%s) | [GovTool](%s)\n\n", p.Links.AdaStat, p.Links.GovTool)
	b.WriteString(`*Please vote below and add your rationale as a comment starting with "RATIONAL:"*`)
	return Fit(b.String())
}

// ThreadTitle names the discussion thread of a proposal.
func ThreadTitle(title, gaid string) string {
	return fmt.Sprintf("%s (%s...)", prefix(title, threadTitleRunes), prefix(gaid, threadGAIDRunes))
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
