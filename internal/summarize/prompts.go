package summarize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/govpoll/internal/gov"
)

const proposalInstructions = `You are an expert Cardano governance analyst. Given JSON metadata of an on-chain governance proposal, produce:
1. A concise 2-3 sentence summary suitable for Discord.
2. 3-5 bullet points with key insights (impact, pros/cons, important details).
3. Format using Discord markdown (** for bold, * for italics, - for bullets).
4. Keep the total response under 1000 characters.
5. Do not include technical information like expiration date, proposed epoch, or deposit.
`

// proposalFacts is the subset of a proposal sent to the generator. Field
// order is the order of the rendered JSON.
type proposalFacts struct {
	ProposalType  any            `json:"proposal_type"`
	Title         string         `json:"title"`
	Deposit       any            `json:"deposit"`
	ProposedEpoch any            `json:"proposed_epoch"`
	Expiration    any            `json:"expiration"`
	MetaJSON      map[string]any `json:"meta_json"`
}

func proposalPrompt(raw gov.Raw) (string, error) {
	meta, ok := raw.Object(gov.FieldMetaJSON)
	if !ok {
		meta = map[string]any{}
	}
	facts := proposalFacts{
		ProposalType:  raw[gov.FieldProposalType],
		Title:         gov.Title(raw),
		Deposit:       raw[gov.FieldDeposit],
		ProposedEpoch: raw[gov.FieldProposedEpoch],
		Expiration:    raw[gov.FieldExpiration],
		MetaJSON:      meta,
	}

	data, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal proposal facts: %w", err)
	}
	return proposalInstructions + "\nProposal metadata:\n```json\n" + string(data) + "\n```", nil
}

func digestPrompt(outcome gov.Option, tally gov.Tally, rationales []gov.Rationale) string {
	var quoted strings.Builder
	for i, r := range rationales {
		if i == MaxPromptRationales {
			break
		}
		if i > 0 {
			quoted.WriteByte('\n')
		}
		fmt.Fprintf(&quoted, "- %s: %s", r.AuthorName, r.Text)
	}

	if tally.Total() == 0 {
		return "No votes were cast in the poll. Treat this as an \"Abstain\" outcome. " +
			"Using the following rationals from community members, generate a concise summary (2-3 sentences) " +
			"that neutrally captures the main themes raised:\n\n" +
			"Community Rationals:\n" + quoted.String() + "\n\n" +
			"Keep it balanced and under 500 characters."
	}

	return fmt.Sprintf("Based on the community vote (%s won with %d votes) and the following rationals from community members, ", outcome, tally[outcome]) +
		"generate a concise summary (2-3 sentences) that captures the main reasons for this decision:\n\n" +
		"Community Rationals:\n" + quoted.String() + "\n\n" +
		"Provide a balanced summary that reflects the community's reasoning. Keep it under 500 characters."
}
