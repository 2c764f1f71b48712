package gov

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const defaultTitle = "Governance Action"

// Title picks the human title of a proposal: the anchored metadata title,
// then the feed's own title, then a label built from the action type.
func Title(r Raw) string {
	if meta, ok := r.Object(FieldMetaJSON); ok {
		if body, ok := meta["body"].(map[string]any); ok {
			if t, ok := body["title"].(string); ok && strings.TrimSpace(t) != "" {
				return strings.TrimSpace(t)
			}
		}
	}
	if t, ok := r.String(FieldTitle); ok {
		return t
	}
	if pt, ok := r.String(FieldProposalType); ok {
		return defaultTitle + ": " + pt
	}
	return defaultTitle
}

// ProposalType returns the action type or "Unknown".
func ProposalType(r Raw) string {
	if pt, ok := r.String(FieldProposalType); ok {
		return pt
	}
	return "Unknown"
}

var adaPrinter = message.NewPrinter(language.English)

// FormatADA renders a lovelace amount as whole ADA with thousands
// separators. Missing values and the indexer's "string" placeholder render
// as "?"; values that are not numbers are returned verbatim.
func FormatADA(v any) string {
	if v == nil {
		return "?"
	}
	s := strings.TrimSpace(stringify(v))
	if s == "" || strings.EqualFold(s, "string") {
		return "?"
	}
	lovelace, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	ada := int64(math.RoundToEven(lovelace / 1_000_000))
	return adaPrinter.Sprintf("%d ₳", ada)
}

// Links holds explorer URLs for one proposal.
type Links struct {
	GovTool string
	AdaStat string
}

// ExplorerLinks builds explorer URLs. The GovTool host follows the network of
// the indexer: a feed URL mentioning "preview" links to the preview tool.
func ExplorerLinks(feedBaseURL string, id GAID) Links {
	gov := "https://gov.tools/outcomes/governance_actions"
	if strings.Contains(feedBaseURL, "preview") {
		gov = "https://preview.gov.tools/outcomes/governance_actions"
	}
	return Links{
		GovTool: gov + "/" + id.String(),
		AdaStat: "https://adastat.net/governances/" + id.TxHash + strconv.FormatInt(id.Index, 10),
	}
}
