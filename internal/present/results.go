package present

import (
	"fmt"
	"strings"

	"github.com/roach88/govpoll/internal/gov"
)

// Results is the outcome of a closed poll.
type Results struct {
	Outcome gov.Option
	Tally   gov.Tally
	Digest  string
}

// Message renders the final results post.
func (r Results) Message() string {
	var b strings.Builder
	b.WriteString("## 📊 **Poll Results**\n\n")
	fmt.Fprintf(&b, "**Final Vote:** %s\n", r.Outcome)
	for _, opt := range gov.Options {
		fmt.Fprintf(&b, "- %s %s: %d votes\n", opt.Emoji(), opt, r.Tally[opt])
	}
	fmt.Fprintf(&b, "\n**Total Votes:** %d\n\n", r.Tally.Total())
	b.WriteString("## 📝 **Community Rational**\n\n")
	b.WriteString(strings.TrimSpace(r.Digest))
	return Fit(b.String())
}
