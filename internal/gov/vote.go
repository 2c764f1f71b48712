package gov

import (
	"fmt"

	"github.com/samber/lo"
)

// Option is one of the fixed poll answers.
type Option string

const (
	Yes     Option = "Yes"
	No      Option = "No"
	Abstain Option = "Abstain"
)

// Options lists the poll answers in display order. The same order is the
// tie-break precedence when two options share the highest count.
var Options = []Option{Yes, No, Abstain}

var optionEmoji = map[Option]string{
	Yes:     "✅",
	No:      "❌",
	Abstain: "🤷",
}

// Emoji returns the reaction shown next to the option.
func (o Option) Emoji() string {
	return optionEmoji[o]
}

// ParseOption maps a poll answer label onto an Option.
func ParseOption(s string) (Option, error) {
	for _, o := range Options {
		if string(o) == s {
			return o, nil
		}
	}
	return "", fmt.Errorf("unknown poll option %q", s)
}

// Tally holds per-option vote counts. Options without votes may be absent.
type Tally map[Option]int

// NewTally returns a tally with every option present at zero.
func NewTally() Tally {
	t := make(Tally, len(Options))
	for _, o := range Options {
		t[o] = 0
	}
	return t
}

// Total is the number of votes across all options.
func (t Tally) Total() int {
	return lo.Sum(lo.Values(t))
}

// Outcome decides the poll result. With no votes at all the outcome is
// Abstain. Otherwise the option with the highest count wins and ties are
// broken by Options order (Yes, then No, then Abstain).
func (t Tally) Outcome() Option {
	if t.Total() == 0 {
		return Abstain
	}
	best := Options[0]
	for _, o := range Options[1:] {
		if t[o] > t[best] {
			best = o
		}
	}
	return best
}
