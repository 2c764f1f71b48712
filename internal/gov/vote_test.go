package gov

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTally_Outcome(t *testing.T) {
	tests := []struct {
		name  string
		tally Tally
		want  Option
	}{
		{"zero votes is abstain", Tally{Yes: 0, No: 0, Abstain: 0}, Abstain},
		{"empty tally is abstain", Tally{}, Abstain},
		{"majority yes", Tally{Yes: 5, No: 2, Abstain: 1}, Yes},
		{"majority no", Tally{Yes: 1, No: 3}, No},
		{"majority abstain", Tally{Abstain: 2}, Abstain},
		{"yes beats no on tie", Tally{Yes: 3, No: 3, Abstain: 1}, Yes},
		{"no beats abstain on tie", Tally{Yes: 0, No: 2, Abstain: 2}, No},
		{"three way tie", Tally{Yes: 1, No: 1, Abstain: 1}, Yes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tally.Outcome())
		})
	}
}

func TestTally_Total(t *testing.T) {
	assert.Equal(t, 8, Tally{Yes: 5, No: 2, Abstain: 1}.Total())
	assert.Equal(t, 0, NewTally().Total())
	assert.Len(t, NewTally(), len(Options))
}

func TestParseOption(t *testing.T) {
	o, err := ParseOption("No")
	require.NoError(t, err)
	assert.Equal(t, No, o)

	_, err = ParseOption("Maybe")
	assert.Error(t, err)
}

func TestOption_Emoji(t *testing.T) {
	for _, o := range Options {
		assert.NotEmpty(t, o.Emoji(), o)
	}
}
