package gov

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// GAID identifies one governance action: the transaction that submitted it
// plus the action's index inside that transaction.
type GAID struct {
	TxHash string
	Index  int64
}

// String renders the canonical "<tx_hash>#<index>" form used as the primary
// key of persisted state.
func (g GAID) String() string {
	return g.TxHash + "#" + strconv.FormatInt(g.Index, 10)
}

// ErrInvalidGAID is returned by ParseGAID for malformed input.
var ErrInvalidGAID = errors.New("invalid gaid")

// ParseGAID parses the canonical "<tx_hash>#<index>" form.
func ParseGAID(s string) (GAID, error) {
	i := strings.LastIndexByte(s, '#')
	if i <= 0 || i == len(s)-1 {
		return GAID{}, fmt.Errorf("%w: %q", ErrInvalidGAID, s)
	}
	idx, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil || idx < 0 {
		return GAID{}, fmt.Errorf("%w: %q", ErrInvalidGAID, s)
	}
	return GAID{TxHash: s[:i], Index: idx}, nil
}

// ResolveGAID derives the identifier of a raw proposal. Only the transaction
// hash is mandatory. An index that is missing, or present but not a
// non-negative integer, defaults to 0; see HasMalformedIndex.
func ResolveGAID(r Raw) (GAID, bool) {
	hash, ok := r.String(TxHashFields...)
	if !ok {
		return GAID{}, false
	}
	idx, _ := actionIndex(r)
	return GAID{TxHash: hash, Index: idx}, true
}

// HasMalformedIndex reports whether r carries an action index that
// ResolveGAID had to replace with 0.
func HasMalformedIndex(r Raw) bool {
	_, ok := actionIndex(r)
	return !ok
}

// actionIndex returns the record's index, or 0 and false when the index is
// present but unusable. An absent index is a valid 0.
func actionIndex(r Raw) (int64, bool) {
	v, ok := r.Lookup(ActionIndexFields...)
	if !ok {
		return 0, true
	}
	idx, ok := toInt64(v)
	if !ok || idx < 0 {
		return 0, false
	}
	return idx, true
}
