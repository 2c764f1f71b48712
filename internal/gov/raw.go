package gov

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Raw is one proposal object as decoded from the indexer. Its schema is owned
// by the upstream API; callers read it through the accessors below.
type Raw map[string]any

// Lookup returns the value of the first candidate key that is present and
// not null.
func (r Raw) Lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		return v, true
	}
	return nil, false
}

// String returns the first candidate rendered as a string. Empty strings
// count as absent.
func (r Raw) String(keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(stringify(v))
		if s == "" {
			continue
		}
		return s, true
	}
	return "", false
}

// Int64 returns the first present candidate as an integer. A present value
// that cannot be read as an integer is reported as absent.
func (r Raw) Int64(keys ...string) (int64, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// Object returns a nested JSON object stored under key.
func (r Raw) Object(key string) (map[string]any, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// OriginTime returns the upstream block timestamp of the proposal.
func (r Raw) OriginTime() (int64, bool) {
	return r.Int64(OriginTimeFields...)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}
