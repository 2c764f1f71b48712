package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/roach88/govpoll/internal/gov"
	"github.com/roach88/govpoll/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s", ev.Seq, ev.Step, ev.Action)
			if ev.GAID != "" {
				fmt.Fprintf(&buf, " %s", ev.GAID)
			}
			if ev.Status != "" {
				fmt.Fprintf(&buf, " -> %s", ev.Status)
			}
			if ev.Reason != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Reason)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// evaluateAssertions runs every assertion and returns the failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion, result *Result) []string {
	var failures []string
	for i, a := range assertions {
		if err := h.evaluate(ctx, a, result.Trace); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func (h *Harness) evaluate(ctx context.Context, a Assertion, trace []TraceEvent) error {
	switch a.Type {
	case AssertProposal:
		return assertProposal(ctx, h.store, h.clock.Now(), a)
	case AssertAbsent:
		exists, err := h.store.Exists(ctx, a.GAID)
		if err != nil {
			return err
		}
		if exists {
			return &AssertionError{Type: a.Type, Expected: "no record for " + a.GAID, Actual: "record stored"}
		}
	case AssertProposalCount:
		recs, err := h.store.ListProposals(ctx, false)
		if err != nil {
			return err
		}
		return compareCount(a, len(recs), "stored proposals")
	case AssertRationaleCount:
		rs, err := h.store.ReadRationales(ctx, a.GAID)
		if err != nil {
			return err
		}
		return compareCount(a, len(rs), "rationales for "+a.GAID)
	case AssertThreadCount:
		return compareCount(a, len(h.platform.Threads()), "threads")
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func compareCount(a Assertion, got int, what string) error {
	if got == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d %s", *a.Count, what),
		Actual:   fmt.Sprintf("%d %s", got, what),
	}
}

// assertTraceContains checks that some pass reported the GAID with the
// given status and, when set, reason.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Action != a.Action || ev.Status != a.Status {
			continue
		}
		if a.GAID != "" && ev.GAID != a.GAID {
			continue
		}
		if a.Reason != "" && ev.Reason != a.Reason {
			continue
		}
		return nil
	}

	want := fmt.Sprintf("%s item with status %s", a.Action, a.Status)
	if a.GAID != "" {
		want += " for " + a.GAID
	}
	if a.Reason != "" {
		want += " and reason " + a.Reason
	}
	return &AssertionError{Type: a.Type, Expected: want, Actual: "not found in trace", Trace: trace}
}

// assertProposal compares the stored record with the expected fields using
// subset semantics. Values are compared by their printed form. The derived
// field "due" reports whether the record is collectable at now.
func assertProposal(ctx context.Context, st *store.Store, now time.Time, a Assertion) error {
	rec, err := st.ReadProposal(ctx, a.GAID)
	if errors.Is(err, store.ErrNotFound) {
		return &AssertionError{Type: a.Type, Expected: "record for " + a.GAID, Actual: "record not found"}
	}
	if err != nil {
		return err
	}

	actual := recordFields(rec, now)
	var mismatches []string
	for _, key := range slices.Sorted(maps.Keys(a.Expect)) {
		got, ok := actual[key]
		if !ok {
			return fmt.Errorf("unknown proposal field %q", key)
		}
		if want := fmt.Sprint(a.Expect[key]); want != got {
			mismatches = append(mismatches, fmt.Sprintf("%s: want %q, got %q", key, want, got))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s matching %v", a.GAID, a.Expect),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

func recordFields(rec gov.ProposalRecord, now time.Time) map[string]string {
	fields := map[string]string{
		"thread_id":       rec.ThreadID,
		"poll_id":         rec.PollID,
		"origin_time":     fmt.Sprint(rec.OriginTime),
		"processed":       fmt.Sprint(rec.Processed),
		"due":             fmt.Sprint(rec.DueAt(now)),
		"final_vote":      "",
		"final_rationale": "",
	}
	if rec.FinalVote != nil {
		fields["final_vote"] = string(*rec.FinalVote)
	}
	if rec.FinalRationale != nil {
		fields["final_rationale"] = *rec.FinalRationale
	}
	return fields
}
