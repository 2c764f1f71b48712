package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/govpoll/internal/gov"
	"github.com/roach88/govpoll/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Pending bool
}

// StatusEntry is one stored proposal as shown by the status command.
type StatusEntry struct {
	GAID         string    `json:"gaid"`
	ThreadID     string    `json:"thread_id"`
	OriginTime   int64     `json:"origin_time"`
	PostedAt     time.Time `json:"posted_at"`
	PollDeadline time.Time `json:"poll_deadline"`
	Processed    bool      `json:"processed"`
	FinalVote    string    `json:"final_vote,omitempty"`
	Rationales   int       `json:"rationales"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List stored proposals",
		Long: `List every proposal the bot has posted, newest first, with its poll
deadline, final vote and number of collected rationales.

Example:
  govpoll status
  govpoll status --pending --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Pending, "pending", false, "only show proposals whose poll is not processed yet")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	e, err := opts.loadEnv(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := loadStatus(ctx, st, opts.Pending)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read proposals", err)
	}

	return e.out.Render(entries, func(w io.Writer) { writeStatus(w, entries) })
}

func loadStatus(ctx context.Context, st *store.Store, pendingOnly bool) ([]StatusEntry, error) {
	recs, err := st.ListProposals(ctx, pendingOnly)
	if err != nil {
		return nil, err
	}
	counts, err := st.RationaleCounts(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]StatusEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, newStatusEntry(rec, counts[rec.GAID]))
	}
	return entries, nil
}

func newStatusEntry(rec gov.ProposalRecord, rationales int) StatusEntry {
	entry := StatusEntry{
		GAID:         rec.GAID,
		ThreadID:     rec.ThreadID,
		OriginTime:   rec.OriginTime,
		PostedAt:     rec.PostedAt,
		PollDeadline: rec.PollDeadline,
		Processed:    rec.Processed,
		Rationales:   rationales,
	}
	if rec.FinalVote != nil {
		entry.FinalVote = string(*rec.FinalVote)
	}
	return entry
}

func writeStatus(w io.Writer, entries []StatusEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No proposals.")
		return
	}
	for _, e := range entries {
		state := "open until " + e.PollDeadline.UTC().Format(time.RFC3339)
		if e.Processed {
			state = "closed: " + e.FinalVote
		}
		fmt.Fprintf(w, "%s  thread=%s  %s  (%s)\n",
			e.GAID, e.ThreadID, state, describeCount(e.Rationales, "rationale"))
	}
	fmt.Fprintf(w, "%s\n", describeCount(len(entries), "proposal"))
}
