package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/govpoll/internal/engine"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one posting pass",
		Long: `Fetch proposals newer than the stored watermark and post every new one
to Discord, then print the pass report.

Example:
  govpoll check
  govpoll check --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(rootOpts, cmd, func(ctx context.Context, eng *engine.Engine) (any, func(io.Writer), error) {
				report, err := eng.CheckProposals(ctx)
				return report, func(w io.Writer) { writePostingReport(w, report) }, err
			})
		},
	}
}

// NewCollectCommand creates the collect command.
func NewCollectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run one collection pass",
		Long: `Tally every poll past its deadline, post the results and rationale
digest to its thread, and mark the proposal processed.

Example:
  govpoll collect --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(rootOpts, cmd, func(ctx context.Context, eng *engine.Engine) (any, func(io.Writer), error) {
				report, err := eng.ProcessEndedPolls(ctx)
				return report, func(w io.Writer) { writeCollectionReport(w, report) }, err
			})
		},
	}
}

type passFunc func(ctx context.Context, eng *engine.Engine) (report any, text func(io.Writer), err error)

func runPass(opts *RootOptions, cmd *cobra.Command, pass passFunc) error {
	e, err := opts.loadEnv(cmd, true)
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

	platform, closeChat, err := e.connectChat()
	if err != nil {
		return err
	}
	defer closeChat()

	eng, err := e.newEngine(ctx, st, platform)
	if err != nil {
		return err
	}

	report, text, err := pass(ctx, eng)
	if err != nil {
		return WrapExitError(ExitFailure, "pass failed", err)
	}

	return e.out.Render(report, text)
}

func writePostingReport(w io.Writer, r engine.PostingReport) {
	fmt.Fprintf(w, "Posting run %s: fetched %d, posted %d, skipped %d, failed %d\n",
		r.RunID, r.Fetched,
		r.Count(engine.StatusPosted), r.Count(engine.StatusSkipped), r.Count(engine.StatusFailed))
	if r.Watermark != nil {
		fmt.Fprintf(w, "  watermark: %d\n", *r.Watermark)
	}
	for _, it := range r.Items {
		gaid := it.GAID
		if gaid == "" {
			gaid = "(no identity)"
		}
		switch it.Status {
		case engine.StatusPosted:
			fmt.Fprintf(w, "  ✓ %s thread=%s poll=%s\n", gaid, it.ThreadID, it.PollID)
		case engine.StatusSkipped:
			fmt.Fprintf(w, "  - %s (%s)\n", gaid, it.Reason)
		default:
			fmt.Fprintf(w, "  ✗ %s: %s\n", gaid, it.Error)
		}
	}
}

func writeCollectionReport(w io.Writer, r engine.CollectionReport) {
	fmt.Fprintf(w, "Collection run %s: due %d, processed %d, skipped %d, failed %d\n",
		r.RunID, r.Due,
		r.Count(engine.StatusProcessed), r.Count(engine.StatusSkipped), r.Count(engine.StatusFailed))
	for _, it := range r.Items {
		switch it.Status {
		case engine.StatusProcessed:
			fmt.Fprintf(w, "  ✓ %s %s (%d votes, %s)\n",
				it.GAID, it.Outcome, it.Tally.Total(), describeCount(it.Rationales, "rationale"))
		case engine.StatusSkipped:
			fmt.Fprintf(w, "  - %s (%s)\n", it.GAID, it.Reason)
		default:
			fmt.Fprintf(w, "  ✗ %s: %s\n", it.GAID, it.Error)
		}
	}
}
