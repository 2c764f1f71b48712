package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/govpoll/internal/gov"
)

// FeedOptions holds flags for the feed command.
type FeedOptions struct {
	*RootOptions
	After         int64
	SinceProposal string
	Max           int
}

// FeedEntry is one resolved feed record.
type FeedEntry struct {
	GAID      string `json:"gaid"`
	BlockTime *int64 `json:"block_time,omitempty"`
	Type      string `json:"proposal_type,omitempty"`
	Title     string `json:"title"`
}

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "List proposals from the indexer",
		Long: `Fetch the governance proposal feed and print each proposal's GAID and
block time. Nothing is stored or posted.

Example:
  govpoll feed --after 1735689600
  govpoll feed --since-proposal 'abc123#0' --max 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.After, "after", 0, "only proposals with a block time after this unix timestamp")
	cmd.Flags().StringVar(&opts.SinceProposal, "since-proposal", "", "skip GAIDs that sort at or before this one")
	cmd.Flags().IntVar(&opts.Max, "max", 0, "print at most N proposals (0 = all)")

	return cmd
}

func runFeed(opts *FeedOptions, cmd *cobra.Command) error {
	e, err := opts.loadEnv(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var after *int64
	if cmd.Flags().Changed("after") {
		after = &opts.After
	}

	raws, err := e.feedClient().Fetch(ctx, after)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to fetch feed", err)
	}

	entries := selectFeedEntries(raws, opts.SinceProposal, opts.Max)
	return e.out.Render(entries, func(w io.Writer) { writeFeed(w, entries) })
}

// selectFeedEntries resolves records to entries, dropping those without
// identity and those whose GAID sorts at or before since.
func selectFeedEntries(raws []gov.Raw, since string, limit int) []FeedEntry {
	entries := []FeedEntry{}
	for _, raw := range raws {
		id, ok := gov.ResolveGAID(raw)
		if !ok {
			continue
		}
		gaid := id.String()
		if since != "" && gaid <= since {
			continue
		}

		entry := FeedEntry{GAID: gaid, Title: gov.Title(raw)}
		if ts, ok := raw.OriginTime(); ok {
			entry.BlockTime = &ts
		}
		entry.Type = gov.ProposalType(raw)
		entries = append(entries, entry)

		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries
}

func writeFeed(w io.Writer, entries []FeedEntry) {
	for _, e := range entries {
		bt := "-"
		if e.BlockTime != nil {
			bt = fmt.Sprint(*e.BlockTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.GAID, bt, e.Title)
	}
	fmt.Fprintf(w, "%s\n", describeCount(len(entries), "proposal"))
}
