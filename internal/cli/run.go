package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/govpoll/internal/scheduler"
	"github.com/roach88/govpoll/internal/server"
)

// Scheduled job names.
const (
	JobCheckProposals    = "check_proposals"
	JobProcessEndedPolls = "process_ended_polls"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted",
		Long: `Connect to Discord and run both periodic passes: posting new proposals
every POLL_INTERVAL_HOURS and collecting ended polls every
COLLECT_INTERVAL_MINUTES. Both passes also run once at startup.

SIGINT or SIGTERM stops scheduling new passes; a pass in progress finishes
the proposal it is working on and stops.

Example:
  govpoll run --env-file ./prod.env
  HEALTH_ADDR=:8080 govpoll run --db /var/lib/govpoll/governance.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(rootOpts, cmd)
		},
	}
}

func runBot(opts *RootOptions, cmd *cobra.Command) error {
	e, err := opts.loadEnv(cmd, true, "stdout")
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()
	log := e.logger

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", zap.Error(closeErr))
		}
	}()

	platform, closeChat, err := e.connectChat()
	if err != nil {
		return err
	}
	defer closeChat()

	eng, err := e.newEngine(ctx, st, platform)
	if err != nil {
		return err
	}

	sched := scheduler.New(log, []scheduler.Job{
		{
			Name:     JobCheckProposals,
			Interval: e.cfg.PollInterval,
			Run: func(ctx context.Context) (any, error) {
				report, err := eng.CheckProposals(ctx)
				return report, err
			},
		},
		{
			Name:     JobProcessEndedPolls,
			Interval: e.cfg.CollectInterval,
			Run: func(ctx context.Context) (any, error) {
				report, err := eng.ProcessEndedPolls(ctx)
				return report, err
			},
		},
	})

	g, gctx := errgroup.WithContext(ctx)

	if err := sched.Start(gctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to start scheduler", err)
	}
	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()
		return nil
	})

	if e.cfg.HealthAddr != "" {
		srv := server.New(e.cfg.HealthAddr, server.StatusFuncs{
			StartedFn: sched.Started,
			ResultsFn: func() any { return sched.LastResults() },
		}, log)
		g.Go(func() error { return srv.Run(gctx) })
	}

	log.Info("govpoll running",
		zap.Duration("poll_interval", e.cfg.PollInterval),
		zap.Duration("collect_interval", e.cfg.CollectInterval),
		zap.Duration("poll_duration", e.cfg.PollDuration),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "bot stopped with error", err)
	}
	log.Info("govpoll stopped")
	return nil
}
