package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/govpoll/internal/chat"
	"github.com/roach88/govpoll/internal/config"
	"github.com/roach88/govpoll/internal/discord"
	"github.com/roach88/govpoll/internal/engine"
	"github.com/roach88/govpoll/internal/feed"
	"github.com/roach88/govpoll/internal/logging"
	"github.com/roach88/govpoll/internal/store"
	"github.com/roach88/govpoll/internal/summarize"
)

// metadataTimeout bounds one anchored metadata download.
const metadataTimeout = 10 * time.Second

// env is the configuration and logger shared by a command invocation.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	out    *OutputFormatter
}

// loadEnv resolves configuration from the env file, the process
// environment and the bound flags, then builds the logger. Commands that
// print reports log to stderr so stdout stays parseable.
func (o *RootOptions) loadEnv(cmd *cobra.Command, requireChat bool, logOutputs ...string) (*env, error) {
	v := config.NewViper()
	if err := config.LoadEnvFile(v, o.EnvFile); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load env file", err)
	}
	if f := cmd.Flags().Lookup("db"); f != nil {
		if err := v.BindPFlag(config.KeyDatabasePath, f); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to bind flags", err)
		}
	}
	if o.Verbose {
		v.Set(config.KeyLogLevel, "debug")
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if err := cfg.Validate(requireChat); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	if len(logOutputs) == 0 {
		logOutputs = []string{"stderr"}
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding, logOutputs...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	out := &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
	out.VerboseLog("database: %s", cfg.DatabasePath)
	out.VerboseLog("indexer: %s", cfg.KoiosBaseURL)

	return &env{cfg: cfg, logger: logger, out: out}, nil
}

// openStore opens the configured database.
func (e *env) openStore() (*store.Store, error) {
	e.logger.Debug("opening database", zap.String("path", e.cfg.DatabasePath))
	st, err := store.Open(e.cfg.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// feedClient builds the indexer client.
func (e *env) feedClient() *feed.Client {
	return feed.New(feed.Opts{
		BaseURL:  e.cfg.KoiosBaseURL,
		PageSize: e.cfg.FeedPageSize,
		Token:    e.cfg.KoiosAPIToken,
	}, e.logger)
}

// summarizer builds the Gemini-backed summarizer, or a fallback-only one
// when no API key is configured.
func (e *env) summarizer(ctx context.Context) (*summarize.Summarizer, error) {
	if e.cfg.GeminiAPIKey == "" {
		e.logger.Warn("GEMINI_API_KEY not set, using fallback texts")
		return summarize.New(summarize.Unavailable{}, e.logger), nil
	}
	gen, err := summarize.NewGemini(ctx, e.cfg.GeminiAPIKey, e.cfg.GeminiModel)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create text generator", err)
	}
	return summarize.New(gen, e.logger), nil
}

// newEngine wires the lifecycle tracker against st and platform.
func (e *env) newEngine(ctx context.Context, st *store.Store, platform chat.Platform) (*engine.Engine, error) {
	sum, err := e.summarizer(ctx)
	if err != nil {
		return nil, err
	}
	return engine.New(st, e.feedClient(), platform, sum, e.cfg.EngineConfig(), e.logger,
		engine.WithEnricher(feed.NewMetadataFetcher(metadataTimeout, e.logger)),
	), nil
}

// connectChat opens the Discord gateway. The returned close function ends
// the session.
func (e *env) connectChat() (chat.Platform, func(), error) {
	sess, err := discord.Connect(e.cfg.DiscordToken)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to connect to Discord", err)
	}
	closeFn := func() {
		if err := sess.Close(); err != nil {
			e.logger.Warn("closing discord session", zap.Error(err))
		}
	}
	return discord.New(sess, e.cfg.DiscordChannelID, e.logger), closeFn, nil
}

// describeCount renders "1 proposal" / "2 proposals".
func describeCount(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
