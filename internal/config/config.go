// Package config builds the explicit runtime configuration. It is the only
// package that reads the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/roach88/govpoll/internal/engine"
)

// Keys, named after their environment variables.
const (
	KeyDiscordToken     = "discord_bot_token"
	KeyDiscordChannel   = "discord_channel_id"
	KeyKoiosBaseURL     = "koios_base_url"
	KeyKoiosToken       = "koios_api_token"
	KeyPollInterval     = "poll_interval_hours"
	KeyCollectInterval  = "collect_interval_minutes"
	KeyPollDuration     = "poll_duration_minutes"
	KeyInitialBlockTime = "initial_block_time"
	KeyGeminiModel      = "gemini_model"
	KeyGeminiAPIKey     = "gemini_api_key"
	KeyDatabasePath     = "database_path"
	KeyFeedPageSize     = "feed_page_size"
	KeyPostDelay        = "post_delay_seconds"
	KeyCollectDelay     = "collect_delay_seconds"
	KeyHealthAddr       = "health_addr"
	KeyLogLevel         = "log_level"
	KeyLogEncoding      = "log_encoding"
)

const minPollDurationMinutes = 15

// Config is the complete runtime configuration, built once at startup.
type Config struct {
	DiscordToken     string
	DiscordChannelID string
	KoiosBaseURL     string
	KoiosAPIToken    string
	PollInterval     time.Duration
	CollectInterval  time.Duration
	PollDuration     time.Duration
	InitialBlockTime *int64
	GeminiModel      string
	GeminiAPIKey     string
	DatabasePath     string
	FeedPageSize     int
	PostDelay        time.Duration
	CollectDelay     time.Duration
	HealthAddr       string
	LogLevel         string
	LogEncoding      string

	// Warnings lists settings that were ignored or adjusted while loading.
	Warnings []string
}

// NewViper creates a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault(KeyKoiosBaseURL, "https://api.koios.rest/api/v1")
	v.SetDefault(KeyPollInterval, 6)
	v.SetDefault(KeyCollectInterval, 60)
	v.SetDefault(KeyPollDuration, 20160)
	v.SetDefault(KeyGeminiModel, "gemini-1.5-flash")
	v.SetDefault(KeyDatabasePath, "governance.db")
	v.SetDefault(KeyFeedPageSize, 50)
	v.SetDefault(KeyPostDelay, 2)
	v.SetDefault(KeyCollectDelay, 1)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogEncoding, "console")

	// AutomaticEnv only answers keys viper already knows about.
	for _, k := range []string{KeyDiscordToken, KeyDiscordChannel, KeyKoiosToken,
		KeyInitialBlockTime, KeyGeminiAPIKey, KeyHealthAddr} {
		v.SetDefault(k, "")
	}

	return v
}

// LoadEnvFile merges a dotenv file beneath the process environment. A
// missing file is not an error.
func LoadEnvFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}

	m := make(map[string]any, len(values))
	for k, val := range values {
		m[strings.ToLower(k)] = val
	}
	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge env file %s: %w", path, err)
	}
	return nil
}

// Load reads every setting from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DiscordToken:     strings.TrimSpace(v.GetString(KeyDiscordToken)),
		DiscordChannelID: strings.TrimSpace(v.GetString(KeyDiscordChannel)),
		KoiosBaseURL:     strings.TrimRight(strings.TrimSpace(v.GetString(KeyKoiosBaseURL)), "/"),
		KoiosAPIToken:    strings.TrimSpace(v.GetString(KeyKoiosToken)),
		GeminiModel:      strings.TrimSpace(v.GetString(KeyGeminiModel)),
		GeminiAPIKey:     strings.TrimSpace(v.GetString(KeyGeminiAPIKey)),
		DatabasePath:     v.GetString(KeyDatabasePath),
		HealthAddr:       v.GetString(KeyHealthAddr),
		LogLevel:         v.GetString(KeyLogLevel),
		LogEncoding:      v.GetString(KeyLogEncoding),
	}

	var errs []error
	intSetting := func(key string) int {
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: not an integer: %q", strings.ToUpper(key), v.GetString(key)))
		}
		return n
	}

	cfg.PollInterval = time.Duration(intSetting(KeyPollInterval)) * time.Hour
	cfg.CollectInterval = time.Duration(intSetting(KeyCollectInterval)) * time.Minute
	cfg.FeedPageSize = intSetting(KeyFeedPageSize)
	cfg.PostDelay = time.Duration(intSetting(KeyPostDelay)) * time.Second
	cfg.CollectDelay = time.Duration(intSetting(KeyCollectDelay)) * time.Second

	minutes := intSetting(KeyPollDuration)
	if minutes < minPollDurationMinutes {
		cfg.Warnings = append(cfg.Warnings,
			fmt.Sprintf("POLL_DURATION_MINUTES=%d raised to the minimum of %d", minutes, minPollDurationMinutes))
		minutes = minPollDurationMinutes
	}
	cfg.PollDuration = time.Duration(minutes) * time.Minute

	if raw := strings.TrimSpace(v.GetString(KeyInitialBlockTime)); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("invalid INITIAL_BLOCK_TIME %q ignored", raw))
		} else {
			cfg.InitialBlockTime = &ts
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once. Chat credentials are only
// required when requireChat is set.
func (c *Config) Validate(requireChat bool) error {
	var errs []error

	if requireChat {
		if c.DiscordToken == "" {
			errs = append(errs, errors.New("DISCORD_BOT_TOKEN is required"))
		}
		if c.DiscordChannelID == "" {
			errs = append(errs, errors.New("DISCORD_CHANNEL_ID is required"))
		}
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required"))
		}
	}
	if c.KoiosBaseURL == "" {
		errs = append(errs, errors.New("KOIOS_BASE_URL must not be empty"))
	}
	if c.PollInterval < time.Hour {
		errs = append(errs, errors.New("POLL_INTERVAL_HOURS must be at least 1"))
	}
	if c.CollectInterval < time.Minute {
		errs = append(errs, errors.New("COLLECT_INTERVAL_MINUTES must be at least 1"))
	}
	if c.FeedPageSize < 1 {
		errs = append(errs, errors.New("FEED_PAGE_SIZE must be positive"))
	}
	if c.PostDelay < 0 || c.CollectDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH must not be empty"))
	}

	return errors.Join(errs...)
}

// EngineConfig derives the lifecycle tracker settings.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		InitialWatermark: c.InitialBlockTime,
		PollDuration:     c.PollDuration,
		PostDelay:        c.PostDelay,
		CollectDelay:     c.CollectDelay,
		FeedBaseURL:      c.KoiosBaseURL,
	}
}
