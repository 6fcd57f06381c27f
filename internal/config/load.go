package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"agentscore/internal/execution"
)

// Load builds the worker configuration: defaults, then the YAML file (if
// any), then environment, then caller overrides, then validation.
func Load(opts ...Option) (WorkerConfig, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookupWithAliases(),
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}
	cfg := Defaults()

	if err := applyFile(&cfg, &meta, options); err != nil {
		return WorkerConfig{}, Metadata{}, err
	}
	if err := applyEnv(&cfg, &meta, options.envLookup); err != nil {
		return WorkerConfig{}, Metadata{}, err
	}
	applyOverrides(&cfg, &meta, options.overrides)

	normalize(&cfg)
	if err := Validate(cfg); err != nil {
		return WorkerConfig{}, Metadata{}, err
	}
	return cfg, meta, nil
}

func applyEnv(cfg *WorkerConfig, meta *Metadata, lookup EnvLookup) error {
	if lookup == nil {
		lookup = DefaultEnvLookup
	}
	var firstErr error
	env := func(key, field string, apply func(string) error) {
		value, ok := lookup(key)
		if !ok {
			return
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if err := apply(value); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", key, err)
			}
			return
		}
		meta.sources[field] = SourceEnv
	}
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	dur := func(dst *time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*dst = d
			return nil
		}
	}
	boolean := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*dst = b
			return nil
		}
	}
	integer := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}

	obs := &cfg.Observability
	env(EnvIdentity, "identity", str(&cfg.Identity))
	env(EnvTaskSourceURL, "task_source_url", str(&cfg.TaskSourceURL))
	env(EnvTaskTier, "task_tier", str(&cfg.TaskTier))
	env(EnvLedgerURL, "ledger_url", str(&cfg.LedgerURL))
	env(EnvMoltbookURL, "moltbook_url", str(&cfg.MoltbookURL))
	env(EnvMoltbookEnabled, "moltbook_enabled", boolean(&cfg.MoltbookEnabled))
	env(EnvMoltbookLive, "moltbook_live", boolean(&cfg.MoltbookLive))
	env(EnvStatePath, "state_path", str(&cfg.StatePath))
	env(EnvPollInterval, "poll_interval", dur(&cfg.PollInterval))
	env(EnvMockInterval, "mock_interval", dur(&cfg.MockInterval))
	env(EnvReportInterval, "report_interval", dur(&cfg.ReportInterval))
	env(EnvBroadcastSpacing, "broadcast_spacing", dur(&cfg.BroadcastSpacing))
	env(EnvCommentSpacing, "comment_spacing", dur(&cfg.CommentSpacing))
	env(EnvMockTasks, "mock_tasks", boolean(&cfg.MockTasks))
	env(EnvMockPayout, "mock_payout", str(&cfg.MockPayout))
	env(EnvRatingProfile, "rating_profile", str(&cfg.RatingProfile))
	env(EnvMinRating, "min_rating", integer(&cfg.MinRating))
	env(EnvMaxRating, "max_rating", integer(&cfg.MaxRating))
	env(EnvMinDelay, "min_delay", dur(&cfg.MinDelay))
	env(EnvMaxDelay, "max_delay", dur(&cfg.MaxDelay))
	env(EnvHTTPTimeout, "http_timeout", dur(&cfg.HTTPTimeout))
	env(EnvShutdownGrace, "shutdown_grace", dur(&cfg.ShutdownGrace))
	env(EnvStatusAddr, "status_addr", str(&cfg.StatusAddr))
	env(EnvLogLevel, "log_level", str(&obs.Logging.Level))
	env(EnvLogFormat, "log_format", str(&obs.Logging.Format))
	env(EnvMetricsEnabled, "metrics_enabled", boolean(&obs.Metrics.Enabled))
	env(EnvTracingEnabled, "tracing_enabled", boolean(&obs.Tracing.Enabled))
	env(EnvTracingExporter, "tracing_exporter", str(&obs.Tracing.Exporter))
	env(EnvOTLPEndpoint, "otlp_endpoint", str(&obs.Tracing.OTLPEndpoint))
	env(EnvZipkinEndpoint, "zipkin_endpoint", str(&obs.Tracing.ZipkinEndpoint))
	return firstErr
}

func applyOverrides(cfg *WorkerConfig, meta *Metadata, overrides Overrides) {
	set := func(field string) { meta.sources[field] = SourceOverride }
	setString(&cfg.Identity, overrides.Identity, "identity", set)
	setString(&cfg.TaskSourceURL, overrides.TaskSourceURL, "task_source_url", set)
	setString(&cfg.StatePath, overrides.StatePath, "state_path", set)
	setString(&cfg.StatusAddr, overrides.StatusAddr, "status_addr", set)
	setString(&cfg.Observability.Logging.Level, overrides.LogLevel, "log_level", set)
	setString(&cfg.Observability.Logging.Format, overrides.LogFormat, "log_format", set)
}

func normalize(cfg *WorkerConfig) {
	cfg.Identity = strings.TrimSpace(cfg.Identity)
	cfg.TaskSourceURL = strings.TrimRight(strings.TrimSpace(cfg.TaskSourceURL), "/")
	cfg.LedgerURL = strings.TrimRight(strings.TrimSpace(cfg.LedgerURL), "/")
	if cfg.LedgerURL == "" {
		cfg.LedgerURL = cfg.TaskSourceURL
	}
	cfg.MoltbookURL = strings.TrimRight(strings.TrimSpace(cfg.MoltbookURL), "/")
	cfg.StatePath = strings.TrimSpace(cfg.StatePath)
	cfg.RatingProfile = strings.ToLower(strings.TrimSpace(cfg.RatingProfile))
	cfg.Observability.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Observability.Logging.Level))
	cfg.Observability.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Observability.Logging.Format))
}

// Validate rejects configurations the worker cannot run with.
func Validate(cfg WorkerConfig) error {
	var problems []string
	if cfg.Identity == "" {
		problems = append(problems, "identity is empty")
	}
	urls := []struct {
		name, raw string
	}{
		{"task source url", cfg.TaskSourceURL},
		{"ledger url", cfg.LedgerURL},
		{"moltbook url", cfg.MoltbookURL},
	}
	for _, u := range urls {
		if u.raw == "" {
			continue
		}
		if parsed, err := url.Parse(u.raw); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			problems = append(problems, fmt.Sprintf("%s %q is not an absolute URL", u.name, u.raw))
		}
	}
	if cfg.StatePath == "" {
		problems = append(problems, "state path is empty")
	}
	intervals := []struct {
		name string
		d    time.Duration
	}{
		{"poll interval", cfg.PollInterval},
		{"mock interval", cfg.MockInterval},
		{"report interval", cfg.ReportInterval},
	}
	for _, iv := range intervals {
		if iv.d < time.Second {
			problems = append(problems, fmt.Sprintf("%s %s is below one second", iv.name, iv.d))
		}
	}
	if cfg.BroadcastSpacing < 0 || cfg.CommentSpacing < 0 {
		problems = append(problems, "rate-limit spacing must not be negative")
	}
	if _, err := cfg.RatingRange(); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.MinDelay < 0 || cfg.MinDelay > cfg.MaxDelay {
		problems = append(problems, fmt.Sprintf("work delay range [%s,%s] is invalid", cfg.MinDelay, cfg.MaxDelay))
	}
	if _, err := strconv.ParseFloat(cfg.MockPayout, 64); err != nil {
		problems = append(problems, fmt.Sprintf("mock payout %q is not a number", cfg.MockPayout))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RatingRange resolves the profile and explicit rating bounds. Explicit
// bounds win over the profile when both are set.
func (c WorkerConfig) RatingRange() (execution.Profile, error) {
	profile, err := execution.ProfileByName(c.RatingProfile)
	if err != nil {
		return execution.Profile{}, err
	}
	if c.MinRating != 0 || c.MaxRating != 0 {
		profile = execution.Profile{Name: "custom", MinRating: c.MinRating, MaxRating: c.MaxRating}
	}
	if profile.MinRating < 0 || profile.MaxRating > 100 || profile.MinRating > profile.MaxRating {
		return execution.Profile{}, fmt.Errorf("rating range [%d,%d] is invalid", profile.MinRating, profile.MaxRating)
	}
	return profile, nil
}
