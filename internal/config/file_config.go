package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig captures the on-disk YAML configuration. Unset fields keep
// their defaults.
type FileConfig struct {
	Identity   *string         `yaml:"identity"`
	TaskSource *TaskSourceFile `yaml:"task_source"`
	Ledger     *LedgerFile     `yaml:"ledger"`
	Moltbook   *MoltbookFile   `yaml:"moltbook"`
	State      *StateFile      `yaml:"state"`
	Schedule   *ScheduleFile   `yaml:"schedule"`
	Execution  *ExecutionFile  `yaml:"execution"`
	HTTP       *HTTPFile       `yaml:"http"`
	Status     *StatusFile     `yaml:"status"`
	Logging    *LoggingFile    `yaml:"logging"`
	Metrics    *MetricsFile    `yaml:"metrics"`
	Tracing    *TracingFile    `yaml:"tracing"`
	Extra      map[string]any  `yaml:",inline"`
}

type TaskSourceFile struct {
	URL  *string `yaml:"url"`
	Tier *string `yaml:"tier"`
}

type LedgerFile struct {
	URL *string `yaml:"url"`
}

type MoltbookFile struct {
	URL     *string        `yaml:"url"`
	Enabled *bool          `yaml:"enabled"`
	Live    *bool          `yaml:"live"`
	Timeout *time.Duration `yaml:"timeout"`
}

type StateFile struct {
	Path *string `yaml:"path"`
}

type ScheduleFile struct {
	PollInterval     *time.Duration `yaml:"poll_interval"`
	MockInterval     *time.Duration `yaml:"mock_interval"`
	ReportInterval   *time.Duration `yaml:"report_interval"`
	BroadcastSpacing *time.Duration `yaml:"broadcast_spacing"`
	CommentSpacing   *time.Duration `yaml:"comment_spacing"`
	MockTasks        *bool          `yaml:"mock_tasks"`
	MockPayout       *string        `yaml:"mock_payout"`
}

type ExecutionFile struct {
	Profile   *string        `yaml:"profile"`
	MinRating *int           `yaml:"min_rating"`
	MaxRating *int           `yaml:"max_rating"`
	MinDelay  *time.Duration `yaml:"min_delay"`
	MaxDelay  *time.Duration `yaml:"max_delay"`
}

type HTTPFile struct {
	Timeout       *time.Duration `yaml:"timeout"`
	ShutdownGrace *time.Duration `yaml:"shutdown_grace"`
}

type StatusFile struct {
	Addr *string `yaml:"addr"`
}

type LoggingFile struct {
	Level  *string `yaml:"level"`
	Format *string `yaml:"format"`
}

type MetricsFile struct {
	Enabled *bool `yaml:"enabled"`
}

type TracingFile struct {
	Enabled        *bool    `yaml:"enabled"`
	Exporter       *string  `yaml:"exporter"`
	OTLPEndpoint   *string  `yaml:"otlp_endpoint"`
	ZipkinEndpoint *string  `yaml:"zipkin_endpoint"`
	SampleRate     *float64 `yaml:"sample_rate"`
}

func applyFile(cfg *WorkerConfig, meta *Metadata, options loadOptions) error {
	path := options.configPath
	if path == "" {
		return nil
	}
	data, err := options.readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var file FileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if len(file.Extra) > 0 {
		unknown := make([]string, 0, len(file.Extra))
		for key := range file.Extra {
			unknown = append(unknown, key)
		}
		sort.Strings(unknown)
		return fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(unknown, ", "))
	}
	meta.file = path

	set := func(field string) { meta.sources[field] = SourceFile }

	setString(&cfg.Identity, file.Identity, "identity", set)
	if ts := file.TaskSource; ts != nil {
		setString(&cfg.TaskSourceURL, ts.URL, "task_source_url", set)
		setString(&cfg.TaskTier, ts.Tier, "task_tier", set)
	}
	if l := file.Ledger; l != nil {
		setString(&cfg.LedgerURL, l.URL, "ledger_url", set)
	}
	if m := file.Moltbook; m != nil {
		setString(&cfg.MoltbookURL, m.URL, "moltbook_url", set)
		setBool(&cfg.MoltbookEnabled, m.Enabled, "moltbook_enabled", set)
		setBool(&cfg.MoltbookLive, m.Live, "moltbook_live", set)
		setDuration(&cfg.MoltbookTimeout, m.Timeout, "moltbook_timeout", set)
	}
	if s := file.State; s != nil {
		setString(&cfg.StatePath, s.Path, "state_path", set)
	}
	if s := file.Schedule; s != nil {
		setDuration(&cfg.PollInterval, s.PollInterval, "poll_interval", set)
		setDuration(&cfg.MockInterval, s.MockInterval, "mock_interval", set)
		setDuration(&cfg.ReportInterval, s.ReportInterval, "report_interval", set)
		setDuration(&cfg.BroadcastSpacing, s.BroadcastSpacing, "broadcast_spacing", set)
		setDuration(&cfg.CommentSpacing, s.CommentSpacing, "comment_spacing", set)
		setBool(&cfg.MockTasks, s.MockTasks, "mock_tasks", set)
		setString(&cfg.MockPayout, s.MockPayout, "mock_payout", set)
	}
	if e := file.Execution; e != nil {
		setString(&cfg.RatingProfile, e.Profile, "rating_profile", set)
		setInt(&cfg.MinRating, e.MinRating, "min_rating", set)
		setInt(&cfg.MaxRating, e.MaxRating, "max_rating", set)
		setDuration(&cfg.MinDelay, e.MinDelay, "min_delay", set)
		setDuration(&cfg.MaxDelay, e.MaxDelay, "max_delay", set)
	}
	if h := file.HTTP; h != nil {
		setDuration(&cfg.HTTPTimeout, h.Timeout, "http_timeout", set)
		setDuration(&cfg.ShutdownGrace, h.ShutdownGrace, "shutdown_grace", set)
	}
	if s := file.Status; s != nil {
		setString(&cfg.StatusAddr, s.Addr, "status_addr", set)
	}
	obs := &cfg.Observability
	if l := file.Logging; l != nil {
		setString(&obs.Logging.Level, l.Level, "log_level", set)
		setString(&obs.Logging.Format, l.Format, "log_format", set)
	}
	if m := file.Metrics; m != nil {
		setBool(&obs.Metrics.Enabled, m.Enabled, "metrics_enabled", set)
	}
	if t := file.Tracing; t != nil {
		setBool(&obs.Tracing.Enabled, t.Enabled, "tracing_enabled", set)
		setString(&obs.Tracing.Exporter, t.Exporter, "tracing_exporter", set)
		setString(&obs.Tracing.OTLPEndpoint, t.OTLPEndpoint, "otlp_endpoint", set)
		setString(&obs.Tracing.ZipkinEndpoint, t.ZipkinEndpoint, "zipkin_endpoint", set)
		if t.SampleRate != nil {
			obs.Tracing.SampleRate = *t.SampleRate
			set("tracing_sample_rate")
		}
	}
	return nil
}

func setString(dst *string, src *string, field string, mark func(string)) {
	if src != nil {
		*dst = *src
		mark(field)
	}
}

func setBool(dst *bool, src *bool, field string, mark func(string)) {
	if src != nil {
		*dst = *src
		mark(field)
	}
}

func setInt(dst *int, src *int, field string, mark func(string)) {
	if src != nil {
		*dst = *src
		mark(field)
	}
}

func setDuration(dst *time.Duration, src *time.Duration, field string, mark func(string)) {
	if src != nil {
		*dst = *src
		mark(field)
	}
}
