package config

import (
	"time"

	"agentscore/internal/observability"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

// Defaults.
const (
	DefaultIdentity         = "0xf94b361a541301f572c1f832e5afbda4731e864f"
	DefaultMoltbookURL      = "https://www.moltbook.com/api/v1"
	DefaultStatePath        = "state.json"
	DefaultStatusAddr       = "127.0.0.1:8790"
	DefaultPollInterval     = 30 * time.Second
	DefaultMockInterval     = 90 * time.Second
	DefaultReportInterval   = 30 * time.Minute
	DefaultBroadcastSpacing = 30 * time.Minute
	DefaultCommentSpacing   = 20 * time.Second
	DefaultMockPayout       = "0.50"
	DefaultRatingProfile    = "standard"
	DefaultMinDelay         = 2 * time.Second
	DefaultMaxDelay         = 5 * time.Second
	DefaultHTTPTimeout      = 10 * time.Second
	DefaultMoltbookTimeout  = 5 * time.Second
	DefaultShutdownGrace    = 5 * time.Second
)

// WorkerConfig is everything the worker binary needs.
type WorkerConfig struct {
	Identity string `json:"identity"`

	// TaskSourceURL roots the task-source REST API. Empty runs on local
	// synthesized tasks only.
	TaskSourceURL string `json:"task_source_url"`
	TaskTier      string `json:"task_tier"`
	// LedgerURL defaults to TaskSourceURL. Empty keeps reputation in process.
	LedgerURL string `json:"ledger_url"`

	MoltbookURL     string        `json:"moltbook_url"`
	MoltbookEnabled bool          `json:"moltbook_enabled"`
	MoltbookLive    bool          `json:"moltbook_live"`
	MoltbookTimeout time.Duration `json:"moltbook_timeout"`

	StatePath string `json:"state_path"`

	PollInterval     time.Duration `json:"poll_interval"`
	MockInterval     time.Duration `json:"mock_interval"`
	ReportInterval   time.Duration `json:"report_interval"`
	BroadcastSpacing time.Duration `json:"broadcast_spacing"`
	CommentSpacing   time.Duration `json:"comment_spacing"`

	MockTasks  bool   `json:"mock_tasks"`
	MockPayout string `json:"mock_payout"`

	RatingProfile string        `json:"rating_profile"`
	MinRating     int           `json:"min_rating"`
	MaxRating     int           `json:"max_rating"`
	MinDelay      time.Duration `json:"min_delay"`
	MaxDelay      time.Duration `json:"max_delay"`

	HTTPTimeout   time.Duration `json:"http_timeout"`
	ShutdownGrace time.Duration `json:"shutdown_grace"`

	// StatusAddr is the listen address of the status surface; empty disables it.
	StatusAddr string `json:"status_addr"`

	Observability observability.Config `json:"-"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() WorkerConfig {
	return WorkerConfig{
		Identity:         DefaultIdentity,
		MoltbookURL:      DefaultMoltbookURL,
		MoltbookEnabled:  true,
		MoltbookTimeout:  DefaultMoltbookTimeout,
		StatePath:        DefaultStatePath,
		PollInterval:     DefaultPollInterval,
		MockInterval:     DefaultMockInterval,
		ReportInterval:   DefaultReportInterval,
		BroadcastSpacing: DefaultBroadcastSpacing,
		CommentSpacing:   DefaultCommentSpacing,
		MockTasks:        true,
		MockPayout:       DefaultMockPayout,
		RatingProfile:    DefaultRatingProfile,
		MinDelay:         DefaultMinDelay,
		MaxDelay:         DefaultMaxDelay,
		HTTPTimeout:      DefaultHTTPTimeout,
		ShutdownGrace:    DefaultShutdownGrace,
		StatusAddr:       DefaultStatusAddr,
		Observability:    observability.DefaultConfig(),
	}
}

// Metadata contains provenance details for loaded configuration.
type Metadata struct {
	sources  map[string]ValueSource
	loadedAt time.Time
	file     string
}

// Sources returns a copy of the provenance map.
func (m Metadata) Sources() map[string]ValueSource {
	copy := make(map[string]ValueSource, len(m.sources))
	for key, value := range m.sources {
		copy[key] = value
	}
	return copy
}

// Source returns the origin for the given configuration field.
func (m Metadata) Source(field string) ValueSource {
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// File returns the config file that was read, if any.
func (m Metadata) File() string {
	return m.file
}

// Overrides conveys caller-specified values that win over env and file.
type Overrides struct {
	Identity      *string
	TaskSourceURL *string
	StatePath     *string
	StatusAddr    *string
	LogLevel      *string
	LogFormat     *string
}
