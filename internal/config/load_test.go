package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) EnvLookup {
	return AliasEnvLookup(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}, DefaultEnvAliases())
}

func TestLoadDefaults(t *testing.T) {
	cfg, meta, err := Load(WithEnv(envMap(nil)))
	require.NoError(t, err)

	assert.Equal(t, DefaultIdentity, cfg.Identity)
	assert.Empty(t, cfg.TaskSourceURL)
	assert.Empty(t, cfg.LedgerURL)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 90*time.Second, cfg.MockInterval)
	assert.Equal(t, 30*time.Minute, cfg.ReportInterval)
	assert.Equal(t, 30*time.Minute, cfg.BroadcastSpacing)
	assert.Equal(t, 20*time.Second, cfg.CommentSpacing)
	assert.Equal(t, "0.50", cfg.MockPayout)
	assert.True(t, cfg.MockTasks)
	assert.True(t, cfg.MoltbookEnabled)
	assert.False(t, cfg.MoltbookLive)
	assert.Equal(t, SourceDefault, meta.Source("identity"))

	profile, err := cfg.RatingRange()
	require.NoError(t, err)
	assert.Equal(t, 70, profile.MinRating)
	assert.Equal(t, 95, profile.MaxRating)
}

func TestLoadLegacyEnvAliases(t *testing.T) {
	cfg, meta, err := Load(WithEnv(envMap(map[string]string{
		"NEXT_PUBLIC_API_URL": "http://localhost:3003/",
		"AGENT_ADDRESS":       "0xabc",
	})))
	require.NoError(t, err)

	assert.Equal(t, "0xabc", cfg.Identity)
	assert.Equal(t, "http://localhost:3003", cfg.TaskSourceURL)
	assert.Equal(t, "http://localhost:3003", cfg.LedgerURL, "ledger follows the task source")
	assert.Equal(t, SourceEnv, meta.Source("identity"))
	assert.Equal(t, SourceEnv, meta.Source("task_source_url"))
}

func TestCanonicalEnvBeatsAlias(t *testing.T) {
	cfg, _, err := Load(WithEnv(envMap(map[string]string{
		EnvIdentity:     "0xnew",
		"AGENT_ADDRESS": "0xold",
	})))
	require.NoError(t, err)
	assert.Equal(t, "0xnew", cfg.Identity)
}

func TestLoadFileThenEnv(t *testing.T) {
	yamlDoc := `
identity: "0xfile"
task_source:
  url: http://tasks.internal:3003
  tier: PREMIUM
moltbook:
  enabled: false
schedule:
  poll_interval: 10s
  mock_interval: 45s
  mock_payout: "1.25"
execution:
  profile: premium
logging:
  level: debug
  format: json
`
	reader := func(path string) ([]byte, error) {
		require.Equal(t, "/etc/agentscore.yaml", path)
		return []byte(yamlDoc), nil
	}

	cfg, meta, err := Load(
		WithConfigPath("/etc/agentscore.yaml"),
		WithFileReader(reader),
		WithEnv(envMap(map[string]string{EnvPollInterval: "15s"})),
	)
	require.NoError(t, err)

	assert.Equal(t, "0xfile", cfg.Identity)
	assert.Equal(t, "http://tasks.internal:3003", cfg.TaskSourceURL)
	assert.Equal(t, "PREMIUM", cfg.TaskTier)
	assert.False(t, cfg.MoltbookEnabled)
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.Equal(t, 45*time.Second, cfg.MockInterval)
	assert.Equal(t, "1.25", cfg.MockPayout)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.Equal(t, "json", cfg.Observability.Logging.Format)
	assert.Equal(t, SourceEnv, meta.Source("poll_interval"))
	assert.Equal(t, SourceFile, meta.Source("mock_interval"))
	assert.Equal(t, "/etc/agentscore.yaml", meta.File())

	profile, err := cfg.RatingRange()
	require.NoError(t, err)
	assert.Equal(t, 90, profile.MinRating)
	assert.Equal(t, 100, profile.MaxRating)
}

func TestLoadFileErrors(t *testing.T) {
	_, _, err := Load(
		WithConfigPath("missing.yaml"),
		WithFileReader(func(string) ([]byte, error) { return nil, os.ErrNotExist }),
		WithEnv(envMap(nil)),
	)
	assert.ErrorContains(t, err, "not found")

	_, _, err = Load(
		WithConfigPath("typo.yaml"),
		WithFileReader(func(string) ([]byte, error) { return []byte("pol_interval: 5s\n"), nil }),
		WithEnv(envMap(nil)),
	)
	assert.ErrorContains(t, err, "pol_interval")
}

func TestOverridesWin(t *testing.T) {
	identity := "0xflag"
	level := "warn"
	cfg, meta, err := Load(
		WithEnv(envMap(map[string]string{EnvIdentity: "0xenv"})),
		WithOverrides(Overrides{Identity: &identity, LogLevel: &level}),
	)
	require.NoError(t, err)
	assert.Equal(t, "0xflag", cfg.Identity)
	assert.Equal(t, "warn", cfg.Observability.Logging.Level)
	assert.Equal(t, SourceOverride, meta.Source("identity"))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "bad duration", env: map[string]string{EnvPollInterval: "soon"}, want: EnvPollInterval},
		{name: "sub-second poll", env: map[string]string{EnvPollInterval: "100ms"}, want: "poll interval"},
		{name: "relative url", env: map[string]string{EnvTaskSourceURL: "localhost:3003"}, want: "task source url"},
		{name: "inverted ratings", env: map[string]string{EnvMinRating: "90", EnvMaxRating: "80"}, want: "rating range"},
		{name: "unknown profile", env: map[string]string{EnvRatingProfile: "legendary"}, want: "legendary"},
		{name: "bad payout", env: map[string]string{EnvMockPayout: "free"}, want: "mock payout"},
		{name: "bad bool", env: map[string]string{EnvMockTasks: "sometimes"}, want: EnvMockTasks},
		{name: "inverted delays", env: map[string]string{EnvMinDelay: "6s"}, want: "work delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(WithEnv(envMap(tt.env)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsProblemsInFieldOrder(t *testing.T) {
	cfg := Defaults()
	cfg.Identity = ""
	cfg.TaskSourceURL = "tasks.local"
	cfg.LedgerURL = "ledger.local"
	cfg.MoltbookURL = "moltbook.local"
	cfg.PollInterval = time.Millisecond
	cfg.MockInterval = time.Millisecond
	cfg.ReportInterval = time.Millisecond

	want := "invalid configuration: identity is empty; " +
		`task source url "tasks.local" is not an absolute URL; ` +
		`ledger url "ledger.local" is not an absolute URL; ` +
		`moltbook url "moltbook.local" is not an absolute URL; ` +
		"poll interval 1ms is below one second; " +
		"mock interval 1ms is below one second; " +
		"report interval 1ms is below one second"
	for i := 0; i < 20; i++ {
		err := Validate(cfg)
		require.Error(t, err)
		require.Equal(t, want, err.Error())
	}
}

func TestExplicitRatingBounds(t *testing.T) {
	cfg, _, err := Load(WithEnv(envMap(map[string]string{EnvMinRating: "40", EnvMaxRating: "60"})))
	require.NoError(t, err)
	profile, err := cfg.RatingRange()
	require.NoError(t, err)
	assert.Equal(t, "custom", profile.Name)
	assert.Equal(t, 40, profile.MinRating)
	assert.Equal(t, 60, profile.MaxRating)
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, meta, err := Load(
		WithEnv(envMap(nil)),
		WithConfigPath("../../configs/worker.example.yaml"),
	)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3001/api", cfg.TaskSourceURL)
	assert.Equal(t, 30*time.Minute, cfg.ReportInterval)
	assert.Equal(t, SourceFile, meta.Source("task_source_url"))
}
