package config

// Canonical environment variable names.
const (
	EnvIdentity         = "AGENTSCORE_IDENTITY"
	EnvTaskSourceURL    = "AGENTSCORE_API_URL"
	EnvTaskTier         = "AGENTSCORE_TASK_TIER"
	EnvLedgerURL        = "AGENTSCORE_LEDGER_URL"
	EnvMoltbookURL      = "AGENTSCORE_MOLTBOOK_URL"
	EnvMoltbookEnabled  = "AGENTSCORE_MOLTBOOK_ENABLED"
	EnvMoltbookLive     = "AGENTSCORE_MOLTBOOK_LIVE"
	EnvStatePath        = "AGENTSCORE_STATE_PATH"
	EnvPollInterval     = "AGENTSCORE_POLL_INTERVAL"
	EnvMockInterval     = "AGENTSCORE_MOCK_INTERVAL"
	EnvReportInterval   = "AGENTSCORE_REPORT_INTERVAL"
	EnvBroadcastSpacing = "AGENTSCORE_BROADCAST_SPACING"
	EnvCommentSpacing   = "AGENTSCORE_COMMENT_SPACING"
	EnvMockTasks        = "AGENTSCORE_MOCK_TASKS"
	EnvMockPayout       = "AGENTSCORE_MOCK_PAYOUT"
	EnvRatingProfile    = "AGENTSCORE_RATING_PROFILE"
	EnvMinRating        = "AGENTSCORE_MIN_RATING"
	EnvMaxRating        = "AGENTSCORE_MAX_RATING"
	EnvMinDelay         = "AGENTSCORE_MIN_DELAY"
	EnvMaxDelay         = "AGENTSCORE_MAX_DELAY"
	EnvHTTPTimeout      = "AGENTSCORE_HTTP_TIMEOUT"
	EnvShutdownGrace    = "AGENTSCORE_SHUTDOWN_GRACE"
	EnvStatusAddr       = "AGENTSCORE_STATUS_ADDR"
	EnvLogLevel         = "AGENTSCORE_LOG_LEVEL"
	EnvLogFormat        = "AGENTSCORE_LOG_FORMAT"
	EnvMetricsEnabled   = "AGENTSCORE_METRICS_ENABLED"
	EnvTracingEnabled   = "AGENTSCORE_TRACING_ENABLED"
	EnvTracingExporter  = "AGENTSCORE_TRACING_EXPORTER"
	EnvOTLPEndpoint     = "AGENTSCORE_OTLP_ENDPOINT"
	EnvZipkinEndpoint   = "AGENTSCORE_ZIPKIN_ENDPOINT"
)

// DefaultEnvAliases maps canonical names to the legacy names the worker
// still honours.
func DefaultEnvAliases() map[string][]string {
	aliases := map[string][]string{
		EnvIdentity:      {"AGENT_ADDRESS"},
		EnvTaskSourceURL: {"NEXT_PUBLIC_API_URL"},
		EnvLogLevel:      {"LOG_LEVEL"},
		EnvOTLPEndpoint:  {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	}

	copy := make(map[string][]string, len(aliases))
	for key, list := range aliases {
		copy[key] = append([]string(nil), list...)
	}
	return copy
}

// DefaultEnvLookupWithAliases composes DefaultEnvLookup with DefaultEnvAliases.
func DefaultEnvLookupWithAliases() EnvLookup {
	return AliasEnvLookup(DefaultEnvLookup, DefaultEnvAliases())
}
