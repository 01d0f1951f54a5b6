package config

// Defaults applied when the config file or environment leaves a value unset.
const (
	DefaultRefreshIntervalMinutes = 5
	MinRefreshIntervalMinutes     = 1
	MaxRefreshIntervalMinutes     = 1440

	DefaultWarningThreshold  = 80.0
	DefaultCriticalThreshold = 95.0
)

// Environment variables recognized on top of the config file.
const (
	EnvConfigPath        = "QUOTABAR_CONFIG_PATH"
	EnvRefreshInterval   = "QUOTABAR_REFRESH_INTERVAL"
	EnvWarningThreshold  = "QUOTABAR_WARNING_THRESHOLD"
	EnvCriticalThreshold = "QUOTABAR_CRITICAL_THRESHOLD"
	EnvFetchTimeout      = "QUOTABAR_FETCH_TIMEOUT"
	EnvLogLevel          = "QUOTABAR_LOG_LEVEL"
)
