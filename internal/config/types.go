package config

// Config is the root configuration document.
//
// The file may be JSON or YAML; YAML is coerced to JSON so both formats go
// through the same strict decoder (unknown fields are rejected).
type Config struct {
	Logging   LoggingConfig           `json:"logging"`
	Scheduler SchedulerConfig         `json:"scheduler"`
	Filter    FilterConfig            `json:"filter"`
	Jobs      JobsConfig              `json:"jobs"`
	Plugins   map[string]PluginConfig `json:"plugins,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console,omitempty"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type SchedulerConfig struct {
	// Timezone is an IANA TZ name, e.g. "Asia/Shanghai". Empty means local.
	Timezone string `json:"timezone,omitempty"`
	// Workers bounds concurrent job bodies (default 100).
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
}

type FilterConfig struct {
	// RuleChain is a ">"-delimited chain of boolean expressions over
	// predicate names, highest priority tier first, e.g. "4K and CN>1080P".
	RuleChain string `json:"rule_chain,omitempty"`
}

// JobsConfig gates the built-in scheduled jobs. Interval fields take Go
// duration strings; an empty interval disables the job.
type JobsConfig struct {
	CookieSyncInterval      string `json:"cookie_sync_interval,omitempty"`
	MediaServerSyncInterval string `json:"media_server_sync_interval,omitempty"`

	// SubscribeMode selects how subscriptions are refreshed:
	// "spider" spreads cron triggers across the day, "rss" polls an interval.
	SubscribeMode        string `json:"subscribe_mode,omitempty"`
	SubscribeRSSInterval string `json:"subscribe_rss_interval,omitempty"`
	SubscribeSearch      bool   `json:"subscribe_search,omitempty"`

	DownloaderMonitor  bool   `json:"downloader_monitor,omitempty"`
	CacheClearInterval string `json:"cache_clear_interval,omitempty"`
}

type PluginConfig struct {
	Enabled bool `json:"enabled,omitempty"`
}
