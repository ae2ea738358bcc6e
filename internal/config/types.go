package config

// Config is the whole feedpush configuration. Every section is optional;
// the bot credentials and the feed URL usually come from the environment.
//
// All durations are Go duration strings (e.g. "500ms", "20s", "5m").
type Config struct {
	Feed     FeedConfig     `json:"feed"`
	Bot      BotConfig      `json:"bot"`
	Identity IdentityConfig `json:"identity"`
	Enrich   EnrichConfig   `json:"enrich"`
	Delivery DeliveryConfig `json:"delivery"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Daemon   DaemonConfig   `json:"daemon"`
}

type FeedConfig struct {
	URL       string `json:"url"`
	UserAgent string `json:"user_agent,omitempty"`
	Timeout   string `json:"timeout,omitempty"` // default "30s"
	MaxBytes  int64  `json:"max_bytes,omitempty"`
	// MaxPerRun caps deliveries per run (default 5).
	MaxPerRun int `json:"max_per_run,omitempty"`
}

type BotConfig struct {
	// APIURL is the bot API base (default "https://api.safew.org").
	APIURL   string `json:"api_url,omitempty"`
	Token    string `json:"token"`
	ChatID   string `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	Timeout  string `json:"timeout,omitempty"` // per API call, default "30s"
}

type IdentityConfig struct {
	// Pattern must have exactly one capture group holding the numeric id.
	Pattern string `json:"pattern,omitempty"`
	// Source is "guid" (default, falls back to link) or "link".
	Source string `json:"source,omitempty"`
}

// EnrichConfig controls image scraping from the entry page.
//
// Enabled is a pointer so an omitted section keeps scraping on.
type EnrichConfig struct {
	Enabled   *bool    `json:"enabled,omitempty"`
	Selector  string   `json:"selector,omitempty"`
	LazyAttrs []string `json:"lazy_attrs,omitempty"`
	UserAgent string   `json:"user_agent,omitempty"`
	Timeout   string   `json:"timeout,omitempty"` // default "15s"
	MaxBytes  int64    `json:"max_bytes,omitempty"`
	Cookies   bool     `json:"cookies,omitempty"`
}

func (e EnrichConfig) IsEnabled() bool { return e.Enabled == nil || *e.Enabled }

type DeliveryConfig struct {
	Delay           string `json:"delay,omitempty"` // between posts, default "3s"; "0s" disables pacing
	ParseMode       string `json:"parse_mode,omitempty"`
	EscapeChars     string `json:"escape_chars,omitempty"`
	Footer          string `json:"footer,omitempty"`
	CaptionLimit    int    `json:"caption_limit,omitempty"`
	ImageMaxBytes   int64  `json:"image_max_bytes,omitempty"`
	ImageTimeout    string `json:"image_timeout,omitempty"` // default "20s"
	FollowUpCaption bool   `json:"follow_up_caption,omitempty"`
}

// StorageConfig selects where the delivery watermark lives.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/last_tid.json" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "file" (default) or "sqlite"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards warnings and errors to an operations chat through the bot.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ChatID     string `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// DaemonConfig is used by "feedpush daemon" only.
type DaemonConfig struct {
	// Schedule is a cron expression, a Go duration ("5m") or an "HH:MM" interval.
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	// RunTimeout bounds a single run (default "10m").
	RunTimeout string       `json:"run_timeout,omitempty"`
	Status     StatusConfig `json:"status"`
}

// StatusConfig enables the read-only HTTP status endpoint.
// Prefer binding to localhost.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8089"
}
