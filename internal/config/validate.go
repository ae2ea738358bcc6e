package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"

	"feedpush/internal/identity"
	"feedpush/internal/task/scheduler"
)

// ValidationError lists every problem found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid config: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid config (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks shape and syntax. Presence of credentials is checked per
// run, so commands like "state show" work without them.
func (c *Config) Validate() error {
	var p []string
	add := func(format string, args ...any) { p = append(p, fmt.Sprintf(format, args...)) }
	for _, f := range c.durationFields() {
		if _, err := ParseDurationField(f.key, f.raw); err != nil {
			p = append(p, err.Error())
		}
	}

	if u := strings.TrimSpace(c.Feed.URL); u != "" && !isHTTPURL(u) {
		add("feed.url: %q is not an http(s) url", u)
	}
	if c.Feed.MaxBytes < 0 {
		add("feed.max_bytes: must be >= 0")
	}
	if c.Feed.MaxPerRun < 0 {
		add("feed.max_per_run: must be >= 0")
	}

	if u := strings.TrimSpace(c.Bot.APIURL); u != "" && !isHTTPURL(u) {
		add("bot.api_url: %q is not an http(s) url", u)
	}
	if c.Bot.ThreadID < 0 {
		add("bot.thread_id: must be >= 0")
	}

	if _, err := identity.NewExtractor(identity.Config{Pattern: c.Identity.Pattern, Source: c.Identity.Source}); err != nil {
		add("identity: %v", err)
	}

	if sel := strings.TrimSpace(c.Enrich.Selector); sel != "" {
		if _, err := cascadia.Compile(sel); err != nil {
			add("enrich.selector: %v", err)
		}
	}

	switch strings.TrimSpace(c.Delivery.ParseMode) {
	case "", "Markdown", "MarkdownV2", "HTML", "none":
	default:
		add("delivery.parse_mode: %q (want Markdown, MarkdownV2, HTML or none)", c.Delivery.ParseMode)
	}
	if c.Delivery.CaptionLimit < 0 || c.Delivery.CaptionLimit > 1024 {
		add("delivery.caption_limit: must be within 0..1024")
	}
	if c.Delivery.ImageMaxBytes < 0 {
		add("delivery.image_max_bytes: must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		add("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level: unknown level %q", c.Logging.Level)
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add("logging.file.path: required when logging.file.enabled")
	}
	if c.Logging.Chat.RatePerSec < 0 {
		add("logging.chat.rate_per_sec: must be >= 0")
	}

	if s := strings.TrimSpace(c.Daemon.Schedule); s != "" {
		if _, err := scheduler.ParseSchedule(s); err != nil {
			add("daemon.schedule: %v", err)
		}
	}
	if c.Daemon.Status.Enabled {
		if _, _, err := net.SplitHostPort(c.StatusAddr()); err != nil {
			add("daemon.status.addr: %v", err)
		}
	}

	if len(p) == 0 {
		return nil
	}
	return &ValidationError{Problems: p}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
