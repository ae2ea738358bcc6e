package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseYAMLWithEnvOverrides(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "feedpush.yaml", `
feed:
  url: https://bbs.example.com/rss.xml
  max_per_run: 3
bot:
  token: from-file
  chat_id: "-100200"
delivery:
  delay: 2s
  escape_chars: "_*"
storage:
  driver: sqlite
  path: ./state.db
daemon:
  schedule: "*/10 * * * *"
`)
	m := NewConfigManager(path)
	m.SetLookup(envMap(map[string]string{
		EnvBotToken: " from-env ",
		EnvFeedURL:  "",
	}))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.Token != "from-env" {
		t.Fatalf("token = %q, want env override", cfg.Bot.Token)
	}
	if cfg.Feed.URL != "https://bbs.example.com/rss.xml" {
		t.Fatalf("empty env var must not override: %q", cfg.Feed.URL)
	}
	if cfg.Bot.ChatID != "-100200" || cfg.Feed.MaxPerRun != 3 || cfg.Delivery.EscapeChars != "_*" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.StatePath() != "./state.db" || cfg.Schedule() != "*/10 * * * *" {
		t.Fatalf("storage/daemon = %+v %+v", cfg.Storage, cfg.Daemon)
	}
	if m.Get() != cfg {
		t.Fatal("Load must commit the config")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "feedpush.json", `{"feed":{"url":"https://x.example/rss"},"enrich":{"enabled":false}}`)
	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Enrich.IsEnabled() {
		t.Fatal("enrich.enabled=false ignored")
	}
}

func TestEnvOnly(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("")
	m.SetLookup(envMap(map[string]string{
		EnvBotToken: "t",
		EnvChatID:   "@chan",
		EnvFeedURL:  "https://x.example/rss",
		EnvState:    "/var/lib/feedpush/last_tid.json",
	}))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Bot.Token != "t" || cfg.Bot.ChatID != "@chan" || cfg.Feed.URL != "https://x.example/rss" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.StatePath() != "/var/lib/feedpush/last_tid.json" {
		t.Fatalf("state path = %q", cfg.StatePath())
	}
	if !cfg.Enrich.IsEnabled() || cfg.ParseMode() != "Markdown" || cfg.Schedule() != DefaultSchedule {
		t.Fatal("defaults not applied")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "feedpush.yaml", "feed:\n  url: https://x.example/rss\n  colour: red\n")
	if _, err := NewConfigManager(path).Parse(); err == nil || !strings.Contains(err.Error(), "colour") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "feedpush.json", `{"feed":{}} {"feed":{}}`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	_, err := NewConfigManager(filepath.Join(t.TempDir(), "nope.yaml")).Parse()
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not exist", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Feed:     FeedConfig{URL: "ftp://x", Timeout: "soon"},
		Identity: IdentityConfig{Pattern: `(\d+)-(\d+)`},
		Enrich:   EnrichConfig{Selector: "td[[["},
		Delivery: DeliveryConfig{ParseMode: "BBCode", CaptionLimit: 5000},
		Storage:  StorageConfig{Driver: "redis"},
		Logging:  LoggingConfig{Level: "loud", File: LoggingFile{Enabled: true}},
		Daemon:   DaemonConfig{Schedule: "whenever", Status: StatusConfig{Enabled: true, Addr: "nope"}},
	}
	err := cfg.Validate()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	for _, key := range []string{
		"feed.url", "feed.timeout", "identity", "enrich.selector", "delivery.parse_mode",
		"delivery.caption_limit", "storage.driver", "logging.level", "logging.file.path",
		"daemon.schedule", "daemon.status.addr",
	} {
		found := slices.ContainsFunc(ve.Problems, func(p string) bool { return strings.HasPrefix(p, key) })
		if !found {
			t.Errorf("missing problem for %s in %v", key, ve.Problems)
		}
	}
}

func TestValidateEmptyConfigIsValid(t *testing.T) {
	t.Parallel()
	if err := (&Config{}).Validate(); err != nil {
		t.Fatalf("empty config: %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("d=%v err=%v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "250ms", 3*time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("d=%v err=%v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "-1s", 0); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestParseDurationFieldErrorsNameTheKey(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want string
	}{
		{"15", `delivery.delay: "15" has no unit, e.g. "15s"`},
		{"soon", `delivery.delay: "soon" is not a duration like 30s or 1m30s`},
		{"-2s", `delivery.delay: "-2s" is negative`},
	}
	for _, tc := range cases {
		_, err := ParseDurationField("delivery.delay", tc.raw)
		if err == nil || err.Error() != tc.want {
			t.Errorf("ParseDurationField(%q) = %v, want %q", tc.raw, err, tc.want)
		}
	}
}

func TestParseYAMLErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, body, want string
	}{
		{"bare number duration", "delivery:\n  delay: 3\n", "delivery.delay: got a bare number"},
		{"wrong type", "feed:\n  max_per_run: lots\n", "feed.max_per_run: got string"},
		{"two documents", "feed:\n  url: https://a.example/rss\n---\nfeed:\n  url: https://b.example/rss\n", "more than one YAML document"},
		{"unknown key", "feeds:\n  url: x\n", "unknown field"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, "feedpush.yaml", tc.body))
			m.SetLookup(envMap(nil))
			_, err := m.Parse()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want it to contain %q", err, tc.want)
			}
		})
	}
}

func TestParseConfigFormats(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"feedpush.json": `{"feed": {"url": "https://bbs.example.com/rss.xml"}}`,
		"feedpush.conf": "feed:\n  url: https://bbs.example.com/rss.xml\n",
		"empty.yaml":    "",
	}
	for name, body := range cases {
		name, body := name, body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, name, body))
			m.SetLookup(envMap(nil))
			cfg, err := m.Parse()
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if body != "" && cfg.Feed.URL != "https://bbs.example.com/rss.xml" {
				t.Fatalf("feed.url = %q", cfg.Feed.URL)
			}
		})
	}
}

func TestSummarizeConfigChangeHidesToken(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Bot: BotConfig{Token: "secret-1", ChatID: "1"}, Daemon: DaemonConfig{Schedule: "5m"}}
	newCfg := &Config{Bot: BotConfig{Token: "secret-2", ChatID: "1"}, Daemon: DaemonConfig{Schedule: "10m"}}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if !slices.Equal(changed, []string{"bot", "daemon"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if oldCfg.Bot.Token != "secret-1" {
		t.Fatal("summary mutated the input")
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	path := writeFile(t, "feedpush.yaml", "daemon:\n  schedule: 5m\n")
	m := NewConfigManager(path)
	m.SetLookup(envMap(nil))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	// Let the watcher register before writing.
	time.Sleep(100 * time.Millisecond)

	// Invalid content is never published.
	if err := os.WriteFile(path, []byte("daemon:\n  schedule: whenever\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-sub:
		t.Fatalf("published invalid config: %+v", cfg.Daemon)
	case <-time.After(600 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte("daemon:\n  schedule: 10m\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-sub:
		if cfg.Daemon.Schedule != "10m" {
			t.Fatalf("schedule = %q", cfg.Daemon.Schedule)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("config change not published")
	}
	if m.Get().Daemon.Schedule != "10m" {
		t.Fatal("change not committed")
	}

	cancel()
	<-done
}
