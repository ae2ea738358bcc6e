package config

import (
	"os"
	"strings"
)

// Environment overrides, applied after the config file.
const (
	EnvBotToken = "SAFEW_BOT_TOKEN"
	EnvChatID   = "SAFEW_CHAT_ID"
	EnvAPIURL   = "SAFEW_API_URL"
	EnvFeedURL  = "RSS_FEED_URL"
	EnvState    = "FEEDPUSH_STATE"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with any non-empty variables found by lookup.
// A nil lookup reads the process environment.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Bot.Token, EnvBotToken)
	set(&cfg.Bot.ChatID, EnvChatID)
	set(&cfg.Bot.APIURL, EnvAPIURL)
	set(&cfg.Feed.URL, EnvFeedURL)
	set(&cfg.Storage.Path, EnvState)
}
