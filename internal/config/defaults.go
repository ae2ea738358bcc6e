package config

import (
	"strings"
	"time"
)

const (
	DefaultStatePath  = "last_tid.json"
	DefaultSchedule   = "5m"
	DefaultRunTimeout = 10 * time.Minute
	DefaultStatusAddr = "127.0.0.1:8089"
	DefaultBotTimeout = 30 * time.Second
)

// StatePath is where the watermark lives; relative to the working directory.
func (c *Config) StatePath() string {
	if p := strings.TrimSpace(c.Storage.Path); p != "" {
		return p
	}
	return DefaultStatePath
}

func (c *Config) Schedule() string {
	if s := strings.TrimSpace(c.Daemon.Schedule); s != "" {
		return s
	}
	return DefaultSchedule
}

func (c *Config) StatusAddr() string {
	if a := strings.TrimSpace(c.Daemon.Status.Addr); a != "" {
		return a
	}
	return DefaultStatusAddr
}

// ParseMode maps the configured mode to the bot API value; "none" is plain text.
func (c *Config) ParseMode() string {
	switch m := strings.TrimSpace(c.Delivery.ParseMode); m {
	case "":
		return "Markdown"
	case "none":
		return ""
	default:
		return m
	}
}
