package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// durationField is one duration-valued config key and its raw value.
type durationField struct {
	key string
	raw string
}

func (c *Config) durationFields() []durationField {
	return []durationField{
		{"feed.timeout", c.Feed.Timeout},
		{"bot.timeout", c.Bot.Timeout},
		{"enrich.timeout", c.Enrich.Timeout},
		{"delivery.delay", c.Delivery.Delay},
		{"delivery.image_timeout", c.Delivery.ImageTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"daemon.run_timeout", c.Daemon.RunTimeout},
	}
}

// ParseDurationField parses the value of config key key. Empty is zero.
func ParseDurationField(key, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		if _, nerr := strconv.ParseFloat(s, 64); nerr == nil {
			return 0, fmt.Errorf("%s: %q has no unit, e.g. %q", key, raw, s+"s")
		}
		return 0, fmt.Errorf("%s: %q is not a duration like 30s or 1m30s", key, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: %q is negative", key, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def standing in for an
// empty or zero value.
func ParseDurationOrDefault(key, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(key, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
