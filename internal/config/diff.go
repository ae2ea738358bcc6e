package config

import (
	"reflect"
	"sort"
	"strings"

	logx "feedpush/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. Secrets (bot token) are only reported as
// "changed", never by value.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Feed, newCfg.Feed) {
		changed = append(changed, "feed")
		attrs = append(attrs,
			logx.String("feed.url", newCfg.Feed.URL),
			logx.Int("feed.max_per_run", newCfg.Feed.MaxPerRun),
		)
	}

	ob, nb := oldCfg.Bot, newCfg.Bot
	tokenChanged := strings.TrimSpace(ob.Token) != strings.TrimSpace(nb.Token)
	ob.Token, nb.Token = "", ""
	if tokenChanged || !reflect.DeepEqual(ob, nb) {
		changed = append(changed, "bot")
		attrs = append(attrs,
			logx.String("bot.api_url", nb.APIURL),
			logx.String("bot.chat_id", nb.ChatID),
			logx.Bool("bot.token_changed", tokenChanged),
		)
	}

	if !reflect.DeepEqual(oldCfg.Identity, newCfg.Identity) {
		changed = append(changed, "identity")
		attrs = append(attrs, logx.String("identity.pattern", newCfg.Identity.Pattern), logx.String("identity.source", newCfg.Identity.Source))
	}

	if !reflect.DeepEqual(oldCfg.Enrich, newCfg.Enrich) {
		changed = append(changed, "enrich")
		attrs = append(attrs, logx.Bool("enrich.enabled", newCfg.Enrich.IsEnabled()), logx.String("enrich.selector", newCfg.Enrich.Selector))
	}

	if !reflect.DeepEqual(oldCfg.Delivery, newCfg.Delivery) {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.String("delivery.parse_mode", newCfg.ParseMode()),
			logx.String("delivery.delay", newCfg.Delivery.Delay),
			logx.Bool("delivery.follow_up_caption", newCfg.Delivery.FollowUpCaption),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver), logx.String("storage.path", newCfg.StatePath()))
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Daemon, newCfg.Daemon) {
		changed = append(changed, "daemon")
		attrs = append(attrs,
			logx.String("daemon.schedule", newCfg.Schedule()),
			logx.String("daemon.timezone", newCfg.Daemon.Timezone),
			logx.Bool("daemon.status_enabled", newCfg.Daemon.Status.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
