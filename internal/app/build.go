package app

import (
	"strings"
	"time"

	"feedpush/internal/config"
	"feedpush/internal/delivery"
	"feedpush/internal/enrich"
	"feedpush/internal/feed"
	"feedpush/internal/fetch"
	"feedpush/internal/identity"
	"feedpush/internal/pipeline"
	"feedpush/internal/storage"
	"feedpush/internal/transport/telegram/adapter"
	logx "feedpush/pkg/logx"
)

// Durations were checked by config.Validate, so parse errors cannot occur
// here; the helpers still fall back to defaults for empty values.
func dur(path, raw string, def time.Duration) time.Duration {
	d, err := config.ParseDurationOrDefault(path, raw, def)
	if err != nil {
		return def
	}
	return d
}

// deliveryDelay maps an explicit "0s" to no pacing; empty keeps the default.
func deliveryDelay(raw string) time.Duration {
	if strings.TrimSpace(raw) == "" {
		return delivery.DefaultDelay
	}
	d, err := config.ParseDurationField("delivery.delay", raw)
	if err != nil {
		return delivery.DefaultDelay
	}
	if d == 0 {
		return -1
	}
	return d
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.StatePath(),
		Key:         strings.TrimSpace(cfg.Feed.URL),
		BusyTimeout: dur("storage.busy_timeout", cfg.Storage.BusyTimeout, 0),
	}
}

func mapLogConfig(cfg *config.Config, levelOverride string) logx.Config {
	level := cfg.Logging.Level
	if strings.TrimSpace(levelOverride) != "" {
		level = levelOverride
	}
	chatID := strings.TrimSpace(cfg.Logging.Chat.ChatID)
	if chatID == "" {
		chatID = strings.TrimSpace(cfg.Bot.ChatID)
	}
	return logx.Config{
		Level:   level,
		Console: cfg.Logging.Console || !cfg.Logging.File.Enabled,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			ChatID:     chatID,
			ThreadID:   cfg.Logging.Chat.ThreadID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapAdapterConfig(cfg *config.Config) adapter.Config {
	return adapter.Config{
		APIURL:  cfg.Bot.APIURL,
		Token:   cfg.Bot.Token,
		Timeout: dur("bot.timeout", cfg.Bot.Timeout, config.DefaultBotTimeout),
	}
}

// pageClientConfig is shared by thread pages and images so forum cookies
// carry over to image hotlinks. Requests can only shorten the client
// timeout, so the ceiling is the longer of the two.
func pageClientConfig(cfg *config.Config) fetch.Config {
	return fetch.Config{
		Timeout: max(
			dur("enrich.timeout", cfg.Enrich.Timeout, enrich.DefaultTimeout),
			dur("delivery.image_timeout", cfg.Delivery.ImageTimeout, delivery.DefaultImageTimeout),
		),
		Cookies: cfg.Enrich.Cookies,
	}
}

// buildCoordinator wires one run coordinator from cfg. It makes no network
// calls; the bot adapter starts offline.
func buildCoordinator(cfg *config.Config, store storage.Store, log logx.Logger) (*pipeline.Coordinator, error) {
	ids, err := identity.NewExtractor(identity.Config{Pattern: cfg.Identity.Pattern, Source: cfg.Identity.Source})
	if err != nil {
		return nil, err
	}

	feedTimeout := dur("feed.timeout", cfg.Feed.Timeout, fetch.DefaultTimeout)
	feedClient := fetch.New(fetch.Config{Timeout: feedTimeout})
	pageTimeout := dur("enrich.timeout", cfg.Enrich.Timeout, enrich.DefaultTimeout)
	imageTimeout := dur("delivery.image_timeout", cfg.Delivery.ImageTimeout, delivery.DefaultImageTimeout)
	pageClient := fetch.New(pageClientConfig(cfg))

	norm := feed.NewNormalizer(feed.Config{
		URL:       strings.TrimSpace(cfg.Feed.URL),
		UserAgent: cfg.Feed.UserAgent,
		Timeout:   feedTimeout,
		MaxBytes:  cfg.Feed.MaxBytes,
	}, feedClient, ids, log)

	enr := enrich.New(enrich.Config{
		Enabled:   cfg.Enrich.IsEnabled(),
		Selector:  cfg.Enrich.Selector,
		LazyAttrs: cfg.Enrich.LazyAttrs,
		UserAgent: cfg.Enrich.UserAgent,
		Timeout:   pageTimeout,
		MaxBytes:  cfg.Enrich.MaxBytes,
	}, pageClient, log)

	bot, err := adapter.New(mapAdapterConfig(cfg), log)
	if err != nil {
		return nil, err
	}
	eng := delivery.New(delivery.Config{
		ChatID:          strings.TrimSpace(cfg.Bot.ChatID),
		ThreadID:        cfg.Bot.ThreadID,
		Delay:           deliveryDelay(cfg.Delivery.Delay),
		ParseMode:       cfg.ParseMode(),
		EscapeChars:     cfg.Delivery.EscapeChars,
		Footer:          cfg.Delivery.Footer,
		CaptionLimit:    cfg.Delivery.CaptionLimit,
		ImageMaxBytes:   cfg.Delivery.ImageMaxBytes,
		ImageTimeout:    imageTimeout,
		FollowUpCaption: cfg.Delivery.FollowUpCaption,
	}, bot, pageClient, log)

	return pipeline.New(pipeline.Config{
		Token:     cfg.Bot.Token,
		ChatID:    cfg.Bot.ChatID,
		FeedURL:   cfg.Feed.URL,
		MaxPerRun: cfg.Feed.MaxPerRun,
	}, pipeline.Deps{
		Store:      store,
		Normalizer: norm,
		Enricher:   enr,
		Deliverer:  eng,
		Log:        log,
	}), nil
}
