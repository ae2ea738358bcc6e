// Package app assembles feedpush from its configuration and runs it either
// once or as a scheduled daemon.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"

	"feedpush/internal/config"
	"feedpush/internal/pipeline"
	"feedpush/internal/storage"
	"feedpush/internal/transport/telegram/adapter"
	logx "feedpush/pkg/logx"
)

type Options struct {
	ConfigPath string
	// LogLevel overrides logging.level when set.
	LogLevel string
	// Lookup replaces os.LookupEnv (tests).
	Lookup config.LookupFunc
}

type App struct {
	opts Options
	cfgm *config.ConfigManager

	logs *logx.Service
	log  logx.Logger

	store storage.Store

	mu    sync.RWMutex
	coord *pipeline.Coordinator

	lastMu  sync.Mutex
	lastRun *pipeline.Report
}

// New loads the configuration, starts logging and opens the store. Nothing
// touches the network until a run starts.
func New(opts Options) (*App, error) {
	cfgm := config.NewConfigManager(opts.ConfigPath)
	if opts.Lookup != nil {
		cfgm.SetLookup(opts.Lookup)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(mapLogConfig(cfg, opts.LogLevel))
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))
	if err := attachChatSink(logs, cfg); err != nil {
		log.Warn("chat log sink disabled", logx.Err(err))
	}

	store, err := storage.Open(mapStorageConfig(cfg), root)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	coord, err := buildCoordinator(cfg, store, root)
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}

	return &App{
		opts:  opts,
		cfgm:  cfgm,
		logs:  logs,
		log:   log,
		store: store,
		coord: coord,
	}, nil
}

// attachChatSink gives the log service its own bot client. It logs nowhere,
// so a failing chat cannot feed its own errors back into the sink.
func attachChatSink(logs *logx.Service, cfg *config.Config) error {
	if !cfg.Logging.Chat.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Bot.Token) == "" {
		return errors.New("bot token not set")
	}
	sender, err := adapter.New(mapAdapterConfig(cfg), logx.Nop())
	if err != nil {
		return err
	}
	logs.SetChatSender(sender)
	return nil
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Store() storage.Store { return a.store }

func (a *App) Config() *config.Config { return a.cfgm.Get() }

func (a *App) coordinator() *pipeline.Coordinator {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.coord
}

// RunOnce performs one poll with the current configuration.
func (a *App) RunOnce(ctx context.Context) pipeline.Report {
	rep := a.coordinator().RunOnce(ctx)
	a.lastMu.Lock()
	a.lastRun = &rep
	a.lastMu.Unlock()
	return rep
}

// LastRun returns the report of the most recent run, if any.
func (a *App) LastRun() (pipeline.Report, bool) {
	a.lastMu.Lock()
	defer a.lastMu.Unlock()
	if a.lastRun == nil {
		return pipeline.Report{}, false
	}
	return *a.lastRun, true
}

// Close releases the store and flushes logs.
func (a *App) Close() error {
	err := a.store.Close()
	_ = a.logs.Close()
	return err
}
