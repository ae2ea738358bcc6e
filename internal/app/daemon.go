package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"feedpush/internal/config"
	"feedpush/internal/identity"
	"feedpush/internal/observability/status"
	"feedpush/internal/pipeline"
	"feedpush/internal/runtime/supervisor"
	"feedpush/internal/storage"
	"feedpush/internal/task/scheduler"
	logx "feedpush/pkg/logx"
	"feedpush/pkg/systemd"
)

const recentInStatus = 10

// Notifier is the systemd notify surface the daemon uses.
type Notifier interface {
	Ready() (bool, error)
	Reloading() (bool, error)
	Stopping() (bool, error)
	Status(string) (bool, error)
	RunWatchdog(ctx context.Context)
}

// RunView is a Report with its error flattened for JSON.
type RunView struct {
	pipeline.Report
	Error string `json:"error,omitempty"`
}

// StatusDoc is served on GET /status.
type StatusDoc struct {
	Watermark  identity.ID                 `json:"watermark"`
	LastRun    *RunView                    `json:"last_run,omitempty"`
	Schedule   scheduler.Snapshot          `json:"schedule"`
	Goroutines []supervisor.GoroutineStats `json:"goroutines"`
	Recent     []storage.DeliveryEntry     `json:"recent"`
}

type daemon struct {
	app    *App
	log    logx.Logger
	notify Notifier
	sup    *supervisor.Supervisor
	sched  *scheduler.Scheduler

	// owned by the reload loop after start
	statusSrv  *status.Server
	statusAddr string
	applied    *config.Config
}

// RunDaemon polls on the configured schedule until ctx is canceled or a
// supervised goroutine fails. A run is triggered immediately on start.
// The config file is watched and valid changes are applied live.
func (a *App) RunDaemon(ctx context.Context) error {
	return a.runDaemon(ctx, systemd.NewNotifier())
}

func (a *App) runDaemon(ctx context.Context, notify Notifier) error {
	d := &daemon{
		app:     a,
		log:     a.log.With(logx.String("comp", "daemon")),
		notify:  notify,
		sup:     supervisor.New(ctx, supervisor.WithLogger(a.logs.Logger()), supervisor.WithCancelOnError(true)),
		applied: a.cfgm.Get(),
	}

	sched, err := scheduler.New(schedulerConfig(d.applied), d.job, a.logs.Logger())
	if err != nil {
		return err
	}
	d.sched = sched

	// Reject reloads the scheduler could not apply (bad timezone) before
	// they are committed.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := scheduler.New(schedulerConfig(cfg), d.job, logx.Nop())
		return err
	})

	if err := d.start(); err != nil {
		d.shutdown()
		return err
	}

	<-d.sup.Context().Done()
	d.shutdown()
	if err := d.sup.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Schedule: cfg.Schedule(),
		Timezone: cfg.Daemon.Timezone,
		Timeout:  dur("daemon.run_timeout", cfg.Daemon.RunTimeout, config.DefaultRunTimeout),
	}
}

func (d *daemon) job(ctx context.Context) error {
	rep := d.app.RunOnce(ctx)
	if rep.Err == nil {
		_, _ = d.notify.Status(fmt.Sprintf("last run: %d delivered, %d failed, watermark %s", rep.Delivered, rep.Failed, rep.Watermark))
	}
	return rep.Err
}

func (d *daemon) start() error {
	ctx := d.sup.Context()
	if err := d.sched.Start(ctx); err != nil {
		return err
	}
	if err := d.applyStatus(ctx, d.applied); err != nil {
		return err
	}

	sub := d.app.cfgm.Subscribe(8)
	d.sup.Go0("config.reload", func(c context.Context) {
		defer d.app.cfgm.Unsubscribe(sub)
		d.reloadLoop(c, sub)
	})
	d.sup.Go("config.watch", func(c context.Context) error {
		return d.app.cfgm.Watch(c)
	})
	d.sup.Go0("systemd.watchdog", d.notify.RunWatchdog)

	d.sched.Trigger()
	if _, err := d.notify.Ready(); err != nil {
		d.log.Warn("systemd notify failed", logx.Err(err))
	}
	snap := d.sched.Snapshot()
	d.log.Info("daemon started", logx.String("schedule", snap.Spec), logx.Time("next", snap.Next))
	return nil
}

func (d *daemon) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config is applied.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			if cfg != nil {
				d.apply(ctx, cfg)
			}
		}
	}
}

// apply brings the running daemon in line with cfg. Storage settings are
// the exception: the store stays open and a restart is required.
func (d *daemon) apply(ctx context.Context, cfg *config.Config) {
	_, _ = d.notify.Reloading()
	defer func() { _, _ = d.notify.Ready() }()

	sections, fields := config.SummarizeConfigChange(d.applied, cfg)
	if len(sections) == 0 {
		d.log.Debug("config reload received, but no effective changes detected")
		return
	}
	d.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)

	a := d.app
	a.logs.Apply(mapLogConfig(cfg, a.opts.LogLevel))
	if err := attachChatSink(a.logs, cfg); err != nil {
		d.log.Warn("chat log sink disabled", logx.Err(err))
	}

	if !reflect.DeepEqual(mapStorageConfig(d.applied), mapStorageConfig(cfg)) {
		d.log.Warn("storage settings changed; restart required to apply them",
			logx.String("path", cfg.StatePath()), logx.String("driver", cfg.Storage.Driver))
	}

	coord, err := buildCoordinator(cfg, a.store, a.logs.Logger())
	if err != nil {
		d.log.Error("config reload: pipeline rebuild failed; keeping previous", logx.Err(err))
	} else {
		a.mu.Lock()
		a.coord = coord
		a.mu.Unlock()
	}

	if err := d.sched.Reschedule(schedulerConfig(cfg)); err != nil {
		d.log.Error("config reload: schedule rejected; keeping previous", logx.Err(err))
	}
	if err := d.applyStatus(ctx, cfg); err != nil {
		d.log.Error("config reload: status server", logx.Err(err))
	}

	d.applied = cfg
	d.log.Info("config applied", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
}

// applyStatus starts, stops or moves the status server to match cfg.
func (d *daemon) applyStatus(ctx context.Context, cfg *config.Config) error {
	want := cfg.Daemon.Status.Enabled
	addr := cfg.StatusAddr()
	if d.statusSrv != nil && (!want || addr != d.statusAddr) {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		err := d.statusSrv.Stop(stopCtx)
		cancel()
		if err != nil {
			d.log.Warn("status server stop", logx.Err(err))
		}
		d.statusSrv, d.statusAddr = nil, ""
	}
	if !want || d.statusSrv != nil {
		return nil
	}
	srv := status.New(status.Config{Addr: addr}, d.statusDoc, d.app.logs.Logger())
	if err := srv.Start(ctx); err != nil {
		return err
	}
	d.statusSrv, d.statusAddr = srv, addr
	return nil
}

func (d *daemon) statusDoc() any {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	doc := StatusDoc{
		Schedule:   d.sched.Snapshot(),
		Goroutines: d.sup.Snapshot(),
	}
	if rec, err := d.app.store.Load(ctx); err == nil {
		doc.Watermark = rec.Watermark
	}
	if rep, ok := d.app.LastRun(); ok {
		v := &RunView{Report: rep}
		if rep.Err != nil {
			v.Error = rep.Err.Error()
		}
		doc.LastRun = v
	}
	if recent, err := d.app.store.RecentDeliveries(ctx, recentInStatus); err == nil {
		doc.Recent = recent
	}
	return doc
}

func (d *daemon) shutdown() {
	_, _ = d.notify.Stopping()
	d.log.Info("stopping")
	d.sup.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.sched != nil {
		d.sched.Stop(ctx)
	}
	// The reload loop owns the status server until it has exited.
	if err := d.sup.Wait(ctx); errors.Is(err, context.DeadlineExceeded) {
		d.log.Warn("supervised goroutines did not stop in time", logx.Err(err))
	}
	if d.statusSrv != nil {
		if err := d.statusSrv.Stop(ctx); err != nil {
			d.log.Warn("status server stop", logx.Err(err))
		}
	}
	d.log.Info("stopped")
}
