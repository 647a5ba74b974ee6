// Package app wires the daemon together: config, logging, storage, the
// regimen registry and its supporting services.
package app

import (
	"context"
	"fmt"
	"time"

	"tendbot/internal/config"
	"tendbot/internal/dispatch"
	"tendbot/internal/eventbus"
	"tendbot/internal/janitor"
	"tendbot/internal/notify"
	"tendbot/internal/regimen"
	rtsup "tendbot/internal/runtime/supervisor"
	"tendbot/internal/storage"
	logx "tendbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	disp  *dispatch.Service
	notif *notify.Service
	jan   *janitor.Service
	reg   *regimen.Registry

	janCfg janitor.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	dispSvc := dispatch.New(dispatch.Config{
		Workers:   cfg.Dispatch.Workers,
		QueueSize: cfg.Dispatch.QueueSize,
	}, dispatch.NopRunner(log.With(logx.String("comp", "runner"))),
		log.With(logx.String("comp", "dispatch")), bus)

	ncfg := mapNotifyConfig(cfg)
	notifSvc, err := notify.New(ncfg, log.With(logx.String("comp", "notify")), bus)
	if err != nil {
		return nil, err
	}

	jcfg, err := mapJanitorConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		disp:    dispSvc,
		notif:   notifSvc,
		janCfg:  jcfg,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	a.disp.Start(a.sup.Context())
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}

	a.reg = regimen.NewRegistry(a.store, a.disp, a.bus, a.sup,
		a.log.With(logx.String("comp", "regimen")))

	regs, err := a.store.Regimens(a.sup.Context())
	if err != nil {
		return fmt.Errorf("load regimens: %w", err)
	}
	for _, r := range regs {
		a.reg.Ensure(r.ID)
	}
	a.log.Info("regimens scheduled", logx.Int("count", len(regs)))

	if a.janCfg.Enabled {
		// Prune in the device timezone so the daily boundary matches the
		// scheduler's.
		if tz, err := a.store.TimezoneSetting(a.sup.Context()); err == nil {
			a.janCfg.Timezone = tz
		}
		a.jan = janitor.New(a.janCfg, a.store, a.log.With(logx.String("comp", "janitor")))
		a.jan.Start(a.sup.Context())
	}

	a.sup.Go0("eventbus.log", a.logEvents)

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.jan != nil {
		a.jan.Stop(ctx)
	}
	a.notif.Stop(ctx)
	a.disp.Stop(ctx)
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			// Debug-level: regimen fires can be frequent.
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})
			// Storage, dispatch and notify are bound at startup.
			a.log.Info("config reloaded; logging applied (other sections require restart)")
		}
	}
}

func validate(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if cfg.Dispatch.Workers < 0 {
		return fmt.Errorf("dispatch.workers must be >= 0")
	}
	if cfg.Dispatch.QueueSize < 0 {
		return fmt.Errorf("dispatch.queue_size must be >= 0")
	}
	if n := cfg.Notify; n != nil && n.Enabled {
		if n.Token == "" {
			return fmt.Errorf("notify.token is required when notify.enabled is true")
		}
		if n.ChatID == 0 {
			return fmt.Errorf("notify.chat_id is required when notify.enabled is true")
		}
	}
	if _, err := mapJanitorConfig(cfg); err != nil {
		return err
	}
	return nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapNotifyConfig(cfg *config.Config) notify.Config {
	n := cfg.Notify
	if n == nil {
		return notify.Config{}
	}
	return notify.Config{
		Enabled:    n.Enabled,
		Token:      n.Token,
		ChatID:     n.ChatID,
		RatePerSec: n.RatePerSec,
		QueueSize:  n.QueueSize,
	}
}

func mapJanitorConfig(cfg *config.Config) (janitor.Config, error) {
	j := cfg.Janitor
	if j == nil {
		return janitor.Config{}, nil
	}
	retention, err := config.ParseDurationOrDefault("janitor.retention", j.Retention, 30*24*time.Hour)
	if err != nil {
		return janitor.Config{}, err
	}
	return janitor.Config{
		Enabled:   j.Enabled,
		Retention: retention,
	}, nil
}
