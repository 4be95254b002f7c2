package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"taskd/internal/config"
	"taskd/internal/registry"
	"taskd/internal/runtime/supervisor"
	"taskd/internal/storage"
	"taskd/internal/task/engine"
	"taskd/internal/task/scheduler"
	logx "taskd/pkg/logx"
	"taskd/pkg/systemd"
)

// App wires config, logging and storage for one invocation of taskd.
type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service

	store storage.Backend
	reg   *registry.Registry

	out io.Writer
}

// New loads the config at cfgPath (empty means built-in defaults) and opens
// the job store. Operator output goes to out (os.Stdout when nil).
func New(cfgPath string, out io.Writer) (*App, error) {
	if out == nil {
		out = os.Stdout
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(cfg.LogConfig())
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	sc, err := cfg.StorageConfig()
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	opts, err := cfg.RegistryOptions()
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	reg := registry.New(store, opts, log.With(logx.String("comp", "registry")))

	log.Debug("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	return &App{
		cfgm:  cfgm,
		cfg:   cfg,
		log:   log,
		logs:  logs,
		store: store,
		reg:   reg,
		out:   out,
	}, nil
}

func (a *App) Registry() *registry.Registry { return a.reg }

func (a *App) Config() *config.Config { return a.cfg }

// Run drives the scheduler loop until ctx is cancelled. When a config file
// is in use it is watched and live settings are applied on change.
func (a *App) Run(ctx context.Context, opts ...scheduler.Option) error {
	schedCfg, err := a.cfg.SchedulerConfig()
	if err != nil {
		return err
	}
	eng := engine.New(a.cfg.EngineConfig(), a.log.With(logx.String("comp", "engine")))

	base := []scheduler.Option{
		scheduler.WithOutput(a.out),
		scheduler.WithNotifier(systemd.New(a.log.With(logx.String("comp", "systemd")))),
	}
	sched, err := scheduler.New(schedCfg, a.reg, eng, a.log.With(logx.String("comp", "scheduler")), append(base, opts...)...)
	if err != nil {
		return err
	}

	sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	sup.Go("scheduler", sched.Run)

	if a.cfgm.Path() != "" {
		a.cfgm.SetValidator(a.checkReload)
		sub := a.cfgm.Subscribe(8)
		sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub, sched)
		})
		sup.Go("config.watch", a.cfgm.Watch)
	}

	a.log.Debug("app started", logx.Bool("watch_config", a.cfgm.Path() != ""))
	// In-flight jobs are never cancelled, so wait without a deadline.
	err = sup.Wait(context.Background())
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.log.Debug("app stopped", logx.Int("goroutines", int(sup.Counters().Started)))
	return err
}

// Close releases the store and log outputs.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
