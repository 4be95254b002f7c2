package app

import (
	"context"
	"strings"
	"time"

	"taskd/internal/config"
	"taskd/internal/task/scheduler"
	logx "taskd/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config, sched *scheduler.Service) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(lastApplied, newCfg, sched)
			lastApplied = newCfg
		}
	}
}

// applyConfig applies the live sections of next: logging and the poll
// schedule. Storage, job limits and the shell stay as opened.
func (a *App) applyConfig(prev, next *config.Config, sched *scheduler.Service) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	a.logs.Apply(next.LogConfig())

	if sc, err := next.SchedulerConfig(); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else if err := sched.Apply(sc); err != nil {
		a.log.Warn("poll schedule rejected; keeping previous", logx.Err(err))
	}

	if len(restart) > 0 {
		a.log.Warn("config changes require restart", logx.String("keys", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// checkReload rejects a config whose poll schedule cannot drive the loop, so
// the committed config never names a schedule the scheduler refused.
func (a *App) checkReload(_ context.Context, cfg *config.Config) error {
	sc, err := cfg.SchedulerConfig()
	if err != nil {
		return err
	}
	_, err = scheduler.Resolve(sc, time.Now())
	return err
}
