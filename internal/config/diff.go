package config

import (
	logx "taskd/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured attrs for logging, and (3) the changed keys that only take
// effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)
	restart := make([]string, 0, 4)

	// Store and job limits are bound when the registry is opened.
	if oldCfg.Store != newCfg.Store {
		changed = append(changed, "store")
		restart = append(restart, "store")
		attrs = append(attrs,
			logx.String("store.driver", newCfg.Store.Driver),
			logx.String("store.path", newCfg.Store.Path),
			logx.Bool("store.lock", newCfg.Store.Lock),
		)
	}
	if oldCfg.Jobs != newCfg.Jobs {
		changed = append(changed, "jobs")
		restart = append(restart, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.max_jobs", newCfg.Jobs.MaxJobs),
			logx.Int("jobs.max_command_bytes", newCfg.Jobs.MaxCommandBytes),
			logx.String("jobs.timezone", newCfg.Jobs.Timezone),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.poll", newCfg.Scheduler.Poll))
		if oldCfg.Scheduler.Shell != newCfg.Scheduler.Shell {
			restart = append(restart, "scheduler.shell")
			attrs = append(attrs, logx.String("scheduler.shell", newCfg.Scheduler.Shell))
		}
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	return changed, attrs, restart
}
