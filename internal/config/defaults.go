package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"taskd/internal/job"
	"taskd/internal/registry"
	"taskd/internal/storage"
	"taskd/internal/task/engine"
	"taskd/internal/task/scheduler"
	logx "taskd/pkg/logx"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: DefaultDriver,
			Path:   storage.DefaultPath,
			Lock:   true,
		},
		Jobs: JobsConfig{
			MaxJobs:         registry.DefaultMaxJobs,
			MaxCommandBytes: job.DefaultMaxCommandBytes,
		},
		Scheduler: SchedulerConfig{
			Poll:  scheduler.DefaultPoll,
			Shell: engine.DefaultShell,
		},
		Logging: LoggingConfig{
			Level:   DefaultLogLevel,
			Console: true,
		},
	}
}

// normalize fills blank or non-positive fields back to their defaults.
func (c *Config) normalize() {
	def := Default()
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = def.Store.Driver
	}
	c.Store.Path = strings.TrimSpace(c.Store.Path)
	if c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}
	if c.Jobs.MaxJobs <= 0 {
		c.Jobs.MaxJobs = def.Jobs.MaxJobs
	}
	if c.Jobs.MaxCommandBytes <= 0 {
		c.Jobs.MaxCommandBytes = def.Jobs.MaxCommandBytes
	}
	c.Jobs.Timezone = strings.TrimSpace(c.Jobs.Timezone)
	c.Scheduler.Poll = strings.TrimSpace(c.Scheduler.Poll)
	if c.Scheduler.Poll == "" {
		c.Scheduler.Poll = def.Scheduler.Poll
	}
	c.Scheduler.Shell = strings.TrimSpace(c.Scheduler.Shell)
	if c.Scheduler.Shell == "" {
		c.Scheduler.Shell = def.Scheduler.Shell
	}
	c.Logging.Level = strings.TrimSpace(c.Logging.Level)
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	switch c.Store.Driver {
	case "file", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("store.driver: %w: %q", storage.ErrUnknownDriver, c.Store.Driver))
	}
	if _, err := ParseDurationField("store.busy_timeout", c.Store.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	loc, err := c.Location()
	if err != nil {
		errs = append(errs, err)
	}
	if spec, err := scheduler.ParseSchedule(c.Scheduler.Poll); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.poll: %w", err))
	} else if _, err := spec.Schedule(loc); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.poll: %w", err))
	}
	if !logx.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Location resolves jobs.timezone; empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Jobs.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("jobs.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) StorageConfig() (storage.Config, error) {
	busy, err := ParseDurationOrDefault("store.busy_timeout", c.Store.BusyTimeout, DefaultBusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      c.Store.Driver,
		Path:        c.Store.Path,
		Lock:        c.Store.Lock,
		BusyTimeout: busy,
	}, nil
}

func (c *Config) RegistryOptions() (registry.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return registry.Options{}, err
	}
	return registry.Options{
		MaxJobs:         c.Jobs.MaxJobs,
		MaxCommandBytes: c.Jobs.MaxCommandBytes,
		Location:        loc,
	}, nil
}

func (c *Config) SchedulerConfig() (scheduler.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Poll: c.Scheduler.Poll, Location: loc}, nil
}

func (c *Config) EngineConfig() engine.Config {
	return engine.Config{Shell: c.Scheduler.Shell}
}

func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}
