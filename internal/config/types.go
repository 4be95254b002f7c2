package config

import "time"

// Config is the optional on-disk configuration for taskd.
//
// Every section may be omitted; Default() supplies the values used when no
// file is given. Durations are Go duration strings ("250ms", "5s").
type Config struct {
	Store     StoreConfig     `json:"store"`
	Jobs      JobsConfig      `json:"jobs"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
}

// StoreConfig selects the job storage backend.
//
// Defaults:
//   - driver: "file"
//   - path: "jobs.txt"
//   - lock: true
//   - busy_timeout: "5s" (sqlite only)
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	Lock        bool   `json:"lock"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type JobsConfig struct {
	MaxJobs         int `json:"max_jobs"`
	MaxCommandBytes int `json:"max_command_bytes"`
	// Timezone is an IANA name used to read and print due times.
	// Empty means the host's local zone.
	Timezone string `json:"timezone,omitempty"`
}

type SchedulerConfig struct {
	// Poll is a Go duration, an "HH:MM" interval or a cron expression.
	Poll  string `json:"poll"`
	Shell string `json:"shell"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

const (
	DefaultDriver      = "file"
	DefaultLogLevel    = "warn"
	DefaultBusyTimeout = 5 * time.Second
)
