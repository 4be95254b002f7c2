package scheduler

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"taskd/internal/job"
	"taskd/internal/task/engine"
	logx "taskd/pkg/logx"
)

// Config controls the poll loop.
type Config struct {
	// Poll is a schedule string accepted by ParseSchedule ("10s" by default).
	Poll string
	// Location evaluates cron polls; nil means time.Local.
	Location *time.Location
}

// Registry is the slice of the job registry the loop needs.
type Registry interface {
	Load(ctx context.Context) ([]job.Job, error)
	MarkExecuted(ctx context.Context, id int) error
}

// Executor runs one command to completion.
type Executor interface {
	Run(ctx context.Context, command string) (engine.Result, error)
}

// Notifier receives service-manager lifecycle events. All methods are
// best-effort.
type Notifier interface {
	Ready()
	Watchdog()
	Stopping()
	Status(msg string)
}

type Service struct {
	mu    sync.Mutex
	cfg   Config
	sched cron.Schedule

	log      logx.Logger
	reg      Registry
	exec     Executor
	notifier Notifier
	out      io.Writer
	now      func() time.Time

	// wake interrupts the idle wait when Apply swaps the schedule.
	wake chan struct{}

	// dispatched holds jobs run by this process whose executed flag is not yet
	// visible in storage, so a failed persist never leads to a second run.
	// Entries are keyed by id and matched on command and due time, since a
	// replaced store may hand the same id to a different job.
	dispatched map[int]job.Job

	persistWarn rate.Sometimes
}

// TickReport summarizes one scan.
type TickReport struct {
	Loaded     int
	Due        int
	Dispatched int
	Failed     int
	Took       time.Duration
}
