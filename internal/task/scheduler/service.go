package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"taskd/internal/job"
	"taskd/internal/registry"
	"taskd/internal/task/engine"
	logx "taskd/pkg/logx"
)

const (
	// persistTimeout bounds the mark-executed write once a job has run,
	// including waiting for the store lock.
	persistTimeout = 30 * time.Second

	persistWarnEvery = time.Minute

	Banner = "daemon: starting task runner"
)

var ErrNeverFires = errors.New("poll schedule never fires")

type Option func(*Service)

// WithOutput sets the operator stream (banner and "running" lines).
func WithOutput(w io.Writer) Option { return func(s *Service) { s.out = w } }

// WithNotifier installs a service-manager notifier.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(cfg Config, reg Registry, exec Executor, log logx.Logger, opts ...Option) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:         log,
		reg:         reg,
		exec:        exec,
		out:         os.Stdout,
		now:         time.Now,
		wake:        make(chan struct{}, 1),
		dispatched:  map[int]job.Job{},
		persistWarn: rate.Sometimes{First: 1, Interval: persistWarnEvery},
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.Apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply swaps the poll schedule. A running loop picks it up immediately.
func (s *Service) Apply(cfg Config) error {
	if cfg.Poll == "" {
		cfg.Poll = DefaultPoll
	}
	sched, err := Resolve(cfg, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.cfg.Poll
	s.cfg = cfg
	s.sched = sched
	s.mu.Unlock()

	if prev != "" && prev != cfg.Poll {
		s.log.Info("poll schedule changed", logx.String("from", prev), logx.String("to", cfg.Poll))
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Resolve builds the poll schedule for cfg and checks that it still fires
// after now.
func Resolve(cfg Config, now time.Time) (cron.Schedule, error) {
	ps, err := ParseSchedule(cfg.Poll)
	if err != nil {
		return nil, err
	}
	sched, err := ps.Schedule(cfg.Location)
	if err != nil {
		return nil, err
	}
	if sched.Next(now).IsZero() {
		return nil, fmt.Errorf("%w: %q", ErrNeverFires, cfg.Poll)
	}
	return sched, nil
}

// Run prints the banner, then scans and waits until ctx is cancelled.
// A job that has started is always allowed to finish and is recorded before
// Run returns.
func (s *Service) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, Banner)
	s.mu.Lock()
	poll := s.cfg.Poll
	s.mu.Unlock()
	s.log.Info("runner started", logx.String("poll", poll))
	s.notify(func(n Notifier) { n.Ready() })

	for {
		rep := s.Tick(ctx)
		s.notify(func(n Notifier) {
			n.Watchdog()
			n.Status(fmt.Sprintf("last scan: %d jobs, %d dispatched", rep.Loaded, rep.Dispatched))
		})
		if ctx.Err() != nil {
			break
		}
		if !s.wait(ctx) {
			break
		}
	}

	s.notify(func(n Notifier) { n.Stopping() })
	s.log.Info("runner stopped")
	return nil
}

// wait blocks until the next trigger. It returns false when ctx is done.
func (s *Service) wait(ctx context.Context) bool {
	for {
		s.mu.Lock()
		sched := s.sched
		s.mu.Unlock()

		now := s.now()
		d := sched.Next(now).Sub(now)
		if d < 0 {
			d = 0
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-s.wake:
			t.Stop()
			continue
		case <-t.C:
			return true
		}
	}
}

// Tick performs one scan: reload, capture now once, dispatch due jobs in
// stored order.
func (s *Service) Tick(ctx context.Context) TickReport {
	start := time.Now()
	var rep TickReport

	jobs, err := s.reg.Load(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("scan skipped: load failed", logx.Err(err))
		}
		return rep
	}
	rep.Loaded = len(jobs)
	s.forgetPersisted(jobs)

	now := s.now()
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		if !j.IsDue(now) {
			continue
		}
		if s.alreadyDispatched(j) {
			continue
		}
		rep.Due++
		if err := s.dispatch(ctx, j); err != nil {
			rep.Failed++
		}
		rep.Dispatched++
	}

	rep.Took = time.Since(start)
	if rep.Dispatched > 0 {
		s.log.Debug("scan finished", logx.Int("jobs", rep.Loaded), logx.Int("dispatched", rep.Dispatched), logx.Int("failed", rep.Failed), logx.Duration("took", rep.Took))
	}
	return rep
}

// dispatch runs j and records it as executed whatever the outcome. It returns
// the execution error, if any.
func (s *Service) dispatch(ctx context.Context, j job.Job) error {
	// Once started, a job runs to completion and is persisted even if ctx is
	// cancelled meanwhile.
	runCtx := context.WithoutCancel(ctx)

	fmt.Fprintf(s.out, "[%d] running: %s\n", j.ID, j.Command)
	log := s.log.With(logx.Int("job", j.ID))

	res, runErr := s.exec.Run(runCtx, j.Command)
	s.dispatched[j.ID] = j
	switch {
	case runErr == nil:
		log.Info("job finished", logx.Duration("took", res.Took))
	case errors.Is(runErr, engine.ErrSpawn):
		log.Error("job spawn failed", logx.String("cmd", j.Command), logx.Err(runErr))
	default:
		log.Warn("job failed", logx.Int("exit_code", res.ExitCode), logx.Duration("took", res.Took), logx.Err(runErr))
	}

	pctx, cancel := context.WithTimeout(runCtx, persistTimeout)
	defer cancel()
	if err := s.reg.MarkExecuted(pctx, j.ID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			delete(s.dispatched, j.ID)
			log.Warn("job vanished from store before it could be marked", logx.Err(err))
		} else {
			s.persistWarn.Do(func() {
				log.Error("persist executed flag failed; job will not rerun in this process", logx.Err(err))
			})
		}
	}
	return runErr
}

func (s *Service) alreadyDispatched(j job.Job) bool {
	prev, ok := s.dispatched[j.ID]
	return ok && sameJob(prev, j)
}

func sameJob(a, b job.Job) bool {
	return a.Command == b.Command && a.Due.Equal(b.Due)
}

// forgetPersisted drops dispatched entries whose executed flag is now visible
// in storage, whose id is gone, or whose id now names a different job.
func (s *Service) forgetPersisted(jobs []job.Job) {
	if len(s.dispatched) == 0 {
		return
	}
	current := make(map[int]job.Job, len(jobs))
	for _, j := range jobs {
		current[j.ID] = j
	}
	for id, prev := range s.dispatched {
		cur, ok := current[id]
		if !ok || cur.Executed || !sameJob(prev, cur) {
			delete(s.dispatched, id)
		}
	}
}

func (s *Service) notify(fn func(Notifier)) {
	if s.notifier != nil {
		fn(s.notifier)
	}
}
