package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"taskd/internal/job"
	"taskd/internal/registry"
	"taskd/internal/storage"
	"taskd/internal/task/engine"
	logx "taskd/pkg/logx"
)

type fakeExec struct {
	mu   sync.Mutex
	ran  []string
	fail map[string]error
	ch   chan string
	// onRun, when set, is called with each command before Run returns.
	onRun func(command string)
}

func (f *fakeExec) Run(ctx context.Context, command string) (engine.Result, error) {
	f.mu.Lock()
	f.ran = append(f.ran, command)
	err := f.fail[command]
	ch := f.ch
	f.mu.Unlock()
	if ch != nil {
		ch <- command
	}
	if f.onRun != nil {
		f.onRun(command)
	}
	if err != nil {
		return engine.Result{Command: command, ExitCode: 1}, err
	}
	return engine.Result{Command: command}, nil
}

func (f *fakeExec) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ran...)
}

// flakyRegistry fails MarkExecuted while failMark is set.
type flakyRegistry struct {
	*registry.Registry
	mu       sync.Mutex
	failMark bool
}

func (r *flakyRegistry) MarkExecuted(ctx context.Context, id int) error {
	r.mu.Lock()
	fail := r.failMark
	r.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return r.Registry.MarkExecuted(ctx, id)
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, _ := newRegistryWithStore(t)
	return reg
}

func newRegistryWithStore(t *testing.T) (*registry.Registry, storage.Backend) {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "jobs.txt"), Lock: true}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return registry.New(st, registry.Options{Location: time.UTC}, logx.Nop()), st
}

func strp(s string) *string { return &s }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestTickDispatchesDueJobsInOrder(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	mustAdd := func(cmd string, due *string) {
		if _, err := reg.Add(ctx, cmd, due); err != nil {
			t.Fatalf("Add(%q): %v", cmd, err)
		}
	}
	mustAdd("echo past", strp("2020-01-01 00:00:00"))
	mustAdd("echo future", strp("2030-01-01 00:00:00"))
	mustAdd("echo now", nil)
	mustAdd("echo exact", strp("2026-10-18 12:00:00"))

	ex := &fakeExec{}
	var out bytes.Buffer
	svc, err := New(Config{}, reg, ex, logx.Nop(), WithOutput(&out), WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rep := svc.Tick(ctx)
	if rep.Dispatched != 3 || rep.Loaded != 4 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	want := []string{"echo past", "echo now", "echo exact"}
	if got := ex.commands(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("ran %v, want %v", got, want)
	}
	if !strings.Contains(out.String(), "[1] running: echo past\n") {
		t.Fatalf("missing running line in %q", out.String())
	}

	jobs, err := reg.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, j := range jobs {
		wantDone := j.Command != "echo future"
		if j.Executed != wantDone {
			t.Fatalf("job %d executed = %v, want %v", j.ID, j.Executed, wantDone)
		}
	}

	// Executed jobs are never dispatched again.
	if rep := svc.Tick(ctx); rep.Dispatched != 0 {
		t.Fatalf("second tick dispatched %d jobs", rep.Dispatched)
	}
	if n := len(ex.commands()); n != 3 {
		t.Fatalf("total runs = %d, want 3", n)
	}
}

func TestTickMarksFailedJobsExecuted(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	ctx := context.Background()
	if _, err := reg.Add(ctx, "false", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := reg.Add(ctx, "nosuchshell", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ex := &fakeExec{fail: map[string]error{
		"false":       fmt.Errorf("%w: exit status 1", engine.ErrExit),
		"nosuchshell": fmt.Errorf("%w: fork", engine.ErrSpawn),
	}}
	svc, err := New(Config{}, reg, ex, logx.Nop(), WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rep := svc.Tick(ctx)
	if rep.Dispatched != 2 || rep.Failed != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	jobs, err := reg.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, j := range jobs {
		if !j.Executed {
			t.Fatalf("job %d not marked executed", j.ID)
		}
	}
}

func TestTickDoesNotRerunWhenPersistFails(t *testing.T) {
	t.Parallel()
	base := newRegistry(t)
	ctx := context.Background()
	if _, err := base.Add(ctx, "echo once", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	reg := &flakyRegistry{Registry: base, failMark: true}
	ex := &fakeExec{}
	svc, err := New(Config{}, reg, ex, logx.Nop(), WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	svc.Tick(ctx)
	svc.Tick(ctx)
	if n := len(ex.commands()); n != 1 {
		t.Fatalf("runs = %d, want 1", n)
	}
	jobs, err := base.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if jobs[0].Executed {
		t.Fatal("flag should not be persisted while the store fails")
	}
}

func TestTickSeesJobsAddedBetweenTicks(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	ctx := context.Background()
	ex := &fakeExec{}
	svc, err := New(Config{}, reg, ex, logx.Nop(), WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rep := svc.Tick(ctx); rep.Loaded != 0 {
		t.Fatalf("expected empty store, got %+v", rep)
	}
	if _, err := reg.Add(ctx, "sleep 0", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if rep := svc.Tick(ctx); rep.Dispatched != 1 {
		t.Fatalf("expected the new job to run, got %+v", rep)
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) add(ev string) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}
func (n *recordingNotifier) Ready()        { n.add("ready") }
func (n *recordingNotifier) Watchdog()     { n.add("watchdog") }
func (n *recordingNotifier) Stopping()     { n.add("stopping") }
func (n *recordingNotifier) Status(string) {}
func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := reg.Add(ctx, "echo hi", strp("2020-01-01 00:00:00")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ex := &fakeExec{ch: make(chan string, 1)}
	notif := &recordingNotifier{}
	var out bytes.Buffer
	svc, err := New(Config{Poll: "1h"}, reg, ex, logx.Nop(), WithOutput(&out), WithNotifier(notif))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case cmd := <-ex.ch:
		if cmd != "echo hi" {
			t.Fatalf("ran %q", cmd)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first tick did not dispatch the job")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if !strings.HasPrefix(out.String(), Banner+"\n") {
		t.Fatalf("output %q does not start with banner", out.String())
	}
	ev := notif.snapshot()
	if len(ev) < 3 || ev[0] != "ready" || ev[len(ev)-1] != "stopping" {
		t.Fatalf("unexpected notifier events %v", ev)
	}
	jobs, err := reg.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !jobs[0].Executed {
		t.Fatal("job should be marked executed before Run returns")
	}
}

func TestApplyRejectsBadPoll(t *testing.T) {
	t.Parallel()
	svc, err := New(Config{}, newRegistry(t), &fakeExec{}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.Apply(Config{Poll: "whenever"}); err == nil {
		t.Fatal("expected error for invalid poll")
	}
	if _, err := New(Config{Poll: "nope"}, newRegistry(t), &fakeExec{}, logx.Nop()); err == nil {
		t.Fatal("expected New to reject invalid poll")
	}
	if err := svc.Apply(Config{Poll: "0 0 0 30 2 *"}); !errors.Is(err, ErrNeverFires) {
		t.Fatalf("expected ErrNeverFires, got %v", err)
	}
}

func TestTickPersistsEachJobBeforeTheNext(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	ctx := context.Background()
	for _, cmd := range []string{"echo first", "echo second"} {
		if _, err := reg.Add(ctx, cmd, nil); err != nil {
			t.Fatalf("Add(%q): %v", cmd, err)
		}
	}

	var seen []bool
	ex := &fakeExec{onRun: func(cmd string) {
		if cmd != "echo second" {
			return
		}
		jobs, err := reg.Load(ctx)
		if err != nil {
			t.Errorf("Load: %v", err)
			return
		}
		seen = append(seen, jobs[0].Executed, jobs[1].Executed)
	}}
	svc, err := New(Config{}, reg, ex, logx.Nop(), WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rep := svc.Tick(ctx); rep.Dispatched != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Fatalf("while the second job ran, executed flags were %v, want [true false]", seen)
	}
}

func TestTickCapturesNowOnce(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	ctx := context.Background()
	t0 := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	if _, err := reg.Add(ctx, "echo now", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := reg.Add(ctx, "echo soon", strp("2026-10-18 12:30:00")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Once armed, every reading after the first is an hour later, past the
	// second job.
	var (
		mu    sync.Mutex
		armed bool
		calls int
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		if !armed {
			return t0
		}
		calls++
		if calls == 1 {
			return t0
		}
		return t0.Add(time.Hour)
	}

	ex := &fakeExec{}
	svc, err := New(Config{}, reg, ex, logx.Nop(), WithOutput(&bytes.Buffer{}), WithClock(clock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mu.Lock()
	armed = true
	mu.Unlock()
	svc.Tick(ctx)
	if got := ex.commands(); len(got) != 1 || got[0] != "echo now" {
		t.Fatalf("ran %v, want [echo now]", got)
	}

	// The next scan reads the later time and picks the job up.
	svc.Tick(ctx)
	if got := ex.commands(); len(got) != 2 || got[1] != "echo soon" {
		t.Fatalf("ran %v, want [echo now echo soon]", got)
	}
}

func TestTickSkipsDueBeforeEpoch(t *testing.T) {
	t.Parallel()
	reg, st := newRegistryWithStore(t)
	ctx := context.Background()
	jobs := []job.Job{
		{ID: 1, Command: "echo old", Due: time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC)},
		{ID: 2, Command: "echo now"},
	}
	if err := st.Save(ctx, jobs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ex := &fakeExec{}
	svc, err := New(Config{}, reg, ex, logx.Nop(), WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc.Tick(ctx)
	if got := ex.commands(); len(got) != 1 || got[0] != "echo now" {
		t.Fatalf("ran %v, want [echo now]", got)
	}
}

func TestTickRunsNewJobThatReusesVanishedID(t *testing.T) {
	t.Parallel()
	reg, st := newRegistryWithStore(t)
	ctx := context.Background()
	if _, err := reg.Add(ctx, "echo old", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// The store is emptied while the job runs, so it cannot be marked.
	ex := &fakeExec{onRun: func(cmd string) {
		if cmd == "echo old" {
			if err := st.Save(ctx, nil); err != nil {
				t.Errorf("Save: %v", err)
			}
		}
	}}
	svc, err := New(Config{}, reg, ex, logx.Nop(), WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc.Tick(ctx)

	j, err := reg.Add(ctx, "echo new", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if j.ID != 1 {
		t.Fatalf("new job id = %d, want 1", j.ID)
	}
	if rep := svc.Tick(ctx); rep.Dispatched != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if got := ex.commands(); len(got) != 2 || got[1] != "echo new" {
		t.Fatalf("ran %v, want [echo old echo new]", got)
	}
}

func TestTickRunsReplacementJobAfterFailedPersist(t *testing.T) {
	t.Parallel()
	base, st := newRegistryWithStore(t)
	ctx := context.Background()
	if _, err := base.Add(ctx, "echo old", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	reg := &flakyRegistry{Registry: base, failMark: true}
	ex := &fakeExec{}
	svc, err := New(Config{}, reg, ex, logx.Nop(), WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc.Tick(ctx)

	// A different store now holds another job under the same id.
	if err := st.Save(ctx, []job.Job{{ID: 1, Command: "echo replaced"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	svc.Tick(ctx)
	if got := ex.commands(); len(got) != 2 || got[1] != "echo replaced" {
		t.Fatalf("ran %v, want [echo old echo replaced]", got)
	}

	// The failed job itself is still not rerun.
	svc.Tick(ctx)
	if n := len(ex.commands()); n != 2 {
		t.Fatalf("runs = %d, want 2", n)
	}
}
