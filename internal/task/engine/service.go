package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	logx "taskd/pkg/logx"
)

// Service runs one shell command at a time and blocks until it exits.
type Service struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Service {
	if strings.TrimSpace(cfg.Shell) == "" {
		cfg.Shell = DefaultShell
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log}
}

// Run executes command via "<shell> -c command" and waits for it.
//
// ctx is only checked before starting: an in-flight command is never
// cancelled and always runs to completion.
func (s *Service) Run(ctx context.Context, command string) (Result, error) {
	res := Result{Command: command, ExitCode: -1, Started: time.Now()}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}

	cmd := exec.Command(s.cfg.Shell, "-c", command)
	cmd.Stdin = nil
	cmd.Stdout = s.cfg.Stdout
	cmd.Stderr = s.cfg.Stderr

	if err := cmd.Start(); err != nil {
		res.Took = time.Since(res.Started)
		return res, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	s.log.Debug("command started", logx.Int("pid", cmd.Process.Pid), logx.String("shell", s.cfg.Shell))

	err := cmd.Wait()
	res.Took = time.Since(res.Started)
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return res, fmt.Errorf("%w: %v", ErrExit, ee)
		}
		return res, fmt.Errorf("%w: %v", ErrExit, err)
	}
	return res, nil
}
