package engine

import (
	"io"
	"time"
)

const DefaultShell = "/bin/sh"

// Config controls how job commands are executed.
//
// Commands run through Shell with "-c"; Stdout/Stderr default to the
// process's own streams so job output interleaves with the runner's.
type Config struct {
	Shell  string
	Stdout io.Writer
	Stderr io.Writer
}

// Result describes one finished (or failed-to-start) command.
type Result struct {
	Command  string
	ExitCode int // -1 when the process did not start or was killed by a signal
	Started  time.Time
	Took     time.Duration
}
