package engine

import "errors"

var (
	// ErrSpawn reports that the shell could not be started.
	ErrSpawn = errors.New("spawn failed")
	// ErrExit reports that the command ran but did not exit cleanly.
	ErrExit = errors.New("command failed")
)
