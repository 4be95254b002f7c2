// Package cli implements the taskd command line: add, list and run.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"taskd/internal/job"
	"taskd/internal/registry"
)

const usageText = `usage: taskd add <cmd> <time> | list | run
example: taskd add "echo hello" "2025-11-21 12:00:00"
`

// errUsage makes Execute print usageText instead of an error message.
var errUsage = errors.New("usage")

type options struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer
}

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "taskd",
		Short:         "Run shell commands once at a scheduled time",
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errUsage
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(*cobra.Command, error) error { return errUsage })
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML or JSON config file")

	root.AddCommand(
		newAddCommand(opts),
		newListCommand(opts),
		newRunCommand(opts),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(stdout, usageText)
			return 1
		}
		fmt.Fprintln(stderr, message(err))
		return 1
	}
	return 0
}

// usageArgs turns any positional-argument error into errUsage.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return errUsage
		}
		return nil
	}
}

// message maps input errors to their fixed operator text.
func message(err error) string {
	switch {
	case errors.Is(err, job.ErrBadTime):
		return job.ErrBadTime.Error()
	case errors.Is(err, registry.ErrCapacity):
		return registry.ErrCapacity.Error()
	default:
		return "error: " + err.Error()
	}
}
