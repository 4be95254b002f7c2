package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskd/internal/app"
)

func newAddCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add <command> [time]",
		Short: "Register a command, due at time (YYYY-MM-DD HH:MM:SS) or immediately",
		Args:  usageArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(opts.configPath, opts.stdout)
			if err != nil {
				return err
			}
			defer a.Close()

			var due *string
			if len(args) == 2 {
				due = &args[1]
			}
			j, err := a.Registry().Add(cmd.Context(), args[0], due)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "added job %d\n", j.ID)
			return nil
		},
	}
}
