package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskd/internal/app"
	"taskd/internal/job"
)

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every registered job",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(opts.configPath, opts.stdout)
			if err != nil {
				return err
			}
			defer a.Close()

			jobs, err := a.Registry().Load(cmd.Context())
			if err != nil {
				return err
			}
			return writeJobs(opts.stdout, jobs, a.Registry().Location())
		},
	}
}

// writeJobs renders one line per job:
//
//	[<id>] cmd: <command>[ at: <YYYY-MM-DD HH:MM:SS>] (pending|done)
func writeJobs(w io.Writer, jobs []job.Job, loc *time.Location) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "no jobs")
		return err
	}
	var b strings.Builder
	for _, j := range jobs {
		fmt.Fprintf(&b, "[%d] cmd: %s", j.ID, j.Command)
		if j.HasDueTime() {
			fmt.Fprintf(&b, " at: %s", job.FormatDue(j.Due, loc))
		}
		fmt.Fprintf(&b, " (%s)\n", j.Status())
	}
	_, err := io.WriteString(w, b.String())
	return err
}
