package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tcforge/internal/ui"
)

func newBuildCmd(a *app) *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run every pending stage of the plan, in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			layout := a.layout()
			if err := layout.Ensure(); err != nil {
				return err
			}
			lock, err := layout.Lock()
			if err != nil {
				return err
			}
			defer lock.Release()

			driver, exec, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}

			start := time.Now()
			runErr := driver.Run(cmd.Context())

			if summary {
				rows := make([]ui.StatusRow, 0)
				for _, e := range exec.Tracker().Entries() {
					rows = append(rows, ui.StatusRow{Step: e.Key.Unit, Stage: e.Key.Stage, State: string(e.State)})
				}
				fmt.Fprint(a.out.Writer(), ui.StatusTable(rows))
			}
			if runErr != nil {
				return runErr
			}

			stats := exec.Stats()
			a.out.OK("Toolchain installed in %s (%d stages run, %d already done, %s)",
				a.cfg.InstallPrefix(), stats.Executed, stats.Skipped, time.Since(start).Round(time.Second))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&summary, "summary", "s", false, "print the state of every stage touched")
	return cmd
}
