package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tcforge/internal/pipeline"
	"tcforge/internal/ui"
)

func newPlanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show every stage and the command it would run, without running anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			driver, _, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			stages, err := driver.Plan()
			if err != nil {
				return err
			}
			w := a.out.Writer()
			for _, s := range stages {
				mark := "  "
				if s.State == pipeline.StateDone {
					mark = "✓ "
				}
				fmt.Fprintf(w, "%s%s\n", mark, s.Key)
				if s.Err != nil {
					a.out.Warn("cannot run: %v", s.Err)
					continue
				}
				fmt.Fprintf(w, "    (cd %s && %s)\n", s.Dir, s.Command)
			}
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which stages are done",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			driver, _, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			stages, err := driver.Plan()
			if err != nil {
				return err
			}
			rows := make([]ui.StatusRow, 0, len(stages))
			done := 0
			for _, s := range stages {
				if s.State == pipeline.StateDone {
					done++
				}
				rows = append(rows, ui.StatusRow{Step: s.Step, Stage: s.Key.Stage, State: string(s.State)})
			}
			fmt.Fprint(a.out.Writer(), ui.StatusTable(rows))
			a.out.Info("%d of %d stages done", done, len(stages))
			return nil
		},
	}
}
