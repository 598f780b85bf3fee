package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tcforge/internal/ledger"
	"tcforge/internal/pager"
)

func newLogsCmd(a *app) *cobra.Command {
	var stream string
	cmd := &cobra.Command{
		Use:   "logs <unit> <stage>",
		Short: "Show a stage's recorded output",
		Example: "  tcforge logs gcc-13.2.0 configure.1\n" +
			"  tcforge logs binutils-2.42 make --stream out",
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			key := ledger.Key{Unit: args[0], Stage: args[1]}
			if err := key.Validate(); err != nil {
				return err
			}
			art := ledger.NewFileLedger(a.layout().Status).Artifacts(key)

			var path string
			switch stream {
			case "err":
				path = art.Stderr
			case "out":
				path = art.Stdout
			case "cmd":
				path = art.Command
			default:
				return fmt.Errorf("unknown stream %q: want err, out or cmd", stream)
			}

			lines, err := pager.ReadLines(path)
			if err != nil {
				return fmt.Errorf("no %s log for %s: %w", stream, key, err)
			}
			return pager.Run(pager.View{Title: fmt.Sprintf("%s (%s)", key, stream), Path: path, Lines: lines})
		},
	}
	cmd.Flags().StringVar(&stream, "stream", "err", "which artifact to show: err, out or cmd")
	return cmd
}
