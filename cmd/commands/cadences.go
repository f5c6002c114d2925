package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"holders-backend/internal/cadence"
)

var cadencesCmd = &cobra.Command{
	Use:   "cadences",
	Short: "List the supported sampling timeframes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CADENCE\tINTERVAL\tDEFAULT")
		for _, c := range cadence.Options {
			def := ""
			if c == cadence.Default {
				def = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", c, cadence.Interval(c), def)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(cadencesCmd)
}
