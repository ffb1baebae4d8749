package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var depsJSON bool

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Check that the external tool, wallpaper helper and model can be found",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, done := newOrchestrator(nil)
		defer done()

		results := o.Dependencies().CheckAll(cmd.Context())
		if depsJSON {
			return printJSON(results)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DEPENDENCY\tSTATUS\tDETAIL")
		for _, r := range results {
			detail := r.Path
			if r.Error != "" {
				detail = r.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, detail)
		}
		return w.Flush()
	},
}

func init() {
	depsCmd.Flags().BoolVar(&depsJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(depsCmd)
}
