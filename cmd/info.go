package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stevecastle/wallkit/jobqueue"
	"github.com/stevecastle/wallkit/tasks"
)

var infoOpts tasks.InfoOptions

var infoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Show what the unpacking tool reports about a package or folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		o, done := newOrchestrator(nil)
		defer done()

		_, err := o.Info(ctx, args[0], infoOpts, func(stream, line string) {
			if stream == jobqueue.Stderr {
				fmt.Fprintln(os.Stderr, line)
				return
			}
			fmt.Println(line)
		})
		return err
	},
}

func init() {
	f := infoCmd.Flags()
	f.BoolVarP(&infoOpts.Sort, "sort", "s", false, "Sort entries")
	f.StringVarP(&infoOpts.SortBy, "sort-by", "b", "", "Sort key")
	f.BoolVarP(&infoOpts.Tex, "tex", "t", false, "Show .tex details")
	f.StringVarP(&infoOpts.ProjectInfo, "project-info", "p", "", "project.json keys to print")
	f.BoolVarP(&infoOpts.PrintEntries, "print-entries", "e", false, "List package entries")
	f.StringVar(&infoOpts.TitleFilter, "title-filter", "", "Only show projects whose title matches")
	rootCmd.AddCommand(infoCmd)
}
