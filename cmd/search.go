package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stevecastle/wallkit/catalog"
)

var (
	searchLimit  int
	searchOffset int
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the catalog built by the last scan",
	Long: `Search items recorded by the last scan. Conditions look like field:value or
field:"quoted value", are joined with AND or OR and may be negated with NOT.
A * in a value matches anything. Text without a field matches titles.

Fields: ` + strings.Join(catalog.Fields, ", ") + `

Examples:
  wallkit search 'type:video AND NOT rating:Mature'
  wallkit search 'collection:favourites OR tag:sky*'
  wallkit search packaged:false`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, done := newOrchestrator(nil)
		defer done()

		items, more, err := o.Search(cmd.Context(), strings.Join(args, " "), searchLimit, searchOffset)
		if err != nil {
			return err
		}
		if searchJSON {
			return printJSON(map[string]any{"items": items, "hasMore": more})
		}
		for _, it := range items {
			fmt.Printf("%s\t%s\t%s\n", it.ID, it.Title, it.Path)
		}
		if more {
			fmt.Fprintf(os.Stderr, "more results, use --offset %d\n", searchOffset+searchLimit)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "Maximum results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "Results to skip")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(searchCmd)
}
