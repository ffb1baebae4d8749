package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stevecastle/wallkit/media"
)

var (
	scanTree bool
	scanJSON bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [root]",
	Short: "List the wallpaper items under a library root",
	Long: `Scan the immediate subfolders of root (or the configured library root) and
list every folder that has a preview image. The search catalog is rebuilt
for root as a side effect.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanTree, "tree", false, "Render items as a tree")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print items as JSON")
	rootCmd.AddCommand(scanCmd)
}

func rootArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	o, done := newOrchestrator(nil)
	defer done()

	items, err := o.Scan(ctx, rootArg(args), func(it media.Item) {
		logger.Debug().Str("item", it.ID).Str("title", it.Title).Msg("found item")
	})
	if err != nil {
		return err
	}

	switch {
	case scanJSON:
		return printJSON(items)
	case scanTree:
		root := rootArg(args)
		if root == "" {
			root = cfg.LibraryRoot
		}
		fmt.Print(itemTree(root, items))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTYPE\tRATING\tPACKAGED\tCOLLECTIONS")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\n", it.ID, it.Title, it.Type, it.Rating, it.Packaged, strings.Join(it.Collections, ", "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d items\n", len(items))
	return nil
}
