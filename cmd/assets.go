package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stevecastle/wallkit/media"
)

var (
	assetsCount int
	assetsTree  bool
	assetsJSON  bool
)

var assetsCmd = &cobra.Command{
	Use:   "assets <dir>",
	Short: "List the largest image and video files in an extracted folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, done := newOrchestrator(nil)
		defer done()

		assets, err := o.LargestAssets(args[0], assetsCount)
		if err != nil {
			return err
		}
		switch {
		case assetsJSON:
			return printJSON(assets)
		case assetsTree:
			fmt.Print(assetTree(args[0], assets))
		default:
			for _, a := range assets {
				fmt.Printf("%10s  %-5s  %s\n", media.FormatBytes(a.Size), a.Kind, a.Path)
			}
		}
		return nil
	},
}

func init() {
	assetsCmd.Flags().IntVarP(&assetsCount, "count", "n", 0, "How many files to list (default: config maxAssets)")
	assetsCmd.Flags().BoolVar(&assetsTree, "tree", false, "Render as a tree")
	assetsCmd.Flags().BoolVar(&assetsJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(assetsCmd)
}
