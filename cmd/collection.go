package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stevecastle/wallkit/collections"
	"github.com/stevecastle/wallkit/orchestrator"
)

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage collection labels",
}

var collectionAddCmd = &cobra.Command{
	Use:   "add <label> <root> <ids...>",
	Short: "Add items to a collection",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateCollection(args, func(o *orchestrator.Orchestrator, paths []string, label string) ([]collections.Result, error) {
			return o.AddToCollection(paths, label)
		})
	},
}

var collectionRemoveCmd = &cobra.Command{
	Use:   "remove <label> <root> <ids...>",
	Short: "Remove items from a collection",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateCollection(args, func(o *orchestrator.Orchestrator, paths []string, label string) ([]collections.Result, error) {
			return o.RemoveFromCollection(paths, label)
		})
	},
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete <label> [root]",
	Short: "Remove a collection label from every item under root",
	Long: `Remove label from every item under root, not only the ones listed by a
previous scan. Every item folder is visited, so this takes as long as a scan.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		o, done := newOrchestrator(nil)
		defer done()

		results, err := o.DeleteCollection(ctx, rootArg(args[1:]), args[0])
		if err != nil {
			return err
		}
		return reportResults(results)
	},
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collection labels from the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, done := newOrchestrator(nil)
		defer done()
		counts, err := o.Collections(context.Background())
		if err != nil {
			return err
		}
		for _, c := range counts {
			fmt.Printf("%s\t%d\n", c.Label, c.Count)
		}
		return nil
	},
}

func init() {
	collectionCmd.AddCommand(collectionAddCmd, collectionRemoveCmd, collectionDeleteCmd, collectionListCmd)
	rootCmd.AddCommand(collectionCmd)
}

type collectionMutation func(o *orchestrator.Orchestrator, paths []string, label string) ([]collections.Result, error)

func mutateCollection(args []string, mutate collectionMutation) error {
	ctx, stop := signalContext()
	defer stop()
	o, done := newOrchestrator(nil)
	defer done()

	label, root, ids := args[0], args[1], args[2:]
	if err := collections.ValidateLabel(label); err != nil {
		return err
	}
	items, err := o.Select(ctx, root, ids)
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(items))
	for _, it := range items {
		paths = append(paths, it.Path)
	}
	results, err := mutate(o, paths, label)
	if err != nil {
		return err
	}
	return reportResults(results)
}

func reportResults(results []collections.Result) error {
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(os.Stderr, "%s: %s\n", r.Path, r.Error())
		case r.Changed:
			fmt.Printf("%s\tupdated\n", r.Path)
		default:
			fmt.Printf("%s\tunchanged\n", r.Path)
		}
	}
	if n := collections.Failed(results); n > 0 {
		return errors.Errorf("%d of %d items could not be updated", n, len(results))
	}
	return nil
}
