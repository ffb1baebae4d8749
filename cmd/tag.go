package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stevecastle/wallkit/jobqueue"
	"github.com/stevecastle/wallkit/orchestrator"
)

var (
	tagModelDir  string
	tagThreshold float64
)

var tagCmd = &cobra.Command{
	Use:   "tag <root> [ids...]",
	Short: "Tag item previews with the ONNX model",
	Long: `Run the tagging model over the preview of each selected item (all items when
no ids are given), one at a time, and store the tags in the item's
project.json. An item that fails is reported and the batch carries on.
Ctrl-C stops after the item being tagged.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTag,
}

func init() {
	tagCmd.Flags().StringVar(&tagModelDir, "model-dir", "", "Model directory (default: config tagger.modelDir)")
	tagCmd.Flags().Float64Var(&tagThreshold, "threshold", 0, "Minimum probability for a tag (default: config tagger.threshold)")
	rootCmd.AddCommand(tagCmd)
}

func runTag(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	o, done := newOrchestrator(nil)
	defer done()

	items, err := o.Select(ctx, args[0], args[1:])
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(items))
	for _, it := range items {
		paths = append(paths, it.Path)
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "No items to tag")
		return nil
	}

	progress := newBatchProgress(len(paths), "tagging")
	batch, err := o.StartTagging(ctx, orchestrator.TagRequest{
		Paths:     paths,
		ModelDir:  tagModelDir,
		Threshold: tagThreshold,
		OnEvent:   progress.event,
	})
	if err != nil {
		return err
	}
	sum := batch.Wait()

	for _, j := range batch.Jobs() {
		switch j.State {
		case jobqueue.StateSucceeded:
			fmt.Printf("%s\t%s\n", j.Name, strings.Join(j.Tags, ", "))
		case jobqueue.StateFailed:
			fmt.Fprintf(os.Stderr, "%s failed: %s\n", j.Name, j.Error)
		}
	}
	fmt.Fprintln(os.Stderr, orchestrator.Summary(sum))
	if sum.Failed > 0 {
		return errors.Errorf("%d of %d items failed", sum.Failed, sum.Total)
	}
	return nil
}
