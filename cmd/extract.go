package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stevecastle/wallkit/jobqueue"
	"github.com/stevecastle/wallkit/orchestrator"
)

// extractFlags holds the tool flags given on the command line.
type extractFlags struct {
	ignoreExts, onlyExts                                 string
	debug, convertTex, singleDir, recursive, copyProject bool
	useName, noTexConvert, overwrite                     bool
}

var (
	extractOutput  string
	extractFlatten bool
	extractOpts    extractFlags
)

var extractCmd = &cobra.Command{
	Use:   "extract <root> [ids...]",
	Short: "Unpack the selected items",
	Long: `Extract the items under root named by ids (all items when none are given),
one at a time in the order given. Packaged items are unpacked with the
external tool; the others have their image and video files copied.

Flags left unset take their value from the config file. Ctrl-C kills the
running extraction and skips the remaining items.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&extractOutput, "output", "o", "", "Base output directory (default: config outputDir, or <item>/extracted)")
	f.BoolVar(&extractFlatten, "flatten", false, "Put every item directly in the output directory")
	f.StringVarP(&extractOpts.ignoreExts, "ignore-exts", "i", "", "Extensions to skip, comma separated")
	f.StringVarP(&extractOpts.onlyExts, "only-exts", "e", "", "Only extract these extensions, comma separated")
	f.BoolVarP(&extractOpts.debug, "debug", "d", false, "Verbose tool output")
	f.BoolVarP(&extractOpts.convertTex, "tex", "t", false, "Convert .tex files")
	f.BoolVarP(&extractOpts.singleDir, "single-dir", "s", false, "Extract into a single directory")
	f.BoolVarP(&extractOpts.recursive, "recursive", "r", false, "Recurse into package directories")
	f.BoolVar(&extractOpts.copyProject, "copy-project", false, "Copy project.json and preview")
	f.BoolVarP(&extractOpts.useName, "use-name", "n", false, "Name output folders after the project title")
	f.BoolVar(&extractOpts.noTexConvert, "no-tex-convert", false, "Keep .tex files as is")
	f.BoolVar(&extractOpts.overwrite, "overwrite", false, "Overwrite existing files")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	o, done := newOrchestrator(nil)
	defer done()

	items, err := o.Select(ctx, args[0], args[1:])
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(os.Stderr, "No items to extract")
		return nil
	}

	opts := cfg.Extract
	f := cmd.Flags()
	set := func(name string, dst *bool, v bool) {
		if f.Changed(name) {
			*dst = v
		}
	}
	if f.Changed("ignore-exts") {
		opts.IgnoreExts = extractOpts.ignoreExts
	}
	if f.Changed("only-exts") {
		opts.OnlyExts = extractOpts.onlyExts
	}
	set("debug", &opts.Debug, extractOpts.debug)
	set("tex", &opts.ConvertTex, extractOpts.convertTex)
	set("single-dir", &opts.SingleDir, extractOpts.singleDir)
	set("recursive", &opts.Recursive, extractOpts.recursive)
	set("copy-project", &opts.CopyProject, extractOpts.copyProject)
	set("use-name", &opts.UseName, extractOpts.useName)
	set("no-tex-convert", &opts.NoTexConvert, extractOpts.noTexConvert)
	set("overwrite", &opts.Overwrite, extractOpts.overwrite)

	progress := newBatchProgress(len(items), "extracting")
	batch, err := o.StartExtract(ctx, orchestrator.ExtractRequest{
		Items:     items,
		OutputDir: extractOutput,
		Flatten:   extractFlatten,
		Options:   &opts,
		OnEvent:   progress.event,
	})
	if err != nil {
		return err
	}
	sum := batch.Wait()

	for _, j := range batch.Jobs() {
		switch j.State {
		case jobqueue.StateSucceeded:
			fmt.Printf("%s\t%s\n", j.Name, j.OutputDir)
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
