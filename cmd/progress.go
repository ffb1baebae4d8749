package cmd

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/stevecastle/wallkit/jobqueue"
)

// batchProgress shows a bar on a terminal and plain lines otherwise. Both go
// to stderr; stdout carries results.
type batchProgress struct {
	bar *progressbar.ProgressBar
}

func newBatchProgress(total int, desc string) *batchProgress {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return &batchProgress{}
	}
	return &batchProgress{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)}
}

// event consumes one batch event.
func (p *batchProgress) event(e jobqueue.Event) {
	switch e.Type {
	case jobqueue.EventJobStarted:
		if p.bar != nil {
			p.bar.Describe(e.Name)
		}
	case jobqueue.EventJobOutput:
		logger.Debug().Str("item", e.Name).Str("stream", e.Stream).Msg(e.Line)
	case jobqueue.EventJobFinished:
		if p.bar != nil {
			_ = p.bar.Add(1)
			return
		}
		line := fmt.Sprintf("[%d/%d] %s: %s", e.Index, e.Total, e.Name, e.State)
		if e.Skipped {
			line += " (skipped)"
		}
		if e.Error != "" {
			line += ": " + e.Error
		}
		fmt.Fprintln(os.Stderr, line)
	case jobqueue.EventBatchFinished:
		if p.bar != nil {
			_ = p.bar.Finish()
		}
	}
}
