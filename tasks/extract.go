package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stevecastle/wallkit/appconfig"
	"github.com/stevecastle/wallkit/fileutil"
	"github.com/stevecastle/wallkit/jobqueue"
	"github.com/stevecastle/wallkit/media"
	"github.com/stevecastle/wallkit/toolexec"
)

// CopyExts are the asset extensions copied for items without a package.
var CopyExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".mp4": true}

// ExtractArgs builds the command line of the unpacking tool.
func ExtractArgs(o appconfig.ExtractOptions, outputDir, input string) []string {
	args := []string{"extract"}
	if outputDir != "" {
		args = append(args, "-o", outputDir)
	}
	if o.IgnoreExts != "" {
		args = append(args, "-i", o.IgnoreExts)
	}
	if o.OnlyExts != "" {
		args = append(args, "-e", o.OnlyExts)
	}
	flags := []struct {
		on   bool
		flag string
	}{
		{o.Debug, "-d"},
		{o.ConvertTex, "-t"},
		{o.SingleDir, "-s"},
		{o.Recursive, "-r"},
		{o.CopyProject, "-c"},
		{o.UseName, "-n"},
		{o.NoTexConvert, "--no-tex-convert"},
		{o.Overwrite, "--overwrite"},
	}
	for _, f := range flags {
		if f.on {
			args = append(args, f.flag)
		}
	}
	return append(args, input)
}

// InfoOptions mirrors the flags of the tool's info command.
type InfoOptions struct {
	Sort         bool   `json:"sort,omitempty"`
	SortBy       string `json:"sortBy,omitempty"`
	Tex          bool   `json:"tex,omitempty"`
	ProjectInfo  string `json:"projectInfo,omitempty"`
	PrintEntries bool   `json:"printEntries,omitempty"`
	TitleFilter  string `json:"titleFilter,omitempty"`
}

// InfoArgs builds the command line of the tool's info command.
func InfoArgs(o InfoOptions, input string) []string {
	args := []string{"info"}
	if o.Sort {
		args = append(args, "-s")
	}
	if o.SortBy != "" {
		args = append(args, "-b", o.SortBy)
	}
	if o.Tex {
		args = append(args, "-t")
	}
	if o.ProjectInfo != "" {
		args = append(args, "-p", o.ProjectInfo)
	}
	if o.PrintEntries {
		args = append(args, "-e")
	}
	if o.TitleFilter != "" {
		args = append(args, "--title-filter", o.TitleFilter)
	}
	return append(args, input)
}

// OutputDir resolves where an item is extracted to. Without a base the
// result lands in the item folder; flatten puts every item directly in base.
func OutputDir(item media.Item, base string, flatten bool) string {
	switch {
	case strings.TrimSpace(base) == "":
		return filepath.Join(item.Path, "extracted")
	case flatten:
		return base
	default:
		return filepath.Join(base, SanitizeName(item.Title, item.ID))
	}
}

// SanitizeName makes title usable as a single path element on every
// platform. fallback is used when nothing printable is left.
func SanitizeName(title, fallback string) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, title)
	clean = strings.Trim(clean, ". ")
	if clean == "" || strings.Trim(clean, "_") == "" {
		if fallback != "" && fallback != title {
			return SanitizeName(fallback, "item")
		}
		return "item"
	}
	return clean
}

// ExtractTask runs the unpacking tool at toolPath for a job. The job's Input
// is passed as the tool's input and its OutputDir as -o.
func ExtractTask(toolPath string, opts appconfig.ExtractOptions, logger zerolog.Logger) TaskFunc {
	return func(ctx context.Context, j *jobqueue.Job, q *jobqueue.Queue) error {
		if err := toolexec.EnsureExecutable(toolPath); err != nil {
			logger.Warn().Err(err).Str("path", toolPath).Msg("could not mark tool executable")
		}
		if j.OutputDir != "" {
			if err := os.MkdirAll(j.OutputDir, 0o755); err != nil {
				return errors.Wrapf(err, "create output directory %s", j.OutputDir)
			}
		}

		args := ExtractArgs(opts, j.OutputDir, j.Input)
		_ = q.UpdateJob(j.ID, func(job *jobqueue.Job) { job.Args = args })
		logger.Debug().Str("item", j.Name).Strs("args", args).Msg("running extract tool")

		res, err := executeCommand(ctx, "extract "+j.Name, toolPath, args, func(stream, line string) {
			_ = q.PushJobOutput(j.ID, stream, line)
		})
		_ = q.UpdateJob(j.ID, func(job *jobqueue.Job) { job.ExitCode = res.ExitCode })
		return err
	}
}

// InfoTask runs the tool's info command for a job's Input.
func InfoTask(toolPath string, opts InfoOptions) TaskFunc {
	return func(ctx context.Context, j *jobqueue.Job, q *jobqueue.Queue) error {
		_ = toolexec.EnsureExecutable(toolPath)
		args := InfoArgs(opts, j.Input)
		_ = q.UpdateJob(j.ID, func(job *jobqueue.Job) { job.Args = args })
		res, err := executeCommand(ctx, "info", toolPath, args, func(stream, line string) {
			_ = q.PushJobOutput(j.ID, stream, line)
		})
		_ = q.UpdateJob(j.ID, func(job *jobqueue.Job) { job.ExitCode = res.ExitCode })
		return err
	}
}

// CopyTask copies the known asset files of an item that has no package.
func CopyTask(logger zerolog.Logger) TaskFunc {
	return func(ctx context.Context, j *jobqueue.Job, q *jobqueue.Queue) error {
		onErr := func(p string, err error) {
			logger.Warn().Err(err).Str("path", p).Msg("skipping unreadable directory")
			_ = q.PushJobOutput(j.ID, jobqueue.Stderr, fmt.Sprintf("skipped %s: %v", p, err))
		}
		_ = q.PushJobOutput(j.ID, jobqueue.Stdout, fmt.Sprintf("copying assets of %s to %s", j.Name, j.OutputDir))
		n, err := fileutil.CopyFiltered(j.Input, j.OutputDir, CopyExts, onErr)
		_ = q.UpdateJob(j.ID, func(job *jobqueue.Job) { job.Copied = n })
		if err != nil {
			return err
		}
		_ = q.PushJobOutput(j.ID, jobqueue.Stdout, fmt.Sprintf("copied %d files to %s", n, j.OutputDir))
		return nil
	}
}

// ExtractJob builds the job for one selected item: the unpacking tool run on
// the package file for a packaged item, a filtered copy of the folder
// otherwise.
func ExtractJob(item media.Item, base string, flatten bool) jobqueue.Job {
	j := jobqueue.Job{
		Kind:      jobqueue.KindCopy,
		Name:      item.ID,
		Input:     item.Path,
		OutputDir: OutputDir(item, base, flatten),
	}
	if item.Packaged {
		j.Kind = jobqueue.KindExtract
		j.Input = item.PackagePath
		j.PackagePath = item.PackagePath
	}
	return j
}
