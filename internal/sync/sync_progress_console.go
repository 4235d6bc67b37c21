package sync

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/openmined/journalsync/internal/blob"
)

// ConsoleReporter prints a line per uploaded file, prefixed by a [n/total]
// counter, and a closing summary with one line per error.
type ConsoleReporter struct {
	w io.Writer

	red   *color.Color
	green *color.Color
	cyan  *color.Color
	dim   *color.Color

	total int
	done  int
}

func NewConsoleReporter(w io.Writer, colorize bool) *ConsoleReporter {
	r := &ConsoleReporter{
		w:     w,
		red:   color.New(color.FgHiRed, color.Bold),
		green: color.New(color.FgHiGreen),
		cyan:  color.New(color.FgHiCyan),
		dim:   color.New(color.Faint),
	}
	for _, c := range []*color.Color{r.red, r.green, r.cyan, r.dim} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func (r *ConsoleReporter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.w, format, args...)
}

func (r *ConsoleReporter) ScanStarted(basePath string) {
	r.printf("%s %s\n", r.cyan.Sprint("scanning"), basePath)
}

func (r *ConsoleReporter) ScanCompleted(files int, totalBytes int64) {
	r.printf("%s %d files, %s\n", r.dim.Sprint("found"), files, humanize.Bytes(uint64(totalBytes)))
}

func (r *ConsoleReporter) ChangeDetectionStarted(candidates int) {
	r.printf("%s %d files against remote\n", r.cyan.Sprint("comparing"), candidates)
}

func (r *ConsoleReporter) ChangeDetectionCompleted(changes *ChangeSet) {
	r.printf("%s %d added, %d modified, %d unchanged, %d remote only\n",
		r.dim.Sprint("changes"),
		changes.Count(ChangeAdded),
		changes.Count(ChangeModified),
		changes.Unchanged,
		changes.Count(ChangeDeleted),
	)
}

func (r *ConsoleReporter) DryRun(candidates []*LocalFileRecord, totalBytes int64, deleted []string) {
	r.printf("%s %d files, %s would be uploaded\n", r.cyan.Sprint("dry run"), len(candidates), humanize.Bytes(uint64(totalBytes)))
	for _, rec := range candidates {
		r.printf("  %s %s %s\n", r.green.Sprint("+"), rec.Key, r.dim.Sprint(humanize.Bytes(uint64(rec.Size))))
	}
	if len(deleted) > 0 {
		r.printf("%s %d remote files have no local copy and are kept\n", r.dim.Sprint("remote only"), len(deleted))
		for _, key := range deleted {
			r.printf("  %s %s\n", r.dim.Sprint("-"), key)
		}
	}
}

func (r *ConsoleReporter) UploadStarted(count int, totalBytes int64) {
	r.total = count
	r.done = 0
	if count == 0 {
		r.printf("%s\n", r.green.Sprint("everything up to date"))
		return
	}
	r.printf("%s %d files, %s\n", r.cyan.Sprint("uploading"), count, humanize.Bytes(uint64(totalBytes)))
}

func (r *ConsoleReporter) FileStarted(*LocalFileRecord) {}

func (r *ConsoleReporter) FileCompleted(rec *LocalFileRecord, _ *blob.BlobInfo) {
	r.done++
	r.printf("%s %s %s\n", r.counter(), rec.Key, r.dim.Sprint(humanize.Bytes(uint64(rec.Size))))
}

func (r *ConsoleReporter) FileFailed(rec *LocalFileRecord, err error) {
	r.done++
	r.printf("%s %s %s\n", r.counter(), rec.Key, r.red.Sprint("failed"))
}

func (r *ConsoleReporter) counter() string {
	width := len(fmt.Sprint(r.total))
	return r.dim.Sprintf("[%*d/%d]", width, r.done, r.total)
}

func (r *ConsoleReporter) UploadCompleted(result *PushResult) {
	took := result.Duration.Round(time.Millisecond)
	if result.DryRun {
		r.printf("%s in %s\n", r.dim.Sprint("dry run done"), took)
	} else {
		r.printf("%s %d uploaded, %d skipped, %s in %s\n",
			r.green.Sprint("done"),
			result.FilesUploaded,
			result.FilesSkipped,
			humanize.Bytes(uint64(result.TotalBytes)),
			took,
		)
	}

	if len(result.Errors) == 0 {
		return
	}
	r.printf("%s %d\n", r.red.Sprint("errors"), len(result.Errors))
	for _, err := range result.Errors {
		r.printf("  %s\n", err.Error())
	}
}

var _ ProgressReporter = (*ConsoleReporter)(nil)
