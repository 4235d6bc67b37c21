package sync

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openmined/journalsync/internal/blob"
)

func TestConsoleReporterUpload(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, false)

	a := &LocalFileRecord{Key: "a.txt", Size: 1500}
	b := &LocalFileRecord{Key: "entries/b.md", Size: 20}

	r.ScanStarted("/journal")
	r.ScanCompleted(2, 1520)
	r.ChangeDetectionStarted(2)
	r.ChangeDetectionCompleted(&ChangeSet{Changes: []*Change{{Kind: ChangeAdded, Key: "a.txt"}, {Kind: ChangeModified, Key: "entries/b.md"}}, Unchanged: 3})
	r.UploadStarted(2, 1520)
	r.FileStarted(a)
	r.FileCompleted(a, &blob.BlobInfo{Key: "a.txt"})
	r.FileFailed(b, errors.New("boom"))
	r.UploadCompleted(&PushResult{
		FilesUploaded: 1,
		FilesSkipped:  3,
		TotalBytes:    1500,
		Duration:      1234 * time.Millisecond,
		Errors:        []*SyncError{newSyncError(KindUploadFailed, "entries/b.md", errors.New("boom"))},
	})

	out := buf.String()
	assert.Contains(t, out, "scanning /journal\n")
	assert.Contains(t, out, "found 2 files, 1.5 kB\n")
	assert.Contains(t, out, "changes 1 added, 1 modified, 3 unchanged, 0 remote only\n")
	assert.Contains(t, out, "uploading 2 files, 1.5 kB\n")
	assert.Contains(t, out, "[1/2] a.txt 1.5 kB\n")
	assert.Contains(t, out, "[2/2] entries/b.md failed\n")
	assert.Contains(t, out, "done 1 uploaded, 3 skipped, 1.5 kB in 1.234s\n")
	assert.Contains(t, out, "errors 1\n")
	assert.Contains(t, out, "  UploadFailed entries/b.md: boom\n")
	assert.NotContains(t, out, "\x1b[")
}

func TestConsoleReporterDryRunAndUpToDate(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, false)

	r.DryRun([]*LocalFileRecord{{Key: "a.txt", Size: 10}}, 10, []string{"old.txt"})
	r.UploadCompleted(&PushResult{DryRun: true})
	r.UploadStarted(0, 0)

	out := buf.String()
	assert.Contains(t, out, "dry run 1 files, 10 B would be uploaded\n")
	assert.Contains(t, out, "  + a.txt 10 B\n")
	assert.Contains(t, out, "remote only 1 remote files have no local copy and are kept\n")
	assert.Contains(t, out, "  - old.txt\n")
	assert.Contains(t, out, "dry run done in 0s\n")
	assert.Contains(t, out, "everything up to date\n")
}

func TestConsoleReporterColor(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, true)
	r.ScanStarted("/journal")
	assert.Contains(t, buf.String(), "\x1b[")
}
