package sync

import (
	"github.com/openmined/journalsync/internal/blob"
)

// ProgressReporter receives push lifecycle callbacks. All calls come from the
// goroutine running Push, one at a time, so implementations need no locking.
// Implementations must not panic.
type ProgressReporter interface {
	ScanStarted(basePath string)
	ScanCompleted(files int, totalBytes int64)
	ChangeDetectionStarted(candidates int)
	ChangeDetectionCompleted(changes *ChangeSet)
	DryRun(candidates []*LocalFileRecord, totalBytes int64, deleted []string)
	UploadStarted(count int, totalBytes int64)
	FileStarted(rec *LocalFileRecord)
	FileCompleted(rec *LocalFileRecord, info *blob.BlobInfo)
	FileFailed(rec *LocalFileRecord, err error)
	UploadCompleted(result *PushResult)
}

// NopReporter discards every callback.
type NopReporter struct{}

func (NopReporter) ScanStarted(string) {}
func (NopReporter) ScanCompleted(int, int64) {}
func (NopReporter) ChangeDetectionStarted(int) {}
func (NopReporter) ChangeDetectionCompleted(*ChangeSet) {}
func (NopReporter) DryRun([]*LocalFileRecord, int64, []string) {}
func (NopReporter) UploadStarted(int, int64) {}
func (NopReporter) FileStarted(*LocalFileRecord) {}
func (NopReporter) FileCompleted(*LocalFileRecord, *blob.BlobInfo) {}
func (NopReporter) FileFailed(*LocalFileRecord, error) {}
func (NopReporter) UploadCompleted(*PushResult) {}

var _ ProgressReporter = NopReporter{}
