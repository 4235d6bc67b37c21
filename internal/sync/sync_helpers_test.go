package sync

import (
	"io"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/openmined/journalsync/internal/blob"
)

func stringReader(s string) io.Reader {
	return strings.NewReader(s)
}

func mapsetOf(keys ...string) mapset.Set[string] {
	return mapset.NewThreadUnsafeSet(keys...)
}

type recordingReporter struct {
	events    []string
	started   []string
	completed []string
	failed    []string
	dryRun    []*LocalFileRecord
	deleted   []string
	result    *PushResult
}

func (r *recordingReporter) ScanStarted(string) {
	r.events = append(r.events, "scan-start")
}

func (r *recordingReporter) ScanCompleted(int, int64) {
	r.events = append(r.events, "scan-done")
}

func (r *recordingReporter) ChangeDetectionStarted(int) {
	r.events = append(r.events, "detect-start")
}

func (r *recordingReporter) ChangeDetectionCompleted(*ChangeSet) {
	r.events = append(r.events, "detect-done")
}

func (r *recordingReporter) DryRun(candidates []*LocalFileRecord, _ int64, deleted []string) {
	r.events = append(r.events, "dry-run")
	r.dryRun = candidates
	r.deleted = deleted
}

func (r *recordingReporter) UploadStarted(int, int64) {
	r.events = append(r.events, "upload-start")
}

func (r *recordingReporter) FileStarted(rec *LocalFileRecord) {
	r.started = append(r.started, rec.Key)
}

func (r *recordingReporter) FileCompleted(rec *LocalFileRecord, _ *blob.BlobInfo) {
	r.completed = append(r.completed, rec.Key)
}

func (r *recordingReporter) FileFailed(rec *LocalFileRecord, _ error) {
	r.failed = append(r.failed, rec.Key)
}

func (r *recordingReporter) UploadCompleted(result *PushResult) {
	r.events = append(r.events, "upload-done")
	r.result = result
}
