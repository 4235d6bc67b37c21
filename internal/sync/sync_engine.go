package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openmined/journalsync/internal/blob"
)

const (
	DefaultConcurrency = 4
	MaxConcurrency     = 16
)

var (
	ErrPushAlreadyRunning = errors.New("push already running")
)

type PushMode int

const (
	// ModeIncremental narrows the scan to files modified after the last
	// successful push before diffing.
	ModeIncremental PushMode = iota
	// ModeAll diffs every scanned file.
	ModeAll
)

func (m PushMode) String() string {
	switch m {
	case ModeIncremental:
		return "incremental"
	case ModeAll:
		return "all"
	default:
		return fmt.Sprintf("PushMode(%d)", int(m))
	}
}

func ParsePushMode(s string) (PushMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "incremental":
		return ModeIncremental, nil
	case "all":
		return ModeAll, nil
	default:
		return 0, fmt.Errorf("unknown push mode %q (want incremental or all)", s)
	}
}

type PushOptions struct {
	Mode   PushMode
	Force  bool
	DryRun bool
}

// PushResult is built by the goroutine running Push. Upload workers never
// touch it; they report over a channel.
type PushResult struct {
	RunID         string
	FilesUploaded int
	FilesSkipped  int
	// TotalBytes counts uploaded bytes, or the bytes a dry run would upload.
	TotalBytes int64
	Duration   time.Duration
	Errors     []*SyncError
	DryRun     bool

	// Candidates are the records selected for upload.
	Candidates []*LocalFileRecord
	// Deleted are remote-only keys. Push never deletes them.
	Deleted []string
}

func (r *PushResult) HasErrors() bool {
	return len(r.Errors) > 0
}

type PushEngineConfig struct {
	BaseDir string
	Include []string
	Exclude []string

	Factory *blob.Factory
	Remote  *blob.Config
	State   StateStore

	Scanner  FileScanner
	Detector ChangeDetector
	Reporter ProgressReporter
	// Journal is optional.
	Journal Journal

	Retry RetryPolicy
	// Concurrency bounds parallel uploads. Zero means DefaultConcurrency.
	Concurrency int

	Now func() time.Time
	// Sleep replaces the retry backoff timer. Tests only.
	Sleep func(ctx context.Context, d time.Duration) error
}

// PushEngine drives one push: scan, detect changes, upload, finalize.
type PushEngine struct {
	baseDir     string
	include     []string
	exclude     []string
	factory     *blob.Factory
	remote      *blob.Config
	state       StateStore
	scanner     FileScanner
	detector    ChangeDetector
	reporter    ProgressReporter
	journal     Journal
	retry       RetryPolicy
	concurrency int
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	muPush      sync.Mutex
}

func NewPushEngine(cfg *PushEngineConfig) (*PushEngine, error) {
	if cfg.BaseDir == "" {
		return nil, configError("base directory is required")
	}
	if cfg.State == nil {
		return nil, configError("state store is required")
	}

	retry := cfg.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}
	if err := retry.Validate(); err != nil {
		return nil, configError("%w", err)
	}

	e := &PushEngine{
		baseDir:     cfg.BaseDir,
		include:     cfg.Include,
		exclude:     cfg.Exclude,
		factory:     cfg.Factory,
		remote:      cfg.Remote,
		state:       cfg.State,
		scanner:     cfg.Scanner,
		detector:    cfg.Detector,
		reporter:    cfg.Reporter,
		journal:     cfg.Journal,
		retry:       retry,
		concurrency: clampConcurrency(cfg.Concurrency),
		now:         cfg.Now,
		sleep:       cfg.Sleep,
	}
	if e.factory == nil {
		e.factory = blob.DefaultFactory()
	}
	if e.scanner == nil {
		e.scanner = NewLocalScanner()
	}
	if e.detector == nil {
		e.detector = ListingDetector{}
	}
	if e.reporter == nil {
		e.reporter = NopReporter{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

func clampConcurrency(n int) int {
	if n <= 0 {
		return DefaultConcurrency
	}
	return min(n, MaxConcurrency)
}

// Push runs one batch. The returned error is non-nil only for fatal failures
// (configuration, scan, change detection), and is also the last entry of
// PushResult.Errors. Per-file upload failures and a failed state save are
// reported in PushResult.Errors with a nil error.
func (e *PushEngine) Push(ctx context.Context, opts PushOptions) (*PushResult, error) {
	if !e.muPush.TryLock() {
		return nil, ErrPushAlreadyRunning
	}
	defer e.muPush.Unlock()

	start := e.now()
	result := &PushResult{RunID: uuid.NewString(), DryRun: opts.DryRun}
	run := &RunRecord{
		ID:        result.RunID,
		StartedAt: start,
		Mode:      opts.Mode,
		Force:     opts.Force,
		DryRun:    opts.DryRun,
		Status:    RunStatusRunning,
	}
	e.journalCall("begin run", func(j Journal) error { return j.BeginRun(run) })

	slog.Info("push start", "run", result.RunID, "mode", opts.Mode, "force", opts.Force, "dryRun", opts.DryRun)
	err := e.push(ctx, opts, start, result)
	result.Duration = e.now().Sub(start)

	sort.SliceStable(result.Errors, func(i, j int) bool { return result.Errors[i].Path < result.Errors[j].Path })
	if err != nil {
		result.Errors = append(result.Errors, err)
	}

	e.finishRun(run, result, err)
	e.reporter.UploadCompleted(result)

	slog.Info("push done",
		"run", result.RunID,
		"uploaded", result.FilesUploaded,
		"skipped", result.FilesSkipped,
		"bytes", humanize.Bytes(uint64(result.TotalBytes)),
		"errors", len(result.Errors),
		"took", result.Duration,
	)

	if err != nil {
		return result, err
	}
	return result, nil
}

func (e *PushEngine) push(ctx context.Context, opts PushOptions, start time.Time, result *PushResult) *SyncError {
	if e.remote == nil {
		return configError("remote is not configured")
	}

	state, err := e.state.LoadState()
	if err != nil {
		return configError("load sync state: %w", err)
	}

	store, err := e.factory.New(e.remote)
	if err != nil {
		return newSyncError(KindConfigurationError, "", err)
	}

	// scanning
	e.reporter.ScanStarted(e.baseDir)
	records, err := e.scanner.Scan(ctx, e.baseDir, e.include, e.exclude)
	if err != nil {
		return asSyncError(KindScanFailed, e.baseDir, err)
	}
	e.reporter.ScanCompleted(len(records), totalBytes(records))

	// detecting changes
	candidates, deleted, serr := e.selectCandidates(ctx, opts, state, records, store)
	if serr != nil {
		return serr
	}
	result.Candidates = candidates
	result.Deleted = deleted
	result.FilesSkipped = len(records) - len(candidates)
	pending := totalBytes(candidates)

	if opts.DryRun {
		result.TotalBytes = pending
		e.reporter.DryRun(candidates, pending, deleted)
		return nil
	}

	// uploading
	e.upload(ctx, store, candidates, pending, result)

	// finalizing
	if result.HasErrors() {
		slog.Warn("push incomplete, keeping last push timestamp", "errors", len(result.Errors))
		return nil
	}

	// edits landing after the scan started must stay newer than the timestamp
	pushed := start.UTC()
	state.RemoteProvider = e.remote.Provider
	state.RemoteEndpoint = e.remote.URL
	state.LastPushTimestamp = &pushed
	if err := e.state.SaveState(state); err != nil {
		result.Errors = append(result.Errors, newSyncError(KindStateSaveFailed, "", err))
	}
	return nil
}

// selectCandidates returns the records to upload and the remote-only keys.
func (e *PushEngine) selectCandidates(
	ctx context.Context,
	opts PushOptions,
	state *SyncState,
	records []*LocalFileRecord,
	store blob.Client,
) ([]*LocalFileRecord, []string, *SyncError) {
	if opts.Force {
		e.reporter.ChangeDetectionStarted(len(records))
		cs := &ChangeSet{}
		for _, rec := range records {
			cs.Changes = append(cs.Changes, &Change{Kind: ChangeModified, Key: rec.Key, Local: rec})
		}
		e.reporter.ChangeDetectionCompleted(cs)
		return records, nil, nil
	}

	narrowed := records
	if opts.Mode == ModeIncremental && state.LastPushTimestamp != nil {
		narrowed = modifiedAfter(records, *state.LastPushTimestamp)
		slog.Debug("push incremental filter", "since", state.LastPushTimestamp.Format(time.RFC3339), "kept", len(narrowed), "scanned", len(records))
	}

	e.reporter.ChangeDetectionStarted(len(narrowed))
	cs, err := e.detector.Detect(ctx, narrowed, store)
	if err != nil {
		return nil, nil, asSyncError(KindChangeDetectionFailed, "", err)
	}

	if len(narrowed) != len(records) {
		scanned := mapset.NewThreadUnsafeSetWithSize[string](len(records))
		for _, rec := range records {
			scanned.Add(rec.Key)
		}
		cs.withoutDeleted(scanned)
	}
	e.reporter.ChangeDetectionCompleted(cs)

	return cs.Uploads(), cs.Deleted(), nil
}

func modifiedAfter(records []*LocalFileRecord, since time.Time) []*LocalFileRecord {
	kept := make([]*LocalFileRecord, 0, len(records))
	for _, rec := range records {
		if rec.ModifiedAt.After(since) {
			kept = append(kept, rec)
		}
	}
	return kept
}

type uploadEvent struct {
	rec      *LocalFileRecord
	started  bool
	info     *blob.BlobInfo
	attempts int
	err      error
}

// upload runs the candidates through a bounded worker pool. Workers send
// events to this goroutine, which alone updates result and calls the
// reporter. Once ctx is done no further uploads are dispatched; uploads in
// flight finish on a context that ignores the cancellation.
func (e *PushEngine) upload(ctx context.Context, store blob.Client, candidates []*LocalFileRecord, pending int64, result *PushResult) {
	e.reporter.UploadStarted(len(candidates), pending)
	if len(candidates) == 0 {
		return
	}

	retrier := NewRetrier(e.retry)
	retrier.Sleep = e.sleep
	retrier.OnRetry = func(attempt int, delay time.Duration, err error) {
		slog.Warn("push retry", "attempt", attempt, "delay", delay, "error", err)
	}
	uploadCtx := context.WithoutCancel(ctx)

	jobs := make(chan *LocalFileRecord)
	events := make(chan uploadEvent)

	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		for i, rec := range candidates {
			if ctx.Err() == nil {
				select {
				case jobs <- rec:
					continue
				case <-ctx.Done():
				}
			}
			for _, rest := range candidates[i:] {
				events <- uploadEvent{rec: rest, err: fmt.Errorf("not dispatched: %w", ctx.Err())}
			}
			return nil
		}
		return nil
	})

	for range min(e.concurrency, len(candidates)) {
		g.Go(func() error {
			for rec := range jobs {
				if err := ctx.Err(); err != nil {
					events <- uploadEvent{rec: rec, err: fmt.Errorf("not dispatched: %w", err)}
					continue
				}
				events <- uploadEvent{rec: rec, started: true}
				info, attempts, err := Retry(ctx, retrier, func() (*blob.BlobInfo, error) {
					return store.Upload(uploadCtx, rec.AbsPath, rec.Key)
				})
				events <- uploadEvent{rec: rec, info: info, attempts: attempts, err: err}
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(events)
	}()

	for ev := range events {
		if ev.started {
			e.reporter.FileStarted(ev.rec)
			continue
		}
		e.collect(result, ev)
	}
}

func (e *PushEngine) collect(result *PushResult, ev uploadEvent) {
	file := &FileRecord{
		RunID:    result.RunID,
		Key:      ev.rec.Key,
		Hash:     ev.rec.ContentHash,
		Size:     ev.rec.Size,
		Attempts: ev.attempts,
	}

	if ev.err != nil {
		serr := newSyncError(KindUploadFailed, ev.rec.Key, ev.err)
		result.Errors = append(result.Errors, serr)
		file.Status = FileStatusFailed
		file.Error = ev.err.Error()
		slog.Error("push upload", "key", ev.rec.Key, "attempts", ev.attempts, "error", ev.err)
		e.reporter.FileFailed(ev.rec, serr)
	} else {
		info := ev.info
		if info == nil {
			info = &blob.BlobInfo{Key: ev.rec.Key, Size: ev.rec.Size, ContentHash: ev.rec.ContentHash}
		}
		result.FilesUploaded++
		result.TotalBytes += ev.rec.Size
		file.Status = FileStatusUploaded
		slog.Debug("push upload", "key", ev.rec.Key, "size", humanize.Bytes(uint64(ev.rec.Size)), "attempts", ev.attempts)
		e.reporter.FileCompleted(ev.rec, info)
	}

	e.journalCall("record file", func(j Journal) error { return j.RecordFile(file) })
}

func (e *PushEngine) finishRun(run *RunRecord, result *PushResult, fatal *SyncError) {
	run.FinishedAt = e.now()
	run.Candidates = len(result.Candidates)
	run.Uploaded = result.FilesUploaded
	run.Skipped = result.FilesSkipped
	run.Bytes = result.TotalBytes
	run.Errors = len(result.Errors)

	switch {
	case fatal != nil:
		run.Status = RunStatusFailed
	case result.DryRun:
		run.Status = RunStatusDryRun
	case result.HasErrors():
		run.Status = RunStatusPartial
	default:
		run.Status = RunStatusOK
	}

	e.journalCall("finish run", func(j Journal) error { return j.FinishRun(run) })
}

func (e *PushEngine) journalCall(op string, fn func(Journal) error) {
	if e.journal == nil {
		return
	}
	if err := fn(e.journal); err != nil {
		slog.Warn("push journal", "op", op, "error", err)
	}
}

// asSyncError keeps an existing SyncError (a scanner's ConfigurationError,
// for example) and wraps anything else as kind.
func asSyncError(kind ErrorKind, path string, err error) *SyncError {
	var serr *SyncError
	if errors.As(err, &serr) {
		return serr
	}
	return newSyncError(kind, path, err)
}

func totalBytes(records []*LocalFileRecord) int64 {
	var n int64
	for _, rec := range records {
		n += rec.Size
	}
	return n
}
