package sync

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openmined/journalsync/internal/db"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS push_runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL DEFAULT '',
    mode TEXT NOT NULL,
    force INTEGER NOT NULL DEFAULT 0,
    dry_run INTEGER NOT NULL DEFAULT 0,
    candidates INTEGER NOT NULL DEFAULT 0,
    uploaded INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'running'
);

CREATE TABLE IF NOT EXISTS push_files (
    run_id TEXT NOT NULL REFERENCES push_runs(id) ON DELETE CASCADE,
    key TEXT NOT NULL,
    hash TEXT NOT NULL,
    size INTEGER NOT NULL,
    status TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, key)
);

CREATE INDEX IF NOT EXISTS idx_push_runs_started ON push_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_push_files_key ON push_files(key);
`

// fixed width so stored timestamps sort lexically
const journalTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const (
	RunStatusRunning = "running"
	RunStatusOK      = "ok"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
	RunStatusDryRun  = "dry-run"

	FileStatusUploaded = "uploaded"
	FileStatusFailed   = "failed"
)

// RunRecord is one push invocation as stored in the journal.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Mode       PushMode
	Force      bool
	DryRun     bool
	Candidates int
	Uploaded   int
	Skipped    int
	Bytes      int64
	Errors     int
	Status     string
}

// FileRecord is the outcome of one upload within a run.
type FileRecord struct {
	RunID    string
	Key      string
	Hash     string
	Size     int64
	Status   string
	Attempts int
	Error    string
}

// Journal records push history. The engine treats every journal failure as
// non-fatal.
type Journal interface {
	BeginRun(run *RunRecord) error
	RecordFile(file *FileRecord) error
	FinishRun(run *RunRecord) error
}

type dbRun struct {
	ID         string `db:"id"`
	StartedAt  string `db:"started_at"`
	FinishedAt string `db:"finished_at"`
	Mode       string `db:"mode"`
	Force      bool   `db:"force"`
	DryRun     bool   `db:"dry_run"`
	Candidates int    `db:"candidates"`
	Uploaded   int    `db:"uploaded"`
	Skipped    int    `db:"skipped"`
	Bytes      int64  `db:"bytes"`
	Errors     int    `db:"errors"`
	Status     string `db:"status"`
}

type dbFile struct {
	RunID    string `db:"run_id"`
	Key      string `db:"key"`
	Hash     string `db:"hash"`
	Size     int64  `db:"size"`
	Status   string `db:"status"`
	Attempts int    `db:"attempts"`
	Error    string `db:"error"`
}

// PushJournal is the SQLite-backed Journal kept in the workspace metadata dir.
type PushJournal struct {
	db     *sqlx.DB
	dbPath string
}

func NewPushJournal(dbPath string) *PushJournal {
	return &PushJournal{dbPath: dbPath}
}

func (j *PushJournal) Open() error {
	if j.db != nil {
		return fmt.Errorf("push journal already open")
	}

	conn, err := db.Open(db.WithPath(j.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("open push journal: %w", err)
	}
	if _, err := conn.Exec(journalSchema); err != nil {
		conn.Close()
		return fmt.Errorf("initialize journal schema: %w", err)
	}

	j.db = conn
	return nil
}

func (j *PushJournal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func (j *PushJournal) BeginRun(run *RunRecord) error {
	_, err := j.db.NamedExec(`INSERT INTO push_runs (id, started_at, mode, force, dry_run, status)
		VALUES (:id, :started_at, :mode, :force, :dry_run, :status)`, toDBRun(run))
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	return nil
}

func (j *PushJournal) RecordFile(file *FileRecord) error {
	_, err := j.db.NamedExec(`INSERT OR REPLACE INTO push_files (run_id, key, hash, size, status, attempts, error)
		VALUES (:run_id, :key, :hash, :size, :status, :attempts, :error)`, dbFile(*file))
	if err != nil {
		return fmt.Errorf("record file %s: %w", file.Key, err)
	}
	return nil
}

func (j *PushJournal) FinishRun(run *RunRecord) error {
	_, err := j.db.NamedExec(`UPDATE push_runs SET
		finished_at = :finished_at, candidates = :candidates, uploaded = :uploaded, skipped = :skipped,
		bytes = :bytes, errors = :errors, status = :status
		WHERE id = :id`, toDBRun(run))
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return nil
}

// Runs returns up to limit runs, newest first.
func (j *PushJournal) Runs(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []dbRun
	if err := j.db.Select(&rows, `SELECT * FROM push_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	runs := make([]*RunRecord, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, fromDBRun(row))
	}
	return runs, nil
}

// Files returns the file outcomes of a run ordered by key.
func (j *PushJournal) Files(runID string) ([]*FileRecord, error) {
	var rows []dbFile
	if err := j.db.Select(&rows, `SELECT * FROM push_files WHERE run_id = ? ORDER BY key`, runID); err != nil {
		return nil, fmt.Errorf("query files for %s: %w", runID, err)
	}

	files := make([]*FileRecord, 0, len(rows))
	for _, row := range rows {
		f := FileRecord(row)
		files = append(files, &f)
	}
	return files, nil
}

func toDBRun(run *RunRecord) dbRun {
	row := dbRun{
		ID:         run.ID,
		StartedAt:  run.StartedAt.UTC().Format(journalTimeFormat),
		Mode:       run.Mode.String(),
		Force:      run.Force,
		DryRun:     run.DryRun,
		Candidates: run.Candidates,
		Uploaded:   run.Uploaded,
		Skipped:    run.Skipped,
		Bytes:      run.Bytes,
		Errors:     run.Errors,
		Status:     run.Status,
	}
	if !run.FinishedAt.IsZero() {
		row.FinishedAt = run.FinishedAt.UTC().Format(journalTimeFormat)
	}
	return row
}

func fromDBRun(row dbRun) *RunRecord {
	run := &RunRecord{
		ID:         row.ID,
		Force:      row.Force,
		DryRun:     row.DryRun,
		Candidates: row.Candidates,
		Uploaded:   row.Uploaded,
		Skipped:    row.Skipped,
		Bytes:      row.Bytes,
		Errors:     row.Errors,
		Status:     row.Status,
	}
	if mode, err := ParsePushMode(row.Mode); err == nil {
		run.Mode = mode
	}
	if t, err := time.Parse(journalTimeFormat, row.StartedAt); err == nil {
		run.StartedAt = t
	} else {
		slog.Warn("journal", "run", row.ID, "started_at", row.StartedAt, "error", err)
	}
	if row.FinishedAt != "" {
		if t, err := time.Parse(journalTimeFormat, row.FinishedAt); err == nil {
			run.FinishedAt = t
		}
	}
	return run
}

var _ Journal = (*PushJournal)(nil)
