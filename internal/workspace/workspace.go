// Package workspace resolves the journal directory and its metadata layout,
// and serializes push invocations with a lock file.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/openmined/journalsync/internal/utils"
)

const (
	// MetadataDirName is never synced; the scanner always prunes it.
	MetadataDirName = ".journalsync"
	// IgnoreFileName holds extra gitignore-style lines for the scanner.
	IgnoreFileName = ".journalsyncignore"

	configFile  = "config.json"
	journalFile = "journal.db"
	logsDir     = "logs"
	logFile     = "journalsync.log"
	lockFile    = "push.lock"
	envFile     = ".env"
)

var ErrWorkspaceLocked = errors.New("workspace locked by another push")

type Workspace struct {
	Root        string
	MetadataDir string
	ConfigPath  string
	JournalPath string
	LogsDir     string
	LogPath     string
	IgnorePath  string
	EnvPath     string

	flock *flock.Flock
}

func New(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve path %s: %w", rootDir, err)
	}

	metadataDir := filepath.Join(root, MetadataDirName)
	logs := filepath.Join(metadataDir, logsDir)

	return &Workspace{
		Root:        root,
		MetadataDir: metadataDir,
		ConfigPath:  filepath.Join(metadataDir, configFile),
		JournalPath: filepath.Join(metadataDir, journalFile),
		LogsDir:     logs,
		LogPath:     filepath.Join(logs, logFile),
		IgnorePath:  filepath.Join(root, IgnoreFileName),
		EnvPath:     filepath.Join(root, envFile),
		flock:       flock.New(filepath.Join(metadataDir, lockFile)),
	}, nil
}

// Setup creates the metadata directories.
func (w *Workspace) Setup() error {
	for _, dir := range []string{w.MetadataDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Lock takes the push lock without blocking. A lock held by another process
// fails with ErrWorkspaceLocked.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

// Unlock releases the lock if this process holds it. The lock file stays.
func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}
	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock workspace: %w", err)
	}
	return nil
}

// LockPath is the lock file location.
func (w *Workspace) LockPath() string {
	return w.flock.Path()
}

// RelKey returns the object key of absPath relative to Root.
func (w *Workspace) RelKey(absPath string) (string, error) {
	rel, err := filepath.Rel(w.Root, absPath)
	if err != nil {
		return "", err
	}
	return utils.ToSlashKey(rel), nil
}
