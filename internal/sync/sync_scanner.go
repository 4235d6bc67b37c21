package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openmined/journalsync/internal/utils"
	"github.com/openmined/journalsync/internal/workspace"
)

// LocalFileRecord is one scanned file. Records are rebuilt on every scan and
// never mutated after Scan returns.
type LocalFileRecord struct {
	AbsPath     string    `json:"-"`
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"hash"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

// FileScanner walks a base directory and returns the records of every regular
// file selected by the include and exclude globs, sorted by key.
type FileScanner interface {
	Scan(ctx context.Context, basePath string, include, exclude []string) ([]*LocalFileRecord, error)
}

// LocalScanner is the FileScanner for the local filesystem. Housekeeping
// directories are pruned before recursion and files are hashed by a bounded
// pool of workers.
type LocalScanner struct {
	// HashWorkers bounds concurrent hashing. Zero means GOMAXPROCS.
	HashWorkers int
	// Ignore overrides the rules loaded from "<base>/.journalsyncignore".
	Ignore *IgnoreList
}

func NewLocalScanner() *LocalScanner {
	return &LocalScanner{}
}

type scanCandidate struct {
	absPath string
	key     string
	modTime time.Time
}

// Scan fails only when basePath itself cannot be read. Unreadable entries
// below it are logged and skipped.
func (s *LocalScanner) Scan(ctx context.Context, basePath string, include, exclude []string) ([]*LocalFileRecord, error) {
	matcher, err := NewPatternMatcher(include, exclude)
	if err != nil {
		return nil, configError("%w", err)
	}

	root, err := filepath.Abs(basePath)
	if err != nil {
		return nil, newSyncError(KindScanFailed, basePath, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, newSyncError(KindScanFailed, root, err)
	}
	if !info.IsDir() {
		return nil, newSyncError(KindScanFailed, root, fmt.Errorf("not a directory"))
	}

	ignore := s.Ignore
	if ignore == nil {
		ignore = LoadIgnoreList(filepath.Join(root, workspace.IgnoreFileName))
	}

	candidates, err := s.walk(ctx, root, ignore, matcher)
	if err != nil {
		return nil, newSyncError(KindScanFailed, root, err)
	}

	records, err := s.hash(ctx, candidates)
	if err != nil {
		return nil, newSyncError(KindScanFailed, root, err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (s *LocalScanner) walk(ctx context.Context, root string, ignore *IgnoreList, matcher *PatternMatcher) ([]scanCandidate, error) {
	var candidates []scanCandidate

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if path == root {
				return walkErr
			}
			slog.Warn("scan", "op", "SKIPPED", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		key := utils.ToSlashKey(rel)

		if d.IsDir() {
			if ignore.IgnoreDir(key) {
				slog.Debug("scan", "op", "PRUNED", "path", key)
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if ignore.IgnoreFile(key) || !matcher.Match(key) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			slog.Warn("scan", "op", "SKIPPED", "path", key, "error", err)
			return nil
		}

		candidates = append(candidates, scanCandidate{
			absPath: path,
			key:     key,
			modTime: fi.ModTime().UTC(),
		})
		return nil
	})

	return candidates, err
}

func (s *LocalScanner) hash(ctx context.Context, candidates []scanCandidate) ([]*LocalFileRecord, error) {
	workers := s.HashWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// each worker owns one slot, so no locking is needed
	slots := make([]*LocalFileRecord, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			digest, size, err := HashFile(c.absPath)
			if err != nil {
				slog.Warn("scan", "op", "SKIPPED", "path", c.key, "error", err)
				return nil
			}
			slots[i] = &LocalFileRecord{
				AbsPath:     c.absPath,
				Key:         c.key,
				Size:        size,
				ContentHash: digest,
				ModifiedAt:  c.modTime,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]*LocalFileRecord, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			records = append(records, r)
		}
	}
	return records, nil
}

var _ FileScanner = (*LocalScanner)(nil)
