package sync

import (
	"bufio"
	"log/slog"
	"os"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/openmined/journalsync/internal/utils"
)

// directory lines only match paths with a trailing "/"
var defaultIgnoreLines = []string{
	// housekeeping dirs
	"**/.*/",
	"**/__pycache__/",
	"**/node_modules/",
	"**/*.lock/",
	"**/.journalsync/",
	// secrets
	".env",
	// staging and editor files
	"*" + utils.TempFilePattern,
	"*.tmp",
	"*.swp",
	"*~",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList holds the gitignore-style rules applied before include/exclude
// patterns. Ignored directories are pruned before recursion.
type IgnoreList struct {
	ignore *gitignore.GitIgnore
	rules  int
}

// NewIgnoreList compiles the default rules plus extra lines.
func NewIgnoreList(extra ...string) *IgnoreList {
	lines := append(append([]string{}, defaultIgnoreLines...), extra...)
	return &IgnoreList{
		ignore: gitignore.CompileIgnoreLines(lines...),
		rules:  len(lines),
	}
}

// LoadIgnoreList compiles the defaults plus the lines of ignoreFile, if it exists.
func LoadIgnoreList(ignoreFile string) *IgnoreList {
	var extra []string
	if ignoreFile != "" && utils.FileExists(ignoreFile) {
		file, err := os.Open(ignoreFile)
		if err != nil {
			slog.Warn("ignore file open", "path", ignoreFile, "error", err)
			return NewIgnoreList()
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				extra = append(extra, line)
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("ignore file read", "path", ignoreFile, "error", err)
		} else {
			slog.Debug("ignore file loaded", "path", ignoreFile, "rules", len(extra))
		}
	}
	return NewIgnoreList(extra...)
}

// IgnoreDir reports whether the directory at key should be pruned.
func (l *IgnoreList) IgnoreDir(key string) bool {
	return l.ignore.MatchesPath(strings.TrimSuffix(key, "/") + "/")
}

// IgnoreFile reports whether the file at key should be skipped.
func (l *IgnoreList) IgnoreFile(key string) bool {
	return l.ignore.MatchesPath(key)
}

// Rules is the number of compiled lines.
func (l *IgnoreList) Rules() int {
	return l.rules
}
