package sync

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultInclude matches every file.
var DefaultInclude = []string{"**/*"}

// PatternMatcher decides which keys are sync-relevant. Patterns are doublestar
// globs over forward-slash keys. A pattern without "/" also matches the key's
// base name, so "*.tmp" excludes "a/b/c.tmp".
type PatternMatcher struct {
	include []string
	exclude []string
}

// ValidatePatterns reports the first malformed glob.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if p == "" || !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return nil
}

// NewPatternMatcher validates the globs. An empty include list includes everything.
func NewPatternMatcher(include, exclude []string) (*PatternMatcher, error) {
	if len(include) == 0 {
		include = DefaultInclude
	}
	if err := ValidatePatterns(include); err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	if err := ValidatePatterns(exclude); err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	return &PatternMatcher{include: include, exclude: exclude}, nil
}

// Match reports whether key is included. Exclusion is evaluated first.
func (m *PatternMatcher) Match(key string) bool {
	if m.Excluded(key) {
		return false
	}
	return matchAny(m.include, key)
}

func (m *PatternMatcher) Excluded(key string) bool {
	return matchAny(m.exclude, key)
}

func matchAny(patterns []string, key string) bool {
	base := path.Base(key)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, key); ok {
			return true
		}
		if !strings.Contains(p, "/") {
			if ok, _ := doublestar.Match(p, base); ok {
				return true
			}
		}
	}
	return false
}
