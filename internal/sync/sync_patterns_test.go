package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatcher(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		key     string
		want    bool
	}{
		{"empty include matches all", nil, nil, "a/b/c.md", true},
		{"default include root file", DefaultInclude, nil, "a.txt", true},
		{"include by extension", []string{"**/*.md"}, nil, "entries/2024/day.md", true},
		{"include by extension at root", []string{"**/*.md"}, nil, "day.md", true},
		{"include misses", []string{"**/*.md"}, nil, "events.jsonl", false},
		{"base name include", []string{"*.jsonl"}, nil, "logs/events.jsonl", true},
		{"exclude wins over include", []string{"**/*.md"}, []string{"drafts/**"}, "drafts/a.md", false},
		{"base name exclude", nil, []string{"*.bak"}, "a/b/c.bak", false},
		{"anchored exclude", nil, []string{"build/*"}, "src/build/a.txt", true},
		{"anchored exclude hit", nil, []string{"build/*"}, "build/a.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewPatternMatcher(tt.include, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.key))
		})
	}
}

func TestPatternMatcherRejectsBadGlobs(t *testing.T) {
	_, err := NewPatternMatcher([]string{"[abc"}, nil)
	assert.ErrorContains(t, err, "include")

	_, err = NewPatternMatcher(nil, []string{""})
	assert.ErrorContains(t, err, "exclude")

	assert.NoError(t, ValidatePatterns([]string{"**/*.md", "a/{b,c}/*"}))
}
