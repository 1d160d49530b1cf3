package converter

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesGitignore(t *testing.T) {
	base := filepath.FromSlash("/home/learner/notes")
	sub := filepath.Join(base, "german")

	testCases := []struct {
		name        string
		pattern     string
		patternBase string
		rel         string
		rooted      bool
		want        bool
	}{
		{"exact name", "draft.json", base, "draft.json", false, true},
		{"glob in subdir", "*.bak", base, "german/a1.bak", false, true},
		{"unrooted dir name", "archive", base, "german/archive", false, true},
		{"no match", "*.tmp", base, "german/a1.yaml", false, false},
		{"rooted at top", "draft.json", base, "draft.json", true, true},
		{"rooted does not match deeper", "draft.json", base, "german/draft.json", true, false},
		{"pattern from nested ignore file", "*.yaml", sub, "german/a1.yaml", false, true},
		{"nested rooted pattern", "a1.yaml", sub, "german/a1.yaml", true, true},
		{"nested pattern outside its dir", "a1.yaml", sub, "french/a1.yaml", true, false},
		{"multi segment", "german/old", base, "german/old", false, true},
		{"empty pattern", "", base, "x", false, false},
		{"root path", "*", base, ".", false, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, matchesGitignore(tc.pattern, tc.patternBase, base, tc.rel, tc.rooted))
		})
	}
}

func TestIgnoreMatcher_OrderAndNegation(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	m, err := newIgnoreMatcher(dir, []string{"*.yaml", "!keep.yaml", "drafts/", "/top.json"}, logger)
	require.NoError(t, err)
	assert.Equal(t, 4, m.patternCount())

	testCases := []struct {
		rel     string
		isDir   bool
		ignored bool
		pattern string
	}{
		{"a.yaml", false, true, "*.yaml"},
		{"keep.yaml", false, false, ""},
		{"drafts", true, true, "drafts/"},
		{"drafts", false, false, ""},
		{"top.json", false, true, "/top.json"},
		{"sub/top.json", false, false, ""},
		{"lesson.json", false, false, ""},
	}
	for _, tc := range testCases {
		pattern, ignored := m.match(tc.rel, tc.isDir)
		assert.Equal(t, tc.ignored, ignored, tc.rel)
		assert.Equal(t, tc.pattern, pattern, tc.rel)
	}
}

func TestIgnoreMatcher_FileFoundAbove(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "notes", "german")
	require.NoError(t, os.MkdirAll(input, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes", IgnoreFileName), []byte("# comment\n\n/german/scratch.json\n*.bak\n"), 0o644))

	m, err := newIgnoreMatcher(input, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, 2, m.patternCount())

	_, ignored := m.match("scratch.json", false)
	assert.True(t, ignored, "rooted pattern resolves against the ignore file's directory")
	_, ignored = m.match("deep/x.bak", false)
	assert.True(t, ignored)
	_, ignored = m.match("lesson.json", false)
	assert.False(t, ignored)
}
