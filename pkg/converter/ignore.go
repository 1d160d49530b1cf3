package converter

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is looked up from the input directory towards the root; its
// gitignore-style patterns are relative to the directory containing it.
const IgnoreFileName = ".langnotesignore"

type ignoreMatcher struct {
	patterns []ignorePattern
	basePath string
	logger   *slog.Logger
}

type ignorePattern struct {
	pattern     string
	origPattern string
	negated     bool
	isDirOnly   bool
	isRooted    bool
	baseAbsPath string
}

func newIgnoreMatcher(inputPath string, configPatterns []string, logger *slog.Logger) (*ignoreMatcher, error) {
	absInput, err := filepath.Abs(inputPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path for input: %w", err)
	}
	m := &ignoreMatcher{
		basePath: absInput,
		logger:   logger.With(slog.String("component", "ignoreMatcher")),
	}

	ignoreFile, err := findIgnoreFile(absInput)
	if err != nil {
		m.logger.Warn("Error searching for ignore file", slog.String("error", err.Error()))
	}
	if ignoreFile != "" {
		filePatterns, err := loadPatternsFromFile(ignoreFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load ignore file %s: %w", ignoreFile, err)
		}
		m.addPatterns(filePatterns, filepath.Dir(ignoreFile))
		m.logger.Debug("Loaded patterns from ignore file", slog.String("path", ignoreFile), slog.Int("count", len(filePatterns)))
	}
	m.addPatterns(configPatterns, absInput)
	return m, nil
}

func findIgnoreFile(absStart string) (string, error) {
	current := absStart
	for {
		candidate := filepath.Join(current, IgnoreFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("error checking for ignore file at %s: %w", candidate, err)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", nil
		}
		current = parent
	}
}

func loadPatternsFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file %s: %w", path, err)
	}
	return patterns, nil
}

func (m *ignoreMatcher) addPatterns(raw []string, baseAbsPath string) {
	for _, r := range raw {
		p := ignorePattern{origPattern: r, baseAbsPath: baseAbsPath}
		s := r
		if strings.HasPrefix(s, "!") {
			p.negated = true
			s = s[1:]
		}
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "/") {
			p.isRooted = true
			s = strings.TrimPrefix(s, "/")
		}
		if strings.HasSuffix(s, "/") {
			p.isDirOnly = true
			s = strings.TrimSuffix(s, "/")
		}
		p.pattern = filepath.ToSlash(s)
		if p.pattern != "" {
			m.patterns = append(m.patterns, p)
		}
	}
}

// match applies the patterns in order; the last matching one wins. It
// returns the deciding pattern when the path is ignored.
func (m *ignoreMatcher) match(rel string, isDir bool) (string, bool) {
	ignored := false
	decisive := ""
	for _, p := range m.patterns {
		if p.isDirOnly && !isDir {
			continue
		}
		if matchesGitignore(p.pattern, p.baseAbsPath, m.basePath, rel, p.isRooted) {
			ignored = !p.negated
			decisive = p.origPattern
		}
	}
	if !ignored {
		return "", false
	}
	return decisive, true
}

func (m *ignoreMatcher) patternCount() int {
	return len(m.patterns)
}

// matchesGitignore reports whether rel (relative to walkBase) matches a
// pattern defined in patternBase. Unrooted patterns also match any trailing
// run of path segments. This is filepath.Match based and does not implement
// "**".
func matchesGitignore(pattern, patternBase, walkBase, rel string, rooted bool) bool {
	rel = filepath.ToSlash(rel)
	if pattern == "" || rel == "" || rel == "." {
		return false
	}
	fromBase, err := filepath.Rel(patternBase, filepath.Join(walkBase, rel))
	if err != nil {
		return false
	}
	fromBase = filepath.ToSlash(fromBase)
	if ok, _ := filepath.Match(pattern, fromBase); ok {
		return true
	}
	if rooted {
		return false
	}
	parts := strings.Split(fromBase, "/")
	for i := 1; i < len(parts); i++ {
		if ok, _ := filepath.Match(pattern, strings.Join(parts[i:], "/")); ok {
			return true
		}
	}
	ok, _ := filepath.Match(pattern, rel)
	return ok
}
