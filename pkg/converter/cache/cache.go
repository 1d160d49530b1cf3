// Package cache keeps a file-backed index of rendered notebooks so unchanged
// documents can be skipped on the next run.
package cache

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the default name of the index file, placed in the output directory.
const FileName = ".langnotes.cache"

// SchemaVersion is the layout version of Entry and the index file.
const SchemaVersion = "1.1"

// devVersion matches any tool version on either side of a comparison.
const devVersion = "dev"

var (
	// ErrCacheLoad is returned when the index exists but cannot be opened.
	// Corrupt or stale indexes are not errors; they load as empty.
	ErrCacheLoad = errors.New("failed to load cache index")

	// ErrCachePersist is returned when the index cannot be written.
	ErrCachePersist = errors.New("failed to persist cache index")
)

// Entry is the stored state of one rendered document.
type Entry struct {
	SourceModTime time.Time `json:"sourceModTime"`
	SourceHash    string    `json:"sourceHash"`
	ConfigHash    string    `json:"configHash"`
	OutputHash    string    `json:"outputHash"`
	Format        string    `json:"format"`
	BlockCount    int       `json:"blockCount"`
	SchemaVersion string    `json:"schemaVersion"`
	ToolVersion   string    `json:"toolVersion"`
}

// Output describes a rendered page as recorded by Update.
type Output struct {
	Hash       string
	Format     string
	BlockCount int
}

// Header precedes the index in the cache file.
type Header struct {
	SchemaVersion string `json:"schemaVersion"`
	ToolVersion   string `json:"toolVersion"`
}

// CacheManager loads, queries and persists the document index.
// Check and Update must be safe for concurrent use by workers.
type CacheManager interface {
	Load(cachePath string) error
	Check(relPath string, modTime time.Time, sourceHash, configHash string) (hit bool, entry Entry)
	Update(relPath string, modTime time.Time, sourceHash, configHash string, out Output) error
	Persist(cachePath string) error
}

type fileCacheManager struct {
	mu            sync.RWMutex
	index         map[string]Entry
	logger        *slog.Logger
	schemaVersion string
	toolVersion   string
	codec         codec
}

// NewFileCacheManager returns a CacheManager persisted with the named format
// ("gob" or "json"; anything else falls back to gob).
func NewFileCacheManager(handler slog.Handler, toolVersion, format string) CacheManager {
	if handler == nil {
		handler = slog.NewTextHandler(io.Discard, nil)
	}
	c := codecFor(format)
	if toolVersion == "" {
		toolVersion = devVersion
	}
	return &fileCacheManager{
		index: make(map[string]Entry),
		logger: slog.New(handler).With(
			slog.String("component", "cacheManager"),
			slog.String("format", c.name()),
		),
		schemaVersion: SchemaVersion,
		toolVersion:   toolVersion,
		codec:         c,
	}
}

func (c *fileCacheManager) versionsCompatible(schema, tool string) bool {
	if schema != c.schemaVersion {
		return false
	}
	return c.toolVersion == devVersion || tool == devVersion || tool == c.toolVersion
}

// Load replaces the in-memory index with the one stored at cachePath. A
// missing, empty, corrupt or version-mismatched file yields an empty index.
func (c *fileCacheManager) Load(cachePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]Entry)

	f, err := os.Open(cachePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("No cache file, starting empty", slog.String("path", cachePath))
			return nil
		}
		c.logger.Error("Cannot open cache file", slog.String("path", cachePath), slog.String("error", err.Error()))
		return fmt.Errorf("%w: open '%s': %w", ErrCacheLoad, cachePath, err)
	}
	defer f.Close()

	header, index, err := c.codec.decode(f)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			c.logger.Warn("Cache file is empty or truncated, ignoring", slog.String("path", cachePath))
		} else {
			c.logger.Warn("Cache file is unreadable, ignoring", slog.String("path", cachePath), slog.String("error", err.Error()))
		}
		return nil
	}
	if !c.versionsCompatible(header.SchemaVersion, header.ToolVersion) {
		c.logger.Warn("Cache file version mismatch, ignoring",
			slog.String("path", cachePath),
			slog.String("fileSchema", header.SchemaVersion),
			slog.String("fileTool", header.ToolVersion),
			slog.String("tool", c.toolVersion),
		)
		return nil
	}
	if index != nil {
		c.index = index
	}
	c.logger.Info("Cache loaded", slog.String("path", cachePath), slog.Int("entries", len(c.index)))
	return nil
}

// Check reports whether relPath was rendered from the same source and
// configuration, returning the stored entry on a hit.
func (c *fileCacheManager) Check(relPath string, modTime time.Time, sourceHash, configHash string) (bool, Entry) {
	c.mu.RLock()
	entry, ok := c.index[relPath]
	c.mu.RUnlock()

	reason := ""
	switch {
	case !ok:
		reason = "not found"
	case !c.versionsCompatible(entry.SchemaVersion, entry.ToolVersion):
		reason = "version"
	case !entry.SourceModTime.Equal(modTime):
		reason = "modTime"
	case entry.SourceHash != sourceHash:
		reason = "sourceHash"
	case entry.ConfigHash != configHash:
		reason = "configHash"
	}
	if reason != "" {
		c.logger.Debug("Cache miss", slog.String("path", relPath), slog.String("reason", reason))
		return false, Entry{}
	}
	c.logger.Debug("Cache hit", slog.String("path", relPath))
	return true, entry
}

// Update records the state of a freshly rendered document.
func (c *fileCacheManager) Update(relPath string, modTime time.Time, sourceHash, configHash string, out Output) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index[relPath] = Entry{
		SourceModTime: modTime,
		SourceHash:    sourceHash,
		ConfigHash:    configHash,
		OutputHash:    out.Hash,
		Format:        out.Format,
		BlockCount:    out.BlockCount,
		SchemaVersion: c.schemaVersion,
		ToolVersion:   c.toolVersion,
	}
	return nil
}

// Persist writes the index to cachePath through a temporary file and rename.
// An empty index removes the file instead.
func (c *fileCacheManager) Persist(cachePath string) error {
	c.mu.RLock()
	snapshot := make(map[string]Entry, len(c.index))
	for k, v := range c.index {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	if len(snapshot) == 0 {
		if err := os.Remove(cachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Failed to remove empty cache file", slog.String("path", cachePath), slog.String("error", err.Error()))
		}
		return nil
	}

	dir := filepath.Dir(cachePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create '%s': %w", ErrCachePersist, dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(cachePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file in '%s': %w", ErrCachePersist, dir, err)
	}
	tmpPath := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmpPath)
		}
	}()

	header := Header{SchemaVersion: c.schemaVersion, ToolVersion: c.toolVersion}
	if err := c.codec.encode(tmp, header, snapshot); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: encode %s: %w", ErrCachePersist, c.codec.name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close '%s': %w", ErrCachePersist, tmpPath, err)
	}
	if err := os.Rename(tmpPath, cachePath); err != nil {
		return fmt.Errorf("%w: rename to '%s': %w", ErrCachePersist, cachePath, err)
	}
	renamed = true

	c.logger.Info("Cache persisted", slog.String("path", cachePath), slog.Int("entries", len(snapshot)))
	return nil
}

// NoOpCacheManager never hits and never stores anything.
type NoOpCacheManager struct{}

func (NoOpCacheManager) Load(string) error { return nil }

func (NoOpCacheManager) Check(string, time.Time, string, string) (bool, Entry) { return false, Entry{} }

func (NoOpCacheManager) Update(string, time.Time, string, string, Output) error { return nil }

func (NoOpCacheManager) Persist(string) error { return nil }
