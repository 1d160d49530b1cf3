package converter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Walker traverses the input directory, applies ignore rules and dispatches
// notebook paths to the worker pool.
type Walker struct {
	opts                 *Options
	workerChan           chan<- string
	wg                   *sync.WaitGroup
	hooks                Hooks
	logger               *slog.Logger
	ignoreMatcher        *ignoreMatcher
	dispatchWarnDuration time.Duration
}

// NewWalker creates a Walker. workerChan is closed when the walk ends.
func NewWalker(opts *Options, workerChan chan<- string, wg *sync.WaitGroup, loggerHandler slog.Handler) (*Walker, error) {
	logger := slog.New(loggerHandler).With(slog.String("component", "walker"))
	matcher, err := newIgnoreMatcher(opts.InputPath, opts.IgnorePatterns, logger)
	if err != nil {
		logger.Error("Failed to initialize ignore pattern matcher", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to initialize ignore patterns: %w", err)
	}
	logger.Debug("Ignore patterns loaded", slog.Int("count", matcher.patternCount()))

	warn := opts.DispatchWarnThreshold
	if warn <= 0 {
		warn = time.Second
	}
	return &Walker{
		opts:                 opts,
		workerChan:           workerChan,
		wg:                   wg,
		hooks:                opts.EventHooks,
		logger:               logger,
		ignoreMatcher:        matcher,
		dispatchWarnDuration: warn,
	}, nil
}

// StartWalk walks the input tree until done or ctx is cancelled.
func (w *Walker) StartWalk(ctx context.Context) error {
	w.logger.Info("Starting directory walk", slog.String("path", w.opts.InputPath))
	walkErr := filepath.WalkDir(w.opts.InputPath, w.walkFunc(ctx))
	close(w.workerChan)
	w.logger.Debug("Worker channel closed")
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			w.logger.Info("Directory walk cancelled", slog.String("reason", walkErr.Error()))
			return walkErr
		}
		w.logger.Error("Directory walk failed", slog.String("error", walkErr.Error()))
		return fmt.Errorf("directory walk failed: %w", walkErr)
	}
	w.logger.Info("Directory walk completed")
	return nil
}

func (w *Walker) walkFunc(ctx context.Context) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("Error accessing path during walk", slog.String("path", path), slog.String("error", err.Error()))
			if path == w.opts.InputPath && os.IsPermission(err) {
				return fmt.Errorf("permission denied reading input directory %q: %w", path, err)
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			w.logger.Debug("Skipping symbolic link", slog.String("path", path))
			return nil
		}

		absPath, err := filepath.Abs(path)
		if err != nil {
			w.logger.Warn("Could not get absolute path", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		// Output nested inside the input tree must not be read back.
		if d.IsDir() && absPath == w.opts.OutputPath && absPath != w.opts.InputPath {
			w.logger.Debug("Skipping output directory", slog.String("path", absPath))
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(w.opts.InputPath, absPath)
		if err != nil {
			w.logger.Warn("Could not calculate relative path", slog.String("path", absPath), slog.String("error", err.Error()))
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if !d.IsDir() && d.Name() == IgnoreFileName {
			return nil
		}

		w.hook("OnFileDiscovered", rel, w.hooks.OnFileDiscovered(rel))

		isDir := d.IsDir()
		if pattern, ignored := w.ignoreMatcher.match(rel, isDir); ignored {
			w.logger.Debug("Path ignored", slog.String("path", rel), slog.Bool("isDir", isDir), slog.String("pattern", pattern))
			w.hook("OnFileStatusUpdate", rel, w.hooks.OnFileStatusUpdate(rel, StatusSkipped, "Ignored by pattern: "+pattern, 0))
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}
		if isDir {
			return nil
		}
		return w.dispatch(ctx, rel, absPath)
	}
}

// dispatch sends absPath to the workers, warning once when they are slow to
// accept it.
func (w *Walker) dispatch(ctx context.Context, rel, absPath string) error {
	w.logger.Debug("Dispatching file to worker channel", slog.String("path", rel))
	timer := time.NewTimer(w.dispatchWarnDuration)
	defer timer.Stop()
	select {
	case w.workerChan <- absPath:
		return nil
	case <-timer.C:
		w.logger.Warn("Worker channel dispatch blocked, workers might be busy or pool too small",
			slog.String("path", rel), slog.Duration("threshold", w.dispatchWarnDuration))
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case w.workerChan <- absPath:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Walker) hook(name, path string, err error) {
	if err != nil {
		w.logger.Warn("Event hook failed", slog.String("hook", name), slog.String("path", path), slog.String("error", err.Error()))
	}
}
