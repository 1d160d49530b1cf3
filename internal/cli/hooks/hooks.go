// Package hooks bridges converter events to the terminal: a bubbletea
// program, a progress bar or the logger.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stackvity/langnotes/pkg/converter"
)

// FileDiscoveredMsg is sent to the TUI when the walker finds a path.
type FileDiscoveredMsg struct{ Path string }

// FileStatusUpdateMsg is sent to the TUI when a notebook changes state.
type FileStatusUpdateMsg struct {
	Path     string
	Status   converter.Status
	Message  string
	Duration time.Duration
}

// RunCompleteMsg carries the final report to the TUI.
type RunCompleteMsg struct{ Report converter.Report }

// TUIProgram is the part of *tea.Program the hooks use.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// ProgressBar is the part of *progressbar.ProgressBar the hooks use.
type ProgressBar interface {
	Add(num int) error
	Describe(description string)
	Close() error
}

// Mode selects where CLIHooks sends events.
type Mode int

const (
	// ModeLog logs failures only, or every event at debug level when verbose.
	ModeLog Mode = iota
	// ModeProgress advances a progress bar on every final status.
	ModeProgress
	// ModeTUI forwards every event to the bubbletea program.
	ModeTUI
)

// CLIHooks implements converter.Hooks for the langnotes command.
type CLIHooks struct {
	logger      *slog.Logger
	mode        Mode
	verbose     bool
	tuiProgram  TUIProgram
	progressBar ProgressBar
	barOut      io.Writer

	mu sync.Mutex
}

// Options configures NewCLIHooks. Program is required for ModeTUI and Bar
// for ModeProgress; without them the hooks fall back to ModeLog.
type Options struct {
	Mode    Mode
	Verbose bool
	Program TUIProgram
	Bar     ProgressBar
	// BarOut receives the newline written after the bar closes.
	BarOut io.Writer
}

// NewCLIHooks returns hooks that log through logger.
func NewCLIHooks(logger *slog.Logger, opts Options) *CLIHooks {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	mode := opts.Mode
	if mode == ModeTUI && opts.Program == nil {
		mode = ModeLog
	}
	if mode == ModeProgress && opts.Bar == nil {
		mode = ModeLog
	}
	barOut := opts.BarOut
	if barOut == nil {
		barOut = io.Discard
	}
	return &CLIHooks{
		logger:      logger.With(slog.String("component", "cliHooks")),
		mode:        mode,
		verbose:     opts.Verbose,
		tuiProgram:  opts.Program,
		progressBar: opts.Bar,
		barOut:      barOut,
	}
}

// Mode reports the mode the hooks actually run in.
func (h *CLIHooks) Mode() Mode {
	return h.mode
}

func (h *CLIHooks) OnFileDiscovered(p string) error {
	switch {
	case h.mode == ModeTUI:
		h.tuiProgram.Send(FileDiscoveredMsg{Path: p})
	case h.verbose:
		h.logger.Debug("Notebook discovered", slog.String("path", p))
	}
	return nil
}

// OnFileStatusUpdate is called concurrently by the engine workers.
func (h *CLIHooks) OnFileStatusUpdate(p string, status converter.Status, message string, duration time.Duration) error {
	switch h.mode {
	case ModeTUI:
		h.tuiProgram.Send(FileStatusUpdateMsg{Path: p, Status: status, Message: message, Duration: duration})
		return nil
	case ModeProgress:
		if isFinal(status) {
			h.mu.Lock()
			h.progressBar.Describe(path.Base(p))
			_ = h.progressBar.Add(1)
			h.mu.Unlock()
		}
	}

	if status == converter.StatusFailed {
		h.logger.Error("Notebook failed", slog.String("path", p), slog.String("error", message))
		return nil
	}
	if !h.verbose || h.mode == ModeProgress {
		return nil
	}

	level := slog.LevelDebug
	if isFinal(status) {
		level = slog.LevelInfo
	}
	attrs := []slog.Attr{slog.String("path", p), slog.String("status", string(status))}
	if duration > 0 {
		attrs = append(attrs, slog.Duration("duration", duration))
	}
	if message != "" {
		attrs = append(attrs, slog.String("message", message))
	}
	h.logger.LogAttrs(context.Background(), level, "Notebook status updated", attrs...)
	return nil
}

func (h *CLIHooks) OnRunComplete(report converter.Report) error {
	switch h.mode {
	case ModeTUI:
		h.tuiProgram.Send(RunCompleteMsg{Report: report})
	case ModeProgress:
		h.mu.Lock()
		_ = h.progressBar.Close()
		h.mu.Unlock()
		_, _ = fmt.Fprintln(h.barOut)
	}
	return nil
}

func isFinal(s converter.Status) bool {
	switch s {
	case converter.StatusSuccess, converter.StatusFailed, converter.StatusSkipped, converter.StatusCached:
		return true
	}
	return false
}
