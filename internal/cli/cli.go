// Package cli runs a batch conversion for the langnotes command and
// presents its progress and report.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/stackvity/langnotes/internal/cli/hooks"
	"github.com/stackvity/langnotes/internal/cli/ui"
	"github.com/stackvity/langnotes/pkg/converter"
)

var isTerminal = func(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Run converts opts.InputPath and writes the report to out. The TUI is used
// when enabled and stderr is a terminal; otherwise a progress bar (on a
// terminal) or the logger reports progress. The text report is skipped when
// the TUI already showed the summary.
func Run(ctx context.Context, opts converter.Options, logger *slog.Logger, out io.Writer) error {
	mode := hooks.ModeLog
	switch {
	case opts.TuiEnabled && isTerminal(os.Stderr):
		mode = hooks.ModeTUI
	case !opts.Verbose && isTerminal(os.Stderr):
		mode = hooks.ModeProgress
	}

	var (
		report converter.Report
		runErr error
	)
	switch mode {
	case hooks.ModeTUI:
		report, runErr = runWithTUI(ctx, opts, logger)
	case hooks.ModeProgress:
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("rendering"),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
		opts.EventHooks = hooks.NewCLIHooks(logger, hooks.Options{Mode: hooks.ModeProgress, Bar: bar, BarOut: os.Stderr})
		report, runErr = converter.ConvertNotes(ctx, opts)
	default:
		opts.EventHooks = hooks.NewCLIHooks(logger, hooks.Options{Verbose: opts.Verbose})
		report, runErr = converter.ConvertNotes(ctx, opts)
	}

	if mode != hooks.ModeTUI || opts.OutputFormat == converter.OutputFormatJSON {
		if err := converter.WriteReport(out, report, opts.OutputFormat); err != nil {
			logger.Error("Failed to write report", slog.String("error", err.Error()))
			if runErr == nil {
				runErr = fmt.Errorf("write report: %w", err)
			}
		}
	}
	if runErr != nil {
		logger.Error("Conversion failed", slog.String("error", runErr.Error()))
		return runErr
	}
	logger.Debug("Conversion finished",
		slog.Int("rendered", report.Summary.ProcessedCount-report.Summary.CachedCount),
		slog.Int("cached", report.Summary.CachedCount),
		slog.Int("errors", report.Summary.ErrorCount),
	)
	return nil
}

// runWithTUI runs the conversion behind the bubbletea view. Quitting the
// view cancels the conversion; a finished conversion closes the view.
func runWithTUI(ctx context.Context, opts converter.Options, logger *slog.Logger) (converter.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(opts.AppVersion)
	program := tea.NewProgram(&model, tea.WithContext(ctx), tea.WithOutput(os.Stderr))
	opts.EventHooks = hooks.NewCLIHooks(logger, hooks.Options{Mode: hooks.ModeTUI, Program: program})

	type result struct {
		report converter.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := converter.ConvertNotes(ctx, opts)
		done <- result{report, err}
		program.Quit()
	}()

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		logger.Warn("TUI exited with an error", slog.String("error", err.Error()))
	}
	cancel()
	res := <-done
	return res.report, res.err
}
