// Package converter renders a directory of language-learning notebooks
// (JSON, YAML or TOML block documents) into a mirrored tree of HTML pages.
package converter

import (
	"context"
	"fmt"
	"log/slog"
)

// ConvertNotes is the library entry point. It validates opts, runs the
// engine and returns the report; see Engine.Run for when the error is set.
func ConvertNotes(ctx context.Context, opts Options) (Report, error) {
	if opts.Logger == nil {
		return Report{}, fmt.Errorf("%w: Logger implementation cannot be nil", ErrConfigValidation)
	}
	logger := slog.New(opts.Logger)

	if opts.EventHooks == nil {
		return Report{}, fmt.Errorf("%w: EventHooks implementation cannot be nil (use NoOpHooks if needed)", ErrConfigValidation)
	}
	if opts.InputPath == "" {
		err := fmt.Errorf("%w: input path cannot be empty", ErrConfigValidation)
		logger.Error(err.Error())
		return Report{}, err
	}
	if opts.OutputPath == "" {
		err := fmt.Errorf("%w: output path cannot be empty", ErrConfigValidation)
		logger.Error(err.Error())
		return Report{}, err
	}

	version := opts.AppVersion
	if version == "" {
		version = "dev"
	}
	logger.Info("Starting langnotes conversion", slog.String("version", version))

	engine, err := NewEngine(ctx, opts)
	if err != nil {
		logger.Error("Engine initialization failed", slog.String("error", err.Error()))
		return Report{}, err
	}
	return engine.Run()
}
