package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stackvity/langnotes/internal/cli"
	"github.com/stackvity/langnotes/internal/cli/config"
	"github.com/stackvity/langnotes/pkg/converter"
)

// Set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd builds the langnotes command tree.
func newRootCmd() *cobra.Command {
	var (
		cfgFile     string
		profileName string
		verbose     bool
	)

	rootCmd := &cobra.Command{
		Use:   "langnotes -i <notesDir> -o <outputDir>",
		Short: "Renders language-learner notebooks to HTML pages.",
		Long: `langnotes scans a directory of notebooks (JSON, YAML or TOML lists of
note blocks) and renders every notebook to an HTML page.

Block content uses a small line-oriented markup: headers, examples,
paragraphs, separators, side-by-side columns and colour-coded dialogue.

It features:
  - Parallel rendering with a content-hash cache for fast reruns.
  - Custom page layouts via Go html templates.
  - An interactive Terminal UI (TUI) for monitoring progress.

Use "langnotes block" to render a single block from stdin.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			opts, logger, err := config.LoadAndValidate(cfgFile, profileName, version, verbose, cmd.Flags())
			if err != nil {
				return err
			}

			// Give the terminal a moment before bubbletea takes over stderr.
			if term.IsTerminal(int(os.Stderr.Fd())) && !verbose && opts.TuiEnabled {
				time.Sleep(100 * time.Millisecond)
			}

			return cli.Run(ctx, opts, logger, cmd.OutOrStdout())
		},
	}
	rootCmd.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is search ., $HOME/.config/langnotes/)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Name of configuration profile to use")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging output (disables TUI)")

	rootCmd.Flags().StringP("input", "i", "", "Required. Notebook directory path.")
	rootCmd.Flags().StringP("output", "o", "", "Required. Output directory path for HTML pages.")
	_ = rootCmd.MarkFlagRequired("input")
	_ = rootCmd.MarkFlagRequired("output")

	// Core behaviour
	rootCmd.Flags().Bool("no-tui", false, "Disable interactive Terminal UI even if in a TTY")
	rootCmd.Flags().StringArray("ignore", []string{}, "Glob patterns for files/directories to ignore (can be specified multiple times)")
	rootCmd.Flags().String("onError", string(converter.DefaultOnErrorMode), `Behaviour on notebook errors ("continue" or "stop")`)

	// Performance and caching
	rootCmd.Flags().Int("concurrency", converter.DefaultConcurrency, "Number of parallel workers (0 for auto-detect CPU cores)")
	rootCmd.Flags().Bool("no-cache", false, "Force re-rendering by ignoring cache reads (still writes cache)")
	rootCmd.Flags().Bool("clear-cache", false, "Delete the cache file before starting")
	rootCmd.Flags().String("cache-format", converter.DefaultCacheFormat, `Cache file encoding ("gob" or "json")`)

	// Output
	rootCmd.Flags().String("output-format", string(converter.DefaultOutputFormat), `Final report format ("text", "json")`)
	rootCmd.Flags().String("template", "", "Path to a custom html/template page layout")

	// File handling
	rootCmd.Flags().Int64("large-file-threshold", converter.DefaultLargeFileThresholdMB, "File size threshold in Megabytes (MB); 0 disables the check")
	rootCmd.Flags().String("large-file-mode", string(converter.DefaultLargeFileMode), `Mode for large files ("skip", "error")`)
	rootCmd.Flags().String("binary-mode", string(converter.DefaultBinaryMode), `Mode for binary files ("skip", "error")`)
	rootCmd.Flags().String("encoding", "", "Fallback charset for notebooks without a BOM or meta charset (default utf-8)")

	// Markup
	rootCmd.Flags().String("digest", converter.DefaultColorDigest, `Speaker colour digest ("sha1", "sha256", "blake3")`)
	rootCmd.Flags().Bool("allow-inline-html", converter.DefaultAllowInlineHTML, "Write block text through without HTML escaping")
	rootCmd.Flags().Bool("no-schema", false, "Skip JSON Schema validation of notebooks")

	rootCmd.AddCommand(newBlockCmd())
	return rootCmd
}

// Execute runs the root command and exits non-zero when it fails.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
