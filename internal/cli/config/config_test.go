package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/langnotes/pkg/converter"
	"github.com/stackvity/langnotes/pkg/converter/cache"
	"github.com/stackvity/langnotes/pkg/markup/palette"
	"github.com/stackvity/langnotes/pkg/notes"
)

// defineFlags mirrors the flags registered by cmd/langnotes.
func defineFlags(flags *pflag.FlagSet) {
	flags.StringP("input", "i", "", "")
	flags.StringP("output", "o", "", "")
	flags.String("config", "", "")
	flags.String("profile", "", "")
	flags.BoolP("verbose", "v", false, "")

	flags.Bool("no-tui", false, "")
	flags.StringArray("ignore", []string{}, "")
	flags.String("onError", string(converter.DefaultOnErrorMode), "")
	flags.Int("concurrency", converter.DefaultConcurrency, "")
	flags.Bool("no-cache", false, "")
	flags.Bool("clear-cache", false, "")
	flags.String("cache-format", converter.DefaultCacheFormat, "")
	flags.String("output-format", string(converter.DefaultOutputFormat), "")
	flags.String("template", "", "")
	flags.Int64("large-file-threshold", converter.DefaultLargeFileThresholdMB, "")
	flags.String("large-file-mode", string(converter.DefaultLargeFileMode), "")
	flags.String("binary-mode", string(converter.DefaultBinaryMode), "")
	flags.String("encoding", "", "")
	flags.String("digest", converter.DefaultColorDigest, "")
	flags.Bool("allow-inline-html", converter.DefaultAllowInlineHTML, "")
	flags.Bool("no-schema", false, "")
}

// newFlags returns a flag set with -i/-o pointing at fresh directories and
// the extra flags applied.
func newFlags(t *testing.T, extra map[string]string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	defineFlags(flags)
	require.NoError(t, flags.Set("input", t.TempDir()))
	require.NoError(t, flags.Set("output", filepath.Join(t.TempDir(), "site")))
	for name, value := range extra {
		require.NoError(t, flags.Set(name, value), name)
	}
	return flags
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "langnotes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndValidate_Defaults(t *testing.T) {
	flags := newFlags(t, nil)

	opts, logger, err := LoadAndValidate("", "", "v1.0.0", false, flags)
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.NotNil(t, opts.Logger)

	assert.Equal(t, "v1.0.0", opts.AppVersion)
	assert.True(t, filepath.IsAbs(opts.InputPath))
	assert.DirExists(t, opts.OutputPath, "output directory is created")
	assert.Equal(t, converter.OnErrorContinue, opts.OnErrorMode)
	assert.Equal(t, converter.BinarySkip, opts.BinaryMode)
	assert.Equal(t, converter.LargeFileSkip, opts.LargeFileMode)
	assert.Equal(t, int64(converter.DefaultLargeFileThresholdMB*1024*1024), opts.LargeFileThreshold)
	assert.Equal(t, converter.OutputFormatText, opts.OutputFormat)
	assert.Equal(t, 0, opts.Concurrency, "0 is resolved to NumCPU by the engine")
	assert.True(t, opts.CacheEnabled)
	assert.Equal(t, cache.FormatGob, opts.CacheFormat)
	assert.True(t, opts.TuiEnabled)
	assert.Equal(t, palette.DigestSHA1, opts.Markup.Digest)
	assert.False(t, opts.Markup.AllowInlineHTML)
	assert.True(t, opts.Markup.ValidateSchema)
	assert.Nil(t, opts.Template, "nil selects the embedded template")
	assert.NotNil(t, opts.FormatDetector)
	assert.NotNil(t, opts.EncodingHandler)
}

func TestLoadAndValidate_Precedence(t *testing.T) {
	cfg := writeConfig(t, `
concurrency: 2
onError: stop
cacheFormat: json
markup:
  digest: blake3
  allowInlineHTML: true
formatMappings:
  note: yaml
ignore:
  - drafts/
profiles:
  ci:
    concurrency: 8
    outputFormat: json
    tuiEnabled: false
`)

	t.Run("config file", func(t *testing.T) {
		opts, _, err := LoadAndValidate(cfg, "", "dev", false, newFlags(t, nil))
		require.NoError(t, err)
		assert.Equal(t, cfg, opts.ConfigFilePath)
		assert.Equal(t, 2, opts.Concurrency)
		assert.Equal(t, converter.OnErrorStop, opts.OnErrorMode)
		assert.Equal(t, cache.FormatJSON, opts.CacheFormat)
		assert.Equal(t, palette.DigestBLAKE3, opts.Markup.Digest)
		assert.True(t, opts.Markup.AllowInlineHTML)
		assert.Equal(t, []string{"drafts/"}, opts.IgnorePatterns)
		assert.Equal(t, map[string]string{"note": "yaml"}, opts.FormatMappings)

		f, ok := opts.FormatDetector.Detect([]byte("- type: rule\n"), "x.note")
		assert.True(t, ok)
		assert.Equal(t, notes.FormatYAML, f)
	})

	t.Run("profile over file", func(t *testing.T) {
		opts, _, err := LoadAndValidate(cfg, "ci", "dev", false, newFlags(t, nil))
		require.NoError(t, err)
		assert.Equal(t, "ci", opts.ProfileName)
		assert.Equal(t, 8, opts.Concurrency)
		assert.Equal(t, converter.OutputFormatJSON, opts.OutputFormat)
		assert.False(t, opts.TuiEnabled)
		assert.Equal(t, converter.OnErrorStop, opts.OnErrorMode, "keys the profile leaves alone are kept")
	})

	t.Run("env over profile", func(t *testing.T) {
		t.Setenv("LANGNOTES_CONCURRENCY", "5")
		t.Setenv("LANGNOTES_MARKUP_DIGEST", "sha256")
		opts, _, err := LoadAndValidate(cfg, "ci", "dev", false, newFlags(t, nil))
		require.NoError(t, err)
		assert.Equal(t, 5, opts.Concurrency)
		assert.Equal(t, palette.DigestSHA256, opts.Markup.Digest)
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("LANGNOTES_CONCURRENCY", "5")
		flags := newFlags(t, map[string]string{"concurrency": "3", "digest": "sha1", "onError": "continue"})
		opts, _, err := LoadAndValidate(cfg, "ci", "dev", false, flags)
		require.NoError(t, err)
		assert.Equal(t, 3, opts.Concurrency)
		assert.Equal(t, palette.DigestSHA1, opts.Markup.Digest)
		assert.Equal(t, converter.OnErrorContinue, opts.OnErrorMode)
	})
}

func TestLoadAndValidate_ConfigFileErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, logger, err := LoadAndValidate(filepath.Join(t.TempDir(), "nope.yaml"), "", "dev", false, newFlags(t, nil))
		assert.ErrorIs(t, err, converter.ErrConfigValidation)
		assert.NotNil(t, logger)
	})
	t.Run("unknown profile", func(t *testing.T) {
		cfg := writeConfig(t, "concurrency: 1\n")
		_, _, err := LoadAndValidate(cfg, "release", "dev", false, newFlags(t, nil))
		assert.ErrorIs(t, err, converter.ErrConfigValidation)
		assert.Contains(t, err.Error(), "profile 'release' not found")
	})
	t.Run("malformed yaml", func(t *testing.T) {
		cfg := writeConfig(t, "concurrency: [1,\n")
		_, _, err := LoadAndValidate(cfg, "", "dev", false, newFlags(t, nil))
		assert.Error(t, err)
	})
}

func TestLoadAndValidate_FlagOverrides(t *testing.T) {
	flags := newFlags(t, map[string]string{
		"no-tui":            "true",
		"no-cache":          "true",
		"clear-cache":       "true",
		"no-schema":         "true",
		"allow-inline-html": "true",
		"ignore":            "*.bak",
	})
	opts, _, err := LoadAndValidate("", "", "dev", false, flags)
	require.NoError(t, err)
	assert.False(t, opts.TuiEnabled)
	assert.True(t, opts.IgnoreCacheRead)
	assert.True(t, opts.ClearCache)
	assert.False(t, opts.Markup.ValidateSchema)
	assert.True(t, opts.Markup.AllowInlineHTML)
	assert.Equal(t, []string{"*.bak"}, opts.IgnorePatterns)
}

func TestLoadAndValidate_VerboseDisablesTUI(t *testing.T) {
	opts, logger, err := LoadAndValidate("", "", "dev", true, newFlags(t, nil))
	require.NoError(t, err)
	assert.True(t, opts.Verbose)
	assert.False(t, opts.TuiEnabled)
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug), "debug logging is on")
}

func TestLoadAndValidate_Template(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(good, []byte(`<h1>{{ .Title }}</h1>{{ .Body }}`), 0o644))
	bad := filepath.Join(dir, "bad.html")
	require.NoError(t, os.WriteFile(bad, []byte(`{{ .Title `), 0o644))

	opts, _, err := LoadAndValidate("", "", "dev", false, newFlags(t, map[string]string{"template": good}))
	require.NoError(t, err)
	require.NotNil(t, opts.Template)
	assert.Equal(t, "page.html", opts.Template.Name())
	assert.Equal(t, good, opts.TemplatePath)

	for name, path := range map[string]string{"parse error": bad, "directory": dir, "missing": filepath.Join(dir, "gone.html")} {
		t.Run(name, func(t *testing.T) {
			_, _, err := LoadAndValidate("", "", "dev", false, newFlags(t, map[string]string{"template": path}))
			assert.ErrorIs(t, err, converter.ErrConfigValidation)
		})
	}
}

func TestLoadAndValidate_Validation(t *testing.T) {
	notADir := filepath.Join(t.TempDir(), "file.json")
	require.NoError(t, os.WriteFile(notADir, []byte("[]"), 0o644))

	testCases := map[string]map[string]string{
		"onError":              {"onError": "panic"},
		"binaryMode":           {"binary-mode": "placeholder"},
		"largeFileMode":        {"large-file-mode": "truncate"},
		"outputFormat":         {"output-format": "xml"},
		"cacheFormat":          {"cache-format": "msgpack"},
		"markup.digest":        {"digest": "md5"},
		"concurrency":          {"concurrency": "-1"},
		"largeFileThresholdMB": {"large-file-threshold": "-1"},
		"missing input":        {"input": filepath.Join(t.TempDir(), "absent")},
		"input is a file":      {"input": notADir},
	}
	for name, extra := range testCases {
		t.Run(name, func(t *testing.T) {
			_, _, err := LoadAndValidate("", "", "dev", false, newFlags(t, extra))
			assert.ErrorIs(t, err, converter.ErrConfigValidation)
		})
	}

	t.Run("formatMappings", func(t *testing.T) {
		cfg := writeConfig(t, "formatMappings:\n  note: xml\n")
		_, _, err := LoadAndValidate(cfg, "", "dev", false, newFlags(t, nil))
		assert.ErrorIs(t, err, converter.ErrConfigValidation)
	})
	t.Run("no input", func(t *testing.T) {
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		defineFlags(flags)
		_, _, err := LoadAndValidate("", "", "dev", false, flags)
		assert.ErrorIs(t, err, converter.ErrConfigValidation)
		assert.Contains(t, err.Error(), "input path is required")
	})
}
