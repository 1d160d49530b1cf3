// Package config merges defaults, the config file, a profile, LANGNOTES_*
// environment variables and command-line flags into converter.Options.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stackvity/langnotes/pkg/converter"
	"github.com/stackvity/langnotes/pkg/converter/cache"
	"github.com/stackvity/langnotes/pkg/converter/encoding"
	"github.com/stackvity/langnotes/pkg/converter/format"
	tpl "github.com/stackvity/langnotes/pkg/converter/template"
	"github.com/stackvity/langnotes/pkg/markup/palette"
)

const (
	EnvPrefix         = "LANGNOTES"
	DefaultConfigName = "langnotes"
)

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"verbose":              "verbose",
	"onError":              "onError",
	"concurrency":          "concurrency",
	"ignore":               "ignore",
	"output-format":        "outputFormat",
	"template":             "templateFile",
	"large-file-threshold": "largeFileThresholdMB",
	"large-file-mode":      "largeFileMode",
	"binary-mode":          "binaryMode",
	"encoding":             "defaultEncoding",
	"cache-format":         "cacheFormat",
	"digest":               "markup.digest",
	"allow-inline-html":    "markup.allowInlineHTML",
}

// LoadAndValidate builds the run options. Precedence, lowest first:
// defaults, config file, profile, environment, flags. The returned logger
// is always usable, even with an error.
func LoadAndValidate(cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet) (converter.Options, *slog.Logger, error) {
	var opts converter.Options
	v := viper.New()

	earlyLevel := slog.LevelInfo
	if verbose {
		earlyLevel = slog.LevelDebug
	}
	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: earlyLevel}))

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
			v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
		} else {
			tempLogger.Debug("No home directory, searching the working directory only", slog.String("error", err.Error()))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			tempLogger.Debug("No configuration file found, using defaults, environment and flags")
		} else {
			used := cfgFile
			if used == "" {
				used = DefaultConfigName + ".yaml"
			}
			tempLogger.Error("Error reading configuration file", slog.String("path", used), slog.String("error", err.Error()))
			return opts, tempLogger, fmt.Errorf("%w: read config file '%s': %w", converter.ErrConfigValidation, used, err)
		}
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", opts.ConfigFilePath))
	}

	opts.ProfileName = profileName
	if profileName != "" {
		if err := applyProfile(v, profileName); err != nil {
			tempLogger.Error(err.Error())
			return opts, tempLogger, err
		}
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return opts, tempLogger, fmt.Errorf("bind flag '--%s': %w", name, err)
			}
		}
	}

	if err := v.Unmarshal(&opts); err != nil {
		tempLogger.Error("Error unmarshalling configuration", slog.String("error", err.Error()))
		return opts, tempLogger, fmt.Errorf("%w: unmarshal configuration: %w", converter.ErrConfigValidation, err)
	}
	opts.AppVersion = appVersion
	opts.ProfileName = profileName
	opts.ConfigFilePath = v.ConfigFileUsed()

	if flags != nil {
		applyFlagOverrides(&opts, flags)
	}
	if verbose {
		opts.Verbose = true
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	opts.Logger = handler

	if err := loadTemplate(&opts, logger); err != nil {
		return opts, logger, err
	}
	if err := validateAndDeriveOptions(&opts, logger); err != nil {
		return opts, logger, err
	}

	logger.Debug("Configuration loaded",
		slog.String("configFile", opts.ConfigFilePath),
		slog.String("profile", opts.ProfileName),
		slog.Bool("verbose", opts.Verbose),
		slog.Bool("tui", opts.TuiEnabled),
	)
	return opts, logger, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("verbose", converter.DefaultVerbose)
	v.SetDefault("tuiEnabled", converter.DefaultTuiEnabled)
	v.SetDefault("onError", string(converter.DefaultOnErrorMode))

	v.SetDefault("concurrency", converter.DefaultConcurrency)
	v.SetDefault("cache", converter.DefaultCacheEnabled)
	v.SetDefault("cacheFormat", converter.DefaultCacheFormat)

	v.SetDefault("ignore", []string{})
	v.SetDefault("binaryMode", string(converter.DefaultBinaryMode))
	v.SetDefault("largeFileThresholdMB", converter.DefaultLargeFileThresholdMB)
	v.SetDefault("largeFileMode", string(converter.DefaultLargeFileMode))
	v.SetDefault("defaultEncoding", "")
	v.SetDefault("formatMappings", map[string]string{})

	v.SetDefault("templateFile", "")
	v.SetDefault("outputFormat", string(converter.DefaultOutputFormat))

	v.SetDefault("markup.digest", converter.DefaultColorDigest)
	v.SetDefault("markup.allowInlineHTML", converter.DefaultAllowInlineHTML)
	v.SetDefault("markup.validateSchema", converter.DefaultValidateSchema)
}

// applyProfile merges profiles.<name> over the top-level settings.
func applyProfile(v *viper.Viper, name string) error {
	key := "profiles." + name
	if !v.IsSet(key) {
		used := v.ConfigFileUsed()
		if used == "" {
			used = "(no config file found)"
		}
		return fmt.Errorf("%w: profile '%s' not found in config file '%s'", converter.ErrConfigValidation, name, used)
	}
	sub := v.Sub(key)
	if sub == nil {
		return fmt.Errorf("%w: profile '%s' is not a mapping", converter.ErrConfigValidation, name)
	}
	if err := v.MergeConfigMap(sub.AllSettings()); err != nil {
		return fmt.Errorf("merge profile '%s': %w", name, err)
	}
	return nil
}

// applyFlagOverrides copies flags that do not map onto a config key.
func applyFlagOverrides(opts *converter.Options, flags *pflag.FlagSet) {
	if flags.Changed("input") {
		if s, _ := flags.GetString("input"); s != "" {
			opts.InputPath = s
		}
	}
	if flags.Changed("output") {
		if s, _ := flags.GetString("output"); s != "" {
			opts.OutputPath = s
		}
	}
	if flags.Changed("no-tui") {
		if noTui, _ := flags.GetBool("no-tui"); noTui {
			opts.TuiEnabled = false
		}
	}
	if flags.Changed("no-cache") {
		opts.IgnoreCacheRead, _ = flags.GetBool("no-cache")
	}
	if flags.Changed("clear-cache") {
		opts.ClearCache, _ = flags.GetBool("clear-cache")
	}
	if flags.Changed("no-schema") {
		if noSchema, _ := flags.GetBool("no-schema"); noSchema {
			opts.Markup.ValidateSchema = false
		}
	}
}

// loadTemplate parses templateFile when set. Without one, Template stays
// nil and the executor uses the embedded default.
func loadTemplate(opts *converter.Options, logger *slog.Logger) error {
	if opts.TemplatePath == "" {
		logger.Debug("Using embedded default template")
		return nil
	}
	abs, err := filepath.Abs(opts.TemplatePath)
	if err != nil {
		return fmt.Errorf("%w: resolve template path '%s': %w", converter.ErrConfigValidation, opts.TemplatePath, err)
	}
	opts.TemplatePath = abs

	info, err := os.Stat(abs)
	if err != nil {
		logger.Error("Template file cannot be accessed", slog.String("path", abs), slog.String("error", err.Error()))
		return fmt.Errorf("%w: template file '%s': %w", converter.ErrConfigValidation, abs, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: template path '%s' is a directory, not a file", converter.ErrConfigValidation, abs)
	}
	tmpl, err := tpl.LoadTemplateFile(abs)
	if err != nil {
		logger.Error("Failed to parse template file", slog.String("path", abs), slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", converter.ErrConfigValidation, err)
	}
	opts.Template = tmpl
	logger.Debug("Loaded custom template", slog.String("path", abs))
	return nil
}

func isValidEnumValue[T ~string](value T, allowed []T) bool {
	return slices.Contains(allowed, value)
}

// validateAndDeriveOptions checks the merged options and fills in derived
// fields. Every error wraps converter.ErrConfigValidation.
func validateAndDeriveOptions(opts *converter.Options, logger *slog.Logger) error {
	fail := func(key string, err error) error {
		logger.Error(err.Error(), slog.String("key", key))
		return err
	}

	if opts.InputPath == "" {
		return fail("inputPath", fmt.Errorf("%w: input path is required (-i, --input)", converter.ErrConfigValidation))
	}
	absInput, err := filepath.Abs(opts.InputPath)
	if err != nil {
		return fail("inputPath", fmt.Errorf("%w: resolve input path '%s': %w", converter.ErrConfigValidation, opts.InputPath, err))
	}
	opts.InputPath = absInput
	info, err := os.Stat(absInput)
	switch {
	case os.IsNotExist(err):
		return fail("inputPath", fmt.Errorf("%w: input path '%s' does not exist", converter.ErrConfigValidation, absInput))
	case err != nil:
		return fail("inputPath", fmt.Errorf("%w: cannot access input path '%s': %w", converter.ErrConfigValidation, absInput, err))
	case !info.IsDir():
		return fail("inputPath", fmt.Errorf("%w: input path '%s' is not a directory", converter.ErrConfigValidation, absInput))
	}

	if opts.OutputPath == "" {
		return fail("outputPath", fmt.Errorf("%w: output path is required (-o, --output)", converter.ErrConfigValidation))
	}
	absOutput, err := filepath.Abs(opts.OutputPath)
	if err != nil {
		return fail("outputPath", fmt.Errorf("%w: resolve output path '%s': %w", converter.ErrConfigValidation, opts.OutputPath, err))
	}
	opts.OutputPath = absOutput
	if err := os.MkdirAll(absOutput, 0o755); err != nil {
		return fail("outputPath", fmt.Errorf("%w: cannot create output directory '%s': %w", converter.ErrConfigValidation, absOutput, err))
	}

	allowedOnError := []converter.OnErrorMode{converter.OnErrorContinue, converter.OnErrorStop}
	if !isValidEnumValue(opts.OnErrorMode, allowedOnError) {
		return fail("onError", fmt.Errorf("%w: invalid value '%s' for key 'onError' (flag --onError). Allowed: %v", converter.ErrConfigValidation, opts.OnErrorMode, allowedOnError))
	}
	allowedBinary := []converter.BinaryMode{converter.BinarySkip, converter.BinaryError}
	if !isValidEnumValue(opts.BinaryMode, allowedBinary) {
		return fail("binaryMode", fmt.Errorf("%w: invalid value '%s' for key 'binaryMode' (flag --binary-mode). Allowed: %v", converter.ErrConfigValidation, opts.BinaryMode, allowedBinary))
	}
	allowedLarge := []converter.LargeFileMode{converter.LargeFileSkip, converter.LargeFileError}
	if !isValidEnumValue(opts.LargeFileMode, allowedLarge) {
		return fail("largeFileMode", fmt.Errorf("%w: invalid value '%s' for key 'largeFileMode' (flag --large-file-mode). Allowed: %v", converter.ErrConfigValidation, opts.LargeFileMode, allowedLarge))
	}
	allowedOutput := []converter.OutputFormat{converter.OutputFormatText, converter.OutputFormatJSON}
	if !isValidEnumValue(opts.OutputFormat, allowedOutput) {
		return fail("outputFormat", fmt.Errorf("%w: invalid value '%s' for key 'outputFormat' (flag --output-format). Allowed: %v", converter.ErrConfigValidation, opts.OutputFormat, allowedOutput))
	}
	allowedCache := []string{cache.FormatGob, cache.FormatJSON}
	if !isValidEnumValue(opts.CacheFormat, allowedCache) {
		return fail("cacheFormat", fmt.Errorf("%w: invalid value '%s' for key 'cacheFormat' (flag --cache-format). Allowed: %v", converter.ErrConfigValidation, opts.CacheFormat, allowedCache))
	}
	if _, err := palette.DigestByName(opts.Markup.Digest); err != nil {
		return fail("markup.digest", fmt.Errorf("%w: key 'markup.digest' (flag --digest): %w", converter.ErrConfigValidation, err))
	}

	if opts.Concurrency < 0 {
		return fail("concurrency", fmt.Errorf("%w: invalid value '%d' for key 'concurrency' (flag --concurrency). Must be >= 0", converter.ErrConfigValidation, opts.Concurrency))
	}
	if opts.LargeFileThresholdMB < 0 {
		return fail("largeFileThresholdMB", fmt.Errorf("%w: invalid value '%d' for key 'largeFileThresholdMB' (flag --large-file-threshold). Must be >= 0", converter.ErrConfigValidation, opts.LargeFileThresholdMB))
	}
	opts.LargeFileThreshold = opts.LargeFileThresholdMB * 1024 * 1024

	detector, err := format.NewEnryDetector(opts.FormatMappings)
	if err != nil {
		return fail("formatMappings", fmt.Errorf("%w: key 'formatMappings': %w", converter.ErrConfigValidation, err))
	}
	opts.FormatDetector = detector
	opts.EncodingHandler = encoding.NewCharsetHandler(opts.DefaultEncoding)

	if opts.Verbose && opts.TuiEnabled {
		logger.Debug("Verbose output requested, disabling the TUI")
		opts.TuiEnabled = false
	}

	logger.Debug("Derived settings",
		slog.String("inputPath", opts.InputPath),
		slog.String("outputPath", opts.OutputPath),
		slog.Int("concurrency", opts.Concurrency),
		slog.Int64("largeFileThresholdBytes", opts.LargeFileThreshold),
		slog.String("digest", opts.Markup.Digest),
	)
	return nil
}
