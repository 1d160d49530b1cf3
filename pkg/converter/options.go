package converter

import (
	"html/template"
	"log/slog"
	"time"

	"github.com/stackvity/langnotes/pkg/converter/cache"
	"github.com/stackvity/langnotes/pkg/converter/encoding"
	"github.com/stackvity/langnotes/pkg/converter/format"
	tpl "github.com/stackvity/langnotes/pkg/converter/template"
	"github.com/stackvity/langnotes/pkg/markup"
)

// MarkupConfig controls how block content is turned into HTML.
type MarkupConfig struct {
	Digest          string `mapstructure:"digest"`          // speaker colour digest: sha1, sha256, blake3
	AllowInlineHTML bool   `mapstructure:"allowInlineHTML"` // write author text through unescaped
	ValidateSchema  bool   `mapstructure:"validateSchema"`  // check documents against the JSON Schema
}

// Hooks receives progress callbacks. Implementations must be safe for
// concurrent use; errors are logged and otherwise ignored.
type Hooks interface {
	OnFileDiscovered(path string) error
	OnFileStatusUpdate(path string, status Status, message string, duration time.Duration) error
	OnRunComplete(report Report) error
}

// NoOpHooks ignores every callback.
type NoOpHooks struct{}

func (h *NoOpHooks) OnFileDiscovered(path string) error { return nil }

func (h *NoOpHooks) OnFileStatusUpdate(path string, status Status, message string, duration time.Duration) error {
	return nil
}

func (h *NoOpHooks) OnRunComplete(report Report) error { return nil }

// Options holds all configuration for a ConvertNotes run.
type Options struct {
	// --- Core Paths ---
	InputPath  string `mapstructure:"inputPath"`  // absolute notebook directory
	OutputPath string `mapstructure:"outputPath"` // absolute HTML directory

	AppVersion string `mapstructure:"-"` // stamped into pages and the cache header

	// --- Behaviour ---
	ConfigFilePath string      `mapstructure:"-"`
	Verbose        bool        `mapstructure:"verbose"`
	TuiEnabled     bool        `mapstructure:"tuiEnabled"` // ignored when Verbose
	OnErrorMode    OnErrorMode `mapstructure:"onError"`
	ProfileName    string      `mapstructure:"-"`

	// --- Performance & Caching ---
	Concurrency     int    `mapstructure:"concurrency"` // 0 = NumCPU
	CacheEnabled    bool   `mapstructure:"cache"`
	CacheFormat     string `mapstructure:"cacheFormat"` // gob or json
	IgnoreCacheRead bool   `mapstructure:"-"`           // --no-cache
	ClearCache      bool   `mapstructure:"-"`           // --clear-cache
	CacheFilePath   string `mapstructure:"-"`

	// --- File Handling ---
	IgnorePatterns       []string          `mapstructure:"ignore"` // combined with .langnotesignore
	BinaryMode           BinaryMode        `mapstructure:"binaryMode"`
	LargeFileThresholdMB int64             `mapstructure:"largeFileThresholdMB"`
	LargeFileThreshold   int64             `mapstructure:"-"` // bytes, derived
	LargeFileMode        LargeFileMode     `mapstructure:"largeFileMode"`
	DefaultEncoding      string            `mapstructure:"defaultEncoding"`
	FormatMappings       map[string]string `mapstructure:"formatMappings"` // extension -> json|yaml|toml

	// --- Output ---
	Template     *template.Template `mapstructure:"-"` // nil means the embedded default
	TemplatePath string             `mapstructure:"templateFile"`
	OutputFormat OutputFormat       `mapstructure:"outputFormat"`
	Markup       MarkupConfig       `mapstructure:"markup"`

	// --- Injected Dependencies ---
	EventHooks            Hooks                    `mapstructure:"-"`
	Logger                slog.Handler             `mapstructure:"-"` // required
	CacheManager          cache.CacheManager       `mapstructure:"-"`
	FormatDetector        format.Detector          `mapstructure:"-"`
	EncodingHandler       encoding.EncodingHandler `mapstructure:"-"`
	TemplateExecutor      tpl.TemplateExecutor     `mapstructure:"-"`
	ColorSource           markup.ColorSource       `mapstructure:"-"` // shared by all workers so speaker colours are memoised once
	ProcessorFactory      ProcessorFactory         `mapstructure:"-"` // tests
	WalkerFactory         WalkerFactory            `mapstructure:"-"` // tests
	DispatchWarnThreshold time.Duration            `mapstructure:"-"`
}
