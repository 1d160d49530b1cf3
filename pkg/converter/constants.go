package converter

import (
	"github.com/stackvity/langnotes/pkg/converter/cache"
	"github.com/stackvity/langnotes/pkg/markup/palette"
)

// Defaults applied by the configuration loader.
const (
	// DefaultConcurrency of 0 means runtime.NumCPU().
	DefaultConcurrency          = 0
	DefaultCacheEnabled         = true
	DefaultTuiEnabled           = true
	DefaultOnErrorMode          = OnErrorContinue
	DefaultLargeFileThresholdMB = 10
	DefaultLargeFileMode        = LargeFileSkip
	DefaultBinaryMode           = BinarySkip
	DefaultOutputFormat         = OutputFormatText
	DefaultVerbose              = false
	DefaultColorDigest          = palette.DefaultDigest
	DefaultAllowInlineHTML      = false
	DefaultValidateSchema       = true
	DefaultCacheFormat          = cache.FormatGob
)

// ReportSchemaVersion is the version of the JSON report layout.
const ReportSchemaVersion = "1.0"

// OutputExtension is appended to the base name of every rendered notebook.
const OutputExtension = ".html"

// Cache status values reported per file.
const (
	CacheStatusHit      = "hit"
	CacheStatusMiss     = "miss"
	CacheStatusDisabled = "disabled"
)

// Skip reasons reported in SkippedInfo.
const (
	SkipReasonBinary         = "binary_file"
	SkipReasonLarge          = "large_file"
	SkipReasonIgnored        = "ignored_pattern"
	SkipReasonUnsupported    = "unsupported_format"
	SkipReasonOutputConflict = "output_conflict"
)
