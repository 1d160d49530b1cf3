package converter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/stackvity/langnotes/pkg/notes"
)

// Report summarizes a single ConvertNotes run.
type Report struct {
	Summary        ReportSummary `json:"summary"`
	ProcessedFiles []FileInfo    `json:"processedFiles"`
	SkippedFiles   []SkippedInfo `json:"skippedFiles"`
	Errors         []ErrorInfo   `json:"errors"`
}

// ReportSummary holds the aggregated counts of a run.
type ReportSummary struct {
	InputPath          string    `json:"inputPath"`
	OutputPath         string    `json:"outputPath"`
	ProfileUsed        string    `json:"profileUsed,omitempty"`
	ConfigFilePath     string    `json:"configFilePath,omitempty"`
	TotalFilesScanned  int       `json:"totalFilesScanned"`
	ProcessedCount     int       `json:"processedCount"`
	CachedCount        int       `json:"cachedCount"`
	SkippedCount       int       `json:"skippedCount"`
	ErrorCount         int       `json:"errorCount"`
	BlockCount         int       `json:"blockCount"`
	FatalErrorOccurred bool      `json:"fatalError"`
	DurationSeconds    float64   `json:"durationSeconds"`
	CacheEnabled       bool      `json:"cacheEnabled"`
	Concurrency        int       `json:"concurrency"`
	Timestamp          time.Time `json:"timestamp"`
	SchemaVersion      string    `json:"schemaVersion,omitempty"`
}

// FileInfo describes a notebook that was rendered or served from the cache.
// Cache hits report the Format and BlockCount recorded when the page was rendered.
type FileInfo struct {
	Path        string       `json:"path"`
	OutputPath  string       `json:"outputPath"`
	Format      notes.Format `json:"format,omitempty"`
	Encoding    string       `json:"encoding,omitempty"`
	BlockCount  int          `json:"blockCount"`
	SizeBytes   int64        `json:"sizeBytes"`
	ModTime     time.Time    `json:"modTime"`
	CacheStatus string       `json:"cacheStatus"`
	DurationMs  int64        `json:"durationMs"`
}

// SkippedInfo describes a file that was intentionally not rendered.
type SkippedInfo struct {
	Path    string `json:"path"`
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

// ErrorInfo describes a file that failed.
type ErrorInfo struct {
	Path    string `json:"path"`
	Error   string `json:"error"`
	IsFatal bool   `json:"isFatal"`
}

// WriteReport writes r to w in the requested format. Unknown formats fall
// back to text.
func WriteReport(w io.Writer, r Report, f OutputFormat) error {
	if f == OutputFormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return writeTextReport(w, r)
}

func writeTextReport(w io.Writer, r Report) error {
	s := r.Summary
	status := "completed"
	if s.FatalErrorOccurred {
		status = "stopped"
	}
	if _, err := fmt.Fprintf(w, "langnotes run %s in %.2fs\n", status, s.DurationSeconds); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "  input:     %s\n  output:    %s\n", s.InputPath, s.OutputPath); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "  scanned: %d  rendered: %d  cached: %d  skipped: %d  errors: %d  blocks: %d\n",
		s.TotalFilesScanned, s.ProcessedCount-s.CachedCount, s.CachedCount, s.SkippedCount, s.ErrorCount, s.BlockCount); err != nil {
		return err
	}
	for _, e := range r.Errors {
		if _, err := fmt.Fprintf(w, "  error: %s: %s\n", e.Path, e.Error); err != nil {
			return err
		}
	}
	return nil
}
