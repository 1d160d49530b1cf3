// Package format decides which serialisation a notebook file uses.
package format

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"

	"github.com/stackvity/langnotes/pkg/notes"
)

// enry language names that carry a notebook format.
var enryFormats = map[string]notes.Format{
	"JSON":               notes.FormatJSON,
	"JSON with Comments": notes.FormatJSON,
	"JSON5":              notes.FormatJSON,
	"YAML":               notes.FormatYAML,
	"TOML":               notes.FormatTOML,
}

// Detector reports the document format of a file.
type Detector interface {
	Detect(content []byte, path string) (notes.Format, bool)
}

type enryDetector struct {
	overrides map[string]notes.Format
}

// NewEnryDetector returns a Detector backed by go-enry. overrides maps file
// extensions (with or without the leading dot) to format names and take
// precedence over detection.
func NewEnryDetector(overrides map[string]string) (Detector, error) {
	d := &enryDetector{overrides: make(map[string]notes.Format, len(overrides))}
	for ext, name := range overrides {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f, err := notes.ParseFormat(name)
		if err != nil {
			return nil, fmt.Errorf("format mapping for %q: %w", ext, err)
		}
		d.overrides[ext] = f
	}
	return d, nil
}

// Detect tries the overrides, then enry's extension table, then enry's
// content classifier.
func (d *enryDetector) Detect(content []byte, path string) (notes.Format, bool) {
	if f, ok := d.overrides[strings.ToLower(filepath.Ext(path))]; ok {
		return f, true
	}
	for _, lang := range enry.GetLanguagesByExtension(path, content, nil) {
		if f, ok := enryFormats[lang]; ok {
			return f, true
		}
	}
	if len(content) == 0 {
		return "", false
	}
	f, ok := enryFormats[enry.GetLanguage(filepath.Base(path), content)]
	return f, ok
}
