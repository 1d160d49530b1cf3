// Package template wraps rendered notebooks in a full HTML page.
package template

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stackvity/langnotes/pkg/notes"
)

//go:embed default.html
var defaultTemplateContent string

// PageMetadata is the data a page template is executed with.
type PageMetadata struct {
	Title       string
	SourcePath  string // relative to the input directory, slash separated
	OutputPath  string // relative to the output directory, slash separated
	FileName    string
	Format      notes.Format
	Blocks      []notes.RenderedBlock
	Body        template.HTML
	BlockCount  int
	ModTime     time.Time
	ContentHash string
	GeneratedBy string
}

// TemplateExecutor renders a page.
type TemplateExecutor interface {
	Execute(w io.Writer, tmpl *template.Template, meta *PageMetadata) error
}

// HTMLExecutor executes html/template pages. A nil template means the
// embedded default.
type HTMLExecutor struct{}

// NewHTMLExecutor returns the default TemplateExecutor.
func NewHTMLExecutor() *HTMLExecutor {
	return &HTMLExecutor{}
}

func (e *HTMLExecutor) Execute(w io.Writer, tmpl *template.Template, meta *PageMetadata) error {
	if tmpl == nil {
		var err error
		if tmpl, err = LoadDefaultTemplate(); err != nil {
			return err
		}
	}
	if err := tmpl.Execute(w, meta); err != nil {
		return fmt.Errorf("execute template %q: %w", tmpl.Name(), err)
	}
	return nil
}

// Funcs are available to every page template.
var Funcs = template.FuncMap{
	// relLink links from the page of one notebook to the page of another,
	// both given as source paths relative to the input directory.
	"relLink": func(target, current string) (string, error) {
		targetPage := strings.TrimSuffix(target, filepath.Ext(target)) + ".html"
		rel, err := filepath.Rel(filepath.Dir(current), targetPage)
		if err != nil {
			return "", fmt.Errorf("link from %q to %q: %w", current, target, err)
		}
		return filepath.ToSlash(rel), nil
	},
	"formatDate": func(t time.Time, layout string) string {
		if layout == "" {
			layout = time.RFC3339
		}
		return t.Format(layout)
	},
}

// LoadDefaultTemplate parses the embedded page template.
func LoadDefaultTemplate() (*template.Template, error) {
	tmpl, err := template.New("default").Funcs(Funcs).Parse(defaultTemplateContent)
	if err != nil {
		return nil, fmt.Errorf("parse default template: %w", err)
	}
	return tmpl, nil
}

// LoadTemplateFile parses a custom page template with Funcs registered.
func LoadTemplateFile(path string) (*template.Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(filepath.Base(path)).Funcs(Funcs).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", path, err)
	}
	return tmpl, nil
}
