// Package markup parses the line-oriented note markup into HTML fragments.
//
// A block's content is split on separator lines ("\n_\n") into major
// segments, each segment optionally on column lines ("\n/\n") into responsive
// columns, and each resulting span is composed line by line into paragraphs,
// internal headers, example groups and, in dialogue context, speaker lines.
// Malformed markup never fails; it degrades into plain paragraphs.
package markup

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/stackvity/langnotes/pkg/markup/palette"
)

// Delimiters recognised between spans. They must be framed by newlines on
// both sides; a bare `_` or `/` at the edge of a block is plain text.
const (
	SeparatorDelimiter = "\n_\n"
	ColumnDelimiter    = "\n/\n"
)

// ColorSource supplies the base colour of a dialogue speaker.
type ColorSource interface {
	ColorOf(ctx context.Context, speaker string) (palette.RGB, error)
}

// Options configures a Parser.
type Options struct {
	// Colors resolves speaker colours. Defaults to a SHA-1 palette.Assigner.
	Colors ColorSource
	// AllowInlineHTML writes author text through unescaped.
	AllowInlineHTML bool
	// Logger receives colour lookup warnings. Nil discards them.
	Logger slog.Handler
}

// Parser turns block content into fragments. It holds no per-parse state and
// is safe for concurrent use when its ColorSource is.
type Parser struct {
	colors ColorSource
	w      markupWriter
	logger *slog.Logger
}

// NewParser creates a Parser.
func NewParser(opts Options) *Parser {
	handler := opts.Logger
	if handler == nil {
		handler = slog.NewTextHandler(io.Discard, nil)
	}
	colors := opts.Colors
	if colors == nil {
		colors, _ = palette.NewAssigner(palette.DefaultDigest, handler)
	}
	return &Parser{
		colors: colors,
		w:      markupWriter{raw: opts.AllowInlineHTML},
		logger: slog.New(handler).With(slog.String("component", "markup")),
	}
}

// Parse renders a whole block's content. A header on the block's first line
// becomes the block title; the remainder is split on separators and columns
// and each span is composed independently.
func (p *Parser) Parse(ctx context.Context, content string, dialogue bool) Fragments {
	content = normalizeNewlines(content)
	var out Fragments

	if title, rest, ok := leadingHeader(content); ok {
		if title != "" {
			out = append(out, p.w.title(title))
		}
		content = rest
	}

	for i, segment := range strings.Split(content, SeparatorDelimiter) {
		if i > 0 {
			out = append(out, p.w.separator())
		}
		if strings.TrimSpace(segment) == "" {
			continue
		}
		if strings.Contains(segment, ColumnDelimiter) {
			if group, ok := p.columns(ctx, segment, dialogue); ok {
				out = append(out, group)
			}
			continue
		}
		out = append(out, p.Compose(ctx, segment, dialogue)...)
	}
	return out
}

// columns composes each column of a segment. It reports false when every
// column came out empty.
func (p *Parser) columns(ctx context.Context, segment string, dialogue bool) (Fragment, bool) {
	var cols []Fragments
	for _, col := range strings.Split(segment, ColumnDelimiter) {
		col = strings.TrimSpace(col)
		if col == "" {
			continue
		}
		if frags := p.Compose(ctx, col, dialogue); len(frags) > 0 {
			cols = append(cols, frags)
		}
	}
	if len(cols) == 0 {
		return Fragment{}, false
	}
	return p.w.responsiveGroup(cols), true
}

// leadingHeader detects a header marker on the first non-blank line of the
// block and returns its text and the content following that line.
func leadingHeader(content string) (title, rest string, ok bool) {
	trimmed := strings.TrimLeft(content, " \t\r\n")
	first, rest, _ := strings.Cut(trimmed, "\n")
	l := ClassifyLine(first)
	if l.Kind != LineHeader {
		return "", content, false
	}
	return l.Text, rest, true
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
