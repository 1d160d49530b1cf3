package markup

import "strings"

// LineKind is the category a single markup line falls into.
type LineKind int

const (
	LinePlain LineKind = iota
	LineBlank
	LineExample
	LineHeader
)

// String returns a short name for the kind.
func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "blank"
	case LineExample:
		return "example"
	case LineHeader:
		return "header"
	default:
		return "plain"
	}
}

// Line is a classified markup line.
//
// For LineExample and LinePlain, Text is the original line, untouched. For
// LineHeader it is the text after the marker, trimmed (possibly empty). It is
// empty for LineBlank.
type Line struct {
	Kind LineKind
	Text string
}

const (
	exampleMarker = "**"
	headerMarker  = "*"
)

// ClassifyLine categorises one line (without its trailing newline). The marker
// tests run against the trimmed line; every line maps to exactly one kind.
func ClassifyLine(line string) Line {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return Line{Kind: LineBlank}
	case strings.HasPrefix(trimmed, exampleMarker):
		return Line{Kind: LineExample, Text: line}
	case strings.HasPrefix(trimmed, headerMarker):
		return Line{Kind: LineHeader, Text: strings.TrimSpace(trimmed[len(headerMarker):])}
	default:
		return Line{Kind: LinePlain, Text: line}
	}
}
