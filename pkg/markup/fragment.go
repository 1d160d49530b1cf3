package markup

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/stackvity/langnotes/pkg/markup/palette"
)

// FragmentKind identifies what a rendered fragment represents.
type FragmentKind int

const (
	KindParagraph FragmentKind = iota
	KindHeader
	KindTitle
	KindExampleGroup
	KindDialogueLine
	KindSeparator
	KindResponsiveGroup
)

var kindNames = map[FragmentKind]string{
	KindParagraph:       "paragraph",
	KindHeader:          "header",
	KindTitle:           "title",
	KindExampleGroup:    "example-group",
	KindDialogueLine:    "dialogue-line",
	KindSeparator:       "separator",
	KindResponsiveGroup: "responsive-group",
}

func (k FragmentKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Class names emitted in fragment markup. Saved documents re-render
// identically only while these stay fixed.
const (
	ClassHeader          = "internal-header"
	ClassTitle           = "block-title"
	ClassExampleGroup    = "example-group"
	ClassExampleItem     = "example-item"
	ClassSeparator       = "internal-separator"
	ClassResponsiveGroup = "responsive-group"
	ClassResponsiveItem  = "responsive-item"
	ClassResponsivePipe  = "responsive-pipe"
	ClassDialogueLine    = "dialogue-line"
	ClassDialogueSpeaker = "dialogue-speaker"
	ClassDialogueReplica = "dialogue-replica"
)

const lineBreak = "<br>"

// Fragment is one renderable unit of output markup.
type Fragment struct {
	Kind FragmentKind
	HTML string
}

// Fragments is an ordered fragment sequence.
type Fragments []Fragment

// String concatenates the fragments' markup.
func (fs Fragments) String() string {
	n := 0
	for _, f := range fs {
		n += len(f.HTML)
	}
	var b strings.Builder
	b.Grow(n)
	for _, f := range fs {
		b.WriteString(f.HTML)
	}
	return b.String()
}

// Count reports how many fragments have the given kind.
func (fs Fragments) Count(kind FragmentKind) int {
	n := 0
	for _, f := range fs {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

// Side is the alignment of a dialogue line.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideRight {
		return "right"
	}
	return "left"
}

// DialogueLine is one speaker turn, derived while flushing a dialogue paragraph.
type DialogueLine struct {
	Speaker string
	Replica string // already converted: each `\` became a line break
	Side    Side
	Colors  palette.Shades
}

// markupWriter builds fragment markup, escaping author text unless raw
// passthrough is enabled.
type markupWriter struct {
	raw bool
}

func (w markupWriter) text(s string) string {
	if w.raw {
		return s
	}
	return html.EscapeString(s)
}

func (w markupWriter) paragraph(lines []string) Fragment {
	var b strings.Builder
	b.WriteString("<p>")
	for i, l := range lines {
		if i > 0 {
			b.WriteString(lineBreak)
		}
		b.WriteString(w.text(l))
	}
	b.WriteString("</p>")
	return Fragment{Kind: KindParagraph, HTML: b.String()}
}

func (w markupWriter) header(text string) Fragment {
	return Fragment{Kind: KindHeader, HTML: `<h3 class="` + ClassHeader + `">` + w.text(text) + "</h3>"}
}

func (w markupWriter) title(text string) Fragment {
	return Fragment{Kind: KindTitle, HTML: `<h3 class="` + ClassHeader + " " + ClassTitle + `">` + w.text(text) + "</h3>"}
}

func (w markupWriter) exampleGroup(items []string) Fragment {
	var b strings.Builder
	b.WriteString(`<div class="` + ClassExampleGroup + `">`)
	for _, it := range items {
		b.WriteString(`<div class="` + ClassExampleItem + `">`)
		b.WriteString(w.breaks(it, "\n"))
		b.WriteString("</div>")
	}
	b.WriteString("</div>")
	return Fragment{Kind: KindExampleGroup, HTML: b.String()}
}

func (w markupWriter) separator() Fragment {
	return Fragment{Kind: KindSeparator, HTML: `<hr class="` + ClassSeparator + `">`}
}

func (w markupWriter) responsiveGroup(columns []Fragments) Fragment {
	var b strings.Builder
	b.WriteString(`<div class="` + ClassResponsiveGroup + `">`)
	for i, col := range columns {
		if i > 0 {
			b.WriteString(`<div class="` + ClassResponsivePipe + `">|</div>`)
		}
		b.WriteString(`<div class="` + ClassResponsiveItem + `">`)
		b.WriteString(col.String())
		b.WriteString("</div>")
	}
	b.WriteString("</div>")
	return Fragment{Kind: KindResponsiveGroup, HTML: b.String()}
}

func (w markupWriter) dialogueLine(d DialogueLine) Fragment {
	var b strings.Builder
	b.WriteString(`<div class="` + ClassDialogueLine + " dialogue-" + d.Side.String() + `" style="background-color: `)
	b.WriteString(d.Colors.Background.CSS())
	b.WriteString("; border-color: ")
	b.WriteString(d.Colors.Border.CSS())
	b.WriteString(`;"><span class="` + ClassDialogueSpeaker + `" style="color: `)
	b.WriteString(d.Colors.Label.CSS())
	b.WriteString(`;">`)
	b.WriteString(w.text(d.Speaker))
	b.WriteString(`</span><span class="` + ClassDialogueReplica + `">`)
	b.WriteString(d.Replica)
	b.WriteString("</span></div>")
	return Fragment{Kind: KindDialogueLine, HTML: b.String()}
}

// breaks escapes s and turns every occurrence of sep into a line break.
func (w markupWriter) breaks(s, sep string) string {
	parts := strings.Split(s, sep)
	for i, p := range parts {
		parts[i] = w.text(p)
	}
	return strings.Join(parts, lineBreak)
}
