package markup

import (
	"context"
	"log/slog"
	"strings"

	"github.com/stackvity/langnotes/pkg/markup/palette"
)

type composeState int

const (
	stateIdle composeState = iota
	stateInParagraph
	stateInExampleGroup
)

// composer accumulates the lines of one span. A fresh composer is created for
// every Compose call and is never shared.
type composer struct {
	ctx      context.Context
	parser   *Parser
	dialogue bool

	state          composeState
	paragraphLines []string
	exampleLines   []string
	out            Fragments
}

// Compose renders a span that contains no separator or column delimiters.
// In dialogue context, paragraphs made of `Name: text` lines render as
// dialogue lines.
func (p *Parser) Compose(ctx context.Context, span string, dialogue bool) Fragments {
	c := &composer{ctx: ctx, parser: p, dialogue: dialogue}
	for _, line := range strings.Split(normalizeNewlines(span), "\n") {
		c.feed(ClassifyLine(line))
	}
	c.finish()
	return c.out
}

func (c *composer) feed(l Line) {
	switch l.Kind {
	case LineBlank:
		c.transition(stateIdle)
	case LineHeader:
		c.transition(stateIdle)
		if l.Text != "" {
			c.emit(c.parser.w.header(l.Text))
		}
	case LineExample:
		c.transition(stateInExampleGroup)
		c.exampleLines = append(c.exampleLines, l.Text)
	default:
		c.transition(stateInParagraph)
		c.paragraphLines = append(c.paragraphLines, l.Text)
	}
}

// transition runs the exit action of the current state when the state changes.
func (c *composer) transition(next composeState) {
	if c.state == next {
		return
	}
	switch c.state {
	case stateInParagraph:
		c.flushParagraph()
	case stateInExampleGroup:
		c.flushExamples()
	}
	c.state = next
}

func (c *composer) finish() {
	c.flushExamples()
	c.flushParagraph()
	c.state = stateIdle
}

func (c *composer) emit(f Fragment) {
	if strings.TrimSpace(f.HTML) == "" {
		return
	}
	c.out = append(c.out, f)
}

func (c *composer) flushParagraph() {
	if len(c.paragraphLines) == 0 {
		return
	}
	lines := c.paragraphLines
	c.paragraphLines = nil

	if c.dialogue && hasColonLine(lines) {
		c.flushDialogue(lines)
		return
	}
	c.emit(c.parser.w.paragraph(lines))
}

func (c *composer) flushExamples() {
	if len(c.exampleLines) == 0 {
		return
	}
	items := make([]string, 0, len(c.exampleLines))
	for _, l := range c.exampleLines {
		item := strings.TrimPrefix(strings.TrimSpace(l), exampleMarker)
		items = append(items, strings.TrimSpace(item))
	}
	c.exampleLines = nil
	c.emit(c.parser.w.exampleGroup(items))
}

// flushDialogue emits one dialogue line per colon-bearing line. Lines without
// a colon do not appear in the output.
// TODO: render colon-less lines as continuation text once saved documents no
// longer rely on them being dropped.
func (c *composer) flushDialogue(lines []string) {
	idx := 0
	for _, l := range lines {
		speaker, replica, ok := strings.Cut(l, ":")
		if !ok {
			continue
		}
		d := DialogueLine{
			Speaker: strings.TrimSpace(speaker),
			Replica: c.parser.w.breaks(strings.TrimSpace(replica), `\`),
			Side:    SideLeft,
			Colors:  palette.ShadesOf(c.parser.colorOf(c.ctx, strings.TrimSpace(speaker))),
		}
		if idx%2 == 1 {
			d.Side = SideRight
		}
		idx++
		c.emit(c.parser.w.dialogueLine(d))
	}
}

func hasColonLine(lines []string) bool {
	for _, l := range lines {
		if strings.Contains(l, ":") {
			return true
		}
	}
	return false
}

// colorOf resolves a speaker colour, substituting palette.Fallback on failure.
func (p *Parser) colorOf(ctx context.Context, speaker string) palette.RGB {
	c, err := p.colors.ColorOf(ctx, speaker)
	if err != nil {
		p.logger.Warn("Speaker colour lookup failed, using fallback",
			slog.String("speaker", speaker),
			slog.String("fallback", palette.Fallback.Hex()),
			slog.String("error", err.Error()),
		)
		return palette.Fallback
	}
	return c
}
