package notes

import (
	"context"
	"html/template"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/stackvity/langnotes/pkg/markup"
)

// Block wrapper class names.
const (
	ClassBlock          = "block"
	ClassBlockSeparator = "block-separator"
	ClassMarkupHeader   = "markup-header"
)

// RendererOptions configures a Renderer.
type RendererOptions struct {
	Markup markup.Options
	Logger slog.Handler
}

// RenderedBlock is the output of one block.
type RenderedBlock struct {
	ID   string
	Type BlockType
	HTML template.HTML
}

// RenderedDocument is a document rendered in block order.
type RenderedDocument struct {
	Title  string
	Blocks []RenderedBlock
	HTML   template.HTML
}

type variantRenderer func(ctx context.Context, b Block) string

// Renderer wraps parsed block content in per-type containers. It is safe for
// concurrent use.
type Renderer struct {
	parser   *markup.Parser
	raw      bool
	logger   *slog.Logger
	variants map[BlockType]variantRenderer
}

// NewRenderer creates a Renderer. The markup logger defaults to the renderer's.
func NewRenderer(opts RendererOptions) *Renderer {
	handler := opts.Logger
	if handler == nil {
		handler = slog.NewTextHandler(io.Discard, nil)
	}
	mopts := opts.Markup
	if mopts.Logger == nil {
		mopts.Logger = handler
	}

	r := &Renderer{
		parser: markup.NewParser(mopts),
		raw:    mopts.AllowInlineHTML,
		logger: slog.New(handler).With(slog.String("component", "renderer")),
	}
	r.variants = map[BlockType]variantRenderer{
		BlockRule:         r.renderParsed,
		BlockDialogue:     r.renderParsed,
		BlockExample:      r.renderParsed,
		BlockCentered:     r.renderParsed,
		BlockSeparator:    r.renderSeparator,
		BlockMarkupHeader: r.renderMarkupHeader,
	}
	return r
}

// RenderBlock renders one block including its wrapper. Blocks of an unknown
// type render as nothing.
func (r *Renderer) RenderBlock(ctx context.Context, b Block) template.HTML {
	render, ok := r.variants[b.Type]
	if !ok {
		r.logger.Warn("Skipping block with unknown type", slog.String("blockID", b.ID), slog.String("type", string(b.Type)))
		return ""
	}

	var sb strings.Builder
	sb.WriteString(`<div class="` + ClassBlock + " ")
	sb.WriteString(html.EscapeString(string(b.Type)))
	sb.WriteString(`-block" data-block-id="`)
	sb.WriteString(html.EscapeString(b.ID))
	sb.WriteString(`">`)
	sb.WriteString(render(ctx, b))
	sb.WriteString("</div>")
	return template.HTML(sb.String())
}

// RenderDocument renders every block in ascending Order. It stops early only
// when ctx is cancelled.
func (r *Renderer) RenderDocument(ctx context.Context, doc Document) (RenderedDocument, error) {
	out := RenderedDocument{Title: doc.Title}
	blocks := doc.Sorted()
	out.Blocks = make([]RenderedBlock, 0, len(blocks))

	var sb strings.Builder
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return RenderedDocument{}, err
		}
		h := r.RenderBlock(ctx, b)
		out.Blocks = append(out.Blocks, RenderedBlock{ID: b.ID, Type: b.Type, HTML: h})
		sb.WriteString(string(h))
	}
	out.HTML = template.HTML(sb.String())

	r.logger.Debug("Document rendered", slog.String("title", doc.Title), slog.Int("blocks", len(blocks)))
	return out, nil
}

func (r *Renderer) renderParsed(ctx context.Context, b Block) string {
	return r.parser.Parse(ctx, b.Content, b.Type.Dialogue()).String()
}

func (r *Renderer) renderSeparator(context.Context, Block) string {
	return `<hr class="` + ClassBlockSeparator + `">`
}

func (r *Renderer) renderMarkupHeader(_ context.Context, b Block) string {
	text := b.Content
	if !r.raw {
		text = html.EscapeString(text)
	}
	return `<h2 class="` + ClassMarkupHeader + `">` + text + "</h2>"
}
