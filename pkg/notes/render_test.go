package notes_test

import (
	"context"
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/stackvity/langnotes/pkg/markup"
	"github.com/stackvity/langnotes/pkg/notes"
)

func selectAll(t *testing.T, fragment, selector string) []*html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(fragment))
	require.NoError(t, err)
	return cascadia.MustCompile(selector).MatchAll(doc)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func TestRenderBlock_Wrappers(t *testing.T) {
	r := notes.NewRenderer(notes.RendererOptions{})
	ctx := context.Background()

	testCases := []struct {
		block notes.Block
		want  string
	}{
		{
			notes.Block{ID: "r1", Type: notes.BlockRule, Content: "Text"},
			`<div class="block rule-block" data-block-id="r1"><p>Text</p></div>`,
		},
		{
			notes.Block{ID: "s1", Type: notes.BlockSeparator, Content: "ignored"},
			`<div class="block separator-block" data-block-id="s1"><hr class="block-separator"></div>`,
		},
		{
			notes.Block{ID: "h1", Type: notes.BlockMarkupHeader, Content: "* not parsed & raw"},
			`<div class="block markup-header-block" data-block-id="h1"><h2 class="markup-header">* not parsed &amp; raw</h2></div>`,
		},
		{
			notes.Block{ID: "c1", Type: notes.BlockCentered, Content: "** eins"},
			`<div class="block centered-block" data-block-id="c1"><div class="example-group"><div class="example-item">eins</div></div></div>`,
		},
	}
	for _, tc := range testCases {
		t.Run(string(tc.block.Type), func(t *testing.T) {
			assert.Equal(t, tc.want, string(r.RenderBlock(ctx, tc.block)))
		})
	}
}

func TestRenderBlock_OnlyDialogueBlocksParseDialogue(t *testing.T) {
	r := notes.NewRenderer(notes.RendererOptions{})
	ctx := context.Background()

	dialogue := string(r.RenderBlock(ctx, notes.Block{ID: "d", Type: notes.BlockDialogue, Content: "Anna: Hallo"}))
	assert.Len(t, selectAll(t, dialogue, ".dialogue-block .dialogue-line"), 1)

	example := string(r.RenderBlock(ctx, notes.Block{ID: "e", Type: notes.BlockExample, Content: "Anna: Hallo"}))
	assert.Empty(t, selectAll(t, example, ".dialogue-line"))
	assert.Len(t, selectAll(t, example, ".example-block > p"), 1)
}

func TestRenderBlock_UnknownType(t *testing.T) {
	r := notes.NewRenderer(notes.RendererOptions{})
	assert.Equal(t, "", string(r.RenderBlock(context.Background(), notes.Block{ID: "x", Type: "poem"})))
}

func TestRenderBlock_InlineHTML(t *testing.T) {
	r := notes.NewRenderer(notes.RendererOptions{Markup: markup.Options{AllowInlineHTML: true}})
	got := string(r.RenderBlock(context.Background(), notes.Block{ID: `"q"`, Type: notes.BlockMarkupHeader, Content: "<em>Kapitel</em>"}))
	assert.Equal(t, `<div class="block markup-header-block" data-block-id="&#34;q&#34;"><h2 class="markup-header"><em>Kapitel</em></h2></div>`, got)
}

func TestRenderDocument_OrdersBlocks(t *testing.T) {
	r := notes.NewRenderer(notes.RendererOptions{})
	doc := notes.Document{Title: "T", Blocks: []notes.Block{
		{ID: "third", Type: notes.BlockRule, Content: "3", Order: 30},
		{ID: "first", Type: notes.BlockRule, Content: "1", Order: -1},
		{ID: "second", Type: notes.BlockSeparator, Order: 2.5},
	}}

	out, err := r.RenderDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "T", out.Title)
	require.Len(t, out.Blocks, 3)
	assert.Equal(t, "first", out.Blocks[0].ID)
	assert.Equal(t, "second", out.Blocks[1].ID)
	assert.Equal(t, "third", out.Blocks[2].ID)

	nodes := selectAll(t, string(out.HTML), "div.block")
	require.Len(t, nodes, 3)
	assert.Equal(t, "first", attr(nodes[0], "data-block-id"))
	assert.Equal(t, "third", attr(nodes[2], "data-block-id"))
}

func TestRenderDocument_Cancelled(t *testing.T) {
	r := notes.NewRenderer(notes.RendererOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.RenderDocument(ctx, notes.Document{Blocks: []notes.Block{{ID: "a", Type: notes.BlockRule, Content: "x"}}})
	assert.ErrorIs(t, err, context.Canceled)
}
