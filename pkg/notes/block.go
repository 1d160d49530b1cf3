// Package notes models note documents (ordered blocks of markup) and renders
// them to HTML through the markup parser.
package notes

import (
	"fmt"
	"sort"
	"strings"
)

// BlockType is the closed set of block variants.
type BlockType string

const (
	BlockRule         BlockType = "rule"
	BlockDialogue     BlockType = "dialogue"
	BlockExample      BlockType = "example"
	BlockCentered     BlockType = "centered"
	BlockSeparator    BlockType = "separator"
	BlockMarkupHeader BlockType = "markup-header"
)

// BlockTypes lists every variant in display order.
var BlockTypes = []BlockType{
	BlockRule,
	BlockDialogue,
	BlockExample,
	BlockCentered,
	BlockSeparator,
	BlockMarkupHeader,
}

// ParseBlockType resolves a type tag, ignoring case and surrounding space.
func ParseBlockType(s string) (BlockType, error) {
	t := BlockType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownBlockType, s)
	}
	return t, nil
}

// Valid reports whether t is a known variant.
func (t BlockType) Valid() bool {
	for _, known := range BlockTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Dialogue reports whether content of this type parses in dialogue context.
func (t BlockType) Dialogue() bool { return t == BlockDialogue }

// Parsed reports whether content of this type goes through the markup parser.
func (t BlockType) Parsed() bool {
	return t != BlockSeparator && t != BlockMarkupHeader
}

func (t BlockType) String() string { return string(t) }

// Block is one user-authored unit of a document.
type Block struct {
	ID      string    `json:"id" yaml:"id" toml:"id"`
	Type    BlockType `json:"type" yaml:"type" toml:"type"`
	Content string    `json:"content,omitempty" yaml:"content,omitempty" toml:"content,omitempty"`
	Order   float64   `json:"order" yaml:"order" toml:"order"`
}

// Document is an ordered collection of blocks.
type Document struct {
	Title  string  `json:"title,omitempty" yaml:"title,omitempty" toml:"title,omitempty"`
	Blocks []Block `json:"blocks" yaml:"blocks" toml:"blocks"`
}

// Sorted returns the blocks in ascending Order. Blocks with equal Order keep
// their authored position. The document is not modified.
func (d Document) Sorted() []Block {
	out := make([]Block, len(d.Blocks))
	copy(out, d.Blocks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Validate checks block types and id uniqueness.
func (d Document) Validate() error {
	seen := make(map[string]int, len(d.Blocks))
	for i, b := range d.Blocks {
		if !b.Type.Valid() {
			return fmt.Errorf("%w: %q at block %d", ErrUnknownBlockType, b.Type, i)
		}
		if b.ID == "" {
			return fmt.Errorf("%w: block %d has no id", ErrInvalidDocument, i)
		}
		if prev, dup := seen[b.ID]; dup {
			return fmt.Errorf("%w: %q at blocks %d and %d", ErrDuplicateBlockID, b.ID, prev, i)
		}
		seen[b.ID] = i
	}
	return nil
}
