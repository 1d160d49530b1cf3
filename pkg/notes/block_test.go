package notes_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/langnotes/pkg/notes"
)

func TestParseBlockType(t *testing.T) {
	for _, bt := range notes.BlockTypes {
		got, err := notes.ParseBlockType(string(bt))
		require.NoError(t, err)
		assert.Equal(t, bt, got)
	}

	got, err := notes.ParseBlockType("  Dialogue ")
	require.NoError(t, err)
	assert.Equal(t, notes.BlockDialogue, got)

	_, err = notes.ParseBlockType("table")
	assert.True(t, errors.Is(err, notes.ErrUnknownBlockType))
}

func TestBlockType_Predicates(t *testing.T) {
	assert.True(t, notes.BlockDialogue.Dialogue())
	assert.False(t, notes.BlockRule.Dialogue())

	assert.True(t, notes.BlockCentered.Parsed())
	assert.False(t, notes.BlockSeparator.Parsed())
	assert.False(t, notes.BlockMarkupHeader.Parsed())

	assert.False(t, notes.BlockType("").Valid())
}

func TestDocument_SortedIsStable(t *testing.T) {
	doc := notes.Document{Blocks: []notes.Block{
		{ID: "c", Type: notes.BlockRule, Order: 2},
		{ID: "a", Type: notes.BlockRule, Order: 0.5},
		{ID: "b1", Type: notes.BlockRule, Order: 1},
		{ID: "b2", Type: notes.BlockRule, Order: 1},
	}}

	sorted := doc.Sorted()
	ids := make([]string, len(sorted))
	for i, b := range sorted {
		ids[i] = b.ID
	}
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids)
	assert.Equal(t, "c", doc.Blocks[0].ID, "Sorted must not reorder the document itself")
}

func TestDocument_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		blocks  []notes.Block
		wantErr error
	}{
		{"ok", []notes.Block{{ID: "1", Type: notes.BlockRule}, {ID: "2", Type: notes.BlockSeparator}}, nil},
		{"duplicate id", []notes.Block{{ID: "1", Type: notes.BlockRule}, {ID: "1", Type: notes.BlockExample}}, notes.ErrDuplicateBlockID},
		{"unknown type", []notes.Block{{ID: "1", Type: "poem"}}, notes.ErrUnknownBlockType},
		{"missing id", []notes.Block{{Type: notes.BlockRule}}, notes.ErrInvalidDocument},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := notes.Document{Blocks: tc.blocks}.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
