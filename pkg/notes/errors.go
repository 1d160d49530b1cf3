package notes

import "errors"

var (
	// ErrUnknownBlockType indicates a block whose type is not one of the known variants.
	ErrUnknownBlockType = errors.New("unknown block type")

	// ErrInvalidDocument indicates a document that could not be parsed or failed schema validation.
	ErrInvalidDocument = errors.New("invalid notes document")

	// ErrDuplicateBlockID indicates two blocks in one document sharing an id.
	ErrDuplicateBlockID = errors.New("duplicate block id")

	// ErrUnsupportedFormat indicates a serialisation format Decode cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)
