package converter

import "errors"

// Errors returned by ConvertNotes or recorded per file in Report.Errors.
// Check them with errors.Is.
var (
	// ErrReadFailed means a notebook could not be read after discovery.
	ErrReadFailed = errors.New("failed to read file")

	// ErrStatFailed means os.Stat failed for a discovered notebook.
	ErrStatFailed = errors.New("failed to get file stats")

	// ErrBinaryFile is returned for binary content when BinaryMode is "error".
	ErrBinaryFile = errors.New("binary file encountered")

	// ErrLargeFile is returned above the size threshold when LargeFileMode is "error".
	ErrLargeFile = errors.New("large file encountered")

	// ErrDecodeFailed wraps charset and document decoding failures. The
	// underlying notes error (ErrInvalidDocument, ErrUnknownBlockType,
	// ErrDuplicateBlockID) stays reachable through errors.Is.
	ErrDecodeFailed = errors.New("failed to decode notebook")

	// ErrTemplateExecution means the page template failed to execute.
	ErrTemplateExecution = errors.New("template execution failed")

	// ErrMkdirFailed means an output subdirectory could not be created.
	ErrMkdirFailed = errors.New("failed to create output directory")

	// ErrWriteFailed means a rendered page could not be written.
	ErrWriteFailed = errors.New("failed to write output file")

	// ErrConfigValidation means Options failed validation before the run started.
	ErrConfigValidation = errors.New("invalid configuration options provided")
)
