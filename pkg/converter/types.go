package converter

// Status is the processing state of one notebook file.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusCached     Status = "cached"
)

// OnErrorMode selects what a per-file failure does to the rest of the run.
type OnErrorMode string

const (
	OnErrorContinue OnErrorMode = "continue"
	OnErrorStop     OnErrorMode = "stop"
)

// BinaryMode selects how files that are not text are handled.
type BinaryMode string

const (
	BinarySkip  BinaryMode = "skip"
	BinaryError BinaryMode = "error"
)

// LargeFileMode selects how files above the size threshold are handled.
type LargeFileMode string

const (
	LargeFileSkip  LargeFileMode = "skip"
	LargeFileError LargeFileMode = "error"
)

// OutputFormat is the format of the summary printed when the TUI is off.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)
