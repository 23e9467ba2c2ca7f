package scan

import "github.com/therealutkarshpriyadarshi/loupe/pkg/types"

// Kind discriminates scan progress messages.
type Kind int

const (
	KindDiscoveryStarted Kind = iota
	KindFileDiscovered
	KindDiscoveryCompleted
	KindFilesDiscovered
	KindAdditionalFilesDiscovered
	KindParsingStarted
	KindFileParsed
	KindEntriesBatch
	KindWarning
	KindParsingCompleted
	KindFailed
	KindCancelled
)

var kindNames = map[Kind]string{
	KindDiscoveryStarted:          "discovery_started",
	KindFileDiscovered:            "file_discovered",
	KindDiscoveryCompleted:        "discovery_completed",
	KindFilesDiscovered:           "files_discovered",
	KindAdditionalFilesDiscovered: "additional_files_discovered",
	KindParsingStarted:            "parsing_started",
	KindFileParsed:                "file_parsed",
	KindEntriesBatch:              "entries_batch",
	KindWarning:                   "warning",
	KindParsingCompleted:          "parsing_completed",
	KindFailed:                    "failed",
	KindCancelled:                 "cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Progress is one message from the scan worker to the embedder. Kind
// selects which fields are meaningful; everything crossing the queue is a
// value the worker no longer touches.
type Progress struct {
	Kind Kind

	// FileDiscovered: the path just found and the running count.
	Path       string
	FilesFound int

	// DiscoveryCompleted: files kept after the cap vs. qualifiers seen.
	Loaded     int
	TotalFound int

	// FilesDiscovered replaces the embedder's file list;
	// AdditionalFilesDiscovered extends it (append mode).
	Files []types.DiscoveredFile

	// ParsingStarted carries TotalFiles; FileParsed carries the running
	// Completed count, TotalFiles again and the per-file summary.
	TotalFiles int
	Completed  int
	File       types.FileSummary

	// EntriesBatch: parsed records in emission order.
	Records []types.Record

	// Warning and Failed: human-readable description.
	Message string

	// ParsingCompleted: the aggregate for the whole scan.
	Summary types.ScanSummary
}
