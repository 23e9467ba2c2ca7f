package tail

import "github.com/therealutkarshpriyadarshi/loupe/pkg/types"

// Kind discriminates tail events.
type Kind int

const (
	// KindStarted is sent once when the watcher begins polling.
	KindStarted Kind = iota

	// KindNewEntries carries the records appended since the last tick,
	// across all watched files. At most one is sent per tick.
	KindNewEntries

	// KindFileError reports a per-file read failure. Tailing of the
	// other files continues.
	KindFileError

	// KindStopped is the final event after Stop.
	KindStopped
)

var kindNames = map[Kind]string{
	KindStarted:    "started",
	KindNewEntries: "new_entries",
	KindFileError:  "file_error",
	KindStopped:    "stopped",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is one message from the tail worker to the embedder. Which
// fields are set depends on Kind; everything crosses by value.
type Event struct {
	Kind Kind

	// FileCount is set on Started.
	FileCount int

	// Records is set on NewEntries. A record whose ID the embedder has
	// already seen is a grown continuation record and replaces the old
	// one in place.
	Records []types.Record

	// Path and Error are set on FileError.
	Path  string
	Error string
}
