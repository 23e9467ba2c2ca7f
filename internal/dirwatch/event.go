package dirwatch

import (
	"time"

	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

// Kind discriminates directory watch events.
type Kind int

const (
	// KindStarted is sent once when the watcher begins polling.
	KindStarted Kind = iota

	// KindNewFiles carries files that appeared since the last tick and
	// were not in the initial known set.
	KindNewFiles

	// KindMtimeUpdates carries modification time changes for files the
	// embedder already knows about.
	KindMtimeUpdates

	// KindStopped is the final event after Stop.
	KindStopped
)

var kindNames = map[Kind]string{
	KindStarted:      "started",
	KindNewFiles:     "new_files",
	KindMtimeUpdates: "mtime_updates",
	KindStopped:      "stopped",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is one message from the watch worker to the embedder.
type Event struct {
	Kind Kind

	// Known is set on Started: the size of the initial known set.
	Known int

	// Files is set on NewFiles.
	Files []types.DiscoveredFile

	// Mtimes is set on MtimeUpdates, keyed by path.
	Mtimes map[string]time.Time
}
