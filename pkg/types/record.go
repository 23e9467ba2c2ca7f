package types

import "time"

// Record is a single parsed log entry in the global timeline.
//
// IDs are assigned by whoever runs the parser, from a caller-supplied
// starting value, and are unique for the lifetime of the process. A record
// is never mutated once handed to the embedder, with one exception: a tail
// watcher may re-emit a continuation-extended record under the same ID, and
// the embedder replaces its copy wholesale.
type Record struct {
	ID         uint64     `json:"id"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Severity   Severity   `json:"severity"`
	SourceFile string     `json:"source_file"`
	LineNumber uint64     `json:"line_number"`
	Thread     string     `json:"thread,omitempty"`
	Component  string     `json:"component,omitempty"`
	Message    string     `json:"message"`
	RawText    string     `json:"raw_text"`
	ProfileID  string     `json:"profile_id"`
}
