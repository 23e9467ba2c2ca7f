// Package session persists the viewer's reloadable state between runs:
// what was scanned, how it was filtered, and which records were
// bookmarked. The file is a convenience, never a source of truth, so
// loading is forgiving and failures silently fall back to a fresh start.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/therealutkarshpriyadarshi/loupe/internal/filter"
	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

// FileName is the session file's name inside the state directory.
const FileName = "session.json"

// Version is bumped whenever Data changes incompatibly. A file with a
// different version is discarded on load.
const Version = 1

// FilterState is the serializable form of a filter configuration.
type FilterState struct {
	Severities    []string `json:"severities,omitempty"`
	SourceFiles   []string `json:"source_files,omitempty"`
	TextSearch    string   `json:"text_search,omitempty"`
	RegexPattern  string   `json:"regex_pattern,omitempty"`
	RelativeSecs  int64    `json:"relative_secs,omitempty"`
	BookmarksOnly bool     `json:"bookmarks_only,omitempty"`
}

// Data is one session snapshot.
type Data struct {
	Version               int               `json:"version"`
	ScanPath              string            `json:"scan_path,omitempty"`
	ExtraFiles            []string          `json:"extra_files,omitempty"`
	Filter                FilterState       `json:"filter"`
	Bookmarks             map[uint64]string `json:"bookmarks,omitempty"`
	CorrelationWindowSecs int64             `json:"correlation_window_secs,omitempty"`
	SavedAt               time.Time         `json:"saved_at"`
}

// Save writes the snapshot atomically under dir, creating it if needed.
// The version and timestamp are stamped here.
func Save(dir string, data *Data) error {
	data.Version = Version
	data.SavedAt = time.Now().UTC()

	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

// Load reads the snapshot under dir. A missing file, unreadable or
// malformed content, and a version mismatch all return (nil, false).
func Load(dir string) (*Data, bool) {
	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, false
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false
	}
	if data.Version != Version {
		return nil, false
	}
	return &data, true
}

// FromFilter captures a live filter as its serializable form.
func FromFilter(f *filter.State, bookmarksOnly bool) FilterState {
	fs := FilterState{
		TextSearch:    f.TextSearch,
		RegexPattern:  f.RegexPattern(),
		RelativeSecs:  int64(f.RelativeWindow / time.Second),
		BookmarksOnly: bookmarksOnly,
	}
	for sev := range f.Severities {
		fs.Severities = append(fs.Severities, sev.Label())
	}
	sort.Strings(fs.Severities)
	for src := range f.SourceFiles {
		fs.SourceFiles = append(fs.SourceFiles, src)
	}
	sort.Strings(fs.SourceFiles)
	return fs
}

// ToFilter rebuilds a live filter. Unknown severity labels are skipped;
// a regex that no longer compiles is dropped and reported, with the
// rest of the filter intact.
func (fs FilterState) ToFilter() (*filter.State, bool, error) {
	f := &filter.State{
		TextSearch:     fs.TextSearch,
		RelativeWindow: time.Duration(fs.RelativeSecs) * time.Second,
	}
	if len(fs.Severities) > 0 {
		f.Severities = make(map[types.Severity]bool, len(fs.Severities))
		for _, label := range fs.Severities {
			if sev, ok := types.ParseSeverity(label); ok {
				f.Severities[sev] = true
			}
		}
	}
	if len(fs.SourceFiles) > 0 {
		f.SourceFiles = make(map[string]bool, len(fs.SourceFiles))
		for _, src := range fs.SourceFiles {
			f.SourceFiles[src] = true
		}
	}

	var err error
	if fs.RegexPattern != "" {
		err = f.SetRegex(fs.RegexPattern)
	}
	return f, fs.BookmarksOnly, err
}
