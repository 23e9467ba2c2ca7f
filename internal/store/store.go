// Package store holds the embedder-side record sequence: everything the
// scan and tail workers have delivered, in one slice the UI layers index
// into. It is deliberately single-threaded; the embedder owns it and
// feeds it from its own polling loop.
package store

import (
	"sort"
	"time"

	"github.com/therealutkarshpriyadarshi/loupe/internal/filter"
	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

const (
	// DefaultMaxRecords bounds the store when the caller passes zero.
	DefaultMaxRecords = 500_000

	// DefaultCorrelationWindow is the half-width of the correlation
	// window when the caller passes zero.
	DefaultCorrelationWindow = 30 * time.Second

	// MinCorrelationWindow and MaxCorrelationWindow clamp the window.
	MinCorrelationWindow = time.Second
	MaxCorrelationWindow = time.Hour
)

// Bookmark pairs a record ID with the label captured when it was set.
type Bookmark struct {
	ID    uint64
	Label string
}

// Store is the record sequence plus its derived state: the ID index,
// the bookmark set, and the last filter snapshot.
type Store struct {
	maxRecords int

	records []types.Record
	byID    map[uint64]int
	maxID   uint64
	hasAny  bool

	bookmarks map[uint64]string
	filtered  []int
}

// New builds an empty store capped at maxRecords; zero or negative means
// DefaultMaxRecords.
func New(maxRecords int) *Store {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &Store{
		maxRecords: maxRecords,
		byID:       make(map[uint64]int),
		bookmarks:  make(map[uint64]string),
	}
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return len(s.records)
}

// Records exposes the backing slice. Callers must treat it as read-only.
func (s *Store) Records() []types.Record {
	return s.records
}

// Get returns a copy of the record with the given ID.
func (s *Store) Get(id uint64) (types.Record, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return types.Record{}, false
	}
	return s.records[idx], true
}

// NextID returns the ID the next worker should start assigning from:
// one past the highest ID ever stored, zero for an empty store.
func (s *Store) NextID() uint64 {
	if !s.hasAny {
		return 0
	}
	return s.maxID + 1
}

// Append ingests a batch from a worker. A record whose ID is already
// present replaces the stored one in place (a tail continuation that
// grew); new records append until the cap, after which they are
// dropped. It returns how many were added and how many dropped.
//
// The filter snapshot goes stale after Append; re-apply before reading
// filtered views.
func (s *Store) Append(recs []types.Record) (added, dropped int) {
	for i := range recs {
		if idx, ok := s.byID[recs[i].ID]; ok {
			s.records[idx] = recs[i]
			continue
		}
		if len(s.records) >= s.maxRecords {
			dropped++
			continue
		}
		s.byID[recs[i].ID] = len(s.records)
		s.records = append(s.records, recs[i])
		added++
		if !s.hasAny || recs[i].ID > s.maxID {
			s.maxID = recs[i].ID
			s.hasAny = true
		}
	}
	return added, dropped
}

// SortChronological stable-sorts the records by timestamp. Records
// without a timestamp sort after all timestamped ones; ties and
// timestamp-less runs keep their arrival order.
func (s *Store) SortChronological() {
	sort.SliceStable(s.records, func(i, j int) bool {
		a, b := s.records[i].Timestamp, s.records[j].Timestamp
		switch {
		case a != nil && b != nil:
			return a.Before(*b)
		case a != nil:
			return true
		default:
			return false
		}
	})
	for i := range s.records {
		s.byID[s.records[i].ID] = i
	}
}

// Clear drops all records, bookmarks, and derived state. IDs restart at
// zero, so Clear marks the boundary between scans.
func (s *Store) Clear() {
	s.records = nil
	s.byID = make(map[uint64]int)
	s.maxID = 0
	s.hasAny = false
	s.bookmarks = make(map[uint64]string)
	s.filtered = nil
}

// ToggleBookmark flips the bookmark on a record and returns whether it
// is bookmarked afterwards. Unknown IDs are ignored and return false.
func (s *Store) ToggleBookmark(id uint64) bool {
	idx, ok := s.byID[id]
	if !ok {
		return false
	}
	if _, set := s.bookmarks[id]; set {
		delete(s.bookmarks, id)
		return false
	}
	s.bookmarks[id] = s.records[idx].Message
	return true
}

// IsBookmarked reports whether the record is bookmarked.
func (s *Store) IsBookmarked(id uint64) bool {
	_, ok := s.bookmarks[id]
	return ok
}

// BookmarkCount returns the number of bookmarks.
func (s *Store) BookmarkCount() int {
	return len(s.bookmarks)
}

// ClearBookmarks drops all bookmarks.
func (s *Store) ClearBookmarks() {
	s.bookmarks = make(map[uint64]string)
}

// Bookmarks returns the bookmark set in ascending ID order.
func (s *Store) Bookmarks() []Bookmark {
	out := make([]Bookmark, 0, len(s.bookmarks))
	for id, label := range s.bookmarks {
		out = append(out, Bookmark{ID: id, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetBookmarks replaces the bookmark set, used when restoring a session.
// IDs that no longer resolve to a record are skipped.
func (s *Store) SetBookmarks(marks map[uint64]string) {
	s.bookmarks = make(map[uint64]string, len(marks))
	for id, label := range marks {
		if _, ok := s.byID[id]; ok {
			s.bookmarks[id] = label
		}
	}
}

// CorrelatedIDs returns the IDs of all records whose timestamp lies
// within ±window of the anchor's, bounds inclusive, in ascending ID
// order. The anchor itself is included. An unknown anchor or one
// without a timestamp yields nil: there is nothing to correlate
// against. window zero means DefaultCorrelationWindow; out-of-range
// values are clamped.
func (s *Store) CorrelatedIDs(anchorID uint64, window time.Duration) []uint64 {
	idx, ok := s.byID[anchorID]
	if !ok {
		return nil
	}
	anchor := s.records[idx].Timestamp
	if anchor == nil {
		return nil
	}
	w := clampWindow(window)
	lo := anchor.Add(-w)
	hi := anchor.Add(w)

	var out []uint64
	for i := range s.records {
		ts := s.records[i].Timestamp
		if ts == nil {
			continue
		}
		if !ts.Before(lo) && !ts.After(hi) {
			out = append(out, s.records[i].ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func clampWindow(w time.Duration) time.Duration {
	switch {
	case w == 0:
		return DefaultCorrelationWindow
	case w < MinCorrelationWindow:
		return MinCorrelationWindow
	case w > MaxCorrelationWindow:
		return MaxCorrelationWindow
	}
	return w
}

// ApplyFilter recomputes the filtered view and returns its size. now
// anchors any relative time window, so re-applying an unchanged filter
// naturally slides it forward. bookmarksOnly additionally restricts the
// view to bookmarked records.
func (s *Store) ApplyFilter(f *filter.State, bookmarksOnly bool, now time.Time) int {
	indices := filter.Apply(s.records, f, now)
	if bookmarksOnly {
		kept := indices[:0]
		for _, idx := range indices {
			if s.IsBookmarked(s.records[idx].ID) {
				kept = append(kept, idx)
			}
		}
		indices = kept
	}
	s.filtered = indices
	return len(indices)
}

// FilteredIndices returns the last filter snapshot: indices into
// Records, in record order.
func (s *Store) FilteredIndices() []int {
	return s.filtered
}

// FilteredRecords materializes the filtered view as a copy, for export.
func (s *Store) FilteredRecords() []types.Record {
	out := make([]types.Record, len(s.filtered))
	for i, idx := range s.filtered {
		out[i] = s.records[idx]
	}
	return out
}
