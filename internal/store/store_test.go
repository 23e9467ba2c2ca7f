package store

import (
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/loupe/internal/filter"
	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) *time.Time {
	t := base.Add(time.Duration(sec) * time.Second)
	return &t
}

func rec(id uint64, ts *time.Time, msg string) types.Record {
	return types.Record{ID: id, Timestamp: ts, Message: msg, Severity: types.SeverityInfo}
}

func TestNextID(t *testing.T) {
	s := New(0)
	if got := s.NextID(); got != 0 {
		t.Errorf("empty NextID() = %d, want 0", got)
	}

	s.Append([]types.Record{rec(0, at(0), "a"), rec(1, at(1), "b"), rec(2, at(2), "c")})
	if got := s.NextID(); got != 3 {
		t.Errorf("NextID() = %d, want 3", got)
	}

	s.Append([]types.Record{rec(10, at(3), "d")})
	if got := s.NextID(); got != 11 {
		t.Errorf("NextID() after gap = %d, want 11", got)
	}

	// Replacing an old record must not move the counter.
	s.Append([]types.Record{rec(1, at(1), "b grown")})
	if got := s.NextID(); got != 11 {
		t.Errorf("NextID() after replacement = %d, want 11", got)
	}
}

func TestAppendReplacesByID(t *testing.T) {
	s := New(0)
	added, dropped := s.Append([]types.Record{rec(5, at(0), "short")})
	if added != 1 || dropped != 0 {
		t.Fatalf("Append() = (%d, %d), want (1, 0)", added, dropped)
	}

	added, dropped = s.Append([]types.Record{rec(5, at(0), "short\nplus continuation")})
	if added != 0 || dropped != 0 {
		t.Errorf("replacement Append() = (%d, %d), want (0, 0)", added, dropped)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	got, ok := s.Get(5)
	if !ok || got.Message != "short\nplus continuation" {
		t.Errorf("Get(5) = (%q, %v), want grown message", got.Message, ok)
	}
}

func TestAppendCap(t *testing.T) {
	s := New(3)
	recs := []types.Record{
		rec(0, at(0), "a"), rec(1, at(1), "b"), rec(2, at(2), "c"),
		rec(3, at(3), "d"), rec(4, at(4), "e"),
	}
	added, dropped := s.Append(recs)
	if added != 3 || dropped != 2 {
		t.Errorf("Append() = (%d, %d), want (3, 2)", added, dropped)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}

	// Replacements still land when the store is full.
	added, dropped = s.Append([]types.Record{rec(1, at(1), "b grown")})
	if added != 0 || dropped != 0 {
		t.Errorf("replacement at cap = (%d, %d), want (0, 0)", added, dropped)
	}
	if got, _ := s.Get(1); got.Message != "b grown" {
		t.Errorf("Get(1).Message = %q, want grown", got.Message)
	}
}

func TestSortChronological(t *testing.T) {
	s := New(0)
	s.Append([]types.Record{
		rec(0, at(30), "late"),
		rec(1, at(10), "early"),
		rec(2, nil, "no ts first"),
		rec(3, at(10), "early tie"),
		rec(4, nil, "no ts second"),
	})
	s.SortChronological()

	wantOrder := []uint64{1, 3, 0, 2, 4}
	recs := s.Records()
	for i, want := range wantOrder {
		if recs[i].ID != want {
			t.Errorf("records[%d].ID = %d, want %d", i, recs[i].ID, want)
		}
	}

	// The ID index must survive the reorder.
	got, ok := s.Get(0)
	if !ok || got.Message != "late" {
		t.Errorf("Get(0) after sort = (%q, %v), want (late, true)", got.Message, ok)
	}
}

func TestCorrelatedIDs(t *testing.T) {
	s := New(0)
	s.Append([]types.Record{
		rec(1, at(0), "a"),
		rec(2, at(10), "b"),
		rec(3, at(30), "anchor"),
		rec(4, at(31), "c"),
		rec(5, at(90), "far"),
		rec(6, nil, "no ts"),
	})

	tests := []struct {
		name   string
		anchor uint64
		window time.Duration
		want   []uint64
	}{
		{"default window", 3, 0, []uint64{1, 2, 3, 4}},
		{"boundary inclusive", 3, 30 * time.Second, []uint64{1, 2, 3, 4}},
		{"narrow window", 3, time.Second, []uint64{3, 4}},
		{"negative clamps to minimum", 3, -5 * time.Second, []uint64{3, 4}},
		{"huge clamps to maximum", 3, 2 * time.Hour, []uint64{1, 2, 3, 4, 5}},
		{"unknown anchor", 99, 0, nil},
		{"anchor without timestamp", 6, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.CorrelatedIDs(tt.anchor, tt.window)
			if len(got) != len(tt.want) {
				t.Fatalf("CorrelatedIDs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("CorrelatedIDs()[%d] = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBookmarks(t *testing.T) {
	s := New(0)
	s.Append([]types.Record{
		rec(2, at(0), "two"),
		rec(5, at(1), "five"),
		rec(7, at(2), "seven"),
	})

	if got := s.ToggleBookmark(7); !got {
		t.Error("ToggleBookmark(7) = false, want true")
	}
	if got := s.ToggleBookmark(2); !got {
		t.Error("ToggleBookmark(2) = false, want true")
	}
	if got := s.ToggleBookmark(5); !got {
		t.Error("ToggleBookmark(5) = false, want true")
	}
	if got := s.ToggleBookmark(99); got {
		t.Error("ToggleBookmark(99) = true, want false for unknown ID")
	}
	if !s.IsBookmarked(5) || s.IsBookmarked(99) {
		t.Error("IsBookmarked() wrong for 5 or 99")
	}
	if got := s.BookmarkCount(); got != 3 {
		t.Errorf("BookmarkCount() = %d, want 3", got)
	}

	marks := s.Bookmarks()
	wantIDs := []uint64{2, 5, 7}
	wantLabels := []string{"two", "five", "seven"}
	for i, m := range marks {
		if m.ID != wantIDs[i] || m.Label != wantLabels[i] {
			t.Errorf("Bookmarks()[%d] = {%d %q}, want {%d %q}", i, m.ID, m.Label, wantIDs[i], wantLabels[i])
		}
	}

	if got := s.ToggleBookmark(5); got {
		t.Error("second ToggleBookmark(5) = true, want false")
	}
	if got := s.BookmarkCount(); got != 2 {
		t.Errorf("BookmarkCount() after untoggle = %d, want 2", got)
	}

	s.ClearBookmarks()
	if got := s.BookmarkCount(); got != 0 {
		t.Errorf("BookmarkCount() after clear = %d, want 0", got)
	}
}

func TestSetBookmarksSkipsStaleIDs(t *testing.T) {
	s := New(0)
	s.Append([]types.Record{rec(1, at(0), "one")})
	s.SetBookmarks(map[uint64]string{1: "one", 42: "gone"})
	if s.BookmarkCount() != 1 || !s.IsBookmarked(1) || s.IsBookmarked(42) {
		t.Errorf("SetBookmarks kept stale ID: count=%d", s.BookmarkCount())
	}
}

func TestApplyFilter(t *testing.T) {
	s := New(0)
	recs := []types.Record{
		rec(0, at(0), "plain info"),
		rec(1, at(1), "disk failure"),
		rec(2, at(2), "another failure"),
	}
	recs[1].Severity = types.SeverityError
	recs[2].Severity = types.SeverityError
	s.Append(recs)

	f := filter.ErrorsOnly()
	if got := s.ApplyFilter(f, false, base); got != 2 {
		t.Fatalf("ApplyFilter() = %d, want 2", got)
	}
	view := s.FilteredRecords()
	if len(view) != 2 || view[0].ID != 1 || view[1].ID != 2 {
		t.Errorf("FilteredRecords() IDs = %v, want [1 2]", view)
	}

	s.ToggleBookmark(2)
	if got := s.ApplyFilter(f, true, base); got != 1 {
		t.Errorf("ApplyFilter(bookmarksOnly) = %d, want 1", got)
	}
	if idx := s.FilteredIndices(); len(idx) != 1 || s.Records()[idx[0]].ID != 2 {
		t.Errorf("FilteredIndices() = %v, want the bookmarked error", idx)
	}
}

func TestApplyFilterRelativeWindowRebases(t *testing.T) {
	s := New(0)
	s.Append([]types.Record{
		rec(0, at(0), "old"),
		rec(1, at(100), "recent"),
	})

	f := &filter.State{RelativeWindow: 30 * time.Second}

	// With now just past the second record only it is inside the window.
	now := base.Add(110 * time.Second)
	if got := s.ApplyFilter(f, false, now); got != 1 {
		t.Errorf("ApplyFilter() = %d, want 1", got)
	}

	// The same filter applied much later matches nothing: the window is
	// anchored to now, not to when the filter was built.
	now = base.Add(time.Hour)
	if got := s.ApplyFilter(f, false, now); got != 0 {
		t.Errorf("ApplyFilter() after rebase = %d, want 0", got)
	}
}

func TestClear(t *testing.T) {
	s := New(0)
	s.Append([]types.Record{rec(0, at(0), "a"), rec(1, at(1), "b")})
	s.ToggleBookmark(0)
	s.ApplyFilter(nil, false, base)

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if got := s.NextID(); got != 0 {
		t.Errorf("NextID() = %d, want 0", got)
	}
	if s.BookmarkCount() != 0 {
		t.Errorf("BookmarkCount() = %d, want 0", s.BookmarkCount())
	}
	if len(s.FilteredIndices()) != 0 {
		t.Errorf("FilteredIndices() = %v, want empty", s.FilteredIndices())
	}
}
