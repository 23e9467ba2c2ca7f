// Package filter is the composable filter engine for records. All active
// predicates are AND-combined; applying a filter yields indices into the
// input slice so large record sets are never copied.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

// ErrInvalidRegex wraps regex compile failures from SetRegex.
var ErrInvalidRegex = errors.New("invalid filter regex")

// State is a complete filter configuration. The zero value matches
// everything. Severities and SourceFiles act as include sets; empty means
// no restriction.
type State struct {
	Severities  map[types.Severity]bool
	SourceFiles map[string]bool

	// TimeStart and TimeEnd bound the record timestamp, inclusive.
	// Records without a timestamp never match an active time filter.
	TimeStart *time.Time
	TimeEnd   *time.Time

	// RelativeWindow keeps records newer than now minus the window,
	// where now is supplied by the caller at Apply time. Zero disables
	// it. When both the window and TimeStart are set the later lower
	// bound wins.
	RelativeWindow time.Duration

	// TextSearch is a case-insensitive substring match on the message.
	TextSearch string

	pattern string
	regex   *regexp.Regexp
}

// IsEmpty reports whether no predicate is active.
func (s *State) IsEmpty() bool {
	return len(s.Severities) == 0 &&
		len(s.SourceFiles) == 0 &&
		s.TimeStart == nil &&
		s.TimeEnd == nil &&
		s.RelativeWindow == 0 &&
		s.TextSearch == "" &&
		s.regex == nil
}

// SetRegex compiles and installs a regex predicate on the message. An
// empty pattern clears it. On compile failure the previous regex stays
// active and the error wraps ErrInvalidRegex.
func (s *State) SetRegex(pattern string) error {
	if pattern == "" {
		s.pattern = ""
		s.regex = nil
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
	}
	s.pattern = pattern
	s.regex = re
	return nil
}

// RegexPattern returns the currently installed regex source, if any.
func (s *State) RegexPattern() string {
	return s.pattern
}

// ErrorsOnly is the quick filter for Critical and Error records.
func ErrorsOnly() *State {
	return &State{Severities: map[types.Severity]bool{
		types.SeverityCritical: true,
		types.SeverityError:    true,
	}}
}

// ErrorsAndWarnings is the quick filter that adds Warning.
func ErrorsAndWarnings() *State {
	return &State{Severities: map[types.Severity]bool{
		types.SeverityCritical: true,
		types.SeverityError:    true,
		types.SeverityWarning:  true,
	}}
}

// Apply returns the indices of records matching every active predicate,
// in input order. now anchors the relative window; the engine itself
// never reads a clock.
func Apply(records []types.Record, s *State, now time.Time) []int {
	if s == nil || s.IsEmpty() {
		all := make([]int, len(records))
		for i := range all {
			all[i] = i
		}
		return all
	}

	textLower := strings.ToLower(s.TextSearch)

	start := s.TimeStart
	if s.RelativeWindow > 0 {
		rel := now.Add(-s.RelativeWindow)
		if start == nil || rel.After(*start) {
			start = &rel
		}
	}

	matched := make([]int, 0, len(records))
	for i := range records {
		if matchesAll(&records[i], s, textLower, start) {
			matched = append(matched, i)
		}
	}
	return matched
}

func matchesAll(r *types.Record, s *State, textLower string, start *time.Time) bool {
	if len(s.Severities) > 0 && !s.Severities[r.Severity] {
		return false
	}
	if len(s.SourceFiles) > 0 && !s.SourceFiles[r.SourceFile] {
		return false
	}

	if start != nil {
		if r.Timestamp == nil || r.Timestamp.Before(*start) {
			return false
		}
	}
	if s.TimeEnd != nil {
		if r.Timestamp == nil || r.Timestamp.After(*s.TimeEnd) {
			return false
		}
	}

	if textLower != "" && !strings.Contains(strings.ToLower(r.Message), textLower) {
		return false
	}
	if s.regex != nil && !s.regex.MatchString(r.Message) {
		return false
	}

	return true
}
