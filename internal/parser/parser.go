// Package parser turns raw log file content into structured records using
// a compiled profile. Parsing is line oriented: lines matching the profile
// pattern open a new record and non-matching lines are folded, skipped or
// kept raw according to the profile's multiline mode.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

const (
	// DefaultMaxRecordBytes caps a single record's message and raw text.
	// Runaway continuation blocks (stack traces, embedded dumps) are cut
	// at a rune boundary and marked.
	DefaultMaxRecordBytes = 64 * 1024

	// DefaultMaxStoredErrors caps the per-file error detail list. The
	// total count keeps incrementing after the cap.
	DefaultMaxStoredErrors = 1000

	truncationMarker = "... [truncated]"
)

// Options bounds one parse invocation. Zero values select the defaults.
type Options struct {
	MaxRecordBytes  int
	MaxStoredErrors int
}

func (o Options) withDefaults() Options {
	if o.MaxRecordBytes <= 0 {
		o.MaxRecordBytes = DefaultMaxRecordBytes
	}
	if o.MaxStoredErrors <= 0 {
		o.MaxStoredErrors = DefaultMaxStoredErrors
	}
	return o
}

// LineError is one non-fatal problem encountered while parsing.
type LineError struct {
	File       string `json:"file"`
	LineNumber uint64 `json:"line_number"`
	Reason     string `json:"reason"`
}

func (e LineError) String() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.LineNumber, e.Reason)
}

// Input describes one parse invocation.
type Input struct {
	Content    string
	SourceFile string
	Profile    *types.Profile
	Options    Options

	// StartID is the ID for the first emitted record; the caller owns
	// the counter. StartLine is the 1-based number of Content's first
	// line within the file; zero means 1.
	StartID   uint64
	StartLine uint64

	// Seed is an open record from a previous invocation on the same
	// file. Continuation lines arriving before any new match extend it
	// in place instead of being orphaned.
	Seed *types.Record
}

// Result is the outcome of one parse invocation.
type Result struct {
	Records []types.Record

	// Errors holds at most MaxStoredErrors entries; ErrorCount is the
	// true total.
	Errors     []LineError
	ErrorCount uint64

	LinesParsed uint64

	// SeedExtended reports that Input.Seed gained at least one line.
	SeedExtended bool
}

func (r *Result) addError(e LineError, max int) {
	r.ErrorCount++
	if len(r.Errors) < max {
		r.Errors = append(r.Errors, e)
	}
}

// Parse runs the profile over the content and returns the records found.
// It never fails as a whole; malformed lines surface in Result.Errors.
func Parse(in Input) Result {
	opts := in.Options.withDefaults()
	prof := in.Profile

	startLine := in.StartLine
	if startLine == 0 {
		startLine = 1
	}

	var res Result
	id := in.StartID

	for i, line := range splitLines(in.Content) {
		lineNo := startLine + uint64(i)
		res.LinesParsed++

		if strings.TrimSpace(line) == "" {
			continue
		}

		groups, matched := matchGroups(prof.LinePattern, line)
		if matched {
			message, hasMessage := groups["message"]
			if !hasMessage {
				message = line
			}
			level, hasLevel := groups["level"]
			severity := resolveSeverity(prof, level, hasLevel, message)

			rec := types.Record{
				ID:         id,
				Severity:   severity,
				SourceFile: in.SourceFile,
				LineNumber: lineNo,
				Thread:     groups["thread"],
				Component:  groups["component"],
				Message:    message,
				RawText:    line,
				ProfileID:  prof.ID,
			}
			if raw, ok := groups["timestamp"]; ok {
				t, err := ParseTimestamp(raw, prof.TimestampLayout)
				if err == nil {
					rec.Timestamp = &t
				} else {
					res.addError(LineError{
						File:       in.SourceFile,
						LineNumber: lineNo,
						Reason:     err.Error(),
					}, opts.MaxStoredErrors)
				}
			}
			res.Records = append(res.Records, rec)
			id++
		} else {
			switch prof.Multiline {
			case types.MultilineContinuation:
				if n := len(res.Records); n > 0 {
					appendContinuation(&res.Records[n-1], line, opts.MaxRecordBytes)
				} else if in.Seed != nil {
					appendContinuation(in.Seed, line, opts.MaxRecordBytes)
					res.SeedExtended = true
				} else {
					res.addError(LineError{
						File:       in.SourceFile,
						LineNumber: lineNo,
						Reason:     "line does not match profile pattern",
					}, opts.MaxStoredErrors)
				}
			case types.MultilineSkip:
				// Dropped without a record or an error.
			case types.MultilineRaw:
				res.Records = append(res.Records, types.Record{
					ID:         id,
					Severity:   types.SeverityUnknown,
					SourceFile: in.SourceFile,
					LineNumber: lineNo,
					Message:    line,
					RawText:    line,
					ProfileID:  prof.ID,
				})
				id++
			}
		}

		if n := len(res.Records); n > 0 {
			truncateRecord(&res.Records[n-1], opts.MaxRecordBytes)
		} else if in.Seed != nil && res.SeedExtended {
			truncateRecord(in.Seed, opts.MaxRecordBytes)
		}
	}

	// Records whose capture produced no usable timestamp get a second
	// chance against the known timestamp shapes.
	for i := range res.Records {
		if res.Records[i].Timestamp == nil {
			if t, ok := SniffTimestamp(res.Records[i].RawText); ok {
				res.Records[i].Timestamp = &t
			}
		}
	}

	return res
}

// splitLines splits content the way text editors count lines: "\n"
// terminates a line, a trailing newline does not open an empty final
// line, and a "\r" before the newline is stripped.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// matchGroups extracts named captures. Optional groups that did not
// participate in the match are absent from the map, which is how a
// captured-but-empty level stays distinguishable from no level at all.
func matchGroups(re *regexp.Regexp, line string) (map[string]string, bool) {
	idx := re.FindStringSubmatchIndex(line)
	if idx == nil {
		return nil, false
	}
	groups := make(map[string]string, 4)
	for i, name := range re.SubexpNames() {
		if name == "" || 2*i >= len(idx) {
			continue
		}
		if start := idx[2*i]; start >= 0 {
			groups[name] = line[start:idx[2*i+1]]
		}
	}
	return groups, true
}

// appendContinuation folds a continuation line into the record. Fields
// already past the cap stop growing; the final size check happens in
// truncateRecord.
func appendContinuation(rec *types.Record, line string, maxBytes int) {
	if len(rec.Message) <= maxBytes {
		rec.Message += "\n" + line
	}
	if len(rec.RawText) <= maxBytes {
		rec.RawText += "\n" + line
	}
}

func truncateRecord(rec *types.Record, maxBytes int) {
	rec.Message = truncateUTF8(rec.Message, maxBytes)
	rec.RawText = truncateUTF8(rec.RawText, maxBytes)
}

// truncateUTF8 cuts s at the last rune boundary at or before maxBytes and
// appends the truncation marker. Strings within the cap pass through, as
// do already-marked strings: re-truncating one would cut into its own
// marker and splice fragments of it into the text.
func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes || strings.HasSuffix(s, truncationMarker) {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}
