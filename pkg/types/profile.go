package types

import (
	"regexp"
	"strings"
)

// PlainTextProfileID identifies the fallback profile assigned to files no
// other format matches.
const PlainTextProfileID = "plain-text"

// MultilineMode controls what the parser does with lines that do not match
// a profile's line pattern.
type MultilineMode uint8

const (
	// MultilineContinuation appends unmatched lines to the previous record.
	MultilineContinuation MultilineMode = iota
	// MultilineSkip discards unmatched lines silently.
	MultilineSkip
	// MultilineRaw emits each unmatched line as its own record.
	MultilineRaw
)

func (m MultilineMode) String() string {
	switch m {
	case MultilineSkip:
		return "skip"
	case MultilineRaw:
		return "raw"
	default:
		return "continuation"
	}
}

// ParseMultilineMode maps a mode name from a profile definition. The empty
// string selects the continuation default.
func ParseMultilineMode(s string) (MultilineMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continuation":
		return MultilineContinuation, true
	case "skip":
		return MultilineSkip, true
	case "raw":
		return MultilineRaw, true
	}
	return MultilineContinuation, false
}

// SeverityOverride reclassifies records whose message matches a pattern.
// Overrides run when the captured level is absent or unmapped.
type SeverityOverride struct {
	Pattern  *regexp.Regexp
	Severity Severity
}

// Profile is a compiled log format definition, ready for detection and
// parsing. Instances are built by the profile registry and treated as
// immutable afterwards.
type Profile struct {
	ID          string
	Name        string
	Version     string
	Description string

	// Detection inputs, both optional.
	FilenameGlobs []string
	ContentMatch  *regexp.Regexp

	// LinePattern uses the named groups timestamp, level, message, thread
	// and component; at least one of level or message is present.
	LinePattern *regexp.Regexp

	// TimestampFormat is the strftime-style format from the definition.
	// TimestampLayout is its Go-layout equivalent, empty when the pattern
	// captures no timestamp.
	TimestampFormat string
	TimestampLayout string

	Multiline       MultilineMode
	SeverityMapping map[string]Severity
	Overrides       []SeverityOverride

	// KnownLocations is informational only.
	KnownLocations []string

	BuiltIn bool
}

// MapSeverity resolves a captured level literal against the profile's
// mapping. Matching is case-insensitive and exact.
func (p *Profile) MapSeverity(level string) (Severity, bool) {
	if len(p.SeverityMapping) == 0 {
		return SeverityUnknown, false
	}
	sev, ok := p.SeverityMapping[strings.ToLower(strings.TrimSpace(level))]
	return sev, ok
}
