package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp parses a captured timestamp with the profile's Go layout.
//
// Several strategies run in order so that common real-world variations
// succeed even when the layout is not an exact match:
//
//  1. Direct parse with the layout.
//  2. RFC 3339 (covers ISO 8601 values with timezone offsets).
//  3. Normalised separators: "/" becomes "-" and "T" becomes " ", then the
//     layout is retried. Handles generic-timestamp captures that mix
//     separator conventions.
//  4. Current-year injection for year-less layouts such as BSD syslog.
//     Entries from a previous year will land on the wrong date; tailing
//     live files this is the right trade.
//
// Values without zone information are taken as UTC.
func ParseTimestamp(raw, layout string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if layout == "" {
		return time.Time{}, fmt.Errorf("no timestamp layout for %q", trimmed)
	}

	if t, err := time.Parse(layout, trimmed); err == nil {
		return t.UTC(), nil
	}

	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return t.UTC(), nil
	}

	normalized := strings.ReplaceAll(trimmed, "/", "-")
	normalized = strings.ReplaceAll(normalized, "T", " ")
	if normalized != trimmed {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t.UTC(), nil
		}
	}

	// "06" also appears inside "2006", so one check covers both year tokens.
	if !strings.Contains(layout, "06") {
		withYear := fmt.Sprintf("%d %s", time.Now().UTC().Year(), trimmed)
		if t, err := time.Parse("2006 "+layout, withYear); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse %q with layout %q", trimmed, layout)
}

// sniffer pairs a recognizer with a parser for one timestamp shape.
type sniffer struct {
	re    *regexp.Regexp
	parse func(m string) (time.Time, bool)
}

var offsetColonRe = regexp.MustCompile(`([+-]\d{2})(\d{2})$`)

// sniffers is ordered from most to least specific. The first regex match
// that also parses wins.
var sniffers = []sniffer{
	// RFC 3339 / ISO 8601 with zone: 2024-01-15T14:30:22.123+05:30,
	// also tolerating the colon-less +0530 offset form.
	{
		re: regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})`),
		parse: func(m string) (time.Time, bool) {
			m = offsetColonRe.ReplaceAllString(m, "$1:$2")
			t, err := time.Parse(time.RFC3339, m)
			return t.UTC(), err == nil
		},
	},
	// Fractional seconds with comma or dot, space or T separator:
	// 2024-01-15 14:30:22,123
	{
		re: regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}[.,]\d{1,9}`),
		parse: func(m string) (time.Time, bool) {
			m = strings.ReplaceAll(m, ",", ".")
			m = strings.ReplaceAll(m, "T", " ")
			t, err := time.Parse("2006-01-02 15:04:05.999999999", m)
			return t.UTC(), err == nil
		},
	},
	// ISO date and time without zone: 2024-01-15 14:30:22
	{
		re: regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`),
		parse: func(m string) (time.Time, bool) {
			m = strings.ReplaceAll(m, "T", " ")
			t, err := time.Parse("2006-01-02 15:04:05", m)
			return t.UTC(), err == nil
		},
	},
	// Slash-separated ISO order: 2024/01/15 14:30:22
	{
		re: regexp.MustCompile(`\d{4}/\d{2}/\d{2}[T ]\d{2}:\d{2}:\d{2}`),
		parse: func(m string) (time.Time, bool) {
			m = strings.ReplaceAll(m, "/", "-")
			m = strings.ReplaceAll(m, "T", " ")
			t, err := time.Parse("2006-01-02 15:04:05", m)
			return t.UTC(), err == nil
		},
	},
	// Dotted European date, the Veeam shape: 15.01.2024 14:30:22
	{
		re: regexp.MustCompile(`\d{2}\.\d{2}\.\d{4} \d{2}:\d{2}:\d{2}`),
		parse: func(m string) (time.Time, bool) {
			t, err := time.Parse("02.01.2006 15:04:05", m)
			return t.UTC(), err == nil
		},
	},
	// Apache common log: 15/Jan/2024:14:30:22 +0000
	{
		re: regexp.MustCompile(`\d{2}/[A-Z][a-z]{2}/\d{4}:\d{2}:\d{2}:\d{2} [+-]\d{4}`),
		parse: func(m string) (time.Time, bool) {
			t, err := time.Parse("02/Jan/2006:15:04:05 -0700", m)
			return t.UTC(), err == nil
		},
	},
	// Ambiguous slash date with four-digit year: 01/15/2024 14:30:22.
	// A component over 12 settles the order; otherwise US is tried first.
	{
		re: regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4} \d{2}:\d{2}:\d{2}`),
		parse: func(m string) (time.Time, bool) {
			return parseSlashDate(m, "1/2/2006 15:04:05", "2/1/2006 15:04:05")
		},
	},
	// Two-digit year with comma-joined time: 01/15/24,14:30:22
	{
		re: regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2},\d{2}:\d{2}:\d{2}`),
		parse: func(m string) (time.Time, bool) {
			return parseSlashDate(m, "1/2/06,15:04:05", "2/1/06,15:04:05")
		},
	},
	// Month name with four-digit year: Jan 15 2024 14:30:22,
	// January 15, 2024 14:30:22
	{
		re: regexp.MustCompile(`[A-Z][a-z]{2,8} \d{1,2},? \d{4} \d{2}:\d{2}:\d{2}`),
		parse: func(m string) (time.Time, bool) {
			m = strings.ReplaceAll(m, ",", " ")
			m = strings.Join(strings.Fields(m), " ")
			if t, err := time.Parse("Jan 2 2006 15:04:05", m); err == nil {
				return t.UTC(), true
			}
			t, err := time.Parse("January 2 2006 15:04:05", m)
			return t.UTC(), err == nil
		},
	},
	// BSD syslog year-less: Jan 15 14:30:22 (single digit days are
	// space-padded). The current UTC year is injected.
	{
		re: regexp.MustCompile(`[A-Z][a-z]{2} [ \d]\d \d{2}:\d{2}:\d{2}`),
		parse: func(m string) (time.Time, bool) {
			withYear := fmt.Sprintf("%d %s", time.Now().UTC().Year(), m)
			t, err := time.Parse("2006 Jan _2 15:04:05", withYear)
			return t.UTC(), err == nil
		},
	},
	// Compact ISO: 20240115T143022 or 20240115 143022
	{
		re: regexp.MustCompile(`\d{8}[T ]\d{6}`),
		parse: func(m string) (time.Time, bool) {
			m = strings.ReplaceAll(m, " ", "T")
			t, err := time.Parse("20060102T150405", m)
			return t.UTC(), err == nil
		},
	},
	// Unix epoch seconds, only at line start so PIDs and ports mid-line
	// do not masquerade as timestamps.
	{
		re: regexp.MustCompile(`^\d{10}(?:\.\d+)?`),
		parse: func(m string) (time.Time, bool) {
			secs, _, _ := strings.Cut(m, ".")
			n, err := strconv.ParseInt(secs, 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return time.Unix(n, 0).UTC(), true
		},
	},
}

// SniffTimestamp scans a raw line for any recognizable timestamp shape.
// It backs up records whose profile capture produced no usable timestamp;
// best-effort only.
func SniffTimestamp(line string) (time.Time, bool) {
	for _, sn := range sniffers {
		if m := sn.re.FindString(line); m != "" {
			if t, ok := sn.parse(m); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// parseSlashDate resolves the MM/DD vs DD/MM ambiguity: a first component
// over 12 forces day-first, a second component over 12 forces month-first,
// and fully ambiguous values try the US order then the UK order.
func parseSlashDate(m, usLayout, ukLayout string) (time.Time, bool) {
	parts := strings.SplitN(m, "/", 3)
	if len(parts) < 3 {
		return time.Time{}, false
	}
	first, err1 := strconv.Atoi(parts[0])
	second, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return time.Time{}, false
	}

	var layouts []string
	switch {
	case first > 12:
		layouts = []string{ukLayout}
	case second > 12:
		layouts = []string{usLayout}
	default:
		layouts = []string{usLayout, ukLayout}
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, m); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
