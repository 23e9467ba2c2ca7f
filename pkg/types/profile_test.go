package types

import "testing"

func TestParseMultilineMode(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   MultilineMode
		wantOK bool
	}{
		{"continuation", "continuation", MultilineContinuation, true},
		{"skip", "skip", MultilineSkip, true},
		{"raw", "raw", MultilineRaw, true},
		{"empty defaults to continuation", "", MultilineContinuation, true},
		{"uppercase", "SKIP", MultilineSkip, true},
		{"unrecognized", "merge", MultilineContinuation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMultilineMode(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseMultilineMode(%q) = (%v, %v), want (%v, %v)",
					tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMapSeverity(t *testing.T) {
	p := &Profile{
		SeverityMapping: map[string]Severity{
			"error": SeverityError,
			"warn":  SeverityWarning,
			"информация": SeverityInfo,
		},
	}

	tests := []struct {
		name   string
		level  string
		want   Severity
		wantOK bool
	}{
		{"exact", "error", SeverityError, true},
		{"case insensitive", "ERROR", SeverityError, true},
		{"padded", " warn ", SeverityWarning, true},
		{"non-ascii literal", "ИНФОРМАЦИЯ", SeverityInfo, true},
		{"unmapped", "trace", SeverityUnknown, false},
		{"substring does not match", "errors", SeverityUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.MapSeverity(tt.level)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("MapSeverity(%q) = (%v, %v), want (%v, %v)",
					tt.level, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMapSeverityEmptyMapping(t *testing.T) {
	p := &Profile{}
	if _, ok := p.MapSeverity("error"); ok {
		t.Error("MapSeverity on empty mapping expected ok=false")
	}
}
