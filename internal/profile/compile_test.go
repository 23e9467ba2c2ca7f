package profile

import (
	"errors"
	"strings"
	"testing"

	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

const validProfileTOML = `
[profile]
id = "test-profile"
name = "Test Profile"
version = "1.0"
description = "A test profile"

[detection]
file_patterns = ["test*.log"]
content_match = '^\[\d{4}-\d{2}-\d{2}'
log_locations = ["/var/log/test"]

[parsing]
line_pattern = '^\[(?P<timestamp>[^\]]+)\] (?P<level>\w+) +(?P<message>.+)$'
timestamp_format = "%Y-%m-%d %H:%M:%S"
multiline_mode = "continuation"

[severity_mapping]
error = ["Error", "ERR"]
warning = ["Warning", "WARN"]
info = ["Info", "INFO"]

[[severity_overrides]]
pattern = 'unhandled exception'
severity = "critical"
`

func compileTOML(t *testing.T, content string) (*types.Profile, error) {
	t.Helper()
	def, warning, err := ParseDefinition([]byte(content), "test.toml")
	if err != nil {
		return nil, err
	}
	if warning != "" {
		t.Fatalf("unexpected unknown-key warning: %s", warning)
	}
	return Compile(def, "test.toml", false)
}

func TestCompileValidProfile(t *testing.T) {
	p, err := compileTOML(t, validProfileTOML)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if p.ID != "test-profile" {
		t.Errorf("ID = %v, want test-profile", p.ID)
	}
	if p.BuiltIn {
		t.Error("BuiltIn = true, want false")
	}
	if p.Multiline != types.MultilineContinuation {
		t.Errorf("Multiline = %v, want continuation", p.Multiline)
	}
	if p.TimestampLayout != "2006-01-02 15:04:05" {
		t.Errorf("TimestampLayout = %q", p.TimestampLayout)
	}
	if len(p.Overrides) != 1 || p.Overrides[0].Severity != types.SeverityCritical {
		t.Errorf("Overrides = %+v", p.Overrides)
	}
	if len(p.KnownLocations) != 1 {
		t.Errorf("KnownLocations = %v", p.KnownLocations)
	}

	if sev, ok := p.MapSeverity("err"); !ok || sev != types.SeverityError {
		t.Errorf("MapSeverity(err) = (%v, %v)", sev, ok)
	}
}

func TestCompileDefaultsVersion(t *testing.T) {
	toml := `
[profile]
id = "v"
name = "V"

[parsing]
line_pattern = '(?P<message>.+)'
`
	p, err := compileTOML(t, toml)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if p.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0", p.Version)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		toml    string
		wantErr error
	}{
		{
			"empty id",
			`
[profile]
id = ""
name = "X"

[parsing]
line_pattern = '(?P<message>.+)'
`,
			ErrMissingField,
		},
		{
			"missing name",
			`
[profile]
id = "x"

[parsing]
line_pattern = '(?P<message>.+)'
`,
			ErrMissingField,
		},
		{
			"missing line pattern",
			`
[profile]
id = "x"
name = "X"

[parsing]
timestamp_format = "%Y"
`,
			ErrMissingField,
		},
		{
			"invalid line pattern",
			`
[profile]
id = "x"
name = "X"

[parsing]
line_pattern = '[unclosed(?P<message>.+)'
`,
			ErrInvalidRegex,
		},
		{
			"unknown capture group",
			`
[profile]
id = "x"
name = "X"

[parsing]
line_pattern = '(?P<host>\S+) (?P<message>.+)'
`,
			ErrUnknownCaptureGroup,
		},
		{
			"neither level nor message",
			`
[profile]
id = "x"
name = "X"

[parsing]
line_pattern = '(?P<timestamp>\S+) .*'
timestamp_format = "%Y"
`,
			ErrNoUsableCaptureGroup,
		},
		{
			"timestamp group without format",
			`
[profile]
id = "x"
name = "X"

[parsing]
line_pattern = '(?P<timestamp>\S+) (?P<message>.+)'
`,
			ErrMissingField,
		},
		{
			"bad timestamp format",
			`
[profile]
id = "x"
name = "X"

[parsing]
line_pattern = '(?P<timestamp>\S+) (?P<message>.+)'
timestamp_format = "%Q"
`,
			ErrInvalidTimestampFormat,
		},
		{
			"bad multiline mode",
			`
[profile]
id = "x"
name = "X"

[parsing]
line_pattern = '(?P<message>.+)'
multiline_mode = "merge"
`,
			ErrInvalidMultilineMode,
		},
		{
			"bad content match",
			`
[profile]
id = "x"
name = "X"

[detection]
content_match = '[bad'

[parsing]
line_pattern = '(?P<message>.+)'
`,
			ErrInvalidRegex,
		},
		{
			"bad glob",
			`
[profile]
id = "x"
name = "X"

[detection]
file_patterns = ['[unclosed']

[parsing]
line_pattern = '(?P<message>.+)'
`,
			ErrInvalidGlob,
		},
		{
			"empty severity literal",
			`
[profile]
id = "x"
name = "X"

[parsing]
line_pattern = '(?P<message>.+)'

[severity_mapping]
error = ["Error", ""]
`,
			ErrEmptySeverityLiteral,
		},
		{
			"bad override severity",
			`
[profile]
id = "x"
name = "X"

[parsing]
line_pattern = '(?P<message>.+)'

[[severity_overrides]]
pattern = 'boom'
severity = "disaster"
`,
			ErrInvalidSeverity,
		},
		{
			"bad override pattern",
			`
[profile]
id = "x"
name = "X"

[parsing]
line_pattern = '(?P<message>.+)'

[[severity_overrides]]
pattern = '[bad'
severity = "error"
`,
			ErrInvalidRegex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileTOML(t, tt.toml)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Compile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompileRegexTooLong(t *testing.T) {
	long := strings.Repeat("a", MaxRegexPatternLength+1)
	toml := `
[profile]
id = "x"
name = "X"

[parsing]
line_pattern = '` + long + `(?P<message>.+)'
`
	_, err := compileTOML(t, toml)
	if !errors.Is(err, ErrRegexTooLong) {
		t.Errorf("Compile() error = %v, want ErrRegexTooLong", err)
	}
}

func TestCompileDuplicateLiteralPrefersMoreSevere(t *testing.T) {
	toml := `
[profile]
id = "x"
name = "X"

[parsing]
line_pattern = '(?P<level>\w+) (?P<message>.+)'

[severity_mapping]
error = ["failure"]
warning = ["failure"]
`
	p, err := compileTOML(t, toml)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if sev, _ := p.MapSeverity("failure"); sev != types.SeverityError {
		t.Errorf("MapSeverity(failure) = %v, want Error", sev)
	}
}

func TestParseDefinitionMalformedTOML(t *testing.T) {
	_, _, err := ParseDefinition([]byte("not toml at all ]["), "bad.toml")
	if !errors.Is(err, ErrTomlParse) {
		t.Errorf("ParseDefinition() error = %v, want ErrTomlParse", err)
	}
}

func TestParseDefinitionUnknownKeysWarn(t *testing.T) {
	toml := `
[profile]
id = "x"
name = "X"
future_knob = true

[parsing]
line_pattern = '(?P<message>.+)'
`
	def, warning, err := ParseDefinition([]byte(toml), "future.toml")
	if err != nil {
		t.Fatalf("ParseDefinition() error = %v", err)
	}
	if warning == "" {
		t.Error("expected an unknown-key warning")
	}
	if def.Profile.ID != "x" {
		t.Errorf("ID = %q, want x despite unknown keys", def.Profile.ID)
	}
}
