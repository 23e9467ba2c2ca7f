package profile

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

const (
	// MaxProfiles caps the total registry size.
	MaxProfiles = 100
	// MaxProfileFileSize caps a single user profile file.
	MaxProfileFileSize = 64 * 1024
	// MaxRegexPatternLength caps each pattern in a profile.
	MaxRegexPatternLength = 4096
)

// captureGroups is the closed set of named groups a line pattern may use.
var captureGroups = map[string]bool{
	"timestamp": true,
	"level":     true,
	"message":   true,
	"thread":    true,
	"component": true,
}

// Compile validates a Definition and compiles it into a runtime profile.
// source names the originating file in error messages.
func Compile(def *Definition, source string, builtin bool) (*types.Profile, error) {
	id := strings.TrimSpace(def.Profile.ID)
	if id == "" {
		return nil, fmt.Errorf("%s: %w: profile.id", source, ErrMissingField)
	}
	if strings.TrimSpace(def.Profile.Name) == "" {
		return nil, fmt.Errorf("%s: %w: profile.name", source, ErrMissingField)
	}
	if strings.TrimSpace(def.Parsing.LinePattern) == "" {
		return nil, fmt.Errorf("%s: %w: parsing.line_pattern", source, ErrMissingField)
	}

	linePattern, err := compileRegex(id, "parsing.line_pattern", def.Parsing.LinePattern)
	if err != nil {
		return nil, err
	}

	hasTimestamp := false
	hasLevel := false
	hasMessage := false
	for _, name := range linePattern.SubexpNames() {
		if name == "" {
			continue
		}
		if !captureGroups[name] {
			return nil, fmt.Errorf("profile %q: %w: %q in parsing.line_pattern", id, ErrUnknownCaptureGroup, name)
		}
		switch name {
		case "timestamp":
			hasTimestamp = true
		case "level":
			hasLevel = true
		case "message":
			hasMessage = true
		}
	}
	if !hasLevel && !hasMessage {
		return nil, fmt.Errorf("profile %q: %w", id, ErrNoUsableCaptureGroup)
	}

	var contentMatch *regexp.Regexp
	if def.Detection.ContentMatch != "" {
		contentMatch, err = compileRegex(id, "detection.content_match", def.Detection.ContentMatch)
		if err != nil {
			return nil, err
		}
	}

	for _, pattern := range def.Detection.FilePatterns {
		if _, err := filepath.Match(pattern, "probe.log"); err != nil {
			return nil, fmt.Errorf("profile %q: %w: %q", id, ErrInvalidGlob, pattern)
		}
	}

	layout := ""
	if hasTimestamp {
		if strings.TrimSpace(def.Parsing.TimestampFormat) == "" {
			return nil, fmt.Errorf("profile %q: %w: parsing.timestamp_format", id, ErrMissingField)
		}
		layout, err = ConvertStrftime(def.Parsing.TimestampFormat)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", id, err)
		}
	}

	multiline, ok := types.ParseMultilineMode(def.Parsing.MultilineMode)
	if !ok {
		return nil, fmt.Errorf("profile %q: %w: %q", id, ErrInvalidMultilineMode, def.Parsing.MultilineMode)
	}

	mapping, err := compileMapping(id, &def.SeverityMapping)
	if err != nil {
		return nil, err
	}

	overrides := make([]types.SeverityOverride, 0, len(def.SeverityOverrides))
	for i, ov := range def.SeverityOverrides {
		field := fmt.Sprintf("severity_overrides[%d].pattern", i)
		re, err := compileRegex(id, field, ov.Pattern)
		if err != nil {
			return nil, err
		}
		sev, ok := types.ParseSeverity(ov.Severity)
		if !ok {
			return nil, fmt.Errorf("profile %q: %w: %q in severity_overrides[%d]", id, ErrInvalidSeverity, ov.Severity, i)
		}
		overrides = append(overrides, types.SeverityOverride{Pattern: re, Severity: sev})
	}

	version := def.Profile.Version
	if version == "" {
		version = "1.0"
	}

	return &types.Profile{
		ID:              id,
		Name:            def.Profile.Name,
		Version:         version,
		Description:     def.Profile.Description,
		FilenameGlobs:   def.Detection.FilePatterns,
		ContentMatch:    contentMatch,
		LinePattern:     linePattern,
		TimestampFormat: def.Parsing.TimestampFormat,
		TimestampLayout: layout,
		Multiline:       multiline,
		SeverityMapping: mapping,
		Overrides:       overrides,
		KnownLocations:  def.Detection.LogLocations,
		BuiltIn:         builtin,
	}, nil
}

// compileMapping lowers the per-severity literal lists into a lookup map.
// When one literal appears under several severities the most severe wins.
func compileMapping(id string, def *MappingDef) (map[string]types.Severity, error) {
	lists := []struct {
		sev      types.Severity
		literals []string
	}{
		{types.SeverityCritical, def.Critical},
		{types.SeverityError, def.Error},
		{types.SeverityWarning, def.Warning},
		{types.SeverityInfo, def.Info},
		{types.SeverityDebug, def.Debug},
	}

	mapping := make(map[string]types.Severity)
	for _, list := range lists {
		for _, literal := range list.literals {
			key := strings.ToLower(strings.TrimSpace(literal))
			if key == "" {
				return nil, fmt.Errorf("profile %q: %w: under %v", id, ErrEmptySeverityLiteral, list.sev)
			}
			if _, exists := mapping[key]; !exists {
				mapping[key] = list.sev
			}
		}
	}
	return mapping, nil
}

// compileRegex compiles one pattern, enforcing the length cap first.
func compileRegex(id, field, pattern string) (*regexp.Regexp, error) {
	if len(pattern) > MaxRegexPatternLength {
		return nil, fmt.Errorf("profile %q: %w: %s is %d bytes, cap %d",
			id, ErrRegexTooLong, field, len(pattern), MaxRegexPatternLength)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w: %s: %v", id, ErrInvalidRegex, field, err)
	}
	return re, nil
}
