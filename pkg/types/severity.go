package types

import (
	"fmt"
	"strings"
)

// Severity classifies a record's urgency. Higher values are more severe,
// so the zero value is Unknown.
type Severity uint8

const (
	SeverityUnknown Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// AllSeverities lists every severity from most to least severe.
var AllSeverities = [...]Severity{
	SeverityCritical,
	SeverityError,
	SeverityWarning,
	SeverityInfo,
	SeverityDebug,
	SeverityUnknown,
}

// String returns the canonical upper-case label.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityInfo:
		return "INFO"
	case SeverityDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Label returns the capitalized form used in exports.
func (s Severity) Label() string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityError:
		return "Error"
	case SeverityWarning:
		return "Warning"
	case SeverityInfo:
		return "Info"
	case SeverityDebug:
		return "Debug"
	default:
		return "Unknown"
	}
}

// Short returns the compact label used in column-oriented views.
func (s Severity) Short() string {
	switch s {
	case SeverityCritical:
		return "CRIT"
	case SeverityError:
		return "ERR"
	case SeverityWarning:
		return "WARN"
	case SeverityInfo:
		return "INFO"
	case SeverityDebug:
		return "DBG"
	default:
		return "???"
	}
}

// ParseSeverity maps a case-insensitive severity name to its value. The
// second result is false when the name is not one of the six known levels.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical, true
	case "error":
		return SeverityError, true
	case "warning":
		return SeverityWarning, true
	case "info":
		return SeverityInfo, true
	case "debug":
		return SeverityDebug, true
	case "unknown":
		return SeverityUnknown, true
	}
	return SeverityUnknown, false
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	v, ok := ParseSeverity(string(text))
	if !ok {
		return fmt.Errorf("unknown severity %q", string(text))
	}
	*s = v
	return nil
}
