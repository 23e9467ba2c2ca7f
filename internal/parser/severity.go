package parser

import (
	"strings"

	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

// resolveSeverity classifies one record.
//
// When the pattern captured a level, the profile mapping decides; a level
// missing from the mapping falls through to the override regexes and then
// to Unknown. Without a captured level the overrides run first and the
// mapping literals are searched for inside the message as a last resort.
func resolveSeverity(p *types.Profile, level string, levelCaptured bool, message string) types.Severity {
	if levelCaptured {
		if sev, ok := p.MapSeverity(level); ok {
			return sev
		}
		if sev, ok := overrideSeverity(p, message); ok {
			return sev
		}
		return types.SeverityUnknown
	}

	if sev, ok := overrideSeverity(p, message); ok {
		return sev
	}
	return inferSeverity(p, message)
}

// overrideSeverity returns the severity of the first override whose
// pattern matches the message. Override order is the profile file order.
func overrideSeverity(p *types.Profile, message string) (types.Severity, bool) {
	for _, ov := range p.Overrides {
		if ov.Pattern.MatchString(message) {
			return ov.Severity, true
		}
	}
	return types.SeverityUnknown, false
}

// inferSeverity searches the message for the profile's mapping literals.
// The longest matching literal wins so that "warning" beats "warn" and
// "error" beats "err"; equal lengths resolve to the more severe level.
func inferSeverity(p *types.Profile, message string) types.Severity {
	if len(p.SeverityMapping) == 0 {
		return types.SeverityUnknown
	}

	lower := strings.ToLower(message)
	best := types.SeverityUnknown
	bestLen := 0
	for literal, sev := range p.SeverityMapping {
		if !strings.Contains(lower, literal) {
			continue
		}
		switch {
		case len(literal) > bestLen:
			best, bestLen = sev, len(literal)
		case len(literal) == bestLen && sev > best:
			best = sev
		}
	}
	return best
}
