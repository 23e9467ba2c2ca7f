package profile

import (
	"fmt"
	"strings"
)

// strftime directives supported in profile timestamp formats, mapped to Go
// reference-layout fragments. %z parses numeric offsets (+0530); %:z also
// accepts a literal Z. Fractional-second directives must follow the '.' or
// ',' that separates them from %S.
var strftimeTokens = map[string]string{
	"%Y": "2006",
	"%y": "06",
	"%m": "01",
	"%d": "02",
	"%e": "_2",
	"%b": "Jan",
	"%B": "January",
	"%H": "15",
	"%I": "03",
	"%p": "PM",
	"%M": "04",
	"%S": "05",
	"%z": "-0700",
	"%Z": "MST",
	"%f": "999999999",
	"%%": "%",
}

// ConvertStrftime translates a strftime-style timestamp format into a Go
// time layout. An empty format converts to an empty layout.
func ConvertStrftime(format string) (string, error) {
	var layout strings.Builder

	for i := 0; i < len(format); {
		c := format[i]
		if c != '%' {
			layout.WriteByte(c)
			i++
			continue
		}

		rest := format[i:]
		switch {
		case strings.HasPrefix(rest, "%:z"):
			layout.WriteString("Z07:00")
			i += 3
		case strings.HasPrefix(rest, "%3f"):
			layout.WriteString("000")
			i += 3
		case strings.HasPrefix(rest, "%6f"):
			layout.WriteString("000000")
			i += 3
		case strings.HasPrefix(rest, "%9f"):
			layout.WriteString("000000000")
			i += 3
		case strings.HasPrefix(rest, "%.3f"):
			layout.WriteString(".000")
			i += 4
		case strings.HasPrefix(rest, "%.6f"):
			layout.WriteString(".000000")
			i += 4
		case strings.HasPrefix(rest, "%.9f"):
			layout.WriteString(".000000000")
			i += 4
		case strings.HasPrefix(rest, "%.f"):
			layout.WriteString(".999999999")
			i += 3
		default:
			if len(rest) < 2 {
				return "", fmt.Errorf("%w: trailing %% in %q", ErrInvalidTimestampFormat, format)
			}
			token := rest[:2]
			mapped, ok := strftimeTokens[token]
			if !ok {
				return "", fmt.Errorf("%w: unsupported directive %q in %q", ErrInvalidTimestampFormat, token, format)
			}
			layout.WriteString(mapped)
			i += 2
		}
	}

	return layout.String(), nil
}
