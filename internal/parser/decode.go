package parser

import (
	"strings"
	"unicode/utf8"
)

// DecodeLossy converts raw file bytes to a string, replacing invalid
// UTF-8 sequences with U+FFFD. Log files mix encodings often enough
// that refusing the whole file is never the right call.
func DecodeLossy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}
