package profile

import "errors"

// Loading never aborts on a bad profile; these sentinels classify the
// per-profile errors the registry collects instead.
var (
	ErrTomlParse              = errors.New("profile toml parse failed")
	ErrMissingField           = errors.New("missing required field")
	ErrInvalidRegex           = errors.New("invalid regex")
	ErrRegexTooLong           = errors.New("regex exceeds length cap")
	ErrUnknownCaptureGroup    = errors.New("unsupported capture group")
	ErrNoUsableCaptureGroup   = errors.New("line pattern captures neither level nor message")
	ErrInvalidGlob            = errors.New("invalid filename glob")
	ErrInvalidTimestampFormat = errors.New("invalid timestamp format")
	ErrInvalidMultilineMode   = errors.New("invalid multiline mode")
	ErrInvalidSeverity        = errors.New("invalid severity name")
	ErrEmptySeverityLiteral   = errors.New("empty severity mapping literal")
	ErrOversizedFile          = errors.New("profile file exceeds size cap")
	ErrDuplicateID            = errors.New("duplicate profile id")
	ErrTooManyProfiles        = errors.New("too many profiles")
	ErrUnknownKeys            = errors.New("unknown keys in profile")
)
