package profile

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Definition is the raw TOML shape of a profile before validation. It is
// compiled into a types.Profile for runtime use.
type Definition struct {
	Profile           MetaDef       `toml:"profile"`
	Detection         DetectionDef  `toml:"detection"`
	Parsing           ParsingDef    `toml:"parsing"`
	SeverityMapping   MappingDef    `toml:"severity_mapping"`
	SeverityOverrides []OverrideDef `toml:"severity_overrides"`
}

type MetaDef struct {
	ID          string `toml:"id"`
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Description string `toml:"description"`
}

type DetectionDef struct {
	FilePatterns []string `toml:"file_patterns"`
	ContentMatch string   `toml:"content_match"`
	LogLocations []string `toml:"log_locations"`
}

type ParsingDef struct {
	LinePattern     string `toml:"line_pattern"`
	TimestampFormat string `toml:"timestamp_format"`
	MultilineMode   string `toml:"multiline_mode"`
}

type MappingDef struct {
	Critical []string `toml:"critical"`
	Error    []string `toml:"error"`
	Warning  []string `toml:"warning"`
	Info     []string `toml:"info"`
	Debug    []string `toml:"debug"`
}

type OverrideDef struct {
	Pattern  string `toml:"pattern"`
	Severity string `toml:"severity"`
}

// ParseDefinition decodes TOML into a Definition. source names the file in
// error messages only. Unknown keys do not fail the decode; they come back
// in the warning string so newer profiles keep working on older builds.
func ParseDefinition(content []byte, source string) (def *Definition, warning string, err error) {
	def = &Definition{}
	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()

	err = dec.Decode(def)
	if err == nil {
		return def, "", nil
	}

	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		*def = Definition{}
		if err := toml.Unmarshal(content, def); err != nil {
			return nil, "", fmt.Errorf("%s: %w: %v", source, ErrTomlParse, err)
		}
		return def, strict.String(), nil
	}

	return nil, "", fmt.Errorf("%s: %w: %v", source, ErrTomlParse, err)
}
