package profile

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/therealutkarshpriyadarshi/loupe/internal/logging"
	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

//go:embed builtin/*.toml
var builtinFS embed.FS

// detectSampleLines is how many non-empty sample lines line-pattern
// probing considers.
const detectSampleLines = 20

// detectMatchThreshold is the fraction of sampled lines the line pattern
// must match for a probe-based detection.
const detectMatchThreshold = 0.6

// Registry holds every loaded profile in detection order: built-ins first,
// then user profiles. It is immutable after LoadAll.
type Registry struct {
	profiles []*types.Profile
	byID     map[string]*types.Profile
	log      *logging.Logger
}

// LoadAll builds a registry from the embedded built-ins plus every *.toml
// in userDir. userDir may be empty or missing. A user profile that reuses
// a built-in ID replaces the built-in. No single bad profile aborts the
// load; everything wrong comes back in the error list and the registry is
// always usable.
func LoadAll(userDir string, log *logging.Logger) (*Registry, []error) {
	if log == nil {
		log = logging.Nop()
	}
	r := &Registry{
		byID: make(map[string]*types.Profile),
		log:  log.WithComponent("profiles"),
	}

	var errs []error

	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		errs = append(errs, fmt.Errorf("builtin profiles: %w", err))
	}
	for _, entry := range entries {
		name := "builtin/" + entry.Name()
		content, err := builtinFS.ReadFile(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if err := r.add(content, name, true, &errs); err != nil {
			errs = append(errs, err)
		}
	}
	r.ensurePlainText()

	if userDir != "" {
		errs = append(errs, r.loadUserDir(userDir)...)
	}

	r.log.Info().
		Int("profiles", len(r.profiles)).
		Int("errors", len(errs)).
		Msg("profile registry loaded")

	return r, errs
}

// loadUserDir reads user profiles in lexical order. A missing directory is
// not an error; a user simply has no custom profiles yet.
func (r *Registry) loadUserDir(dir string) []error {
	var errs []error

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []error{fmt.Errorf("profile dir %s: %w", dir, err)}
	}

	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if info.Size() > MaxProfileFileSize {
			errs = append(errs, fmt.Errorf("%s: %w: %d bytes, cap %d",
				path, ErrOversizedFile, info.Size(), MaxProfileFileSize))
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}

		def, warning, err := ParseDefinition(content, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if warning != "" {
			errs = append(errs, fmt.Errorf("%s: %w: %s", path, ErrUnknownKeys, warning))
		}

		compiled, err := Compile(def, path, false)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if prior, dup := seen[compiled.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: %w: %q already defined by %s",
				path, ErrDuplicateID, compiled.ID, prior))
			continue
		}
		seen[compiled.ID] = path

		if existing, ok := r.byID[compiled.ID]; ok && existing.BuiltIn {
			r.replace(compiled)
			r.log.Debug().Str("profile_id", compiled.ID).Msg("user profile overrides built-in")
			continue
		}

		if len(r.profiles) >= MaxProfiles {
			errs = append(errs, fmt.Errorf("%s: %w: cap %d", path, ErrTooManyProfiles, MaxProfiles))
			break
		}
		r.append(compiled)
		r.log.Debug().Str("profile_id", compiled.ID).Str("path", path).Msg("loaded user profile")
	}

	return errs
}

// add parses, compiles and appends one profile source.
func (r *Registry) add(content []byte, source string, builtin bool, errs *[]error) error {
	def, warning, err := ParseDefinition(content, source)
	if err != nil {
		return err
	}
	if warning != "" {
		*errs = append(*errs, fmt.Errorf("%s: %w: %s", source, ErrUnknownKeys, warning))
	}
	compiled, err := Compile(def, source, builtin)
	if err != nil {
		return err
	}
	if _, ok := r.byID[compiled.ID]; ok {
		return fmt.Errorf("%s: %w: %q", source, ErrDuplicateID, compiled.ID)
	}
	r.append(compiled)
	return nil
}

func (r *Registry) append(p *types.Profile) {
	r.profiles = append(r.profiles, p)
	r.byID[p.ID] = p
}

func (r *Registry) replace(p *types.Profile) {
	for i, existing := range r.profiles {
		if existing.ID == p.ID {
			r.profiles[i] = p
			break
		}
	}
	r.byID[p.ID] = p
}

// ensurePlainText guarantees the fallback profile exists even if its
// embedded definition is ever broken.
func (r *Registry) ensurePlainText() {
	if _, ok := r.byID[types.PlainTextProfileID]; ok {
		return
	}
	r.append(&types.Profile{
		ID:          types.PlainTextProfileID,
		Name:        "Plain text",
		Version:     "1.0",
		LinePattern: regexp.MustCompile(`^(?P<message>.*)$`),
		Multiline:   types.MultilineRaw,
		BuiltIn:     true,
	})
}

// All returns the profiles in detection order.
func (r *Registry) All() []*types.Profile {
	out := make([]*types.Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Get returns a profile by ID.
func (r *Registry) Get(id string) (*types.Profile, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Len returns the number of loaded profiles.
func (r *Registry) Len() int {
	return len(r.profiles)
}

// PlainText returns the fallback profile.
func (r *Registry) PlainText() *types.Profile {
	return r.byID[types.PlainTextProfileID]
}

// Detect picks the best profile for a file. fileName is the base name;
// sample holds the file's first lines. The cascade is: filename glob match
// at confidence 1.0, then first-line content match at 0.9, then the
// fraction of sampled lines the line pattern matches when at least 60% do,
// and finally the plain-text fallback at 0.
func (r *Registry) Detect(fileName string, sample []string) (*types.Profile, float64) {
	for _, p := range r.profiles {
		if p.ID == types.PlainTextProfileID {
			continue
		}
		for _, glob := range p.FilenameGlobs {
			if ok, _ := filepath.Match(glob, fileName); ok {
				r.log.Debug().Str("file", fileName).Str("profile_id", p.ID).Msg("detected by filename")
				return p, 1.0
			}
		}
	}

	nonEmpty := make([]string, 0, detectSampleLines)
	for _, line := range sample {
		if strings.TrimSpace(line) == "" {
			continue
		}
		nonEmpty = append(nonEmpty, line)
		if len(nonEmpty) == detectSampleLines {
			break
		}
	}

	if len(nonEmpty) > 0 {
		first := nonEmpty[0]
		for _, p := range r.profiles {
			if p.ID == types.PlainTextProfileID || p.ContentMatch == nil {
				continue
			}
			if p.ContentMatch.MatchString(first) {
				r.log.Debug().Str("file", fileName).Str("profile_id", p.ID).Msg("detected by content")
				return p, 0.9
			}
		}

		var best *types.Profile
		bestFrac := 0.0
		for _, p := range r.profiles {
			if p.ID == types.PlainTextProfileID {
				continue
			}
			matched := 0
			for _, line := range nonEmpty {
				if p.LinePattern.MatchString(line) {
					matched++
				}
			}
			frac := float64(matched) / float64(len(nonEmpty))
			if frac >= detectMatchThreshold && frac > bestFrac {
				best = p
				bestFrac = frac
			}
		}
		if best != nil {
			r.log.Debug().
				Str("file", fileName).
				Str("profile_id", best.ID).
				Float64("confidence", bestFrac).
				Msg("detected by line pattern probe")
			return best, bestFrac
		}
	}

	return r.PlainText(), 0
}
