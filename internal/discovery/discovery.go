// Package discovery finds candidate log files under a root directory. It
// reads only file metadata, never file contents; profile detection happens
// later in the scan once sample lines are available.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/therealutkarshpriyadarshi/loupe/internal/logging"
	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

const (
	// DefaultMaxDepth bounds directory recursion below the root.
	DefaultMaxDepth  = 10
	AbsoluteMaxDepth = 50

	// DefaultMaxFiles bounds one scan. When more files qualify the newest
	// ones by modification time are kept.
	DefaultMaxFiles  = 2500
	AbsoluteMaxFiles = 10000

	// DefaultLargeFileBytes flags files worth a size warning in the UI.
	DefaultLargeFileBytes = 100 * 1024 * 1024

	// MaxWarnings bounds the non-fatal warning list for one discovery.
	MaxWarnings = 1000
)

// DefaultIncludeGlobs match the common log file naming conventions,
// including rotated suffixes such as app.log.1.
func DefaultIncludeGlobs() []string {
	return []string{"*.log", "*.log.[0-9]*", "*.txt"}
}

// DefaultExcludeGlobs skip compressed or backup artifacts and the usual
// dense tool directories. A pattern matching a directory name prunes the
// whole subtree.
func DefaultExcludeGlobs() []string {
	return []string{"*.gz", "*.zip", "*.bak", "*.tmp", "node_modules", ".git", "__pycache__"}
}

var (
	ErrRootNotFound      = errors.New("root path not found")
	ErrRootNotADirectory = errors.New("root path is not a directory")
)

// Config controls one discovery operation. MaxDepth zero is meaningful
// (the walk yields nothing); use DefaultConfig for the usual limits.
type Config struct {
	MaxDepth int
	MaxFiles int

	// IncludeGlobs are matched against filenames; a file must match at
	// least one unless the list is empty, which includes everything.
	IncludeGlobs []string

	// ExcludeGlobs are matched against filenames, and patterns without
	// wildcard characters also exclude whole directories by name.
	ExcludeGlobs []string

	// LargeFileBytes is the size at or above which IsLarge is set.
	LargeFileBytes int64

	// ModifiedSince, when set, drops files whose mtime is older.
	ModifiedSince *time.Time
}

// DefaultConfig returns the standard limits and glob sets.
func DefaultConfig() Config {
	return Config{
		MaxDepth:       DefaultMaxDepth,
		MaxFiles:       DefaultMaxFiles,
		IncludeGlobs:   DefaultIncludeGlobs(),
		ExcludeGlobs:   DefaultExcludeGlobs(),
		LargeFileBytes: DefaultLargeFileBytes,
	}
}

// Result is the outcome of one discovery.
type Result struct {
	Files []types.DiscoveredFile

	// Warnings records inaccessible entries and other non-fatal problems.
	Warnings []string

	// TotalFound is the qualifier count before the MaxFiles truncation;
	// when it exceeds len(Files) the newest files were kept.
	TotalFound int
}

func (r *Result) addWarning(msg string) {
	if len(r.Warnings) < MaxWarnings {
		r.Warnings = append(r.Warnings, msg)
	}
}

// FoundFunc observes each accepted file with the running total. It runs on
// the calling goroutine and must be cheap.
type FoundFunc func(path string, count int)

// Scanner performs discovery walks with a fixed configuration.
type Scanner struct {
	cfg      Config
	maxDepth int
	maxFiles int
	include  []string
	exclude  []string
	log      *logging.Logger
}

// New validates the configuration and compiles the glob sets. Invalid
// patterns are logged and skipped rather than failing construction.
func New(cfg Config, log *logging.Logger) *Scanner {
	if log == nil {
		log = logging.Nop()
	}
	log = log.WithComponent("discovery")

	maxDepth := cfg.MaxDepth
	if maxDepth < 0 {
		maxDepth = 0
	}
	if maxDepth > AbsoluteMaxDepth {
		maxDepth = AbsoluteMaxDepth
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if maxFiles > AbsoluteMaxFiles {
		maxFiles = AbsoluteMaxFiles
	}
	if cfg.LargeFileBytes <= 0 {
		cfg.LargeFileBytes = DefaultLargeFileBytes
	}

	return &Scanner{
		cfg:      cfg,
		maxDepth: maxDepth,
		maxFiles: maxFiles,
		include:  validPatterns(cfg.IncludeGlobs, "include", log),
		exclude:  validPatterns(cfg.ExcludeGlobs, "exclude", log),
		log:      log,
	}
}

func validPatterns(patterns []string, kind string, log *logging.Logger) []string {
	valid := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			log.Warn().Str("pattern", p).Str("kind", kind).Msg("Invalid glob pattern, skipping")
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

// Discover walks root and returns the qualifying files. Per-entry failures
// become warnings; only an unusable root is an error. When more than
// MaxFiles qualify, the files with the most recent modification times are
// kept and TotalFound reports the full count.
func (s *Scanner) Discover(root string, onFound FoundFunc) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotADirectory, root)
	}

	s.log.Debug().
		Str("root", root).
		Int("max_depth", s.maxDepth).
		Int("max_files", s.maxFiles).
		Msg("Discovery starting")

	res := &Result{}
	visited := make(map[uint64]bool)
	if ino := inodeOf(info); ino != 0 {
		visited[ino] = true
	}
	s.walk(root, 1, visited, res, onFound)

	res.TotalFound = len(res.Files)
	if len(res.Files) > s.maxFiles {
		sort.SliceStable(res.Files, func(i, j int) bool {
			if !res.Files[i].ModTime.Equal(res.Files[j].ModTime) {
				return res.Files[i].ModTime.After(res.Files[j].ModTime)
			}
			return res.Files[i].Path < res.Files[j].Path
		})
		res.Files = res.Files[:s.maxFiles]
	}

	s.log.Debug().
		Int("files", len(res.Files)).
		Int("total_found", res.TotalFound).
		Int("warnings", len(res.Warnings)).
		Msg("Discovery complete")

	return res, nil
}

// walk enumerates one directory. depth is the depth of the entries inside
// dir, with the root's own entries at depth 1.
func (s *Scanner) walk(dir string, depth int, visited map[uint64]bool, res *Result, onFound FoundFunc) {
	if depth > s.maxDepth {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		res.addWarning(fmt.Sprintf("cannot access %q: %v", dir, err))
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(dir, name)

		if entry.IsDir() {
			if s.excluded(name) {
				continue
			}
			if depth < s.maxDepth {
				s.walk(path, depth+1, visited, res, onFound)
			}
			continue
		}

		var info fs.FileInfo
		if entry.Type()&fs.ModeSymlink != 0 {
			info, err = os.Stat(path)
			if err != nil {
				res.addWarning(fmt.Sprintf("cannot resolve %q: %v", path, err))
				continue
			}
			if info.IsDir() {
				if s.excluded(name) {
					continue
				}
				if ino := inodeOf(info); ino != 0 {
					if visited[ino] {
						continue
					}
					visited[ino] = true
				}
				if depth < s.maxDepth {
					s.walk(path, depth+1, visited, res, onFound)
				}
				continue
			}
		} else {
			info, err = entry.Info()
			if err != nil {
				res.addWarning(fmt.Sprintf("cannot read metadata for %q: %v", path, err))
				continue
			}
		}

		if s.excluded(name) || !s.included(name) {
			continue
		}
		if s.cfg.ModifiedSince != nil && info.ModTime().Before(*s.cfg.ModifiedSince) {
			continue
		}

		res.Files = append(res.Files, types.DiscoveredFile{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsLarge: info.Size() >= s.cfg.LargeFileBytes,
		})
		if onFound != nil {
			onFound(path, len(res.Files))
		}
	}
}

// excluded reports whether any exclude glob matches the entry name. The
// walk applies it to file names and to directory names alike, so a
// pattern like "node_modules" or "build*" prunes the whole subtree.
func (s *Scanner) excluded(name string) bool {
	for _, p := range s.exclude {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

func (s *Scanner) included(name string) bool {
	if len(s.include) == 0 {
		return true
	}
	for _, p := range s.include {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// inodeOf reports the file's inode, or zero when the platform does not
// expose one. Used to break symlink cycles.
func inodeOf(fi fs.FileInfo) uint64 {
	if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
		return stat.Ino
	}
	return 0
}
