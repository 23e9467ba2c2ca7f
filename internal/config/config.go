// Package config loads the viewer configuration: one YAML document with a
// section per component, environment variables expanded before parsing.
// Unset values fall back to each component's named default, so an empty
// file is a valid configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/therealutkarshpriyadarshi/loupe/internal/dirwatch"
	"github.com/therealutkarshpriyadarshi/loupe/internal/discovery"
	"github.com/therealutkarshpriyadarshi/loupe/internal/export"
	"github.com/therealutkarshpriyadarshi/loupe/internal/parser"
	"github.com/therealutkarshpriyadarshi/loupe/internal/profiling"
	"github.com/therealutkarshpriyadarshi/loupe/internal/reliability"
	"github.com/therealutkarshpriyadarshi/loupe/internal/scan"
	"github.com/therealutkarshpriyadarshi/loupe/internal/store"
	"github.com/therealutkarshpriyadarshi/loupe/internal/tail"
	"github.com/therealutkarshpriyadarshi/loupe/internal/tracing"
)

// Defaults owned by this package rather than a component.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	DefaultExportFormat = "csv"

	DefaultProfilingAddress = "localhost:6060"
	DefaultTracingEndpoint  = "localhost:4317"
)

// Duration wraps time.Duration so YAML values may be written as "500ms"
// or "2s". Bare integers are taken as nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root of the viewer configuration file.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Profiles  ProfilesConfig  `yaml:"profiles"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Parser    ParserConfig    `yaml:"parser"`
	Scan      ScanConfig      `yaml:"scan"`
	Tail      TailConfig      `yaml:"tail"`
	Watch     WatchConfig     `yaml:"watch"`
	Store     StoreConfig     `yaml:"store"`
	Export    ExportConfig    `yaml:"export"`
	Session   SessionConfig   `yaml:"session"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Profiling ProfilingConfig `yaml:"profiling"`
}

// LoggingConfig selects the log level and output shape.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// ProfilesConfig points at a directory of profile definitions loaded on
// top of the built-in corpus. Empty means built-ins only.
type ProfilesConfig struct {
	Dir string `yaml:"dir"`
}

// DiscoveryConfig mirrors discovery.Config for the YAML file.
type DiscoveryConfig struct {
	MaxDepth       int      `yaml:"max_depth"`
	MaxFiles       int      `yaml:"max_files"`
	IncludeGlobs   []string `yaml:"include_globs"`
	ExcludeGlobs   []string `yaml:"exclude_globs"`
	LargeFileBytes int64    `yaml:"large_file_bytes"`
}

// ParserConfig mirrors parser.Options.
type ParserConfig struct {
	MaxRecordBytes  int `yaml:"max_record_bytes"`
	MaxStoredErrors int `yaml:"max_stored_errors"`
}

// ScanConfig holds the scan-only knobs; discovery and parser settings
// come from their own sections.
type ScanConfig struct {
	BatchSize  int         `yaml:"batch_size"`
	MaxRecords uint64      `yaml:"max_records"`
	Retry      RetryConfig `yaml:"retry"`
}

// RetryConfig mirrors reliability.RetryConfig. Zero values defer to the
// retry helper's own defaults.
type RetryConfig struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
	Multiplier     float64  `yaml:"multiplier"`
	Jitter         bool     `yaml:"jitter"`
}

// TailConfig holds the live-tail knobs.
type TailConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	MaxTickBytes int      `yaml:"max_tick_bytes"`
}

// WatchConfig holds the directory-watch knobs.
type WatchConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
}

// StoreConfig bounds the record store and sets the correlation window.
type StoreConfig struct {
	MaxRecords        int      `yaml:"max_records"`
	CorrelationWindow Duration `yaml:"correlation_window"`
}

// ExportConfig selects the default export shape.
type ExportConfig struct {
	Format      string `yaml:"format"`      // csv or json
	Compression string `yaml:"compression"` // none, gzip or snappy
	MaxRecords  int    `yaml:"max_records"`
}

// SessionConfig points at the directory holding the session snapshot.
// Empty means the platform default resolved by the embedder.
type SessionConfig struct {
	Dir string `yaml:"dir"`
}

// TracingConfig enables the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
	Insecure   bool    `yaml:"insecure"`
}

// ProfilingConfig enables the pprof/diagnostics server.
type ProfilingConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Address            string `yaml:"address"`
	CPUProfile         string `yaml:"cpu_profile"`
	MemProfile         string `yaml:"mem_profile"`
	BlockProfile       bool   `yaml:"block_profile"`
	MutexProfile       bool   `yaml:"mutex_profile"`
	GoroutineThreshold int    `yaml:"goroutine_threshold"`
}

// Load reads a YAML configuration file, expands environment variables,
// fills in defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads the file at path, falling back to DefaultConfig
// when it is missing or unreadable.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	if c.Discovery.MaxDepth == 0 {
		c.Discovery.MaxDepth = discovery.DefaultMaxDepth
	}
	if c.Discovery.MaxFiles == 0 {
		c.Discovery.MaxFiles = discovery.DefaultMaxFiles
	}
	if c.Discovery.LargeFileBytes == 0 {
		c.Discovery.LargeFileBytes = discovery.DefaultLargeFileBytes
	}
	// An explicit empty list means "match everything"; only a missing
	// key picks up the defaults.
	if c.Discovery.IncludeGlobs == nil {
		c.Discovery.IncludeGlobs = discovery.DefaultIncludeGlobs()
	}
	if c.Discovery.ExcludeGlobs == nil {
		c.Discovery.ExcludeGlobs = discovery.DefaultExcludeGlobs()
	}

	if c.Parser.MaxRecordBytes == 0 {
		c.Parser.MaxRecordBytes = parser.DefaultMaxRecordBytes
	}
	if c.Parser.MaxStoredErrors == 0 {
		c.Parser.MaxStoredErrors = parser.DefaultMaxStoredErrors
	}

	if c.Scan.BatchSize == 0 {
		c.Scan.BatchSize = scan.DefaultBatchSize
	}
	if c.Scan.MaxRecords == 0 {
		c.Scan.MaxRecords = scan.DefaultMaxRecords
	}

	if c.Tail.PollInterval == 0 {
		c.Tail.PollInterval = Duration(tail.DefaultPollInterval)
	}
	if c.Tail.MaxTickBytes == 0 {
		c.Tail.MaxTickBytes = tail.DefaultMaxTickBytes
	}

	if c.Watch.PollInterval == 0 {
		c.Watch.PollInterval = Duration(dirwatch.DefaultPollInterval)
	}

	if c.Store.MaxRecords == 0 {
		c.Store.MaxRecords = store.DefaultMaxRecords
	}
	if c.Store.CorrelationWindow == 0 {
		c.Store.CorrelationWindow = Duration(store.DefaultCorrelationWindow)
	}

	if c.Export.Format == "" {
		c.Export.Format = DefaultExportFormat
	}
	if c.Export.Compression == "" {
		c.Export.Compression = string(export.CompressionNone)
	}
	if c.Export.MaxRecords == 0 {
		c.Export.MaxRecords = export.MaxExportRecords
	}

	if c.Profiling.Address == "" {
		c.Profiling.Address = DefaultProfilingAddress
	}
	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			c.Tracing.Endpoint = DefaultTracingEndpoint
		}
		if c.Tracing.SampleRate == 0 {
			c.Tracing.SampleRate = 1
		}
	}
}

// Validate checks enum fields and glob syntax. Interval and size fields
// are not range-checked here; the components clamp them.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}

	if c.Discovery.MaxDepth < 1 {
		return fmt.Errorf("discovery.max_depth must be positive, got %d", c.Discovery.MaxDepth)
	}
	if c.Discovery.MaxFiles < 1 {
		return fmt.Errorf("discovery.max_files must be positive, got %d", c.Discovery.MaxFiles)
	}
	for _, pattern := range c.Discovery.IncludeGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid include glob %q", pattern)
		}
	}
	for _, pattern := range c.Discovery.ExcludeGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude glob %q", pattern)
		}
	}

	if c.Export.Format != "csv" && c.Export.Format != "json" {
		return fmt.Errorf("invalid export format %q", c.Export.Format)
	}
	if _, err := export.ParseCompression(c.Export.Compression); err != nil {
		return err
	}

	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing.sample_rate must be within [0, 1], got %g", c.Tracing.SampleRate)
	}

	return nil
}

// ToDiscovery converts the section to the walker's native config.
func (d DiscoveryConfig) ToDiscovery() discovery.Config {
	return discovery.Config{
		MaxDepth:       d.MaxDepth,
		MaxFiles:       d.MaxFiles,
		IncludeGlobs:   d.IncludeGlobs,
		ExcludeGlobs:   d.ExcludeGlobs,
		LargeFileBytes: d.LargeFileBytes,
	}
}

// ToOptions converts the section to the parser's native options.
func (p ParserConfig) ToOptions() parser.Options {
	return parser.Options{
		MaxRecordBytes:  p.MaxRecordBytes,
		MaxStoredErrors: p.MaxStoredErrors,
	}
}

// ToRetry converts the section to the retry helper's native config. The
// Interrupt hook is wired by the worker, not the file.
func (r RetryConfig) ToRetry() reliability.RetryConfig {
	return reliability.RetryConfig{
		MaxAttempts:    r.MaxAttempts,
		InitialBackoff: r.InitialBackoff.Std(),
		MaxBackoff:     r.MaxBackoff.Std(),
		Multiplier:     r.Multiplier,
		Jitter:         r.Jitter,
	}
}

// ToScan assembles the scan worker's config from the discovery, parser
// and scan sections.
func (c *Config) ToScan() scan.Config {
	return scan.Config{
		Discovery:  c.Discovery.ToDiscovery(),
		Parser:     c.Parser.ToOptions(),
		BatchSize:  c.Scan.BatchSize,
		MaxRecords: c.Scan.MaxRecords,
		Retry:      c.Scan.Retry.ToRetry(),
	}
}

// ToTail assembles the tail worker's config.
func (c *Config) ToTail() tail.Config {
	return tail.Config{
		PollInterval: c.Tail.PollInterval.Std(),
		MaxTickBytes: c.Tail.MaxTickBytes,
		Parser:       c.Parser.ToOptions(),
	}
}

// ToWatch assembles the directory watcher's config.
func (c *Config) ToWatch() dirwatch.Config {
	return dirwatch.Config{
		Discovery:    c.Discovery.ToDiscovery(),
		PollInterval: c.Watch.PollInterval.Std(),
	}
}

// ToExport converts the section to export options.
func (e ExportConfig) ToExport() (export.Options, error) {
	comp, err := export.ParseCompression(e.Compression)
	if err != nil {
		return export.Options{}, err
	}
	return export.Options{
		Compression: comp,
		MaxRecords:  e.MaxRecords,
	}, nil
}

// ToTracing converts the section to the tracing provider's config.
func (t TracingConfig) ToTracing() tracing.Config {
	return tracing.Config{
		Enabled:    t.Enabled,
		Endpoint:   t.Endpoint,
		SampleRate: t.SampleRate,
		Insecure:   t.Insecure,
	}
}

// ToProfiling converts the section to the diagnostics server's config.
func (p ProfilingConfig) ToProfiling() profiling.Config {
	return profiling.Config{
		Enabled:            p.Enabled,
		Address:            p.Address,
		CPUProfile:         p.CPUProfile,
		MemProfile:         p.MemProfile,
		BlockProfile:       p.BlockProfile,
		MutexProfile:       p.MutexProfile,
		GoroutineThreshold: p.GoroutineThreshold,
	}
}
