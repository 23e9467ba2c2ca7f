package types

import "time"

// DiscoveredFile is a candidate log file found by a directory walk,
// identified by its absolute path.
type DiscoveredFile struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
	ProfileID  string    `json:"profile_id"`
	Confidence float64   `json:"confidence"`
	IsLarge    bool      `json:"is_large"`
}

// FileSummary aggregates one file's share of a scan.
type FileSummary struct {
	Path        string     `json:"path"`
	ProfileID   string     `json:"profile_id"`
	RecordCount uint64     `json:"record_count"`
	ErrorCount  uint64     `json:"error_count"`
	Earliest    *time.Time `json:"earliest,omitempty"`
	Latest      *time.Time `json:"latest,omitempty"`
}

// ScanSummary aggregates a completed scan. A new scan's summary replaces
// its predecessor entirely.
type ScanSummary struct {
	ScanID            string              `json:"scan_id"`
	FilesDiscovered   int                 `json:"files_discovered"`
	FilesMatched      int                 `json:"files_matched"`
	FilesWithErrors   int                 `json:"files_with_errors"`
	TotalRecords      uint64              `json:"total_records"`
	RecordsBySeverity map[Severity]uint64 `json:"records_by_severity"`
	TotalParseErrors  uint64              `json:"total_parse_errors"`
	Files             []FileSummary       `json:"files"`
	Duration          time.Duration       `json:"duration"`
	FileCapHit        bool                `json:"file_cap_hit"`
	RecordCapHit      bool                `json:"record_cap_hit"`
}
