// Package export renders record slices to CSV or JSON. Both shapes carry
// the same seven fields; the writers are pure functions over the record
// slice and an io.Writer sink.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

// MaxExportRecords bounds a single export operation.
const MaxExportRecords = 5_000_000

// ErrTooManyRecords reports an export over the record cap.
var ErrTooManyRecords = errors.New("too many records to export")

// Options configures one export. The zero value writes uncompressed
// output with the default record cap.
type Options struct {
	Compression CompressionType
	MaxRecords  int
}

func (o Options) withDefaults() Options {
	if o.MaxRecords <= 0 {
		o.MaxRecords = MaxExportRecords
	}
	return o
}

var csvHeader = []string{"timestamp", "severity", "source_file", "line", "thread", "component", "message"}

// jsonRecord mirrors the CSV columns as object keys.
type jsonRecord struct {
	Timestamp  string `json:"timestamp,omitempty"`
	Severity   string `json:"severity"`
	SourceFile string `json:"source_file"`
	Line       uint64 `json:"line"`
	Thread     string `json:"thread,omitempty"`
	Component  string `json:"component,omitempty"`
	Message    string `json:"message"`
}

// WriteCSV renders the records as a CSV table with a header row and
// writes the result to w. It returns the number of records written.
func WriteCSV(w io.Writer, records []types.Record, opts Options) (int, error) {
	return write(w, records, opts, renderCSV)
}

// WriteJSON renders the records as an indented JSON array and writes the
// result to w. It returns the number of records written.
func WriteJSON(w io.Writer, records []types.Record, opts Options) (int, error) {
	return write(w, records, opts, renderJSON)
}

func write(w io.Writer, records []types.Record, opts Options, render func(*bytes.Buffer, []types.Record) error) (int, error) {
	opts = opts.withDefaults()
	if len(records) > opts.MaxRecords {
		return 0, fmt.Errorf("%w: %d records, limit %d", ErrTooManyRecords, len(records), opts.MaxRecords)
	}

	comp, err := GetCompressor(opts.Compression)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if err := render(&buf, records); err != nil {
		return 0, err
	}

	data, err := comp.Compress(buf.Bytes())
	if err != nil {
		return 0, fmt.Errorf("compress export: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}
	return len(records), nil
}

func renderCSV(buf *bytes.Buffer, records []types.Record) error {
	cw := csv.NewWriter(buf)
	cw.UseCRLF = true
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range records {
		r := &records[i]
		row := []string{
			timestampString(r.Timestamp),
			r.Severity.Label(),
			r.SourceFile,
			strconv.FormatUint(r.LineNumber, 10),
			r.Thread,
			r.Component,
			r.Message,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func renderJSON(buf *bytes.Buffer, records []types.Record) error {
	out := make([]jsonRecord, len(records))
	for i := range records {
		r := &records[i]
		out[i] = jsonRecord{
			Timestamp:  timestampString(r.Timestamp),
			Severity:   r.Severity.Label(),
			SourceFile: r.SourceFile,
			Line:       r.LineNumber,
			Thread:     r.Thread,
			Component:  r.Component,
			Message:    r.Message,
		}
	}

	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func timestampString(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
