package scan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/loupe/internal/discovery"
	"github.com/therealutkarshpriyadarshi/loupe/internal/logging"
	"github.com/therealutkarshpriyadarshi/loupe/internal/profile"
	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

const testProfileTOML = `
[profile]
id = "orchtest"
name = "Orchestrator Test"

[detection]
file_patterns = ["*.testlog"]

[parsing]
line_pattern = '^\[(?P<timestamp>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\] (?P<level>[A-Z]+) (?P<message>.*)$'
timestamp_format = "%Y-%m-%d %H:%M:%S"
multiline_mode = "continuation"

[severity_mapping]
error = ["ERROR"]
warning = ["WARN"]
info = ["INFO"]
`

func testRegistry(t *testing.T) *profile.Registry {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "orchtest.toml"), []byte(testProfileTOML), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, errs := profile.LoadAll(dir, logging.Nop())
	if len(errs) > 0 {
		t.Fatalf("LoadAll() errors = %v", errs)
	}
	return reg
}

func testConfig() Config {
	dc := discovery.DefaultConfig()
	dc.IncludeGlobs = []string{"*.testlog", "*.plain"}
	return Config{Discovery: dc}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// drain polls until the worker exits and returns every message in order.
func drain(t *testing.T, o *Orchestrator) []Progress {
	t.Helper()
	deadline := time.After(10 * time.Second)
	var msgs []Progress
	for {
		select {
		case <-o.Done():
			return append(msgs, o.Poll()...)
		case <-deadline:
			t.Fatalf("scan did not finish, state %v after %d messages", o.State(), len(msgs))
		case <-time.After(2 * time.Millisecond):
			msgs = append(msgs, o.Poll()...)
		}
	}
}

func kindsOf(msgs []Progress) []Kind {
	kinds := make([]Kind, len(msgs))
	for i, m := range msgs {
		kinds[i] = m.Kind
	}
	return kinds
}

func kindsEqual(got, want []Kind) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func messagesOfKind(msgs []Progress, k Kind) []Progress {
	var out []Progress
	for _, m := range msgs {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

// batchedRecords concatenates every EntriesBatch payload in arrival order.
func batchedRecords(msgs []Progress) []types.Record {
	var out []types.Record
	for _, m := range msgs {
		if m.Kind == KindEntriesBatch {
			out = append(out, m.Records...)
		}
	}
	return out
}

func TestScanDirectory(t *testing.T) {
	reg := testRegistry(t)
	dir := t.TempDir()
	writeFile(t, dir, "app.testlog",
		"[2024-03-01 10:00:00] INFO start\n"+
			"[2024-03-01 10:00:01] ERROR boom\n"+
			"  at frame 1\n"+
			"[2024-03-01 10:00:02] WARN late\n")
	writeFile(t, dir, "bus.testlog",
		"[2024-03-01 11:00:00] INFO ok\n"+
			"[2024-03-01 11:00:01] INFO done\n")

	o := New(reg, testConfig(), nil, nil)
	if err := o.Start(dir, 100); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	msgs := drain(t, o)

	if got := o.State(); got != StateCompleted {
		t.Fatalf("State() = %v, want %v", got, StateCompleted)
	}

	want := []Kind{
		KindDiscoveryStarted,
		KindFileDiscovered, KindFileDiscovered,
		KindDiscoveryCompleted,
		KindFilesDiscovered,
		KindParsingStarted,
		KindEntriesBatch, KindFileParsed,
		KindEntriesBatch, KindFileParsed,
		KindParsingCompleted,
	}
	if got := kindsOf(msgs); !kindsEqual(got, want) {
		t.Fatalf("message kinds = %v, want %v", got, want)
	}

	disc := messagesOfKind(msgs, KindDiscoveryCompleted)[0]
	if disc.Loaded != 2 || disc.TotalFound != 2 {
		t.Errorf("DiscoveryCompleted = {Loaded:%d TotalFound:%d}, want {2 2}", disc.Loaded, disc.TotalFound)
	}

	filesMsg := messagesOfKind(msgs, KindFilesDiscovered)[0]
	if len(filesMsg.Files) != 2 {
		t.Fatalf("FilesDiscovered carries %d files, want 2", len(filesMsg.Files))
	}
	for _, f := range filesMsg.Files {
		if f.ProfileID != "orchtest" {
			t.Errorf("file %s detected as %q, want orchtest", f.Path, f.ProfileID)
		}
		if f.Confidence != 1.0 {
			t.Errorf("file %s confidence = %v, want 1.0", f.Path, f.Confidence)
		}
	}

	records := batchedRecords(msgs)
	if len(records) != 5 {
		t.Fatalf("batched records = %d, want 5", len(records))
	}
	for i, r := range records {
		if want := uint64(100 + i); r.ID != want {
			t.Errorf("records[%d].ID = %d, want %d", i, r.ID, want)
		}
	}
	if !strings.Contains(records[1].Message, "boom") || !strings.Contains(records[1].Message, "at frame 1") {
		t.Errorf("continuation not folded into record: %q", records[1].Message)
	}

	parsed := messagesOfKind(msgs, KindFileParsed)
	if parsed[0].Completed != 1 || parsed[1].Completed != 2 {
		t.Errorf("FileParsed completed = %d,%d, want 1,2", parsed[0].Completed, parsed[1].Completed)
	}
	if parsed[0].File.RecordCount != 3 || parsed[1].File.RecordCount != 2 {
		t.Errorf("FileParsed record counts = %d,%d, want 3,2",
			parsed[0].File.RecordCount, parsed[1].File.RecordCount)
	}
	wantEarliest := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	wantLatest := time.Date(2024, 3, 1, 10, 0, 2, 0, time.UTC)
	if parsed[0].File.Earliest == nil || !parsed[0].File.Earliest.Equal(wantEarliest) {
		t.Errorf("Earliest = %v, want %v", parsed[0].File.Earliest, wantEarliest)
	}
	if parsed[0].File.Latest == nil || !parsed[0].File.Latest.Equal(wantLatest) {
		t.Errorf("Latest = %v, want %v", parsed[0].File.Latest, wantLatest)
	}

	sum := messagesOfKind(msgs, KindParsingCompleted)[0].Summary
	if sum.ScanID == "" {
		t.Error("summary ScanID is empty")
	}
	if sum.TotalRecords != 5 {
		t.Errorf("summary TotalRecords = %d, want 5", sum.TotalRecords)
	}
	if sum.FilesDiscovered != 2 || sum.FilesMatched != 2 || sum.FilesWithErrors != 0 {
		t.Errorf("summary files = {%d %d %d}, want {2 2 0}",
			sum.FilesDiscovered, sum.FilesMatched, sum.FilesWithErrors)
	}
	if len(sum.Files) != 2 {
		t.Errorf("summary Files len = %d, want 2", len(sum.Files))
	}
	if sum.FileCapHit || sum.RecordCapHit {
		t.Errorf("caps hit = {%v %v}, want {false false}", sum.FileCapHit, sum.RecordCapHit)
	}
	if sum.Duration <= 0 {
		t.Errorf("summary Duration = %v, want > 0", sum.Duration)
	}
	wantSev := map[types.Severity]uint64{
		types.SeverityInfo:    3,
		types.SeverityError:   1,
		types.SeverityWarning: 1,
	}
	for sev, n := range wantSev {
		if sum.RecordsBySeverity[sev] != n {
			t.Errorf("RecordsBySeverity[%v] = %d, want %d", sev, sum.RecordsBySeverity[sev], n)
		}
	}
}

func TestScanExplicitFiles(t *testing.T) {
	reg := testRegistry(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.testlog", "[2024-03-01 10:00:00] INFO one\n")
	b := writeFile(t, dir, "b.testlog", "[2024-03-01 10:00:01] INFO two\n[2024-03-01 10:00:02] INFO three\n")
	missing := filepath.Join(dir, "gone.testlog")

	o := New(reg, testConfig(), nil, nil)
	if err := o.StartFiles([]string{a, missing, b}, 500); err != nil {
		t.Fatalf("StartFiles() error = %v", err)
	}
	msgs := drain(t, o)

	want := []Kind{
		KindWarning,
		KindAdditionalFilesDiscovered,
		KindParsingStarted,
		KindEntriesBatch, KindFileParsed,
		KindEntriesBatch, KindFileParsed,
		KindParsingCompleted,
	}
	if got := kindsOf(msgs); !kindsEqual(got, want) {
		t.Fatalf("message kinds = %v, want %v", got, want)
	}

	warning := messagesOfKind(msgs, KindWarning)[0]
	if !strings.Contains(warning.Message, "gone.testlog") {
		t.Errorf("warning = %q, want mention of gone.testlog", warning.Message)
	}

	added := messagesOfKind(msgs, KindAdditionalFilesDiscovered)[0]
	if len(added.Files) != 2 {
		t.Fatalf("AdditionalFilesDiscovered carries %d files, want 2", len(added.Files))
	}

	records := batchedRecords(msgs)
	if len(records) != 3 {
		t.Fatalf("batched records = %d, want 3", len(records))
	}
	for i, r := range records {
		if want := uint64(500 + i); r.ID != want {
			t.Errorf("records[%d].ID = %d, want %d", i, r.ID, want)
		}
	}

	sum := messagesOfKind(msgs, KindParsingCompleted)[0].Summary
	if sum.TotalRecords != 3 || sum.FilesDiscovered != 2 {
		t.Errorf("summary = {TotalRecords:%d FilesDiscovered:%d}, want {3 2}",
			sum.TotalRecords, sum.FilesDiscovered)
	}
}

func TestScanStartTwice(t *testing.T) {
	reg := testRegistry(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.testlog", "[2024-03-01 10:00:00] INFO one\n")

	o := New(reg, testConfig(), nil, nil)
	if err := o.Start(dir, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := o.Start(dir, 0); err != ErrAlreadyStarted {
		t.Errorf("second Start() error = %v, want %v", err, ErrAlreadyStarted)
	}
	if err := o.StartFiles(nil, 0); err != ErrAlreadyStarted {
		t.Errorf("StartFiles() after Start error = %v, want %v", err, ErrAlreadyStarted)
	}
	drain(t, o)
}

func TestScanCancelled(t *testing.T) {
	reg := testRegistry(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.testlog", "[2024-03-01 10:00:00] INFO one\n")

	o := New(reg, testConfig(), nil, nil)
	o.Cancel()
	if err := o.Start(dir, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	msgs := drain(t, o)

	if got := o.State(); got != StateCancelled {
		t.Fatalf("State() = %v, want %v", got, StateCancelled)
	}
	kinds := kindsOf(msgs)
	if kinds[len(kinds)-1] != KindCancelled {
		t.Errorf("last kind = %v, want %v", kinds[len(kinds)-1], KindCancelled)
	}
	if len(messagesOfKind(msgs, KindParsingCompleted)) != 0 {
		t.Error("cancelled scan emitted ParsingCompleted")
	}
}

func TestScanRootMissing(t *testing.T) {
	reg := testRegistry(t)

	o := New(reg, testConfig(), nil, nil)
	if err := o.Start(filepath.Join(t.TempDir(), "nope"), 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	msgs := drain(t, o)

	if got := o.State(); got != StateFailed {
		t.Fatalf("State() = %v, want %v", got, StateFailed)
	}
	want := []Kind{KindDiscoveryStarted, KindFailed}
	if got := kindsOf(msgs); !kindsEqual(got, want) {
		t.Fatalf("message kinds = %v, want %v", got, want)
	}
	if msgs[1].Message == "" {
		t.Error("Failed message is empty")
	}
}

func TestScanRecordCap(t *testing.T) {
	reg := testRegistry(t)
	dir := t.TempDir()
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("[2024-03-01 10:00:0")
		sb.WriteByte(byte('0' + i))
		sb.WriteString("] INFO line\n")
	}
	writeFile(t, dir, "big.testlog", sb.String())

	cfg := testConfig()
	cfg.MaxRecords = 3
	o := New(reg, cfg, nil, nil)
	if err := o.Start(dir, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	msgs := drain(t, o)

	if got := o.State(); got != StateCompleted {
		t.Fatalf("State() = %v, want %v", got, StateCompleted)
	}

	records := batchedRecords(msgs)
	if len(records) != 3 {
		t.Fatalf("batched records = %d, want 3", len(records))
	}
	for i, r := range records {
		if r.ID != uint64(i) {
			t.Errorf("records[%d].ID = %d, want %d", i, r.ID, i)
		}
	}

	warnings := messagesOfKind(msgs, KindWarning)
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "record cap") {
		t.Errorf("warnings = %v, want one mentioning the record cap", warnings)
	}

	sum := messagesOfKind(msgs, KindParsingCompleted)[0].Summary
	if !sum.RecordCapHit {
		t.Error("summary RecordCapHit = false, want true")
	}
	if sum.TotalRecords != 3 {
		t.Errorf("summary TotalRecords = %d, want 3", sum.TotalRecords)
	}
	if len(sum.Files) != 1 || sum.Files[0].RecordCount != 3 {
		t.Errorf("summary Files = %+v, want one entry with 3 records", sum.Files)
	}
}

func TestScanBatchSize(t *testing.T) {
	reg := testRegistry(t)
	dir := t.TempDir()
	var sb strings.Builder
	for i := 0; i < 5; i++ {
		sb.WriteString("[2024-03-01 10:00:0")
		sb.WriteByte(byte('0' + i))
		sb.WriteString("] INFO line\n")
	}
	writeFile(t, dir, "a.testlog", sb.String())

	cfg := testConfig()
	cfg.BatchSize = 2
	o := New(reg, cfg, nil, nil)
	if err := o.Start(dir, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	msgs := drain(t, o)

	batches := messagesOfKind(msgs, KindEntriesBatch)
	wantSizes := []int{2, 2, 1}
	if len(batches) != len(wantSizes) {
		t.Fatalf("batch count = %d, want %d", len(batches), len(wantSizes))
	}
	for i, b := range batches {
		if len(b.Records) != wantSizes[i] {
			t.Errorf("batch[%d] size = %d, want %d", i, len(b.Records), wantSizes[i])
		}
	}
}

func TestScanPlainTextFallback(t *testing.T) {
	reg := testRegistry(t)
	dir := t.TempDir()
	writeFile(t, dir, "notes.plain", "plain prose without structure\nanother ordinary sentence\n")

	o := New(reg, testConfig(), nil, nil)
	if err := o.Start(dir, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	msgs := drain(t, o)

	filesMsg := messagesOfKind(msgs, KindFilesDiscovered)[0]
	if len(filesMsg.Files) != 1 {
		t.Fatalf("FilesDiscovered carries %d files, want 1", len(filesMsg.Files))
	}
	if got := filesMsg.Files[0].ProfileID; got != types.PlainTextProfileID {
		t.Errorf("ProfileID = %q, want %q", got, types.PlainTextProfileID)
	}
	if got := filesMsg.Files[0].Confidence; got != 0 {
		t.Errorf("Confidence = %v, want 0", got)
	}

	records := batchedRecords(msgs)
	if len(records) != 2 {
		t.Fatalf("batched records = %d, want 2", len(records))
	}
	for i, r := range records {
		if r.Severity != types.SeverityUnknown {
			t.Errorf("records[%d].Severity = %v, want %v", i, r.Severity, types.SeverityUnknown)
		}
		if r.Timestamp != nil {
			t.Errorf("records[%d].Timestamp = %v, want nil", i, r.Timestamp)
		}
	}

	sum := messagesOfKind(msgs, KindParsingCompleted)[0].Summary
	if sum.FilesMatched != 0 {
		t.Errorf("summary FilesMatched = %d, want 0", sum.FilesMatched)
	}
}

func TestScanUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions do not bind root")
	}
	reg := testRegistry(t)
	dir := t.TempDir()
	writeFile(t, dir, "good.testlog", "[2024-03-01 10:00:00] INFO fine\n")
	locked := writeFile(t, dir, "locked.testlog", "[2024-03-01 10:00:01] INFO hidden\n")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	o := New(reg, cfg, nil, nil)
	if err := o.Start(dir, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	msgs := drain(t, o)

	if got := o.State(); got != StateCompleted {
		t.Fatalf("State() = %v, want %v", got, StateCompleted)
	}

	warnings := messagesOfKind(msgs, KindWarning)
	found := false
	for _, w := range warnings {
		if strings.Contains(w.Message, "locked.testlog") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want one mentioning locked.testlog", warnings)
	}

	sum := messagesOfKind(msgs, KindParsingCompleted)[0].Summary
	if sum.FilesWithErrors != 1 {
		t.Errorf("summary FilesWithErrors = %d, want 1", sum.FilesWithErrors)
	}
	if sum.TotalRecords != 1 {
		t.Errorf("summary TotalRecords = %d, want 1", sum.TotalRecords)
	}
	if len(sum.Files) != 1 {
		t.Errorf("summary Files len = %d, want 1", len(sum.Files))
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		want     string
		terminal bool
	}{
		{StateIdle, "idle", false},
		{StateDiscovering, "discovering", false},
		{StateParsing, "parsing", false},
		{StateCompleted, "completed", true},
		{StateCancelled, "cancelled", true},
		{StateFailed, "failed", true},
		{State(99), "unknown", true},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := tt.state.Terminal(); got != tt.terminal {
				t.Errorf("Terminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}
