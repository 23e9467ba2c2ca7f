// Package scan runs the full discover-detect-parse pipeline on a worker
// goroutine and streams Progress messages to the embedder through a
// lossless queue. One Orchestrator runs exactly one scan; a rescan is a
// fresh Orchestrator, which keeps the message stream and the ID range of
// every scan self-contained.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/loupe/internal/discovery"
	"github.com/therealutkarshpriyadarshi/loupe/internal/logging"
	"github.com/therealutkarshpriyadarshi/loupe/internal/metrics"
	"github.com/therealutkarshpriyadarshi/loupe/internal/parser"
	"github.com/therealutkarshpriyadarshi/loupe/internal/pool"
	"github.com/therealutkarshpriyadarshi/loupe/internal/profile"
	"github.com/therealutkarshpriyadarshi/loupe/internal/progress"
	"github.com/therealutkarshpriyadarshi/loupe/internal/reliability"
	"github.com/therealutkarshpriyadarshi/loupe/internal/worker"
	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

const (
	// DefaultBatchSize is the record count at which a partially parsed
	// file is flushed as an EntriesBatch.
	DefaultBatchSize = 2000

	// DefaultMaxRecords bounds one scan's total record count.
	DefaultMaxRecords = 500_000

	// AbsoluteMaxRecords is the hard ceiling no configuration can exceed.
	AbsoluteMaxRecords = 1_000_000

	// detectSampleBytes is how much of a file's head is read for profile
	// detection.
	detectSampleBytes = 64 * 1024
)

// ErrAlreadyStarted is returned by Start and StartFiles on reuse.
var ErrAlreadyStarted = errors.New("scan already started")

// State tracks where the worker is in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateDiscovering
	StateParsing
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateParsing:
		return "parsing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the scan has finished, for any reason.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Config bundles the tunables for one scan.
type Config struct {
	// Discovery controls the directory walk. Zero value means no globs
	// match; use discovery.DefaultConfig for the usual limits.
	Discovery discovery.Config

	// Parser is passed through to every parse call.
	Parser parser.Options

	// BatchSize is the EntriesBatch flush threshold. Zero means
	// DefaultBatchSize.
	BatchSize int

	// MaxRecords bounds the scan's total record count. Zero means
	// DefaultMaxRecords; values above AbsoluteMaxRecords are clamped.
	MaxRecords uint64

	// Retry governs file reads, which fail transiently during rotation.
	Retry reliability.RetryConfig
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxRecords == 0 {
		c.MaxRecords = DefaultMaxRecords
	}
	if c.MaxRecords > AbsoluteMaxRecords {
		c.MaxRecords = AbsoluteMaxRecords
	}
	return c
}

// Orchestrator owns one scan: the worker goroutine, its progress queue,
// and its cancellation flag. All exported methods are safe to call from
// the embedder's goroutine while the worker runs.
type Orchestrator struct {
	registry *profile.Registry
	cfg      Config
	log      *logging.Logger
	mets     *metrics.Collector

	queue   *progress.Queue[Progress]
	control *worker.Control
	state   atomic.Int32
	started atomic.Bool
	done    chan struct{}
}

// New builds an Orchestrator. log may be nil; mets may be nil when the
// embedder does not collect metrics.
func New(registry *profile.Registry, cfg Config, log *logging.Logger, mets *metrics.Collector) *Orchestrator {
	if log == nil {
		log = logging.Nop()
	}
	return &Orchestrator{
		registry: registry,
		cfg:      cfg.withDefaults(),
		log:      log.WithComponent("scan"),
		mets:     mets,
		queue:    progress.NewQueue[Progress](0),
		control:  worker.NewControl(),
		done:     make(chan struct{}),
	}
}

// Start begins a directory scan rooted at root. Record IDs are assigned
// from startID upward; the embedder advances its counter by the
// summary's TotalRecords when the scan completes.
func (o *Orchestrator) Start(root string, startID uint64) error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	o.setState(StateDiscovering)
	go o.run(root, nil, startID)
	return nil
}

// StartFiles parses an explicit file list with no directory walk. It is
// the append path behind "open files": the discovered set is announced
// as AdditionalFilesDiscovered so the embedder extends, not replaces,
// its file list.
func (o *Orchestrator) StartFiles(paths []string, startID uint64) error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	o.setState(StateDiscovering)
	go o.run("", paths, startID)
	return nil
}

// Cancel asks the worker to stop. The worker notices within its next
// cancellation check and emits a final Cancelled message.
func (o *Orchestrator) Cancel() {
	o.control.Cancel()
}

// Poll drains all pending progress messages. It never blocks.
func (o *Orchestrator) Poll() []Progress {
	return o.queue.Poll()
}

// State returns the worker's current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Done is closed when the worker goroutine exits. Messages may still be
// queued after it closes; drain with Poll.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

func (o *Orchestrator) push(p Progress) {
	o.queue.Push(p)
	if o.mets != nil {
		o.mets.QueuePushed.WithLabelValues("scan").Inc()
		o.mets.QueueBacklog.WithLabelValues("scan").Set(float64(o.queue.Len()))
	}
}

func (o *Orchestrator) warn(msg string) {
	o.push(Progress{Kind: KindWarning, Message: msg})
}

func (o *Orchestrator) finishCancelled() {
	o.push(Progress{Kind: KindCancelled})
	o.setState(StateCancelled)
	if o.mets != nil {
		o.mets.ScansFinished.WithLabelValues("cancelled").Inc()
	}
	o.log.Info().Msg("scan cancelled")
}

func (o *Orchestrator) finishFailed(err error) {
	o.push(Progress{Kind: KindFailed, Message: err.Error()})
	o.setState(StateFailed)
	if o.mets != nil {
		o.mets.ScansFinished.WithLabelValues("failed").Inc()
	}
	o.log.Error().Err(err).Msg("scan failed")
}

func (o *Orchestrator) run(root string, explicit []string, startID uint64) {
	defer close(o.done)
	start := time.Now()
	if o.mets != nil {
		o.mets.ScansStarted.Inc()
	}

	if o.registry == nil || o.registry.Len() == 0 {
		o.finishFailed(errors.New("profile registry is empty"))
		return
	}

	files, totalFound, fileCapHit, ok := o.discover(root, explicit)
	if !ok {
		return
	}

	o.setState(StateParsing)
	o.push(Progress{Kind: KindParsingStarted, TotalFiles: len(files)})

	summary := types.ScanSummary{
		ScanID:            uuid.NewString(),
		FilesDiscovered:   totalFound,
		RecordsBySeverity: make(map[types.Severity]uint64),
		FileCapHit:        fileCapHit,
	}

	nextID := startID
	for i := range files {
		f := &files[i]
		if o.control.Cancelled() {
			o.finishCancelled()
			return
		}

		prof, found := o.registry.Get(f.ProfileID)
		if !found {
			prof = o.registry.PlainText()
		}
		if prof.ID != types.PlainTextProfileID {
			summary.FilesMatched++
		}

		content, err := o.readFileLossy(f.Path)
		if err != nil {
			if errors.Is(err, reliability.ErrRetryAborted) {
				o.finishCancelled()
				return
			}
			summary.FilesWithErrors++
			o.warn(fmt.Sprintf("%s: %v", f.Path, err))
			o.log.Warn().Str("file", f.Path).Err(err).Msg("file skipped after retries")
			continue
		}

		parseStart := time.Now()
		res := parser.Parse(parser.Input{
			Content:    content,
			SourceFile: f.Path,
			Profile:    prof,
			Options:    o.cfg.Parser,
			StartID:    nextID,
		})
		if o.mets != nil {
			o.mets.ParseDuration.WithLabelValues(prof.ID).Observe(time.Since(parseStart).Seconds())
			o.mets.FilesParsed.WithLabelValues(prof.ID).Inc()
			o.mets.RecordsParsed.WithLabelValues(prof.ID).Add(float64(len(res.Records)))
			o.mets.ParseErrors.WithLabelValues(prof.ID).Add(float64(res.ErrorCount))
		}

		records := res.Records
		capped := false
		if summary.TotalRecords+uint64(len(records)) > o.cfg.MaxRecords {
			keep := o.cfg.MaxRecords - summary.TotalRecords
			dropped := uint64(len(records)) - keep
			records = records[:keep]
			summary.RecordCapHit = true
			capped = true
			o.warn(fmt.Sprintf("record cap (%d) reached in %s; %d record(s) dropped",
				o.cfg.MaxRecords, f.Path, dropped))
		}
		nextID += uint64(len(records))

		fileSum := buildFileSummary(f.Path, prof.ID, records, res.ErrorCount)
		summary.TotalRecords += uint64(len(records))
		summary.TotalParseErrors += res.ErrorCount
		if res.ErrorCount > 0 {
			summary.FilesWithErrors++
		}
		for j := range records {
			summary.RecordsBySeverity[records[j].Severity]++
		}
		summary.Files = append(summary.Files, fileSum)

		o.emitBatches(records)
		o.push(Progress{
			Kind:       KindFileParsed,
			Completed:  i + 1,
			TotalFiles: len(files),
			File:       fileSum,
		})

		if capped {
			if rest := len(files) - i - 1; rest > 0 {
				o.warn(fmt.Sprintf("%d file(s) not parsed after record cap", rest))
			}
			break
		}
	}

	summary.Duration = time.Since(start)
	o.push(Progress{Kind: KindParsingCompleted, Summary: summary})
	o.setState(StateCompleted)
	if o.mets != nil {
		o.mets.ScansFinished.WithLabelValues("completed").Inc()
		o.mets.ScanDuration.Observe(summary.Duration.Seconds())
	}
	o.log.Info().
		Int("files", len(files)).
		Uint64("records", summary.TotalRecords).
		Dur("duration", summary.Duration).
		Msg("scan completed")
}

// discover produces the file list for the parse phase, either by walking
// root or by stat-ing the explicit list. ok is false when the scan
// already finished (failed or cancelled) during this phase.
func (o *Orchestrator) discover(root string, explicit []string) (files []types.DiscoveredFile, totalFound int, capHit, ok bool) {
	if explicit != nil {
		files = make([]types.DiscoveredFile, 0, len(explicit))
		largeAt := o.cfg.Discovery.LargeFileBytes
		if largeAt <= 0 {
			largeAt = discovery.DefaultLargeFileBytes
		}
		for _, path := range explicit {
			if o.control.Cancelled() {
				o.finishCancelled()
				return nil, 0, false, false
			}
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			info, err := os.Stat(path)
			if err != nil {
				o.warn(fmt.Sprintf("%s: %v", path, err))
				continue
			}
			if info.IsDir() {
				o.warn(fmt.Sprintf("%s: is a directory", path))
				continue
			}
			files = append(files, types.DiscoveredFile{
				Path:    path,
				Size:    info.Size(),
				ModTime: info.ModTime(),
				IsLarge: info.Size() >= largeAt,
			})
			o.detect(&files[len(files)-1])
		}
		o.push(Progress{Kind: KindAdditionalFilesDiscovered, Files: files})
		return files, len(files), false, true
	}

	o.push(Progress{Kind: KindDiscoveryStarted})
	discoStart := time.Now()
	scanner := discovery.New(o.cfg.Discovery, o.log)
	result, err := scanner.Discover(root, func(path string, count int) {
		o.push(Progress{Kind: KindFileDiscovered, Path: path, FilesFound: count})
	})
	if err != nil {
		o.finishFailed(err)
		return nil, 0, false, false
	}
	if o.mets != nil {
		o.mets.DiscoveryDuration.Observe(time.Since(discoStart).Seconds())
		o.mets.FilesDiscovered.Add(float64(len(result.Files)))
		o.mets.DiscoveryWarnings.Add(float64(len(result.Warnings)))
	}
	for _, w := range result.Warnings {
		o.warn(w)
	}
	files = result.Files
	o.push(Progress{
		Kind:       KindDiscoveryCompleted,
		Loaded:     len(files),
		TotalFound: result.TotalFound,
	})

	for i := range files {
		if o.control.Cancelled() {
			o.finishCancelled()
			return nil, 0, false, false
		}
		o.detect(&files[i])
	}
	o.push(Progress{Kind: KindFilesDiscovered, Files: files})

	return files, result.TotalFound, result.TotalFound > len(files), true
}

// detect classifies one file by sampling its head. A file that cannot be
// read falls back to plain text; the parse phase will surface the error.
func (o *Orchestrator) detect(f *types.DiscoveredFile) {
	sample, err := readHeadLines(f.Path)
	if err != nil {
		pt := o.registry.PlainText()
		f.ProfileID = pt.ID
		f.Confidence = 0
		return
	}
	prof, conf := o.registry.Detect(filepath.Base(f.Path), sample)
	f.ProfileID = prof.ID
	f.Confidence = conf
}

// readHeadLines reads up to detectSampleBytes from the file head and
// splits it into lines for detection probing.
func readHeadLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := pool.ReadBuffers.Get(detectSampleBytes)
	defer pool.ReadBuffers.Put(buf)

	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}

	lines := strings.Split(parser.DecodeLossy(buf[:n]), "\n")
	if n == detectSampleBytes && len(lines) > 1 {
		// The final line was likely cut mid-way by the sample window.
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}

// readFileLossy loads a whole file, retrying transient failures, and
// replaces invalid UTF-8 rather than failing the file.
func (o *Orchestrator) readFileLossy(path string) (string, error) {
	cfg := o.cfg.Retry
	cfg.Interrupt = o.control.Cancelled

	var content string
	err := reliability.Retry(context.Background(), cfg, func(context.Context) error {
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		content = parser.DecodeLossy(b)
		return nil
	})
	return content, err
}

// emitBatches flushes records in BatchSize chunks so no single progress
// message grows unbounded.
func (o *Orchestrator) emitBatches(records []types.Record) {
	for len(records) > 0 {
		n := o.cfg.BatchSize
		if n > len(records) {
			n = len(records)
		}
		o.push(Progress{Kind: KindEntriesBatch, Records: records[:n:n]})
		if o.mets != nil {
			o.mets.ScanBatches.Inc()
			o.mets.ScanBatchSize.Observe(float64(n))
		}
		records = records[n:]
	}
}

func buildFileSummary(path, profileID string, records []types.Record, errorCount uint64) types.FileSummary {
	sum := types.FileSummary{
		Path:        path,
		ProfileID:   profileID,
		RecordCount: uint64(len(records)),
		ErrorCount:  errorCount,
	}
	for i := range records {
		ts := records[i].Timestamp
		if ts == nil {
			continue
		}
		if sum.Earliest == nil || ts.Before(*sum.Earliest) {
			sum.Earliest = ts
		}
		if sum.Latest == nil || ts.After(*sum.Latest) {
			sum.Latest = ts
		}
	}
	return sum
}
