// Package tail polls watched files for appended bytes and parses them
// into records. Polling, not inotify: truncation, copy-truncate rotation,
// and network mounts all look the same to a stat loop, and the sub-second
// interval is fast enough for a viewer.
package tail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/therealutkarshpriyadarshi/loupe/internal/logging"
	"github.com/therealutkarshpriyadarshi/loupe/internal/metrics"
	"github.com/therealutkarshpriyadarshi/loupe/internal/parser"
	"github.com/therealutkarshpriyadarshi/loupe/internal/pool"
	"github.com/therealutkarshpriyadarshi/loupe/internal/progress"
	"github.com/therealutkarshpriyadarshi/loupe/internal/worker"
	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

const (
	// DefaultPollInterval is how often files are checked for growth.
	DefaultPollInterval = 500 * time.Millisecond

	// MinPollInterval and MaxPollInterval clamp the configured interval.
	MinPollInterval = 200 * time.Millisecond
	MaxPollInterval = 10 * time.Second

	// DefaultMaxTickBytes caps how much of one file is consumed per tick.
	// A file growing faster than this falls behind rather than stalling
	// the whole tick.
	DefaultMaxTickBytes = 4 * 1024 * 1024

	// maxPartialBytes bounds the buffered tail of a line that has not
	// seen its newline yet. Growing past it discards the buffer and
	// raises a FileError event.
	maxPartialBytes = 1024 * 1024
)

// ErrAlreadyStarted is returned by Start on reuse.
var ErrAlreadyStarted = errors.New("tail already started")

// FromCurrentSize as an InitialOffset stats the file at Start time so
// only bytes appended afterwards are emitted.
const FromCurrentSize int64 = -1

// File names one file to watch and the profile to parse it with.
// Profile must not be nil; the embedder resolves detection before
// handing files over.
//
// InitialOffset is the byte the cursor starts at. An embedder that just
// scanned the file passes the size the scan consumed, closing the gap
// for bytes appended mid-scan. Zero replays the whole file; negative
// values mean FromCurrentSize.
type File struct {
	Path          string
	Profile       *types.Profile
	InitialOffset int64
}

// Config bundles the watcher tunables.
type Config struct {
	// PollInterval is clamped to [MinPollInterval, MaxPollInterval].
	// Zero means DefaultPollInterval.
	PollInterval time.Duration

	// MaxTickBytes caps the per-file read per tick. Zero means
	// DefaultMaxTickBytes.
	MaxTickBytes int

	// Parser is passed through to every parse call.
	Parser parser.Options
}

func (c Config) withDefaults() Config {
	switch {
	case c.PollInterval == 0:
		c.PollInterval = DefaultPollInterval
	case c.PollInterval < MinPollInterval:
		c.PollInterval = MinPollInterval
	case c.PollInterval > MaxPollInterval:
		c.PollInterval = MaxPollInterval
	}
	if c.MaxTickBytes <= 0 {
		c.MaxTickBytes = DefaultMaxTickBytes
	}
	return c
}

// fileState is the per-file cursor. offset is how far into the file we
// have consumed; partial holds bytes after the last newline; seed is a
// private copy of the last emitted record, kept so continuation lines
// arriving in a later tick can grow it instead of becoming orphans.
type fileState struct {
	path    string
	profile *types.Profile
	offset  int64
	partial []byte
	line    uint64
	seed    *types.Record
}

// Watcher tails a fixed set of files on one worker goroutine. Records
// are assigned IDs from the startID handed to Start; the embedder owns
// the counter and advances it by the new (non-replacement) records it
// receives.
type Watcher struct {
	cfg  Config
	log  *logging.Logger
	mets *metrics.Collector

	queue   *progress.Queue[Event]
	control *worker.Control
	started atomic.Bool
	done    chan struct{}

	files  []*fileState
	nextID uint64
}

// New builds a Watcher. log may be nil; mets may be nil.
func New(cfg Config, log *logging.Logger, mets *metrics.Collector) *Watcher {
	if log == nil {
		log = logging.Nop()
	}
	return &Watcher{
		cfg:     cfg.withDefaults(),
		log:     log.WithComponent("tail"),
		mets:    mets,
		queue:   progress.NewQueue[Event](0),
		control: worker.NewControl(),
		done:    make(chan struct{}),
	}
}

// Start begins polling. A file missing at start is watched from offset
// zero and picked up when it appears.
func (w *Watcher) Start(files []File, startID uint64) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	w.nextID = startID
	w.files = make([]*fileState, 0, len(files))
	for _, f := range files {
		fs := &fileState{path: f.Path, profile: f.Profile, offset: f.InitialOffset}
		if f.InitialOffset < 0 {
			fs.offset = 0
			if info, err := os.Stat(f.Path); err == nil {
				fs.offset = info.Size()
			}
		}
		w.files = append(w.files, fs)
	}
	if w.mets != nil {
		w.mets.TailFiles.Set(float64(len(w.files)))
	}
	go w.run()
	return nil
}

// Stop asks the worker to finish. It returns without waiting; the final
// Stopped event marks the actual exit, and Done closes after it.
func (w *Watcher) Stop() {
	w.control.Cancel()
}

// Poll drains all pending events. It never blocks.
func (w *Watcher) Poll() []Event {
	return w.queue.Poll()
}

// Done is closed when the worker goroutine exits.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) push(e Event) {
	w.queue.Push(e)
	if w.mets != nil {
		w.mets.QueuePushed.WithLabelValues("tail").Inc()
		w.mets.QueueBacklog.WithLabelValues("tail").Set(float64(w.queue.Len()))
	}
}

func (w *Watcher) run() {
	defer close(w.done)
	w.push(Event{Kind: KindStarted, FileCount: len(w.files)})
	w.log.Info().Int("files", len(w.files)).Dur("interval", w.cfg.PollInterval).Msg("tail started")

	for w.control.Sleep(w.cfg.PollInterval) {
		w.tick()
	}

	w.push(Event{Kind: KindStopped})
	if w.mets != nil {
		w.mets.TailFiles.Set(0)
	}
	w.log.Info().Msg("tail stopped")
}

// tick polls every file once and flushes all new records as a single
// NewEntries event so the embedder sees one chronologically mergeable
// batch per interval.
func (w *Watcher) tick() {
	if w.mets != nil {
		w.mets.TailTicks.Inc()
	}
	var out []types.Record
	fresh := 0
	for _, fs := range w.files {
		recs, added, err := w.pollFile(fs)
		if err != nil {
			w.push(Event{Kind: KindFileError, Path: fs.path, Error: err.Error()})
			if w.mets != nil {
				w.mets.TailFileErrors.Inc()
			}
			continue
		}
		out = append(out, recs...)
		fresh += added
	}
	if len(out) == 0 {
		return
	}
	if w.mets != nil {
		w.mets.TailRecords.Add(float64(fresh))
	}
	w.push(Event{Kind: KindNewEntries, Records: out})
}

// pollFile reads and parses whatever one file grew since the last tick.
// It returns the records to emit and how many of them are new rather
// than re-emitted continuations.
func (w *Watcher) pollFile(fs *fileState) ([]types.Record, int, error) {
	info, err := os.Stat(fs.path)
	if err != nil {
		return nil, 0, err
	}
	size := info.Size()
	if size < fs.offset {
		// Truncated or rotated in place. Re-read from the top as a new
		// stream; the stale partial line and continuation cache belong
		// to the old incarnation.
		w.log.Info().Str("file", fs.path).Int64("size", size).Int64("offset", fs.offset).
			Msg("file shrank, restarting from start")
		fs.offset = 0
		fs.partial = nil
		fs.line = 0
		fs.seed = nil
	}
	if size == fs.offset {
		return nil, 0, nil
	}

	chunk, n, overflow, err := w.readChunk(fs, size)
	if err != nil {
		return nil, 0, err
	}
	fs.offset += int64(n)
	if overflow {
		w.push(Event{
			Kind:  KindFileError,
			Path:  fs.path,
			Error: fmt.Sprintf("line exceeded %d buffered bytes without a newline; dropping it", maxPartialBytes),
		})
		if w.mets != nil {
			w.mets.TailFileErrors.Inc()
		}
	}
	if chunk == nil {
		return nil, 0, nil
	}

	res := parser.Parse(parser.Input{
		Content:    parser.DecodeLossy(chunk),
		SourceFile: fs.path,
		Profile:    fs.profile,
		Options:    w.cfg.Parser,
		StartID:    w.nextID,
		StartLine:  fs.line + 1,
		Seed:       fs.seed,
	})
	fs.line += res.LinesParsed
	w.nextID += uint64(len(res.Records))

	now := time.Now().UTC()
	for i := range res.Records {
		if res.Records[i].Timestamp == nil {
			ts := now
			res.Records[i].Timestamp = &ts
		}
	}

	recs := res.Records
	if res.SeedExtended && fs.seed != nil {
		// The cached record grew. Re-emit it first under its original
		// ID; the embedder replaces rather than appends it.
		recs = append([]types.Record{*fs.seed}, recs...)
	}

	if len(recs) > 0 {
		if fs.profile != nil && fs.profile.Multiline == types.MultilineContinuation {
			last := recs[len(recs)-1]
			fs.seed = &last
		} else {
			fs.seed = nil
		}
	}
	return recs, len(res.Records), nil
}

// readChunk pulls the unconsumed bytes (capped per tick), splices them
// onto the buffered partial line, and returns everything up to the last
// newline. A nil chunk means no complete line arrived yet; n is always
// the byte count consumed from the file. overflow reports that the bytes
// after the last newline outgrew the partial bound and were discarded.
func (w *Watcher) readChunk(fs *fileState, size int64) ([]byte, int, bool, error) {
	f, err := os.Open(fs.path)
	if err != nil {
		return nil, 0, false, err
	}
	defer f.Close()

	if _, err := f.Seek(fs.offset, io.SeekStart); err != nil {
		return nil, 0, false, err
	}

	want := size - fs.offset
	if want > int64(w.cfg.MaxTickBytes) {
		want = int64(w.cfg.MaxTickBytes)
	}
	buf := pool.ReadBuffers.Get(int(want))
	defer pool.ReadBuffers.Put(buf)

	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, 0, false, err
	}
	if n == 0 {
		return nil, 0, false, nil
	}

	data := make([]byte, 0, len(fs.partial)+n)
	data = append(data, fs.partial...)
	data = append(data, buf[:n]...)

	cut := bytes.LastIndexByte(data, '\n')
	if cut < 0 {
		if len(data) > maxPartialBytes {
			fs.partial = nil
			return nil, n, true, nil
		}
		fs.partial = data
		return nil, n, false, nil
	}
	rest := append([]byte(nil), data[cut+1:]...)
	if len(rest) > maxPartialBytes {
		fs.partial = nil
		return data[:cut+1], n, true, nil
	}
	fs.partial = rest
	return data[:cut+1], n, false, nil
}
