// Package dirwatch polls a directory tree for log files appearing after
// the initial scan. It walks with the same rules discovery used, so a
// file the scan would have loaded is exactly a file the watcher reports.
package dirwatch

import (
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/therealutkarshpriyadarshi/loupe/internal/discovery"
	"github.com/therealutkarshpriyadarshi/loupe/internal/logging"
	"github.com/therealutkarshpriyadarshi/loupe/internal/metrics"
	"github.com/therealutkarshpriyadarshi/loupe/internal/progress"
	"github.com/therealutkarshpriyadarshi/loupe/internal/worker"
	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

const (
	// DefaultPollInterval is how often the tree is re-walked. Directory
	// turnover is slow next to file growth, so this is coarser than the
	// tail interval.
	DefaultPollInterval = 2 * time.Second

	// MinPollInterval and MaxPollInterval clamp the configured interval.
	MinPollInterval = time.Second
	MaxPollInterval = time.Minute
)

// ErrAlreadyStarted is returned by Start on reuse.
var ErrAlreadyStarted = errors.New("dirwatch already started")

// Config bundles the watcher tunables.
type Config struct {
	// Discovery controls the walk: depth, include and exclude globs.
	Discovery discovery.Config

	// PollInterval is clamped to [MinPollInterval, MaxPollInterval].
	// Zero means DefaultPollInterval.
	PollInterval time.Duration
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
	return c
}

// Watcher polls one directory tree on a worker goroutine and reports
// new files and modification-time changes.
type Watcher struct {
	cfg     Config
	log     *logging.Logger
	mets    *metrics.Collector
	scanner *discovery.Scanner

	queue   *progress.Queue[Event]
	control *worker.Control
	started atomic.Bool
	done    chan struct{}

	root  string
	known map[string]time.Time
}

// New builds a Watcher. log may be nil; mets may be nil.
func New(cfg Config, log *logging.Logger, mets *metrics.Collector) *Watcher {
	if log == nil {
		log = logging.Nop()
	}
	cfg = cfg.withDefaults()
	log = log.WithComponent("dirwatch")
	return &Watcher{
		cfg:     cfg,
		log:     log,
		mets:    mets,
		scanner: discovery.New(cfg.Discovery, log),
		queue:   progress.NewQueue[Event](0),
		control: worker.NewControl(),
		done:    make(chan struct{}),
	}
}

// Start begins polling root. known lists the paths the embedder already
// loaded; they are never reported as new, and their current mtimes form
// the change-detection baseline.
func (w *Watcher) Start(root string, known []string) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	w.root = root
	w.known = make(map[string]time.Time, len(known))
	for _, path := range known {
		w.known[path] = statMtime(path)
	}
	go w.run()
	return nil
}

// Stop asks the worker to finish. It returns without waiting; Done
// closes after the final Stopped event is queued.
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
		w.mets.QueuePushed.WithLabelValues("dirwatch").Inc()
		w.mets.QueueBacklog.WithLabelValues("dirwatch").Set(float64(w.queue.Len()))
	}
}

func (w *Watcher) run() {
	defer close(w.done)
	w.push(Event{Kind: KindStarted, Known: len(w.known)})
	w.log.Info().Str("root", w.root).Int("known", len(w.known)).
		Dur("interval", w.cfg.PollInterval).Msg("directory watch started")

	for w.control.Sleep(w.cfg.PollInterval) {
		w.tick()
	}

	w.push(Event{Kind: KindStopped})
	w.log.Info().Msg("directory watch stopped")
}

func (w *Watcher) tick() {
	if w.mets != nil {
		w.mets.DirWatchTicks.Inc()
	}

	res, err := w.scanner.Discover(w.root, nil)
	if err != nil {
		// The root can vanish transiently on network mounts. Keep
		// polling; it usually comes back.
		w.log.Debug().Err(err).Msg("walk failed, will retry")
		return
	}

	var newFiles []types.DiscoveredFile
	var mtimes map[string]time.Time
	for _, f := range res.Files {
		old, seen := w.known[f.Path]
		if !seen {
			w.known[f.Path] = f.ModTime
			newFiles = append(newFiles, f)
			continue
		}
		if !f.ModTime.Equal(old) {
			w.known[f.Path] = f.ModTime
			if mtimes == nil {
				mtimes = make(map[string]time.Time)
			}
			mtimes[f.Path] = f.ModTime
		}
	}

	if len(newFiles) > 0 {
		if w.mets != nil {
			w.mets.DirWatchNewFiles.Add(float64(len(newFiles)))
		}
		w.log.Info().Int("count", len(newFiles)).Msg("new files appeared")
		w.push(Event{Kind: KindNewFiles, Files: newFiles})
	}
	if len(mtimes) > 0 {
		w.push(Event{Kind: KindMtimeUpdates, Mtimes: mtimes})
	}
}

// statMtime is a best-effort baseline read. A failing stat leaves the
// zero time, so the first successful walk reports the file as updated.
func statMtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
