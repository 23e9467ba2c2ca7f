package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const namespace = "loupe"

// Collector provides a central place for all application metrics
type Collector struct {
	// Scan metrics
	ScansStarted  prometheus.Counter
	ScansFinished *prometheus.CounterVec
	ScanDuration  prometheus.Histogram
	ScanBatches   prometheus.Counter
	ScanBatchSize prometheus.Histogram

	// Discovery metrics
	FilesDiscovered   prometheus.Counter
	DiscoveryWarnings prometheus.Counter
	DiscoveryDuration prometheus.Histogram

	// Parser metrics
	FilesParsed   *prometheus.CounterVec
	RecordsParsed *prometheus.CounterVec
	ParseErrors   *prometheus.CounterVec
	ParseDuration *prometheus.HistogramVec

	// Tail metrics
	TailTicks      prometheus.Counter
	TailRecords    prometheus.Counter
	TailFileErrors prometheus.Counter
	TailFiles      prometheus.Gauge

	// Directory watch metrics
	DirWatchTicks    prometheus.Counter
	DirWatchNewFiles prometheus.Counter

	// Filter metrics
	FilterApplies  prometheus.Counter
	FilterDuration prometheus.Histogram

	// Export metrics
	ExportRecords  *prometheus.CounterVec
	ExportBytes    *prometheus.CounterVec
	ExportDuration *prometheus.HistogramVec

	// Store metrics
	StoreRecords   prometheus.Gauge
	StoreBookmarks prometheus.Gauge

	// Progress queue metrics
	QueueBacklog *prometheus.GaugeVec
	QueuePushed  *prometheus.CounterVec

	// System metrics
	SystemGoroutines prometheus.Gauge
	SystemMemAlloc   prometheus.Gauge
	SystemMemSys     prometheus.Gauge
	SystemGCPauses   prometheus.Histogram

	registry *prometheus.Registry
	mu       sync.RWMutex
	started  bool
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
	}

	c.initScanMetrics()
	c.initDiscoveryMetrics()
	c.initParserMetrics()
	c.initTailMetrics()
	c.initDirWatchMetrics()
	c.initFilterMetrics()
	c.initExportMetrics()
	c.initStoreMetrics()
	c.initQueueMetrics()
	c.initSystemMetrics()

	return c
}

func (c *Collector) initScanMetrics() {
	c.ScansStarted = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "started_total",
			Help:      "Total number of scans started",
		},
	)

	c.ScansFinished = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "finished_total",
			Help:      "Total number of scans finished by outcome",
		},
		[]string{"outcome"},
	)

	c.ScanDuration = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a completed scan",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~160s
		},
	)

	c.ScanBatches = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "batches_total",
			Help:      "Total number of record batches emitted",
		},
	)

	c.ScanBatchSize = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "batch_size",
			Help:      "Number of records in each emitted batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 13), // 1 to 4096
		},
	)
}

func (c *Collector) initDiscoveryMetrics() {
	c.FilesDiscovered = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "files_total",
			Help:      "Total number of candidate files discovered",
		},
	)

	c.DiscoveryWarnings = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "warnings_total",
			Help:      "Total number of non-fatal warnings during discovery",
		},
	)

	c.DiscoveryDuration = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "duration_seconds",
			Help:      "Time taken to walk the scan root",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
	)
}

func (c *Collector) initParserMetrics() {
	c.FilesParsed = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "files_total",
			Help:      "Total number of files parsed",
		},
		[]string{"profile_id"},
	)

	c.RecordsParsed = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "records_total",
			Help:      "Total number of records parsed",
		},
		[]string{"profile_id"},
	)

	c.ParseErrors = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "errors_total",
			Help:      "Total number of per-line parse errors",
		},
		[]string{"profile_id"},
	)

	c.ParseDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "duration_seconds",
			Help:      "Time taken to parse one file",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 100µs to ~1.6s
		},
		[]string{"profile_id"},
	)
}

func (c *Collector) initTailMetrics() {
	c.TailTicks = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "ticks_total",
			Help:      "Total number of tail poll ticks",
		},
	)

	c.TailRecords = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "records_total",
			Help:      "Total number of records emitted by the tail watcher",
		},
	)

	c.TailFileErrors = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "file_errors_total",
			Help:      "Total number of per-file I/O errors during tailing",
		},
	)

	c.TailFiles = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "files",
			Help:      "Number of files currently being tailed",
		},
	)
}

func (c *Collector) initDirWatchMetrics() {
	c.DirWatchTicks = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dirwatch",
			Name:      "ticks_total",
			Help:      "Total number of directory watch poll ticks",
		},
	)

	c.DirWatchNewFiles = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dirwatch",
			Name:      "new_files_total",
			Help:      "Total number of new files reported by the directory watcher",
		},
	)
}

func (c *Collector) initFilterMetrics() {
	c.FilterApplies = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "applies_total",
			Help:      "Total number of filter applications",
		},
	)

	c.FilterDuration = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "duration_seconds",
			Help:      "Time taken to apply the filter to the record sequence",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 15), // 10µs to ~300ms
		},
	)
}

func (c *Collector) initExportMetrics() {
	c.ExportRecords = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "records_total",
			Help:      "Total number of records exported",
		},
		[]string{"format"},
	)

	c.ExportBytes = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "bytes_total",
			Help:      "Total bytes written to export sinks",
		},
		[]string{"format"},
	)

	c.ExportDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "duration_seconds",
			Help:      "Time taken to serialise and write an export",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"format"},
	)
}

func (c *Collector) initStoreMetrics() {
	c.StoreRecords = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "records",
			Help:      "Number of records currently held in memory",
		},
	)

	c.StoreBookmarks = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "bookmarks",
			Help:      "Number of bookmarked records",
		},
	)
}

func (c *Collector) initQueueMetrics() {
	c.QueueBacklog = promauto.With(c.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "backlog",
			Help:      "Current progress-queue backlog per worker",
		},
		[]string{"worker"},
	)

	c.QueuePushed = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pushed_total",
			Help:      "Total progress messages pushed per worker",
		},
		[]string{"worker"},
	)
}

func (c *Collector) initSystemMetrics() {
	c.SystemGoroutines = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "goroutines_total",
			Help:      "Current number of goroutines",
		},
	)

	c.SystemMemAlloc = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_allocated_bytes",
			Help:      "Bytes of allocated heap objects",
		},
	)

	c.SystemMemSys = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_system_bytes",
			Help:      "Total bytes of memory obtained from the OS",
		},
	)

	c.SystemGCPauses = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "gc_pause_seconds",
			Help:      "GC pause duration",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 15), // 10µs to ~300ms
		},
	)
}

// Start begins collecting system metrics periodically
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}

	c.started = true
	c.stopCh = make(chan struct{})

	// Collect system metrics every 15 seconds
	go func(stop <-chan struct{}) {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collectSystemMetrics()
			case <-stop:
				return
			}
		}
	}(c.stopCh)
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	c.started = false
	close(c.stopCh)
}

// collectSystemMetrics gathers runtime metrics
func (c *Collector) collectSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.SystemGoroutines.Set(float64(runtime.NumGoroutine()))
	c.SystemMemAlloc.Set(float64(m.Alloc))
	c.SystemMemSys.Set(float64(m.Sys))

	// Record GC pause time
	if len(m.PauseNs) > 0 {
		lastPause := m.PauseNs[(m.NumGC+255)%256]
		c.SystemGCPauses.Observe(float64(lastPause) / 1e9)
	}
}

// Registry returns the Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Global metrics collector
var (
	globalCollector *Collector
	once            sync.Once
)

// GetGlobalCollector returns the global metrics collector
func GetGlobalCollector() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
		globalCollector.Start()
	})
	return globalCollector
}
