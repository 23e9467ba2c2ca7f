// Package profiling runs the optional diagnostics HTTP server: pprof
// endpoints, Prometheus metrics, runtime stats and on-demand GC. It can
// also write CPU and heap profiles to files for offline analysis.
package profiling

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	runtimepprof "runtime/pprof"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/therealutkarshpriyadarshi/loupe/internal/logging"
	"github.com/therealutkarshpriyadarshi/loupe/internal/metrics"
)

const goroutineCheckInterval = 30 * time.Second

// Config holds diagnostics configuration.
type Config struct {
	Enabled            bool
	Address            string
	CPUProfile         string
	MemProfile         string
	BlockProfile       bool
	MutexProfile       bool
	GoroutineThreshold int
}

// Profiler manages the diagnostics server and profile files.
type Profiler struct {
	cfg  Config
	log  *logging.Logger
	mets *metrics.Collector

	server  *http.Server
	cpuFile *os.File
	started time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a profiler. The metrics collector is optional; without one
// the /metrics endpoint is not registered.
func New(cfg Config, log *logging.Logger, mets *metrics.Collector) *Profiler {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.Address == "" {
		cfg.Address = "localhost:6060"
	}
	if cfg.GoroutineThreshold == 0 {
		cfg.GoroutineThreshold = 10000
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Profiler{
		cfg:    cfg,
		log:    log.WithComponent("profiling"),
		mets:   mets,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins serving diagnostics. A disabled profiler starts nothing.
func (p *Profiler) Start() error {
	if !p.cfg.Enabled {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.started = time.Now()

	if p.cfg.BlockProfile {
		runtime.SetBlockProfileRate(1)
	}
	if p.cfg.MutexProfile {
		runtime.SetMutexProfileFraction(1)
	}

	if p.cfg.CPUProfile != "" {
		if err := p.startCPUProfile(); err != nil {
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
	}

	if p.cfg.Address != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		mux.HandleFunc("/debug/stats", p.statsHandler)
		mux.HandleFunc("/debug/gc", p.gcHandler)

		if p.mets != nil {
			mux.Handle("/metrics", promhttp.HandlerFor(p.mets.Registry(), promhttp.HandlerOpts{}))
		}

		p.server = &http.Server{
			Addr:    p.cfg.Address,
			Handler: mux,
		}

		go func() {
			p.log.Info().Str("address", p.cfg.Address).Msg("diagnostics server listening")
			if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				p.log.Error().Err(err).Msg("diagnostics server error")
			}
		}()
	}

	go p.monitorGoroutines()

	return nil
}

// Stop shuts the server down and flushes profile files.
func (p *Profiler) Stop() error {
	if !p.cfg.Enabled {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancel()

	if p.cpuFile != nil {
		runtimepprof.StopCPUProfile()
		p.cpuFile.Close()
		p.cpuFile = nil
		p.log.Info().Str("path", p.cfg.CPUProfile).Msg("cpu profile written")
	}

	if p.cfg.MemProfile != "" {
		if err := p.writeMemProfile(); err != nil {
			p.log.Error().Err(err).Msg("failed to write heap profile")
		}
	}

	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.server.Shutdown(ctx); err != nil {
			p.log.Error().Err(err).Msg("failed to shut down diagnostics server")
		}
		p.server = nil
	}

	return nil
}

func (p *Profiler) startCPUProfile() error {
	f, err := os.Create(p.cfg.CPUProfile)
	if err != nil {
		return err
	}
	if err := runtimepprof.StartCPUProfile(f); err != nil {
		f.Close()
		return err
	}
	p.cpuFile = f
	return nil
}

func (p *Profiler) writeMemProfile() error {
	f, err := os.Create(p.cfg.MemProfile)
	if err != nil {
		return err
	}
	defer f.Close()

	runtime.GC()

	if err := runtimepprof.WriteHeapProfile(f); err != nil {
		return err
	}
	p.log.Info().Str("path", p.cfg.MemProfile).Msg("heap profile written")
	return nil
}

func (p *Profiler) monitorGoroutines() {
	ticker := time.NewTicker(goroutineCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			count := runtime.NumGoroutine()
			if count > p.cfg.GoroutineThreshold {
				p.log.Warn().
					Int("goroutines", count).
					Int("threshold", p.cfg.GoroutineThreshold).
					Msg("high goroutine count")
			}
		}
	}
}

func (p *Profiler) statsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	fmt.Fprintf(w, "uptime: %s\n", time.Since(p.started).Round(time.Second))
	fmt.Fprintf(w, "goroutines: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(w, "cpus: %d\n", runtime.NumCPU())
	fmt.Fprintf(w, "heap_alloc_mb: %d\n", m.HeapAlloc/1024/1024)
	fmt.Fprintf(w, "heap_sys_mb: %d\n", m.HeapSys/1024/1024)
	fmt.Fprintf(w, "heap_objects: %d\n", m.HeapObjects)
	fmt.Fprintf(w, "total_alloc_mb: %d\n", m.TotalAlloc/1024/1024)
	fmt.Fprintf(w, "num_gc: %d\n", m.NumGC)
	fmt.Fprintf(w, "gc_pause_total_ms: %d\n", m.PauseTotalNs/1e6)
	if m.NumGC > 0 {
		fmt.Fprintf(w, "last_gc: %s\n", time.Unix(0, int64(m.LastGC)).Format(time.RFC3339))
	}
}

func (p *Profiler) gcHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	before := m.Alloc

	runtime.GC()

	runtime.ReadMemStats(&m)
	fmt.Fprintf(w, "heap_before_mb: %d\n", before/1024/1024)
	fmt.Fprintf(w, "heap_after_mb: %d\n", m.Alloc/1024/1024)
}
