// Command loggen writes synthetic log files shaped like the built-in
// profiles, for exercising scan and tail against a live, growing tree.
// It can spread lines over several files, inject multi-line stack
// traces, and periodically truncate a file to simulate rotation.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/therealutkarshpriyadarshi/loupe/internal/logging"
)

var (
	outDir      = flag.String("out", "loggen-out", "Directory to write log files into")
	fileCount   = flag.Int("files", 3, "Number of files to spread lines over")
	lineRate    = flag.Float64("rate", 100, "Target lines per second across all files")
	duration    = flag.Int("duration", 0, "Seconds to run, 0 means until interrupted")
	format      = flag.String("format", "log4j", "Line shape: log4j, generic or syslog")
	tracePct    = flag.Int("trace-pct", 5, "Percent of lines followed by a stack trace")
	rotateEvery = flag.Int("rotate-every", 0, "Truncate a file after this many lines, 0 disables")
)

// Stats counts emitted lines; read by the reporter goroutine.
type Stats struct {
	lines     uint64
	traces    uint64
	rotations uint64
	startTime time.Time
}

func (s *Stats) Report() {
	elapsed := time.Since(s.startTime).Seconds()
	lines := atomic.LoadUint64(&s.lines)
	fmt.Printf("lines=%d (%.0f/sec) traces=%d rotations=%d elapsed=%.1fs\n",
		lines, float64(lines)/elapsed,
		atomic.LoadUint64(&s.traces),
		atomic.LoadUint64(&s.rotations),
		elapsed)
}

var components = []string{
	"com.acme.db.Pool", "com.acme.http.Server", "com.acme.auth.Token",
	"com.acme.cache.LRU", "com.acme.job.Scheduler",
}

var messages = []struct {
	level string
	text  string
}{
	{"INFO", "request processed in %dms"},
	{"INFO", "connection established to node-%d"},
	{"DEBUG", "cache hit for key user:%d"},
	{"WARN", "slow query took %dms"},
	{"ERROR", "write failed after %d retries"},
	{"INFO", "session %d expired"},
}

var traceLines = []string{
	"    at com.acme.db.Pool.acquire(Pool.java:121)",
	"    at com.acme.http.Handler.serve(Handler.java:87)",
	"    at java.base/java.lang.Thread.run(Thread.java:833)",
}

func main() {
	flag.Parse()

	logger := logging.New(logging.Config{Level: "info", Format: "console"})

	if err := run(logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *logging.Logger) error {
	if *fileCount < 1 {
		return fmt.Errorf("need at least one file")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	files := make([]*os.File, *fileCount)
	counts := make([]int, *fileCount)
	for i := range files {
		path := filepath.Join(*outDir, fmt.Sprintf("app-%d.log", i))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		files[i] = f
		defer f.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*duration)*time.Second)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	stats := &Stats{startTime: time.Now()}
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats.Report()
			}
		}
	}()

	logger.Info().
		Str("dir", *outDir).
		Int("files", *fileCount).
		Float64("rate", *lineRate).
		Str("format", *format).
		Msg("generating")

	limiter := rate.NewLimiter(rate.Limit(*lineRate), int(*lineRate)+1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			stats.Report()
			return nil
		}

		i := rand.Intn(len(files))
		line := renderLine(*format, time.Now())

		if _, err := files[i].WriteString(line + "\n"); err != nil {
			logger.Warn().Err(err).Msg("write failed")
			continue
		}
		counts[i]++
		atomic.AddUint64(&stats.lines, 1)

		if *tracePct > 0 && rand.Intn(100) < *tracePct {
			for _, tl := range traceLines {
				files[i].WriteString(tl + "\n")
			}
			atomic.AddUint64(&stats.traces, 1)
		}

		if *rotateEvery > 0 && counts[i] >= *rotateEvery {
			if err := files[i].Truncate(0); err == nil {
				files[i].Seek(0, 0)
				counts[i] = 0
				atomic.AddUint64(&stats.rotations, 1)
			}
		}
	}
}

func renderLine(format string, now time.Time) string {
	m := messages[rand.Intn(len(messages))]
	text := fmt.Sprintf(m.text, rand.Intn(10000))

	switch format {
	case "generic":
		return fmt.Sprintf("%s %s: %s",
			now.Format("2006-01-02 15:04:05"), lower(m.level), text)
	case "syslog":
		return fmt.Sprintf("%s myhost %s[%d]: %s",
			now.Format("Jan _2 15:04:05"), "acmed", os.Getpid(), text)
	default: // log4j
		return fmt.Sprintf("%s [worker-%d] %-5s %s - %s",
			now.Format("2006-01-02 15:04:05,000"), rand.Intn(8),
			m.level, components[rand.Intn(len(components))], text)
	}
}

func lower(level string) string {
	switch level {
	case "WARN":
		return "warning"
	case "ERROR":
		return "error"
	case "DEBUG":
		return "debug"
	default:
		return "info"
	}
}
