// Command loupe is the log-viewer engine driven from the command line:
// it scans a directory tree (or an explicit file list) with the built-in
// and user profiles, and can then tail the loaded files live, watch the
// root for new files, or export the parsed timeline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/therealutkarshpriyadarshi/loupe/internal/config"
	"github.com/therealutkarshpriyadarshi/loupe/internal/dirwatch"
	"github.com/therealutkarshpriyadarshi/loupe/internal/export"
	"github.com/therealutkarshpriyadarshi/loupe/internal/filter"
	"github.com/therealutkarshpriyadarshi/loupe/internal/logging"
	"github.com/therealutkarshpriyadarshi/loupe/internal/metrics"
	"github.com/therealutkarshpriyadarshi/loupe/internal/profile"
	"github.com/therealutkarshpriyadarshi/loupe/internal/profiling"
	"github.com/therealutkarshpriyadarshi/loupe/internal/scan"
	"github.com/therealutkarshpriyadarshi/loupe/internal/session"
	"github.com/therealutkarshpriyadarshi/loupe/internal/shutdown"
	"github.com/therealutkarshpriyadarshi/loupe/internal/store"
	"github.com/therealutkarshpriyadarshi/loupe/internal/tail"
	"github.com/therealutkarshpriyadarshi/loupe/internal/tracing"
	"github.com/therealutkarshpriyadarshi/loupe/pkg/types"
)

var version = "1.0.0"

// pollEvery is how often the front-end drains the worker queues.
const pollEvery = 50 * time.Millisecond

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "scan":
		err = runScan(os.Args[2:])
	case "tail":
		err = runTail(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "profiles":
		err = runProfiles(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `loupe %s - log viewer engine

Usage:
  loupe scan     -root DIR | -files a.log,b.log   parse once, print the summary
  loupe tail     -root DIR | -files a.log,b.log   parse, then follow appends live
  loupe watch    -root DIR                        report files created under DIR
  loupe export   -root DIR [-format csv|json]     parse, filter, write the timeline
  loupe profiles                                  list loaded format profiles
  loupe version

Each subcommand accepts -config FILE (YAML).
`, version)
}

// env is everything a subcommand needs wired up before it can run.
type env struct {
	cfg      *config.Config
	log      *logging.Logger
	mets     *metrics.Collector
	registry *profile.Registry
	tracer   *tracing.Provider
	profiler *profiling.Profiler
}

// setup loads configuration and brings up the ambient stack. Profile
// load errors are non-fatal and logged at warning level.
func setup(configFile string) (*env, error) {
	var cfg *config.Config
	if configFile == "" {
		cfg = config.DefaultConfig()
	} else {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.SetGlobal(logger)

	mets := metrics.NewCollector()

	registry, errs := profile.LoadAll(cfg.Profiles.Dir, logger)
	for _, e := range errs {
		logger.Warn().Err(e).Msg("profile load issue")
	}
	logger.Info().Str("version", version).Int("profiles", registry.Len()).Msg("Starting loupe")

	tracer, err := tracing.NewProvider(context.Background(), cfg.Tracing.ToTracing())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	e := &env{
		cfg:      cfg,
		log:      logger,
		mets:     mets,
		registry: registry,
		tracer:   tracer,
	}

	if cfg.Profiling.Enabled {
		e.profiler = profiling.New(cfg.Profiling.ToProfiling(), logger, mets)
		if err := e.profiler.Start(); err != nil {
			return nil, fmt.Errorf("failed to start diagnostics server: %w", err)
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.profiler != nil {
		if err := e.profiler.Stop(); err != nil {
			e.log.Warn().Err(err).Msg("diagnostics server stop")
		}
	}
	if err := e.tracer.Shutdown(context.Background()); err != nil {
		e.log.Warn().Err(err).Msg("tracer shutdown")
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// runPipeline drives one scan to completion, appending records into st.
// Ctrl-C cancels the scan cooperatively. It returns the summary and the
// discovered file set.
func runPipeline(e *env, root string, files []string, st *store.Store) (*types.ScanSummary, []types.DiscoveredFile, error) {
	_, span := tracing.TraceScan(context.Background(), e.tracer.Tracer(), root)
	defer span.End()

	orch := scan.New(e.registry, e.cfg.ToScan(), e.log, e.mets)

	var err error
	if len(files) > 0 {
		err = orch.StartFiles(files, st.NextID())
	} else {
		err = orch.Start(root, st.NextID())
	}
	if err != nil {
		return nil, nil, err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			e.log.Info().Msg("cancelling scan")
			orch.Cancel()
		}
	}()

	var summary *types.ScanSummary
	var discovered []types.DiscoveredFile
	var failure error

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	done := false
	for !done {
		select {
		case <-orch.Done():
			done = true
		case <-ticker.C:
		}

		for _, p := range orch.Poll() {
			switch p.Kind {
			case scan.KindDiscoveryStarted:
				e.log.Debug().Msg("discovery started")
			case scan.KindDiscoveryCompleted:
				e.log.Info().Int("loaded", p.Loaded).Int("found", p.TotalFound).Msg("discovery completed")
			case scan.KindFilesDiscovered, scan.KindAdditionalFilesDiscovered:
				discovered = append(discovered, p.Files...)
			case scan.KindParsingStarted:
				e.log.Info().Int("files", p.TotalFiles).Msg("parsing")
			case scan.KindFileParsed:
				e.log.Debug().
					Str("file", p.File.Path).
					Str("profile", p.File.ProfileID).
					Uint64("records", p.File.RecordCount).
					Uint64("errors", p.File.ErrorCount).
					Int("completed", p.Completed).
					Int("total", p.TotalFiles).
					Msg("file parsed")
			case scan.KindEntriesBatch:
				if _, dropped := st.Append(p.Records); dropped > 0 {
					e.log.Warn().Int("dropped", dropped).Msg("record store full")
				}
			case scan.KindWarning:
				e.log.Warn().Msg(p.Message)
			case scan.KindParsingCompleted:
				s := p.Summary
				summary = &s
			case scan.KindFailed:
				failure = fmt.Errorf("scan failed: %s", p.Message)
			case scan.KindCancelled:
				failure = fmt.Errorf("scan cancelled")
			}
		}
	}

	if failure != nil {
		return nil, discovered, failure
	}
	st.SortChronological()
	return summary, discovered, nil
}

func runScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to configuration file")
	root := fs.String("root", "", "Directory to scan")
	files := fs.String("files", "", "Comma-separated explicit file list (skips discovery)")
	fs.Parse(args)

	fileList := splitList(*files)
	if *root == "" && len(fileList) == 0 {
		return fmt.Errorf("scan requires -root or -files")
	}

	e, err := setup(*configFile)
	if err != nil {
		return err
	}
	defer e.close()

	st := store.New(e.cfg.Store.MaxRecords)
	summary, _, err := runPipeline(e, *root, fileList, st)
	if err != nil {
		return err
	}

	if snap, err := e.mets.Snapshot(); err == nil {
		e.log.Debug().
			Float64("records", snap.Total("loupe_parser_records_total")).
			Float64("parse_errors", snap.Total("loupe_parser_errors_total")).
			Msg("scan metrics")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func runTail(args []string) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to configuration file")
	root := fs.String("root", "", "Directory to scan then follow")
	files := fs.String("files", "", "Comma-separated explicit file list")
	fs.Parse(args)

	fileList := splitList(*files)
	if *root == "" && len(fileList) == 0 {
		return fmt.Errorf("tail requires -root or -files")
	}

	e, err := setup(*configFile)
	if err != nil {
		return err
	}
	defer e.close()

	st := store.New(e.cfg.Store.MaxRecords)
	_, discovered, err := runPipeline(e, *root, fileList, st)
	if err != nil {
		return err
	}

	// Scan consumed each file up to its size at open time; tailing from
	// the current size closes that window without replaying records.
	var watched []tail.File
	known := make([]string, 0, len(discovered))
	for _, f := range discovered {
		p, ok := e.registry.Get(f.ProfileID)
		if !ok {
			p = e.registry.PlainText()
		}
		watched = append(watched, tail.File{
			Path:          f.Path,
			Profile:       p,
			InitialOffset: tail.FromCurrentSize,
		})
		known = append(known, f.Path)
	}
	if len(watched) == 0 {
		return fmt.Errorf("nothing to tail")
	}

	tw := tail.New(e.cfg.ToTail(), e.log, e.mets)
	if err := tw.Start(watched, st.NextID()); err != nil {
		return err
	}

	var dw *dirwatch.Watcher
	if *root != "" {
		dw = dirwatch.New(e.cfg.ToWatch(), e.log, e.mets)
		if err := dw.Start(*root, known); err != nil {
			return err
		}
	}

	mgr := shutdown.New(0, e.log)
	mgr.Register("tail", func(context.Context) error { tw.Stop(); <-tw.Done(); return nil })
	if dw != nil {
		mgr.Register("dirwatch", func(context.Context) error { dw.Stop(); <-dw.Done(); return nil })
	}
	go mgr.WaitForSignal()

	enc := json.NewEncoder(os.Stdout)
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-mgr.Done():
			drainTail(tw, st, enc, e)
			if dw != nil {
				drainWatch(dw, e, enc)
			}
			if dir := e.cfg.Session.Dir; dir != "" {
				data := &session.Data{ScanPath: *root, ExtraFiles: fileList}
				if err := session.Save(dir, data); err != nil {
					e.log.Warn().Err(err).Msg("session save")
				}
			}
			return nil
		}
		drainTail(tw, st, enc, e)
		if dw != nil {
			drainWatch(dw, e, enc)
		}
	}
}

func drainTail(tw *tail.Watcher, st *store.Store, enc *json.Encoder, e *env) {
	for _, ev := range tw.Poll() {
		switch ev.Kind {
		case tail.KindStarted:
			e.log.Info().Int("files", ev.FileCount).Msg("tailing")
		case tail.KindNewEntries:
			st.Append(ev.Records)
			st.SortChronological()
			for i := range ev.Records {
				if err := enc.Encode(&ev.Records[i]); err != nil {
					e.log.Warn().Err(err).Msg("encode record")
				}
			}
		case tail.KindFileError:
			e.log.Warn().Str("file", ev.Path).Str("error", ev.Error).Msg("tail read failed")
		case tail.KindStopped:
			e.log.Info().Msg("tail stopped")
		}
	}
}

func drainWatch(dw *dirwatch.Watcher, e *env, enc *json.Encoder) {
	for _, ev := range dw.Poll() {
		switch ev.Kind {
		case dirwatch.KindStarted:
			e.log.Info().Int("known", ev.Known).Msg("watching directory")
		case dirwatch.KindNewFiles:
			for _, f := range ev.Files {
				e.log.Info().Str("file", f.Path).Str("profile", f.ProfileID).Msg("new file")
			}
		case dirwatch.KindMtimeUpdates:
			e.log.Debug().Int("files", len(ev.Mtimes)).Msg("mtime updates")
		case dirwatch.KindStopped:
			e.log.Info().Msg("directory watch stopped")
		}
	}
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to configuration file")
	root := fs.String("root", "", "Directory to watch for new files")
	fs.Parse(args)

	if *root == "" {
		return fmt.Errorf("watch requires -root")
	}

	e, err := setup(*configFile)
	if err != nil {
		return err
	}
	defer e.close()

	dw := dirwatch.New(e.cfg.ToWatch(), e.log, e.mets)
	if err := dw.Start(*root, nil); err != nil {
		return err
	}

	mgr := shutdown.New(0, e.log)
	mgr.Register("dirwatch", func(context.Context) error { dw.Stop(); <-dw.Done(); return nil })
	go mgr.WaitForSignal()

	enc := json.NewEncoder(os.Stdout)
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, ev := range dw.Poll() {
				if ev.Kind == dirwatch.KindNewFiles {
					for _, f := range ev.Files {
						if err := enc.Encode(f); err != nil {
							e.log.Warn().Err(err).Msg("encode file")
						}
					}
				}
			}
		case <-mgr.Done():
			return nil
		}
	}
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to configuration file")
	root := fs.String("root", "", "Directory to scan")
	files := fs.String("files", "", "Comma-separated explicit file list")
	out := fs.String("out", "", "Output file (default stdout)")
	format := fs.String("format", "", "Output format: csv or json (default from config)")
	compression := fs.String("compression", "", "none, gzip or snappy (default from config)")
	severities := fs.String("severities", "", "Only these severities, comma-separated")
	text := fs.String("text", "", "Case-insensitive substring filter")
	pattern := fs.String("regex", "", "Regex filter on the message")
	fs.Parse(args)

	fileList := splitList(*files)
	if *root == "" && len(fileList) == 0 {
		return fmt.Errorf("export requires -root or -files")
	}

	e, err := setup(*configFile)
	if err != nil {
		return err
	}
	defer e.close()

	if *format != "" {
		e.cfg.Export.Format = *format
	}
	if *compression != "" {
		e.cfg.Export.Compression = *compression
	}
	opts, err := e.cfg.Export.ToExport()
	if err != nil {
		return err
	}

	f, err := buildFilter(*severities, *text, *pattern)
	if err != nil {
		return err
	}

	st := store.New(e.cfg.Store.MaxRecords)
	if _, _, err := runPipeline(e, *root, fileList, st); err != nil {
		return err
	}

	st.ApplyFilter(f, false, time.Now().UTC())
	records := st.FilteredRecords()

	sink := os.Stdout
	if *out != "" {
		sink, err = os.Create(*out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer sink.Close()
	}

	_, span := tracing.TraceExport(context.Background(), e.tracer.Tracer(), e.cfg.Export.Format, len(records))
	defer span.End()

	var n int
	switch e.cfg.Export.Format {
	case "json":
		n, err = export.WriteJSON(sink, records, opts)
	default:
		n, err = export.WriteCSV(sink, records, opts)
	}
	if err != nil {
		return err
	}
	e.log.Info().Int("records", n).Str("format", e.cfg.Export.Format).Msg("export complete")
	return nil
}

func buildFilter(severities, text, pattern string) (*filter.State, error) {
	f := &filter.State{TextSearch: text}
	if severities != "" {
		f.Severities = make(map[types.Severity]bool)
		for _, name := range splitList(severities) {
			sev, ok := types.ParseSeverity(name)
			if !ok {
				return nil, fmt.Errorf("unknown severity %q", name)
			}
			f.Severities[sev] = true
		}
	}
	if err := f.SetRegex(pattern); err != nil {
		return nil, err
	}
	return f, nil
}

func runProfiles(args []string) error {
	fs := flag.NewFlagSet("profiles", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to configuration file")
	fs.Parse(args)

	e, err := setup(*configFile)
	if err != nil {
		return err
	}
	defer e.close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMULTILINE\tGLOBS\tSOURCE")
	for _, p := range e.registry.All() {
		source := "built-in"
		if !p.BuiltIn {
			source = "user"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, p.Multiline, strings.Join(p.FilenameGlobs, ","), source)
	}
	return w.Flush()
}
