package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/oho/pdfbench/internal/api"
	"github.com/oho/pdfbench/internal/bench"
	"github.com/oho/pdfbench/internal/bench/adapters"
	"github.com/oho/pdfbench/internal/config"
	"github.com/oho/pdfbench/internal/preflight"
	"github.com/oho/pdfbench/internal/server"
	"github.com/oho/pdfbench/internal/storage"
)

const usage = `Usage:
  pdfbench [flags] <backend>           convert every PDF with one backend
  pdfbench [flags] run <backend>       same as above
  pdfbench [flags] check <backend>     run the backend's preflight checks only
  pdfbench [flags] serve               serve stored runs over HTTP

Flags:
`

func main() {
	def := config.DefaultConfig()
	fs := pflag.NewFlagSet("pdfbench", pflag.ExitOnError)
	configFile := fs.String("config", "", "YAML config file")
	fs.String("input", def.InputDir, "directory of PDFs to convert")
	fs.String("output", def.OutputDir, "root directory for artifacts and results")
	fs.String("db", def.DBPath, "run ledger database (empty disables it)")
	fs.String("host", def.Host, "listen host for serve")
	fs.Int("port", def.Port, "listen port for serve")
	debug := fs.Bool("debug", false, "enable debug logging")
	skipPreflight := fs.Bool("skip-preflight", false, "run without checking the environment first")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])
	args := fs.Args()

	// child side of the baseline adapter, see adapters.Baseline
	if len(args) == 3 && args[0] == adapters.BaselineHelperCommand {
		if err := adapters.ConvertBaseline(args[1], args[2]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Configure structured logging
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	cfg, err := config.LoadConfig(*configFile, fs)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Debug("Configuration loaded", "input_dir", cfg.InputDir, "output_dir", cfg.OutputDir, "db_path", cfg.DBPath)

	registry := adapters.CreateDefaultRegistry(cfg)

	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var code int
	switch args[0] {
	case "serve":
		code = serve(ctx, cfg, registry)
	case "check":
		code = check(ctx, registry, args[1:])
	case "run":
		code = run(ctx, cfg, registry, args[1:], *skipPreflight)
	default:
		code = run(ctx, cfg, registry, args, *skipPreflight)
	}
	stop()
	os.Exit(code)
}

func backendArg(registry *adapters.Registry, args []string) (adapters.Adapter, bool) {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "expected one backend (%s)\n", strings.Join(registry.Names(), ", "))
		return nil, false
	}
	adapter, err := registry.Get(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, false
	}
	return adapter, true
}

func check(ctx context.Context, registry *adapters.Registry, args []string) int {
	adapter, ok := backendArg(registry, args)
	if !ok {
		return 2
	}
	fmt.Printf("Preflight checks for %s:\n", adapter.Name())
	if !preflight.Run(ctx, adapter.Checks(), os.Stdout) {
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, registry *adapters.Registry, args []string, skipPreflight bool) int {
	adapter, ok := backendArg(registry, args)
	if !ok {
		return 2
	}
	return runBatch(ctx, cfg, adapter, skipPreflight, os.Stdout)
}

// runBatch checks the environment, converts every input PDF and hands the
// report to the results file and the run ledger. A failed results write is
// still summarised and stored before it fails the command.
func runBatch(ctx context.Context, cfg config.Config, adapter adapters.Adapter, skipPreflight bool, out io.Writer) int {
	name := adapter.Name()

	if skipPreflight {
		slog.Warn("Preflight checks skipped", "backend", name)
	} else {
		fmt.Fprintf(out, "Preflight checks for %s:\n", name)
		if !preflight.Run(ctx, adapter.Checks(), out) {
			slog.Error("Preflight failed, nothing was converted", "backend", name)
			return 1
		}
		fmt.Fprintln(out)
	}

	if err := cfg.EnsureDirs(); err != nil {
		slog.Error("Failed to create output directories", "error", err)
		return 1
	}

	report, err := bench.NewDriver(adapter, out).Run(ctx, cfg.InputDir)
	if err != nil && !errors.Is(err, bench.ErrNoInput) {
		slog.Error("Batch failed", "backend", name, "error", err)
		return 1
	}

	code := 0
	resultsPath := cfg.ResultsPathFor(name)
	if err := bench.WriteReport(resultsPath, report); err != nil {
		slog.Error("Failed to write results", "path", resultsPath, "error", err)
		code = 1
	}
	bench.PrintSummary(out, report)
	if code == 0 {
		fmt.Fprintf(out, "Results written to %s\n", resultsPath)
	}

	if cfg.DBPath != "" {
		if err := record(cfg.DBPath, report, resultsPath); err != nil {
			slog.Warn("Run not stored in ledger", "db_path", cfg.DBPath, "error", err)
		}
	}

	if ctx.Err() != nil {
		slog.Warn("Batch interrupted", "backend", name)
	}
	return code
}

func record(dbPath string, report bench.Report, resultsPath string) error {
	db, err := storage.NewDatabase(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Initialize(); err != nil {
		return err
	}
	if err := db.SaveReport(report, resultsPath); err != nil {
		return err
	}
	slog.Info("Run stored", "run_id", report.RunID, "db_path", dbPath)
	return nil
}

func serve(ctx context.Context, cfg config.Config, registry *adapters.Registry) int {
	if cfg.DBPath == "" {
		slog.Error("serve needs a run ledger, set db_path")
		return 1
	}
	if err := cfg.EnsureDirs(); err != nil {
		slog.Error("Failed to create output directories", "error", err)
		return 1
	}

	// Initialize database
	db, err := storage.NewDatabase(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		return 1
	}
	defer db.Close()
	if err := db.Initialize(); err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return 1
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Build HTTP router
	r := server.NewRouter()
	r.Get("/health", server.HealthHandler(cfg, db, registry.Names()))
	r.Mount("/runs", api.RunsRouter(db))
	r.Mount("/compare", api.CompareRouter(db))
	r.Mount("/summary", api.SummaryRouter(db))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 60))
	fmt.Printf("  PDF Extraction Benchmark\n")
	fmt.Printf("  http://%s\n", addr)
	fmt.Printf("  Ledger: %s\n", cfg.DBPath)
	fmt.Printf("  Backends: %s\n", strings.Join(registry.Names(), ", "))
	fmt.Printf("%s\n\n", strings.Repeat("=", 60))

	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()
	slog.Info("Server ready", "addr", addr)

	select {
	case err := <-errc:
		slog.Error("Server failed", "error", err)
		return 1
	case <-ctx.Done():
	}
	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	slog.Info("Server stopped")
	return 0
}
