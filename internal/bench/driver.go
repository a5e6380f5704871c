package bench

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Converter turns one PDF into artifacts. Implementations bound the call
// with their own timeout and never return without an outcome.
type Converter interface {
	Name() string
	Convert(ctx context.Context, task Task) Outcome
}

// Driver runs a converter over every PDF of a directory, one at a time.
type Driver struct {
	conv     Converter
	progress io.Writer
}

func NewDriver(conv Converter, progress io.Writer) *Driver {
	if progress == nil {
		progress = os.Stdout
	}
	return &Driver{conv: conv, progress: progress}
}

// Run converts every discovered PDF and returns the finished report. When
// discovery fails the report is empty (but still writable) and the error
// wraps ErrNoInput.
func (d *Driver) Run(ctx context.Context, inputDir string) (Report, error) {
	report := Report{
		RunID:     uuid.NewString(),
		Backend:   d.conv.Name(),
		InputDir:  inputDir,
		StartedAt: time.Now().UTC(),
		Records:   []Record{},
	}

	tasks, err := Discover(inputDir)
	if err != nil {
		slog.Error("No input", "dir", inputDir, "error", err)
		fmt.Fprintf(d.progress, "No PDFs found in %s\n", inputDir)
		d.finish(&report)
		return report, err
	}

	fmt.Fprintf(d.progress, "Found %d PDFs in %s\n", len(tasks), inputDir)
	LoadTokenizer()
	slog.Info("Batch started", "backend", report.Backend, "files", len(tasks), "run_id", report.RunID)

	for i, task := range tasks {
		fmt.Fprintf(d.progress, "[%d/%d] Processing: %s (%.1fMB)\n", i+1, len(tasks), task.Name, task.SizeMB())

		start := time.Now()
		var outcome Outcome
		if ctx.Err() != nil {
			outcome = Failed(ErrInternal, "interrupted")
		} else {
			outcome = d.convert(ctx, task)
		}
		elapsed := time.Since(start)
		countTokens(&outcome)

		report.Records = append(report.Records, NewRecord(task, elapsed, outcome))
		d.printOutcome(outcome)
		slog.Debug("File processed", "file", task.Name, "success", outcome.Success, "elapsed", elapsed)
	}

	d.finish(&report)
	slog.Info("Batch complete", "backend", report.Backend,
		"succeeded", report.Summary.Succeeded, "total", report.Summary.Total)
	return report, nil
}

// convert isolates the batch from adapter panics.
func (d *Driver) convert(ctx context.Context, task Task) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Converter panicked", "file", task.Name, "panic", r)
			o = Failed(ErrInternal, fmt.Sprintf("unexpected error: %v", r))
		}
	}()
	return d.conv.Convert(ctx, task)
}

// countTokens fills OutputTokens for markdown results.
func countTokens(o *Outcome) {
	if o.Success && o.ArtifactKind == ArtifactMarkdown {
		o.OutputTokens = countArtifactTokens(o.OutputDir, o.Artifacts)
	}
}

func (d *Driver) finish(report *Report) {
	report.FinishedAt = time.Now().UTC()
	report.Summary = Summarize(report.Records)
}

func (d *Driver) printOutcome(o Outcome) {
	switch {
	case !o.Success:
		fmt.Fprintf(d.progress, "  FAILED: %s\n", shorten(o.Error, 200))
	case o.ArtifactKind == ArtifactMarkdown:
		fmt.Fprintf(d.progress, "  OK: %d markdown files\n", o.ArtifactCount())
	case o.ArtifactKind == ArtifactJSON:
		fmt.Fprintf(d.progress, "  OK: %d JSON files\n", o.ArtifactCount())
	default:
		fmt.Fprintf(d.progress, "  WARN: %s\n", o.Warning)
	}
}

// PrintSummary writes the human-readable aggregate block and every failure.
func PrintSummary(w io.Writer, report Report) {
	s := report.Summary
	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(w, "  %s results\n", report.Backend)
	fmt.Fprintf(w, "%s\n", strings.Repeat("=", 60))
	if s.Total == 0 {
		fmt.Fprintf(w, "No files processed\n")
		return
	}
	fmt.Fprintf(w, "Success rate: %d/%d (%.1f%%)\n", s.Succeeded, s.Total, s.SuccessRate*100)
	fmt.Fprintf(w, "Total size:   %.1fMB\n", s.TotalSizeMB)
	fmt.Fprintf(w, "Total time:   %.2fs\n", s.TotalTime)
	if s.TotalTime > 0 {
		fmt.Fprintf(w, "Throughput:   %.2fMB/s\n", s.Throughput)
	}
	for _, r := range report.Records {
		if !r.Success && r.Error != nil {
			fmt.Fprintf(w, "FAILED %s: %s\n", r.File, *r.Error)
		}
	}
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
