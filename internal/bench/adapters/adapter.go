package adapters

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oho/pdfbench/internal/bench"
	"github.com/oho/pdfbench/internal/config"
	"github.com/oho/pdfbench/internal/preflight"
)

// ErrUnknownBackend is returned by the registry for unregistered names.
var ErrUnknownBackend = errors.New("unknown backend")

// Adapter runs one extraction engine and reports what it needs from the
// environment.
type Adapter interface {
	bench.Converter
	Checks() []preflight.Check
}

// Registry maps backend names to adapters.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownBackend, name, strings.Join(r.Names(), ", "))
	}
	return a, nil
}

// Names lists the registered backends alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CreateDefaultRegistry builds a registry with every backend configured
// from cfg.
func CreateDefaultRegistry(cfg config.Config) *Registry {
	r := NewRegistry()
	r.Register(NewMineru(cfg))
	r.Register(NewOlmOCR(cfg))
	r.Register(NewUnstructured(cfg))
	r.Register(NewBaseline(cfg))
	return r
}

// base carries what every adapter shares: output layout, timeout and
// classification. common points into the owning adapter's config.
type base struct {
	name       string
	outputRoot string
	common     *config.CommonConfig
	classifier Classifier
	grace      time.Duration
}

func newBase(name string, cfg config.Config, common *config.CommonConfig, rules ...Rule) base {
	return base{
		name:       name,
		outputRoot: cfg.BackendOutputDir(name),
		common:     common,
		classifier: NewClassifier(cfg.MaxErrorLength, rules...),
		grace:      cfg.KillGrace,
	}
}

func (b *base) Name() string { return b.name }

// prepareDir returns a fresh <output_dir>/<backend>/<stem> directory.
func (b *base) prepareDir(task bench.Task) (string, error) {
	stem := strings.TrimSuffix(task.Name, filepath.Ext(task.Name))
	dir, err := filepath.Abs(filepath.Join(b.outputRoot, stem))
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear output dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return dir, nil
}

// deviceEnv restricts the child to the configured GPUs.
func (b *base) deviceEnv() []string {
	if b.common.Device == "" {
		return nil
	}
	return []string{"CUDA_VISIBLE_DEVICES=" + b.common.Device}
}

// fail builds a failure outcome whose message fits max_error_length.
func (b *base) fail(kind bench.ErrorKind, msg string) bench.Outcome {
	return bench.Failed(kind, b.classifier.truncate(msg))
}

func (b *base) timeoutOutcome() bench.Outcome {
	return b.fail(bench.ErrTimeout, fmt.Sprintf("processing timed out (exceeded %s)", b.common.Timeout))
}

func (b *base) interruptedOutcome() bench.Outcome {
	return b.fail(bench.ErrInternal, "interrupted")
}

func (b *base) internalOutcome(err error) bench.Outcome {
	return b.fail(bench.ErrInternal, fmt.Sprintf("unexpected error: %v", err))
}

// fromProcess classifies a finished engine process and, on success,
// inspects what it wrote to dir.
func (b *base) fromProcess(dir string, res processResult, missing string) bench.Outcome {
	stderrTail := tail(res.Stderr, 500)
	switch {
	case res.TimedOut:
		o := b.timeoutOutcome()
		o.StderrTail = stderrTail
		return o
	case res.Interrupted:
		return b.interruptedOutcome()
	case res.NotFound():
		return b.fail(bench.ErrMissingDependency, missing)
	case res.Err != nil:
		return b.internalOutcome(res.Err)
	}

	v := b.classifier.Classify(res.ExitCode, combineOutput(res.Stderr, res.Stdout))
	if !v.OK {
		slog.Debug("Engine reported failure", "backend", b.name, "exit_code", res.ExitCode, "kind", v.Kind)
		o := b.fail(v.Kind, v.Message)
		o.StderrTail = stderrTail
		return o
	}
	return b.collect(dir)
}

// collect builds the success outcome from the artifacts found in dir. Token
// counts are left to the driver, outside the timed call.
func (b *base) collect(dir string) bench.Outcome {
	set, err := collectArtifacts(dir, b.common.ArtifactOrder)
	if err != nil {
		return b.internalOutcome(err)
	}

	var warning string
	if set.Kind == bench.ArtifactOther {
		warning = unexpectedOutputWarning(b.common.ArtifactOrder, set.Extensions)
	}
	return bench.Succeeded(dir, set.Kind, set.Files, set.Size, warning)
}
