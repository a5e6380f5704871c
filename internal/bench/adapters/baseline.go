package adapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv/v2"

	"github.com/oho/pdfbench/internal/bench"
	"github.com/oho/pdfbench/internal/config"
	"github.com/oho/pdfbench/internal/preflight"
)

// BaselineHelperCommand is the hidden subcommand that runs one docconv
// conversion in a child process: <exe> convert-baseline <pdf> <dir>.
const BaselineHelperCommand = "convert-baseline"

const (
	baselineMissing       = "pdftotext not found; install poppler-utils"
	baselineHelperMissing = "baseline helper executable not found"
)

var baselineRules = []Rule{
	{
		Markers: []string{"executable file not found", "pdftotext: not found"},
		Kind:    bench.ErrMissingDependency,
		Message: baselineMissing,
	},
}

// Baseline extracts plain text with docconv (poppler underneath) as a
// reference point for the heavier engines. Each conversion runs in a child
// of this executable so a timeout can take down poppler with it.
type Baseline struct {
	base
	cfg    config.BaselineConfig
	helper []string
}

func NewBaseline(cfg config.Config) *Baseline {
	exe, err := os.Executable()
	if err != nil {
		exe = "pdfbench"
	}
	b := &Baseline{
		cfg:    cfg.Backends.Baseline,
		helper: []string{exe, BaselineHelperCommand},
	}
	b.base = newBase("baseline", cfg, &b.cfg.CommonConfig, baselineRules...)
	return b
}

func (b *Baseline) Convert(ctx context.Context, task bench.Task) bench.Outcome {
	dir, err := b.prepareDir(task)
	if err != nil {
		return b.internalOutcome(err)
	}
	args := append(append([]string{}, b.helper[1:]...), task.Path, dir)
	res := runProcess(ctx, processSpec{
		Name:    b.helper[0],
		Args:    args,
		Timeout: b.cfg.Timeout,
		Grace:   b.grace,
	})
	return b.fromProcess(dir, res, baselineHelperMissing)
}

// ConvertBaseline extracts the text of pdf with docconv and writes it to
// <dir>/<stem>.md, prefixed with the document title when there is one.
// Nothing is written for a PDF without a text layer.
func ConvertBaseline(pdf, dir string) error {
	text, meta, err := convertPDF(pdf)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if title := strings.TrimSpace(meta["Title"]); title != "" {
		text = "# " + title + "\n\n" + text
	}
	name := filepath.Base(pdf)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if err := os.WriteFile(filepath.Join(dir, stem+".md"), []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}

func convertPDF(path string) (text string, meta map[string]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docconv panic: %v", r)
		}
	}()
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	return docconv.ConvertPDF(f)
}

func (b *Baseline) Checks() []preflight.Check {
	check := preflight.BinaryVersion("pdftotext", "pdftotext", "-v")
	check.Hint = "install poppler-utils (apt install poppler-utils / brew install poppler)"
	return []preflight.Check{check}
}
