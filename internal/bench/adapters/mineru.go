package adapters

import (
	"context"

	"github.com/oho/pdfbench/internal/bench"
	"github.com/oho/pdfbench/internal/config"
	"github.com/oho/pdfbench/internal/preflight"
)

const mineruMissing = "mineru command not found; install it with: uv pip install -U 'mineru[core]'"

// Mineru runs the MinerU command line tool once per PDF.
type Mineru struct {
	base
	cfg config.MineruConfig
}

func NewMineru(cfg config.Config) *Mineru {
	m := &Mineru{cfg: cfg.Backends.Mineru}
	m.base = newBase("mineru", cfg, &m.cfg.CommonConfig)
	return m
}

func (m *Mineru) args(pdf, outDir string) []string {
	args := []string{"-p", pdf, "-o", outDir}
	if m.cfg.Method != "" {
		args = append(args, "-m", m.cfg.Method)
	}
	return append(args, m.cfg.ExtraArgs...)
}

func (m *Mineru) Convert(ctx context.Context, task bench.Task) bench.Outcome {
	dir, err := m.prepareDir(task)
	if err != nil {
		return m.internalOutcome(err)
	}
	res := runProcess(ctx, processSpec{
		Name:    m.cfg.Binary,
		Args:    m.args(task.Path, dir),
		Env:     m.deviceEnv(),
		Timeout: m.cfg.Timeout,
		Grace:   m.grace,
	})
	return m.fromProcess(dir, res, mineruMissing)
}

func (m *Mineru) Checks() []preflight.Check {
	version := preflight.BinaryVersion("mineru", m.cfg.Binary, "--version")
	version.Hint = "install it with: uv pip install -U 'mineru[core]'"
	checks := []preflight.Check{version}
	if m.cfg.Device != "" {
		checks = append(checks, preflight.GPUInventory(m.cfg.Device))
	}
	return checks
}
