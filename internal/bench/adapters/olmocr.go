package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/oho/pdfbench/internal/bench"
	"github.com/oho/pdfbench/internal/config"
	"github.com/oho/pdfbench/internal/inference"
	"github.com/oho/pdfbench/internal/preflight"
)

const (
	olmocrMissing = "olmocr module not found; install it with: uv pip install 'olmocr[gpu]'"
	olmocrHint    = "install it with: uv pip install 'olmocr[gpu]' --extra-index-url https://download.pytorch.org/whl/cu128"
)

var olmocrRules = []Rule{
	{
		Markers:     []string{"attributeerror", "_inductor", "config"},
		RequireAll:  true,
		Kind:        bench.ErrClassified,
		Message:     "inference engine internal error, possibly a model loading or configuration problem",
		Detail:      true,
		LineMarkers: []string{"_inductor"},
	},
	{
		Markers:     []string{"gpu memory", "kv cache is larger", "out of memory"},
		Kind:        bench.ErrClassified,
		Message:     "GPU out of memory; lower gpu_memory_utilization or max_model_len",
		LineFirst:   true,
		LineMarkers: []string{"gpu memory", "kv cache", "memory"},
	},
	{
		Markers:     []string{"vllm server task ended", "vllm server"},
		Kind:        bench.ErrClassified,
		Message:     "inference server failed to start, possibly a version incompatibility",
		Detail:      true,
		LineMarkers: []string{"vllm server"},
	},
	{
		Markers: []string{"no module named"},
		Kind:    bench.ErrMissingDependency,
		Message: olmocrMissing,
		Detail:  true,
	},
}

// OlmOCR runs the olmOCR pipeline module with a per-file workspace.
type OlmOCR struct {
	base
	cfg config.OlmOCRConfig
}

func NewOlmOCR(cfg config.Config) *OlmOCR {
	o := &OlmOCR{cfg: cfg.Backends.OlmOCR}
	o.base = newBase("olmocr", cfg, &o.cfg.CommonConfig, olmocrRules...)
	return o
}

// args builds the pipeline invocation. Zero-valued tuning knobs are left
// to the pipeline's own defaults.
func (o *OlmOCR) args(pdf, workspace string) []string {
	c := o.cfg
	args := []string{"-m", c.Module, workspace, "--pdfs", pdf}
	if c.MaxPageErrorRate > 0 {
		args = append(args, "--max_page_error_rate", formatFloat(c.MaxPageErrorRate))
	}
	if c.Markdown {
		args = append(args, "--markdown")
	}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	if c.ModelMaxContext > 0 {
		args = append(args, "--model_max_context", strconv.Itoa(c.ModelMaxContext))
	}
	if c.GPUMemoryUtilization > 0 {
		args = append(args, "--gpu_memory_utilization", formatFloat(c.GPUMemoryUtilization))
	}
	if c.MaxModelLen > 0 {
		args = append(args, "--max_model_len", strconv.Itoa(c.MaxModelLen))
	}
	if c.TensorParallelSize > 0 {
		args = append(args, "--tensor_parallel_size", strconv.Itoa(c.TensorParallelSize))
	}
	if c.DataParallelSize > 0 {
		args = append(args, "--data_parallel_size", strconv.Itoa(c.DataParallelSize))
	}
	if c.Server.Enabled {
		args = append(args, "--server", inference.BaseURL(c.Server.Host, c.Server.Port))
	}
	return append(args, c.ExtraArgs...)
}

func (o *OlmOCR) Convert(ctx context.Context, task bench.Task) bench.Outcome {
	dir, err := o.prepareDir(task)
	if err != nil {
		return o.internalOutcome(err)
	}

	if o.cfg.Server.Enabled {
		srv := newManagedServer(o.cfg.Server, o.deviceEnv(), o.grace)
		if err := srv.Start(ctx); err != nil {
			switch {
			case ctx.Err() != nil:
				return o.interruptedOutcome()
			case errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist):
				return o.fail(bench.ErrMissingDependency, fmt.Sprintf("inference server command not found: %s", o.cfg.Server.Command[0]))
			}
			return o.fail(bench.ErrClassified, err.Error())
		}
		defer srv.Stop()
	}

	res := runProcess(ctx, processSpec{
		Name:    o.cfg.Python,
		Args:    o.args(task.Path, dir),
		Env:     o.deviceEnv(),
		Timeout: o.cfg.Timeout,
		Grace:   o.grace,
	})
	return o.fromProcess(dir, res, olmocrMissing)
}

func (o *OlmOCR) Checks() []preflight.Check {
	module := preflight.PythonModule(o.cfg.Python, "olmocr", true)
	module.Hint = olmocrHint
	checks := []preflight.Check{
		module,
		preflight.GPUInventory(o.cfg.Device),
		preflight.PythonModule(o.cfg.Python, "vllm", false),
		preflight.PythonModule(o.cfg.Python, "torch", false),
	}
	if o.cfg.Server.Enabled {
		srv := o.cfg.Server
		client := inference.NewClient(inference.BaseURL(srv.Host, srv.Port), srv.ProbeTimeout)
		checks = append(checks, preflight.Service("inference server", false,
			func(ctx context.Context) (string, error) {
				if !inference.PortOpen(srv.Host, srv.Port, time.Second) {
					return "", fmt.Errorf("nothing listening on %s:%d; it will be started per file", srv.Host, srv.Port)
				}
				return client.Describe(ctx)
			}))
	}
	return checks
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
