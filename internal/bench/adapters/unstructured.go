package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/oho/pdfbench/internal/bench"
	"github.com/oho/pdfbench/internal/config"
	"github.com/oho/pdfbench/internal/preflight"
	"github.com/oho/pdfbench/internal/unstructured"
)

const unstructuredHint = "start it with: docker run -p 8000:8000 downloads.unstructured.io/unstructured-io/unstructured-api:latest"

var unstructuredRules = []Rule{
	{
		Markers: []string{"_array_api"},
		Kind:    bench.ErrClassified,
		Message: "NumPy version incompatible with unstructured; install numpy<2 in the service environment",
	},
}

// Unstructured posts each PDF to an unstructured-api service and renders
// the returned elements as Markdown.
type Unstructured struct {
	base
	cfg    config.UnstructuredConfig
	client *unstructured.Client
}

func NewUnstructured(cfg config.Config) *Unstructured {
	u := &Unstructured{cfg: cfg.Backends.Unstructured}
	u.base = newBase("unstructured", cfg, &u.cfg.CommonConfig, unstructuredRules...)
	u.classifier.StatusMessage = requestStatusMessage
	u.client = unstructured.NewClient(u.cfg.Endpoint, 0)
	return u
}

func (u *Unstructured) Convert(ctx context.Context, task bench.Task) bench.Outcome {
	dir, err := u.prepareDir(task)
	if err != nil {
		return u.internalOutcome(err)
	}

	callCtx := ctx
	if u.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, u.cfg.Timeout)
		defer cancel()
	}

	elements, raw, err := u.client.Partition(callCtx, task.Path, u.cfg.Strategy)
	if err != nil {
		return u.failure(ctx, callCtx, err)
	}

	stem := strings.TrimSuffix(task.Name, filepath.Ext(task.Name))
	md := unstructured.ToMarkdown(elements)
	if err := os.WriteFile(filepath.Join(dir, stem+".md"), []byte(md), 0o644); err != nil {
		return u.internalOutcome(err)
	}
	if err := os.WriteFile(filepath.Join(dir, stem+".elements.json"), raw, 0o644); err != nil {
		return u.internalOutcome(err)
	}
	return u.collect(dir)
}

func (u *Unstructured) failure(parent, callCtx context.Context, err error) bench.Outcome {
	var se *unstructured.StatusError
	switch {
	case parent.Err() != nil:
		return u.interruptedOutcome()
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return u.timeoutOutcome()
	case errors.Is(err, syscall.ECONNREFUSED):
		return u.fail(bench.ErrMissingDependency,
			fmt.Sprintf("unstructured-api not reachable at %s; %s", u.cfg.Endpoint, unstructuredHint))
	case errors.As(err, &se):
		v := u.classifier.Classify(se.Code, se.Body)
		o := u.fail(v.Kind, v.Message)
		o.StderrTail = tail(se.Body, 500)
		return o
	default:
		return u.internalOutcome(err)
	}
}

func (u *Unstructured) Checks() []preflight.Check {
	check := preflight.Service("unstructured-api", true, func(ctx context.Context) (string, error) {
		if err := u.client.HealthCheck(ctx); err != nil {
			return "", err
		}
		return "healthy at " + u.cfg.Endpoint, nil
	})
	check.Hint = unstructuredHint
	return []preflight.Check{check}
}
