package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds each probe that does not set its own deadline.
const DefaultProbeTimeout = 30 * time.Second

// Check is one environment probe run before a batch. Probe returns a short
// diagnostic on success.
type Check struct {
	Name     string
	Required bool
	Hint     string // printed after a failure
	Probe    func(ctx context.Context) (string, error)
}

// Run executes every check in order and prints one line per check. It
// returns false when any required check failed.
func Run(ctx context.Context, checks []Check, w io.Writer) bool {
	ok := true
	for _, c := range checks {
		pctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
		diag, err := c.Probe(pctx)
		cancel()

		switch {
		case err == nil:
			fmt.Fprintf(w, "  OK    %s: %s\n", c.Name, diag)
		case c.Required:
			ok = false
			fmt.Fprintf(w, "  FAIL  %s: %v\n", c.Name, err)
			slog.Error("Preflight check failed", "check", c.Name, "error", err)
		default:
			fmt.Fprintf(w, "  WARN  %s: %v\n", c.Name, err)
			slog.Warn("Optional preflight check failed", "check", c.Name, "error", err)
		}
		if err != nil && c.Hint != "" {
			fmt.Fprintf(w, "        %s\n", c.Hint)
		}
	}
	return ok
}

// BinaryVersion checks that an executable runs with the given version flag.
func BinaryVersion(name, binary string, args ...string) Check {
	return Check{
		Name:     name,
		Required: true,
		Probe: func(ctx context.Context) (string, error) {
			out, err := command(ctx, binary, args...)
			if err != nil {
				return "", err
			}
			if out == "" {
				return "available", nil
			}
			return firstLine(out), nil
		},
	}
}

// PythonModule checks that module imports under the given interpreter and
// reports its version.
func PythonModule(python, module string, required bool) Check {
	script := fmt.Sprintf("import %s as m; print(getattr(m, '__version__', 'installed'))", module)
	return Check{
		Name:     "python module " + module,
		Required: required,
		Probe: func(ctx context.Context) (string, error) {
			out, err := command(ctx, python, "-c", script)
			if err != nil {
				return "", err
			}
			return firstLine(out), nil
		},
	}
}

// Service wraps a reachability probe of a network dependency.
func Service(name string, required bool, probe func(ctx context.Context) (string, error)) Check {
	return Check{Name: name, Required: required, Probe: probe}
}

// command runs binary and returns its trimmed combined output. A non-zero
// exit is an error carrying the output's first line.
func command(ctx context.Context, binary string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	raw, err := cmd.CombinedOutput()
	out := strings.TrimSpace(string(raw))
	if err == nil {
		return out, nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return "", fmt.Errorf("%s: executable not found", binary)
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("%s: %w", binary, ctx.Err())
	}
	if out != "" {
		return "", fmt.Errorf("%s: %s", binary, lastLine(out))
	}
	return "", fmt.Errorf("%s: %w", binary, err)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
