package adapters

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"
)

// processSpec is one engine invocation.
type processSpec struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string // KEY=VALUE pairs added to the inherited environment
	Timeout time.Duration
	Grace   time.Duration
}

type processResult struct {
	ExitCode    int
	Stdout      string
	Stderr      string
	TimedOut    bool
	Interrupted bool
	// Err is set when the process could not be started or waited on.
	Err error
}

// NotFound reports whether the executable does not exist.
func (r processResult) NotFound() bool {
	return errors.Is(r.Err, exec.ErrNotFound) || errors.Is(r.Err, os.ErrNotExist)
}

const defaultGrace = 5 * time.Second

// runProcess runs spec to completion or until its timeout. On expiry the
// whole process group gets SIGTERM, then SIGKILL once the grace period is
// over, so nothing the engine spawned outlives the call.
func runProcess(ctx context.Context, spec processSpec) processResult {
	if spec.Grace <= 0 {
		spec.Grace = defaultGrace
	}
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return signalGroup(cmd, sigTerm) }
	cmd.WaitDelay = spec.Grace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := processResult{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if cmd.Process != nil {
			// stragglers that ignored SIGTERM or outlived the leader
			signalGroup(cmd, sigKill)
		}
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			res.TimedOut = true
		} else {
			res.Interrupted = true
		}
		res.ExitCode = -1
		return res
	}

	if err == nil {
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitStatus(exitErr.ProcessState)
		return res
	}
	res.ExitCode = -1
	res.Err = err
	return res
}

// tailBuffer keeps the last max bytes written to it. It is safe for use by
// a running process's output copier and a concurrent reader.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
