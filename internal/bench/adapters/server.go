package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/oho/pdfbench/internal/config"
	"github.com/oho/pdfbench/internal/inference"
)

const (
	serverPollInterval = time.Second
	serverOutputTail   = 8192
)

// managedServer is an inference server started for the duration of one
// conversion. A server found already listening is reused and left running.
type managedServer struct {
	cfg    config.InferenceServerConfig
	env    []string
	grace  time.Duration
	client *inference.Client

	cmd    *exec.Cmd
	output *tailBuffer
	done   chan struct{}
}

func newManagedServer(cfg config.InferenceServerConfig, env []string, grace time.Duration) *managedServer {
	if grace <= 0 {
		grace = defaultGrace
	}
	return &managedServer{
		cfg:    cfg,
		env:    env,
		grace:  grace,
		client: inference.NewClient(inference.BaseURL(cfg.Host, cfg.Port), cfg.ProbeTimeout),
	}
}

// Start launches the server unless one already listens on the port, then
// waits until it serves a model.
func (s *managedServer) Start(ctx context.Context) error {
	if inference.PortOpen(s.cfg.Host, s.cfg.Port, time.Second) {
		slog.Info("Reusing inference server", "host", s.cfg.Host, "port", s.cfg.Port)
		return nil
	}
	if len(s.cfg.Command) == 0 {
		return fmt.Errorf("inference server command not configured")
	}

	cmd := exec.Command(s.cfg.Command[0], s.cfg.Command[1:]...)
	if len(s.env) > 0 {
		cmd.Env = append(os.Environ(), s.env...)
	}
	setProcessGroup(cmd)
	s.output = newTailBuffer(serverOutputTail)
	cmd.Stdout = s.output
	cmd.Stderr = s.output
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start inference server: %w", err)
	}
	s.cmd = cmd
	s.done = make(chan struct{})
	go func() {
		cmd.Wait()
		close(s.done)
	}()
	slog.Info("Inference server starting", "pid", cmd.Process.Pid, "port", s.cfg.Port)

	if err := s.waitReady(ctx); err != nil {
		s.Stop()
		return err
	}
	slog.Info("Inference server ready", "port", s.cfg.Port)
	return nil
}

func (s *managedServer) waitReady(ctx context.Context) error {
	deadline := time.NewTimer(s.cfg.StartupWait)
	defer deadline.Stop()
	ticker := time.NewTicker(serverPollInterval)
	defer ticker.Stop()

	for {
		if s.client.HealthCheck(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return fmt.Errorf("inference server exited during startup: %s", tail(s.output.String(), 500))
		case <-deadline.C:
			return fmt.Errorf("inference server not ready after %s", s.cfg.StartupWait)
		case <-ticker.C:
		}
	}
}

// Stop terminates a server this instance started: SIGTERM to its group,
// then SIGKILL after the grace period.
func (s *managedServer) Stop() {
	if s.cmd == nil {
		return
	}
	defer func() { s.cmd = nil }()

	signalGroup(s.cmd, sigTerm)
	select {
	case <-s.done:
	case <-time.After(s.grace):
		slog.Warn("Inference server ignored SIGTERM, killing", "pid", s.cmd.Process.Pid)
		signalGroup(s.cmd, sigKill)
		<-s.done
	}
	// children that outlived the leader
	signalGroup(s.cmd, sigKill)
	slog.Info("Inference server stopped", "port", s.cfg.Port)
}
