package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxErrorLength != 300 {
		t.Errorf("expected max error length 300, got %d", cfg.MaxErrorLength)
	}
	if cfg.Backends.Mineru.Timeout != 600*time.Second {
		t.Errorf("expected mineru timeout 600s, got %s", cfg.Backends.Mineru.Timeout)
	}
	if cfg.Backends.OlmOCR.Timeout != 1800*time.Second {
		t.Errorf("expected olmocr timeout 1800s, got %s", cfg.Backends.OlmOCR.Timeout)
	}
	if cfg.Backends.OlmOCR.Device != "1" {
		t.Errorf("expected olmocr device 1, got %q", cfg.Backends.OlmOCR.Device)
	}
	if cfg.Backends.Unstructured.Endpoint != "http://127.0.0.1:8000" {
		t.Errorf("unexpected unstructured endpoint %s", cfg.Backends.Unstructured.Endpoint)
	}
	if cfg.KillGrace != 5*time.Second {
		t.Errorf("expected 5s kill grace, got %s", cfg.KillGrace)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backends.Mineru.Binary != "mineru" {
		t.Errorf("expected mineru binary, got %q", cfg.Backends.Mineru.Binary)
	}
	if len(cfg.Backends.Mineru.ArtifactOrder) != 2 {
		t.Errorf("expected 2 artifact extensions, got %v", cfg.Backends.Mineru.ArtifactOrder)
	}
}

func TestLoadConfigEnvVars(t *testing.T) {
	t.Setenv("PDFBENCH_INPUT_DIR", "/tmp/pdfs")
	t.Setenv("PDFBENCH_OUTPUT_DIR", "/tmp/bench-out")
	t.Setenv("PDFBENCH_BACKENDS_MINERU_TIMEOUT", "45s")
	t.Setenv("PDFBENCH_BACKENDS_OLMOCR_DEVICE", "0")

	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.InputDir != "/tmp/pdfs" {
		t.Errorf("expected input dir override, got %s", cfg.InputDir)
	}
	if cfg.Backends.Mineru.Timeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %s", cfg.Backends.Mineru.Timeout)
	}
	if cfg.Backends.OlmOCR.Device != "0" {
		t.Errorf("expected device 0, got %q", cfg.Backends.OlmOCR.Device)
	}
	if cfg.DBPath != filepath.Join("/tmp/bench-out", "pdfbench.db") {
		t.Errorf("db path should follow output dir, got %s", cfg.DBPath)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	yaml := `
input_dir: /data/pdfs
max_error_length: 120
backends:
  olmocr:
    max_page_error_rate: 0.1
    extra_args: ["--workers", "2"]
    server:
      enabled: true
      port: 30100
  unstructured:
    strategy: hi_res
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.InputDir != "/data/pdfs" {
		t.Errorf("expected /data/pdfs, got %s", cfg.InputDir)
	}
	if cfg.MaxErrorLength != 120 {
		t.Errorf("expected 120, got %d", cfg.MaxErrorLength)
	}
	o := cfg.Backends.OlmOCR
	if o.MaxPageErrorRate != 0.1 {
		t.Errorf("expected 0.1, got %v", o.MaxPageErrorRate)
	}
	if len(o.ExtraArgs) != 2 || o.ExtraArgs[0] != "--workers" {
		t.Errorf("unexpected extra args %v", o.ExtraArgs)
	}
	if !o.Server.Enabled || o.Server.Port != 30100 {
		t.Errorf("unexpected server config %+v", o.Server)
	}
	// untouched keys keep their defaults
	if o.Timeout != 1800*time.Second {
		t.Errorf("expected default olmocr timeout, got %s", o.Timeout)
	}
	if cfg.Backends.Unstructured.Strategy != "hi_res" {
		t.Errorf("expected hi_res, got %s", cfg.Backends.Unstructured.Strategy)
	}
}

func TestLoadConfigBareDurationsAreSeconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	yaml := `
kill_grace: 2s
backends:
  mineru:
    timeout: 600
  olmocr:
    timeout: 1.5
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PDFBENCH_BACKENDS_UNSTRUCTURED_TIMEOUT", "90")

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"yaml integer", cfg.Backends.Mineru.Timeout, 600 * time.Second},
		{"yaml float", cfg.Backends.OlmOCR.Timeout, 1500 * time.Millisecond},
		{"env integer", cfg.Backends.Unstructured.Timeout, 90 * time.Second},
		{"duration string", cfg.KillGrace, 2 * time.Second},
		{"default", cfg.Backends.Baseline.Timeout, 600 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/bench.yaml", nil); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	t.Setenv("PDFBENCH_INPUT_DIR", "/from/env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("input", "", "")
	fs.Int("port", 0, "")
	if err := fs.Parse([]string{"--input", "/from/flag", "--port", "9001"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig("", fs)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.InputDir != "/from/flag" {
		t.Errorf("flag should win over env, got %s", cfg.InputDir)
	}
	if cfg.Port != 9001 {
		t.Errorf("expected port 9001, got %d", cfg.Port)
	}
}

func TestResultsPathFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = "/out"
	if got := cfg.ResultsPathFor("mineru"); got != "/out/mineru_results.json" {
		t.Errorf("unexpected results path %s", got)
	}
	cfg.ResultsPath = "/elsewhere/r.json"
	if got := cfg.ResultsPathFor("mineru"); got != "/elsewhere/r.json" {
		t.Errorf("explicit results path should win, got %s", got)
	}
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.ResultsPath = filepath.Join(dir, "reports", "r.json")

	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, d := range []string{cfg.OutputDir, filepath.Join(dir, "reports")} {
		if _, err := os.Stat(d); os.IsNotExist(err) {
			t.Errorf("directory not created: %s", d)
		}
	}
}
