package adapters

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/oho/pdfbench/internal/bench"
	"github.com/oho/pdfbench/internal/config"
)

func TestRegistry(t *testing.T) {
	r := CreateDefaultRegistry(config.DefaultConfig())
	if got := strings.Join(r.Names(), ","); got != "baseline,mineru,olmocr,unstructured" {
		t.Errorf("unexpected backends %s", got)
	}
	a, err := r.Get("MinerU")
	if err != nil || a.Name() != "mineru" {
		t.Errorf("Get(MinerU) = %v, %v", a, err)
	}
	if _, err := r.Get("marker"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
	for _, name := range r.Names() {
		a, _ := r.Get(name)
		if len(a.Checks()) == 0 {
			t.Errorf("%s has no preflight checks", name)
		}
	}
}

func TestOlmOCRArgs(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backends.OlmOCR.ExtraArgs = []string{"--workers", "2"}
	o := NewOlmOCR(cfg)

	args := o.args("/in/a.pdf", "/out/olmocr/a")
	want := []string{
		"-m", "olmocr.pipeline", "/out/olmocr/a", "--pdfs", "/in/a.pdf",
		"--max_page_error_rate", "0.3", "--markdown",
		"--gpu_memory_utilization", "0.7", "--max_model_len", "8192",
		"--tensor_parallel_size", "1", "--data_parallel_size", "1",
		"--workers", "2",
	}
	if !slices.Equal(args, want) {
		t.Errorf("unexpected args\n got %v\nwant %v", args, want)
	}

	cfg.Backends.OlmOCR.Model = "allenai/olmOCR-2-7B-1025-FP8"
	cfg.Backends.OlmOCR.GPUMemoryUtilization = 0
	cfg.Backends.OlmOCR.Server.Enabled = true
	args = NewOlmOCR(cfg).args("/in/a.pdf", "/w")
	if slices.Contains(args, "--gpu_memory_utilization") {
		t.Error("zero-valued knobs must be omitted")
	}
	if i := slices.Index(args, "--model"); i < 0 || args[i+1] != "allenai/olmOCR-2-7B-1025-FP8" {
		t.Errorf("model flag missing: %v", args)
	}
	if i := slices.Index(args, "--server"); i < 0 || args[i+1] != "http://127.0.0.1:30024/v1" {
		t.Errorf("server flag missing: %v", args)
	}
}

func TestMineruArgs(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backends.Mineru.ExtraArgs = []string{"-b", "pipeline"}
	args := NewMineru(cfg).args("/in/a.pdf", "/out")
	want := []string{"-p", "/in/a.pdf", "-o", "/out", "-m", "auto", "-b", "pipeline"}
	if !slices.Equal(args, want) {
		t.Errorf("unexpected args %v", args)
	}
}

func unstructuredWith(t *testing.T, endpoint string) *Unstructured {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.Backends.Unstructured.Endpoint = endpoint
	return NewUnstructured(cfg)
}

func pdfTask(t *testing.T) bench.Task {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	return bench.Task{Path: path, Name: "paper.pdf", Size: 8}
}

func TestUnstructuredSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"type":"Title","element_id":"a","text":"Paper"},{"type":"NarrativeText","element_id":"b","text":"Body"}]`)
	}))
	defer srv.Close()

	o := unstructuredWith(t, srv.URL).Convert(context.Background(), pdfTask(t))
	if !o.Success || o.ArtifactKind != bench.ArtifactMarkdown || o.ArtifactCount() != 1 {
		t.Fatalf("unexpected outcome %+v", o)
	}
	md, _ := os.ReadFile(filepath.Join(o.OutputDir, "paper.md"))
	if string(md) != "# Paper\n\nBody\n" {
		t.Errorf("unexpected markdown %q", md)
	}
	if _, err := os.Stat(filepath.Join(o.OutputDir, "paper.elements.json")); err != nil {
		t.Errorf("raw elements not written: %v", err)
	}
	if o.OutputSize != int64(len(md)) {
		t.Errorf("output size should count markdown only, got %d", o.OutputSize)
	}
}

func TestUnstructuredFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind bench.ErrorKind
		wantMsg  string
	}{
		{"numpy", 500, `{"detail":"numpy.core.multiarray failed to import: _ARRAY_API not found"}`, bench.ErrClassified,
			"NumPy version incompatible with unstructured; install numpy<2 in the service environment"},
		{"empty body", 503, "", bench.ErrUnclassified, "request failed with status 503"},
		{"plain body", 422, "unsupported file", bench.ErrUnclassified, "unsupported file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			o := unstructuredWith(t, srv.URL).Convert(context.Background(), pdfTask(t))
			if o.Success || o.ErrorKind != tt.wantKind || o.Error != tt.wantMsg {
				t.Errorf("unexpected outcome %+v", o)
			}
		})
	}
}

func TestUnstructuredUnreachable(t *testing.T) {
	o := unstructuredWith(t, "http://127.0.0.1:1").Convert(context.Background(), pdfTask(t))
	if o.ErrorKind != bench.ErrMissingDependency || !strings.Contains(o.Error, "not reachable") {
		t.Errorf("unexpected outcome %+v", o)
	}
}

func TestUnstructuredTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	u := unstructuredWith(t, srv.URL)
	u.cfg.Timeout = 100 * time.Millisecond
	o := u.Convert(context.Background(), pdfTask(t))
	if o.ErrorKind != bench.ErrTimeout || o.Error != "processing timed out (exceeded 100ms)" {
		t.Errorf("unexpected outcome %+v", o)
	}
}

func TestConvertBaselineMissingInput(t *testing.T) {
	dir := t.TempDir()
	if err := ConvertBaseline("/nonexistent/x.pdf", dir); err == nil {
		t.Fatal("expected an error for a missing PDF")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("nothing should be written, got %d entries", len(entries))
	}
}
