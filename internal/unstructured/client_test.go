package unstructured

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPartition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != partitionPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("strategy"); got != "fast" {
			t.Errorf("expected strategy fast, got %q", got)
		}
		f, hdr, err := r.FormFile("files")
		if err != nil {
			t.Errorf("missing files part: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "doc.pdf" || string(data) != "%PDF-1.4" {
			t.Errorf("unexpected upload %s %q", hdr.Filename, data)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"type":"Title","element_id":"1","text":"Hello","metadata":{"page_number":1}}]`)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	os.WriteFile(path, []byte("%PDF-1.4"), 0o644)

	elements, raw, err := NewClient(srv.URL, 5*time.Second).Partition(context.Background(), path, "fast")
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(elements) != 1 || elements[0].Type != "Title" || elements[0].Text != "Hello" {
		t.Errorf("unexpected elements %+v", elements)
	}
	if !strings.Contains(string(raw), `"element_id":"1"`) {
		t.Errorf("raw body not returned: %s", raw)
	}
}

func TestPartitionStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"detail":"File type not supported"}`)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	os.WriteFile(path, []byte("%PDF-1.4"), 0o644)

	_, _, err := NewClient(srv.URL, 5*time.Second).Partition(context.Background(), path, "")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusUnprocessableEntity || !strings.Contains(se.Body, "not supported") {
		t.Errorf("unexpected status error %+v", se)
	}
}

func TestPartitionMissingFile(t *testing.T) {
	_, _, err := NewClient("http://127.0.0.1:1", time.Second).Partition(context.Background(), "/nonexistent.pdf", "")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == healthcheckPath {
			io.WriteString(w, `{"healthcheck":"HEALTHCHECK STATUS: EVERYTHING OK!"}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL+"/", time.Second).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := NewClient("http://127.0.0.1:1", time.Second).HealthCheck(context.Background()); err == nil {
		t.Error("expected error for unreachable service")
	}
}

func TestToMarkdown(t *testing.T) {
	got := ToMarkdown([]Element{
		{Type: "Title", Text: "Doc"},
		{Type: "NarrativeText", Text: "Intro"},
		{Type: "ListItem", Text: "a"},
		{Type: "ListItem", Text: "b"},
		{Type: "Title", Text: "Next"},
		{Type: "NarrativeText", Text: "P1"},
		{Type: "UncategorizedText", Text: "  "},
		{Type: "NarrativeText", Text: "P2"},
		{Type: "Table", Text: "x|y"},
	})
	want := "# Doc\n\nIntro\n\n- a\n- b\n\n## Next\n\nP1\n\nP2\n\n\n```\nx|y\n```\n\n"
	if got != want {
		t.Errorf("unexpected markdown:\n%q\nwant:\n%q", got, want)
	}
}

func TestToMarkdownLongFirstTitle(t *testing.T) {
	long := strings.Repeat("a", maxHeadingLen)
	got := ToMarkdown([]Element{{Type: "Title", Text: long}})
	if got != "## "+long+"\n\n" {
		t.Errorf("long first title should be a second-level heading, got %q", got)
	}
	if ToMarkdown(nil) != "" {
		t.Error("expected empty markdown for no elements")
	}
}
