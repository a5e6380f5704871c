package bench

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMain(m *testing.M) {
	// keep token counts on the offline word estimate
	encoderOnce.Do(func() {})
	os.Exit(m.Run())
}

func TestCountTokensWordEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   \n\t", 0},
		{"one two three four", 5},
		{"# Title\n\nbody", 3},
	}
	for _, tt := range tests {
		if got := CountTokens(tt.text); got != tt.want {
			t.Errorf("CountTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestDriverCountsMarkdownTokens(t *testing.T) {
	in := t.TempDir()
	writeFiles(t, in, "a.pdf", "b.pdf", "c.pdf")

	out := t.TempDir()
	os.WriteFile(filepath.Join(out, "a.md"), []byte("one two three four"), 0o644)
	os.WriteFile(filepath.Join(out, "b.json"), []byte(`{"text": "one two three four"}`), 0o644)

	conv := &fakeConverter{outcomes: map[string]Outcome{
		"a.pdf": Succeeded(out, ArtifactMarkdown, []string{"a.md", "missing.md"}, 18, ""),
		"b.pdf": Succeeded(out, ArtifactJSON, []string{"b.json"}, 30, ""),
		"c.pdf": Failed(ErrClassified, "Error: boom"),
	}}
	report, err := NewDriver(conv, &bytes.Buffer{}).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := report.Records[0].OutputTokens; got != 5 {
		t.Errorf("markdown tokens = %d, want 5", got)
	}
	if got := report.Records[1].OutputTokens; got != 0 {
		t.Errorf("JSON artifacts should not be counted, got %d", got)
	}
	if got := report.Records[2].OutputTokens; got != 0 {
		t.Errorf("failures should not be counted, got %d", got)
	}
}
