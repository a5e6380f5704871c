package bench

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// LoadTokenizer fetches the cl100k_base encoding once, downloading it on
// first use. The driver calls it before the first file is timed.
func LoadTokenizer() {
	loadEncoder()
}

func loadEncoder() *tiktoken.Tiktoken {
	encoderOnce.Do(func() {
		var err error
		encoder, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tiktoken cl100k_base unavailable, using word-based estimate", "error", err)
		}
	})
	return encoder
}

// CountTokens counts tokens using tiktoken, fallback to word-based estimate.
func CountTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	if enc := loadEncoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return int(float64(len(strings.Fields(text))) * 1.33)
}

// countArtifactTokens sums the tokens of the given files under dir.
// Unreadable files are skipped.
func countArtifactTokens(dir string, files []string) int {
	total := 0
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			slog.Debug("Skipping artifact for token count", "file", f, "error", err)
			continue
		}
		total += CountTokens(string(data))
	}
	return total
}
