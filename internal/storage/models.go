package storage

import (
	"time"

	"github.com/oho/pdfbench/internal/bench"
)

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Run is one stored batch run for one backend.
type Run struct {
	ID          string         `json:"id"`
	Backend     string         `json:"backend"`
	InputDir    string         `json:"input_dir"`
	ResultsPath string         `json:"results_path"`
	StartedAt   string         `json:"started_at"`
	FinishedAt  string         `json:"finished_at"`
	Summary     bench.Summary  `json:"summary"`
	Records     []bench.Record `json:"records,omitempty"`
}

// FileComparison is the latest record of one file for every backend that
// processed it.
type FileComparison struct {
	File    string                  `json:"file"`
	Results map[string]bench.Record `json:"results"`
}
