package bench

import (
	"errors"
	"time"
)

// ErrNoInput is returned by discovery when the input directory is missing
// or holds no PDFs.
var ErrNoInput = errors.New("no input PDFs")

// ErrorKind classifies why a conversion failed.
type ErrorKind string

const (
	ErrMissingDependency ErrorKind = "missing_dependency"
	ErrTimeout           ErrorKind = "timeout"
	ErrClassified        ErrorKind = "classified"
	ErrUnclassified      ErrorKind = "unclassified"
	ErrInternal          ErrorKind = "internal"
)

// ArtifactKind is the category of files a successful conversion produced.
type ArtifactKind string

const (
	ArtifactNone     ArtifactKind = ""
	ArtifactMarkdown ArtifactKind = "markdown"
	ArtifactJSON     ArtifactKind = "json"
	ArtifactOther    ArtifactKind = "other"
)

// WarningNoOutput is attached when the engine succeeded but wrote nothing.
const WarningNoOutput = "no output produced"

// Task is one PDF scheduled for conversion.
type Task struct {
	Path  string
	Name  string
	Size  int64
	Pages int
}

// SizeMB returns the file size in mebibytes.
func (t Task) SizeMB() float64 {
	return float64(t.Size) / (1024 * 1024)
}

// Outcome is the classified result of one conversion attempt. Exactly one of
// the success or failure field groups is meaningful, selected by Success.
type Outcome struct {
	Success bool

	Artifacts    []string
	ArtifactKind ArtifactKind
	OutputDir    string
	OutputSize   int64
	OutputTokens int
	Warning      string

	ErrorKind  ErrorKind
	Error      string
	StderrTail string
}

// ArtifactCount is the number of artifacts of the winning category.
func (o Outcome) ArtifactCount() int {
	return len(o.Artifacts)
}

// Succeeded builds a success outcome. A zero-artifact success without a
// warning gets WarningNoOutput so the invariant holds for every caller.
func Succeeded(outputDir string, kind ArtifactKind, artifacts []string, size int64, warning string) Outcome {
	if len(artifacts) == 0 && warning == "" {
		warning = WarningNoOutput
	}
	return Outcome{
		Success:      true,
		Artifacts:    artifacts,
		ArtifactKind: kind,
		OutputDir:    outputDir,
		OutputSize:   size,
		Warning:      warning,
	}
}

// Failed builds a failure outcome.
func Failed(kind ErrorKind, msg string) Outcome {
	if msg == "" {
		msg = "unknown error"
	}
	return Outcome{ErrorKind: kind, Error: msg}
}

// Record is one line of the JSON report. Optional fields are omitted when
// they do not apply; consumers must read absence as "not applicable".
type Record struct {
	File         string    `json:"file"`
	SizeMB       float64   `json:"size_mb"`
	Pages        int       `json:"pages,omitempty"`
	ProcessTime  float64   `json:"process_time"`
	Success      bool      `json:"success"`
	OutputSize   int64     `json:"output_size"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	Error        *string   `json:"error,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	StderrTail   string    `json:"stderr_tail,omitempty"`
	MDCount      *int      `json:"md_count,omitempty"`
	JSONCount    *int      `json:"json_count,omitempty"`
	FileCount    *int      `json:"file_count,omitempty"`
	OutputDir    string    `json:"output_dir,omitempty"`
	Warning      string    `json:"warning,omitempty"`
}

// NewRecord flattens a task, its elapsed time and its outcome.
func NewRecord(task Task, elapsed time.Duration, o Outcome) Record {
	r := Record{
		File:        task.Name,
		SizeMB:      task.SizeMB(),
		Pages:       task.Pages,
		ProcessTime: elapsed.Seconds(),
		Success:     o.Success,
	}
	if !o.Success {
		msg := o.Error
		r.Error = &msg
		r.ErrorKind = o.ErrorKind
		r.StderrTail = o.StderrTail
		return r
	}

	r.OutputSize = o.OutputSize
	r.OutputTokens = o.OutputTokens
	r.OutputDir = o.OutputDir
	r.Warning = o.Warning
	n := o.ArtifactCount()
	switch o.ArtifactKind {
	case ArtifactMarkdown:
		r.MDCount = &n
	case ArtifactJSON:
		r.JSONCount = &n
	case ArtifactOther:
		zero := 0
		r.MDCount = &zero
		r.FileCount = &n
	default:
		zero := 0
		r.MDCount = &zero
	}
	return r
}

// Summary holds the aggregates of a finished batch.
type Summary struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	SuccessRate float64 `json:"success_rate"`
	TotalSizeMB float64 `json:"total_size_mb"`
	TotalTime   float64 `json:"total_time"`
	Throughput  float64 `json:"throughput_mb_per_sec"`
	TotalPages  int     `json:"total_pages"`
}

// Summarize computes the batch aggregates. Throughput is zero when no time
// elapsed.
func Summarize(records []Record) Summary {
	var s Summary
	s.Total = len(records)
	for _, r := range records {
		if r.Success {
			s.Succeeded++
		}
		s.TotalSizeMB += r.SizeMB
		s.TotalTime += r.ProcessTime
		s.TotalPages += r.Pages
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Total)
	}
	if s.TotalTime > 0 {
		s.Throughput = s.TotalSizeMB / s.TotalTime
	}
	return s
}

// Report is the outcome of one batch run for one backend.
type Report struct {
	RunID      string    `json:"run_id"`
	Backend    string    `json:"backend"`
	InputDir   string    `json:"input_dir"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Records    []Record  `json:"records"`
	Summary    Summary   `json:"summary"`
}
