package adapters

import (
	"fmt"
	"strings"

	"github.com/oho/pdfbench/internal/bench"
)

// Rule maps a set of case-insensitive markers found in engine output to an
// error kind and message. Rules are evaluated in order; the first match wins.
type Rule struct {
	Markers []string
	// RequireAll makes the rule match only when every marker is present.
	RequireAll bool
	Kind       bench.ErrorKind
	// Message is the fixed text of the outcome. When empty, the first output
	// line containing one of LineMarkers (or Markers) is used instead.
	Message string
	// Detail appends the first matching line to a fixed Message.
	Detail bool
	// LineFirst uses the first matching line when there is one and falls
	// back to Message otherwise.
	LineFirst   bool
	LineMarkers []string
}

func (r Rule) matches(lower string) bool {
	if len(r.Markers) == 0 {
		return false
	}
	for _, m := range r.Markers {
		found := strings.Contains(lower, m)
		if r.RequireAll && !found {
			return false
		}
		if !r.RequireAll && found {
			return true
		}
	}
	return r.RequireAll
}

func (r Rule) message(combined string) string {
	markers := r.LineMarkers
	if len(markers) == 0 {
		markers = r.Markers
	}
	line := firstLineWith(combined, markers)

	switch {
	case r.Message == "" && line != "":
		return line
	case r.Message == "":
		return combined
	case r.LineFirst && line != "":
		return line
	case r.Detail && line != "":
		return fmt.Sprintf("%s (detail: %s)", r.Message, line)
	default:
		return r.Message
	}
}

// GenericRules are appended after every backend's own rules.
var GenericRules = []Rule{
	{Markers: []string{"error", "not found", "traceback"}, Kind: bench.ErrClassified},
}

// Verdict is the pure classification of (exit status, combined output).
type Verdict struct {
	OK      bool
	Kind    bench.ErrorKind
	Message string
}

// Classifier applies a rule table to engine output.
type Classifier struct {
	Rules  []Rule
	MaxLen int
	// StatusMessage formats the fallback for a failed call with no output.
	StatusMessage string
}

const (
	defaultMaxLen        = 300
	processStatusMessage = "process exited with status %d"
	requestStatusMessage = "request failed with status %d"
)

// NewClassifier builds a classifier with backend rules ahead of GenericRules.
func NewClassifier(maxLen int, backendRules ...Rule) Classifier {
	rules := make([]Rule, 0, len(backendRules)+len(GenericRules))
	rules = append(rules, backendRules...)
	rules = append(rules, GenericRules...)
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return Classifier{Rules: rules, MaxLen: maxLen, StatusMessage: processStatusMessage}
}

// Classify decides whether a call succeeded. It depends only on its inputs.
func (c Classifier) Classify(exitCode int, combined string) Verdict {
	combined = strings.TrimSpace(combined)
	lower := strings.ToLower(combined)

	for _, r := range c.Rules {
		if r.matches(lower) {
			return Verdict{Kind: r.Kind, Message: c.truncate(r.message(combined))}
		}
	}
	if exitCode == 0 {
		return Verdict{OK: true}
	}
	if combined == "" {
		format := c.StatusMessage
		if format == "" {
			format = processStatusMessage
		}
		return Verdict{Kind: bench.ErrUnclassified, Message: c.truncate(fmt.Sprintf(format, exitCode))}
	}
	return Verdict{Kind: bench.ErrUnclassified, Message: c.truncate(combined)}
}

func (c Classifier) truncate(s string) string {
	return truncateRunes(s, c.MaxLen)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		n = defaultMaxLen
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// combineOutput joins trimmed stderr and stdout, stderr first.
func combineOutput(stderr, stdout string) string {
	var parts []string
	for _, s := range []string{stderr, stdout} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func firstLineWith(text string, markers []string) string {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		for _, m := range markers {
			if strings.Contains(lower, m) {
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
