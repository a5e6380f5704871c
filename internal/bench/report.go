package bench

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteReport persists the report records as a JSON array. The in-memory
// report is left untouched on failure.
func WriteReport(path string, report Report) error {
	records := report.Records
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// ReadReport loads records previously written by WriteReport.
func ReadReport(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return records, nil
}
