package bench

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtension is the only input format the harness accepts.
const PDFExtension = ".pdf"

// Discover lists the PDFs directly inside dir in directory-listing order.
// Hidden files and subdirectories are skipped.
func Discover(dir string) ([]Task, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", ErrNoInput, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrNoInput, dir, err)
	}

	var tasks []Task
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.ToLower(filepath.Ext(e.Name())) != PDFExtension {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			slog.Warn("Skipping unreadable file", "file", e.Name(), "error", err)
			continue
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		tasks = append(tasks, Task{
			Path:  path,
			Name:  e.Name(),
			Size:  fi.Size(),
			Pages: CountPages(path),
		})
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: no %s files in %s", ErrNoInput, PDFExtension, dir)
	}
	return tasks, nil
}

// CountPages returns the page count of a PDF, or 0 when it cannot be parsed.
func CountPages(path string) (n int) {
	defer func() {
		// the parser panics on some malformed xref tables
		if r := recover(); r != nil {
			slog.Debug("Page count failed", "file", path, "panic", r)
			n = 0
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		slog.Debug("Page count failed", "file", path, "error", err)
		return 0
	}
	defer f.Close()
	return r.NumPage()
}
