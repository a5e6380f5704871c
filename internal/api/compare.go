package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/oho/pdfbench/internal/storage"
)

type compareResponse struct {
	Backends []string                 `json:"backends"`
	Files    []storage.FileComparison `json:"files"`
}

// CompareRouter serves the per-file matrix of the latest outcome per backend.
func CompareRouter(db *storage.Database) chi.Router {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		files, err := db.CompareFiles()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if files == nil {
			files = []storage.FileComparison{}
		}
		writeJSON(w, compareResponse{Backends: backendsOf(files), Files: files})
	})

	return r
}

func backendsOf(files []storage.FileComparison) []string {
	seen := map[string]bool{}
	backends := []string{}
	for _, f := range files {
		for b := range f.Results {
			if !seen[b] {
				seen[b] = true
				backends = append(backends, b)
			}
		}
	}
	sort.Strings(backends)
	return backends
}
