package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oho/pdfbench/internal/bench"
	"github.com/oho/pdfbench/internal/storage"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// RunsRouter serves the stored runs.
func RunsRouter(db *storage.Database) chi.Router {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit: "+s, http.StatusBadRequest)
				return
			}
			limit = n
		}
		runs, err := db.ListRuns(r.URL.Query().Get("backend"), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, runs)
	})

	r.Get("/{run_id}", func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "run_id")
		run, err := db.GetRun(runID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if run == nil {
			http.Error(w, "Run not found: "+runID, http.StatusNotFound)
			return
		}
		writeJSON(w, run)
	})

	// The results file as written to disk, which may have been edited or
	// removed since the run was stored.
	r.Get("/{run_id}/results", func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "run_id")
		run, err := db.GetRun(runID)
		if err != nil || run == nil {
			http.Error(w, "Run not found: "+runID, http.StatusNotFound)
			return
		}
		if run.ResultsPath == "" {
			http.Error(w, "No results file recorded for run: "+runID, http.StatusNotFound)
			return
		}
		records, err := bench.ReadReport(run.ResultsPath)
		if os.IsNotExist(err) {
			http.Error(w, "Results file missing: "+run.ResultsPath, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, records)
	})

	r.Delete("/{run_id}", func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "run_id")
		if err := db.DeleteRun(runID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted", "run_id": runID})
	})

	return r
}
