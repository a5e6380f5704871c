package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/oho/pdfbench/internal/bench"
	"github.com/oho/pdfbench/internal/storage"
)

type backendSummary struct {
	Backend   string        `json:"backend"`
	RunID     string        `json:"run_id"`
	StartedAt string        `json:"started_at"`
	Summary   bench.Summary `json:"summary"`
}

// SummaryRouter serves the latest run of every backend, best first.
func SummaryRouter(db *storage.Database) chi.Router {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		runs, err := db.LatestRuns()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp := make([]backendSummary, len(runs))
		for i, run := range runs {
			resp[i] = backendSummary{Backend: run.Backend, RunID: run.ID, StartedAt: run.StartedAt, Summary: run.Summary}
		}
		sort.SliceStable(resp, func(i, j int) bool {
			a, b := resp[i].Summary, resp[j].Summary
			if a.SuccessRate != b.SuccessRate {
				return a.SuccessRate > b.SuccessRate
			}
			return a.Throughput > b.Throughput
		})
		writeJSON(w, resp)
	})

	return r
}
