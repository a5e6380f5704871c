package server

import (
	"encoding/json"
	"net/http"

	"github.com/oho/pdfbench/internal/config"
	"github.com/oho/pdfbench/internal/storage"
)

type HealthResponse struct {
	Status    string   `json:"status"`
	DB        string   `json:"db"`
	RunCount  int      `json:"run_count"`
	Backends  []string `json:"backends"`
	OutputDir string   `json:"output_dir"`
	Port      int      `json:"port"`
}

// HealthHandler returns a handler for GET /health.
func HealthHandler(cfg config.Config, db *storage.Database, backends []string) http.HandlerFunc {
	if backends == nil {
		backends = []string{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus := "connected"
		runCount := 0
		if db == nil {
			dbStatus = "unavailable"
		} else if err := db.DB().QueryRowContext(r.Context(), "SELECT COUNT(*) FROM runs").Scan(&runCount); err != nil {
			dbStatus = "error: " + err.Error()
		}

		resp := HealthResponse{
			Status:    "ok",
			DB:        dbStatus,
			RunCount:  runCount,
			Backends:  backends,
			OutputDir: cfg.OutputDir,
			Port:      cfg.Port,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
