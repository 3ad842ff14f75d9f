package server

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stormpetrel/metfetch/pkg/runstate"
)

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	OutputDir string    `json:"output_dir"`
	Time      time.Time `json:"time"`
}

// VersionResponse is the /version payload.
type VersionResponse struct {
	Version string `json:"version"`
}

// JobsResponse is the /api/v1/jobs payload.
type JobsResponse struct {
	Jobs  []runstate.Record `json:"jobs"`
	Count int               `json:"count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	status := "ok"
	code := http.StatusOK
	if _, err := os.Stat(s.store.RootDir()); err != nil {
		status = "degraded: output dir unavailable"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:    status,
		Version:   s.version,
		OutputDir: s.store.RootDir(),
		Time:      time.Now().UTC(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

func (s *Server) handleListJobs(w http.ResponseWriter, req *http.Request) {
	records, err := s.store.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if records == nil {
		records = []runstate.Record{}
	}
	writeJSON(w, http.StatusOK, JobsResponse{Jobs: records, Count: len(records)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, req *http.Request) {
	jobID := chi.URLParam(req, "jobID")
	rec, err := s.store.Get(jobID)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "no run record for job "+jobID)
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
