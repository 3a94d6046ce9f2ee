package ui

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	crawlinfo "github.com/thep200/repo-harvester/internal/crawl_info"
	"github.com/thep200/repo-harvester/internal/model"
	"github.com/thep200/repo-harvester/pkg/log"
)

// StatusSource reports the run in progress.
type StatusSource interface {
	Snapshot() crawlinfo.Report
}

// RepoLister pages through stored repositories.
type RepoLister interface {
	Top(ctx context.Context, limit, offset int, search string) ([]model.Repository, error)
	Count(ctx context.Context, search string) (int64, error)
}

type Handler struct {
	Logger log.Logger
	Status StatusSource
	Repos  RepoLister
}

func NewHandler(logger log.Logger, status StatusSource, repos RepoLister) *Handler {
	return &Handler{
		Logger: logger,
		Status: status,
		Repos:  repos,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /status", h.getStatus)
	mux.HandleFunc("GET /api/repos", h.getRepos)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.Status.Snapshot())
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error(r.Context(), "Failed to encode JSON response: %v", err)
	}
}
