// Package httpapi exposes the operational surface: health, status, manual
// scan, retry of failed files, and Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cad_ingest/internal/config"
	"cad_ingest/internal/pipeline"
	"cad_ingest/internal/queue"
	"cad_ingest/internal/store"
)

// Router builds HTTP handlers for /ops and /metrics.
type Router struct {
	cfg   config.Config
	store *store.Store
	pipe  *pipeline.Pipeline
	queue *queue.Queue
	log   *zap.Logger
}

func NewRouter(cfg config.Config, st *store.Store, pipe *pipeline.Pipeline, q *queue.Queue, log *zap.Logger) *Router {
	return &Router{cfg: cfg, store: st, pipe: pipe, queue: q, log: log}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ops/health", r.health)
	mux.HandleFunc("/ops/status", r.status)
	mux.HandleFunc("/ops/scan", r.scan)
	mux.HandleFunc("/ops/retry", r.retry)
	mux.Handle("/metrics", promhttp.Handler())
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Health(req.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !r.queue.Healthy() {
		http.Error(w, "worker pool not running", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	entries, err := r.store.ListProcessed(req.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	stats := r.queue.Stats()
	r.respondJSON(w, map[string]any{
		"workers":   stats.WorkerCount,
		"queue":     map[string]any{"length": stats.Length, "capacity": stats.Capacity, "processed": stats.Processed, "failed": stats.Failed},
		"last_scan": r.pipe.LastScan(),
		"recent":    entries,
	})
}

// scan kicks off an asynchronous cycle. The request returns immediately;
// progress is visible under /ops/status.
func (r *Router) scan(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.pipe.Trigger()
	w.WriteHeader(http.StatusAccepted)
	r.respondJSON(w, map[string]any{"status": "scan requested"})
}

// retry clears a failed ledger row so the next scan picks the file up again.
func (r *Router) retry(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimSpace(req.URL.Query().Get("filename"))
	if name == "" {
		http.Error(w, "filename query parameter is required", http.StatusBadRequest)
		return
	}
	cleared, err := r.store.ClearFailure(req.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !cleared {
		http.Error(w, "no failed entry for that filename", http.StatusNotFound)
		return
	}
	r.pipe.Trigger()
	r.respondJSON(w, map[string]any{"status": "retry scheduled", "filename": name})
}

func (r *Router) respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.log.Warn("write json response", zap.Error(err))
	}
}
