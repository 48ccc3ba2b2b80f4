package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gwlsn/rawray/internal/batch"
	"github.com/gwlsn/rawray/internal/config"
	"github.com/gwlsn/rawray/internal/encode"
	"github.com/gwlsn/rawray/internal/logger"
	"github.com/gwlsn/rawray/internal/scan"
)

// SessionResetter is the slice of the store the stats endpoints need.
type SessionResetter interface {
	ResetSession() error
}

// Handler provides HTTP API handlers
type Handler struct {
	scanner *scan.Scanner
	queue   *batch.Queue
	cfg     *config.Config
	cfgPath string
	store   SessionResetter

	cfgMu sync.Mutex // Serializes config updates
}

// NewHandler creates a new API handler
func NewHandler(scanner *scan.Scanner, queue *batch.Queue, cfg *config.Config, cfgPath string) *Handler {
	return &Handler{
		scanner: scanner,
		queue:   queue,
		cfg:     cfg,
		cfgPath: cfgPath,
	}
}

// SetStore enables session stat resets.
func (h *Handler) SetStore(store SessionResetter) {
	h.store = store
}

// response helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Browse handles GET /api/browse?path=...
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := h.scanner.Browse(ctx, path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Formats handles GET /api/formats
func (h *Handler) Formats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"formats": encode.Formats(),
		"default": h.cfg.Format,
	})
}

// CreateRunRequest is the request body for starting a run.
// Zero-value fields fall back to the configured defaults.
type CreateRunRequest struct {
	Paths           []string `json:"paths"`
	OutputDir       string   `json:"output_dir"`
	Format          string   `json:"format"`
	Quality         int      `json:"quality"`
	DeleteOriginals bool     `json:"delete_originals"`
}

// CreateRun handles POST /api/runs. Directory paths are expanded to the
// RAW files they contain; file paths are taken as given, duplicates and
// all, and fail individually if they turn out not to decode.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "no paths provided")
		return
	}

	format := req.Format
	if format == "" {
		format = h.cfg.Format
	}
	if !encode.IsValidFormat(format) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format: %s", format))
		return
	}

	quality := req.Quality
	if quality == 0 {
		quality = h.cfg.Quality
	}

	dest := h.destination(req.OutputDir)

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	paths, err := h.expandPaths(ctx, req.Paths)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(paths) == 0 {
		writeError(w, http.StatusBadRequest, "no RAW files found in the given paths")
		return
	}

	run, err := batch.NewRun(paths, dest, format, quality, req.DeleteOriginals)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.queue.Add(run); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("Run queued", "run_id", run.ID, "items", run.TotalCount())
	writeJSON(w, http.StatusCreated, run.Copy())
}

// destination picks the output policy for a request: an explicit output
// dir wins, then the configured one, then source-relative.
func (h *Handler) destination(outputDir string) batch.Destination {
	if outputDir != "" {
		return batch.FixedDirectory(outputDir)
	}
	if h.cfg.OutputPath != "" {
		return batch.FixedDirectory(h.cfg.OutputPath)
	}
	return batch.SourceRelative()
}

// expandPaths replaces directory paths with the RAW files underneath them.
func (h *Handler) expandPaths(ctx context.Context, paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err == nil && info.IsDir() {
			found, err := h.scanner.FindRawFiles(ctx, p)
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
			continue
		}
		// Nonexistent or plain file: keep it. A bad path fails its own
		// item without touching the rest of the batch.
		out = append(out, p)
	}
	return out, nil
}

// ListRuns handles GET /api/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.GetAll())
}

// GetRun handles GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run := h.queue.Get(r.PathValue("id"))
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// CancelRun handles DELETE /api/runs/{id}. Cancellation is cooperative:
// the worker finishes the item in flight and skips the rest.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.queue.RequestCancel(id); err != nil {
		if errors.Is(err, batch.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	logger.Info("Cancel requested", "run_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancel_requested"})
}

// RemoveRun handles DELETE /api/runs/{id}/history
func (h *Handler) RemoveRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.queue.Remove(id); err != nil {
		if errors.Is(err, batch.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// Stats handles GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Stats())
}

// ResetSession handles POST /api/stats/reset-session
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "no persistent store configured")
		return
	}
	if err := h.store.ResetSession(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// GetConfig handles GET /api/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()
	writeJSON(w, http.StatusOK, h.cfg)
}

// UpdateConfig handles PUT /api/config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var updated config.Config
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !encode.IsValidFormat(updated.Format) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format: %s", updated.Format))
		return
	}
	if updated.Quality < 1 || updated.Quality > 100 {
		writeError(w, http.StatusBadRequest, "quality must be 1-100")
		return
	}

	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()

	*h.cfg = updated
	logger.SetLevel(h.cfg.LogLevel)

	if err := h.cfg.Save(h.cfgPath); err != nil {
		logger.Warn("Failed to save config", "path", h.cfgPath, "error", err)
		writeError(w, http.StatusInternalServerError, "config updated but not saved")
		return
	}

	writeJSON(w, http.StatusOK, h.cfg)
}
