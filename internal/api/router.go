package api

import (
	"net/http"

	rawray "github.com/gwlsn/rawray"
)

// registerAPIRoutes registers all API endpoints on the given mux
func registerAPIRoutes(mux *http.ServeMux, h *Handler) {
	// Browsing and formats
	mux.HandleFunc("GET /api/browse", h.Browse)
	mux.HandleFunc("GET /api/formats", h.Formats)

	// Run management
	mux.HandleFunc("GET /api/runs", h.ListRuns)
	mux.HandleFunc("POST /api/runs", h.CreateRun)
	mux.HandleFunc("GET /api/runs/stream", h.RunStream)
	mux.HandleFunc("GET /api/runs/{id}", h.GetRun)
	mux.HandleFunc("DELETE /api/runs/{id}", h.CancelRun)
	mux.HandleFunc("DELETE /api/runs/{id}/history", h.RemoveRun)

	// Stats
	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("POST /api/stats/reset-session", h.ResetSession)

	// Configuration
	mux.HandleFunc("GET /api/config", h.GetConfig)
	mux.HandleFunc("PUT /api/config", h.UpdateConfig)
}

// NewRouter creates a new HTTP router with all API endpoints
func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	registerAPIRoutes(mux, h)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "rawray",
			"version": rawray.Version,
		})
	})

	return mux
}
