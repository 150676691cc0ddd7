// Package handlers implements the small HTTP surface that lives inside this
// repo: container/orchestrator health probes and version info (spec.md §6,
// §1 — the rest of the HTTP control plane is an external collaborator).
// Adapted from the teacher's handlers/health.go.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"paperminder/internal/registry"
	"paperminder/internal/storage"
)

// Version information, set at build time via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// HealthAPI exposes /health and /api/version.
type HealthAPI struct {
	store        storage.Store
	reg          *registry.Registry
	processStart time.Time
}

// NewHealthAPI constructs the health API. store and reg may be nil; a nil
// store skips the storage check. No health check consults reg.
func NewHealthAPI(store storage.Store, reg *registry.Registry) *HealthAPI {
	return &HealthAPI{store: store, reg: reg, processStart: time.Now()}
}

// RegisterRoutes registers /health and /api/version on mux.
func (api *HealthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", api.HandleHealth)
	mux.HandleFunc("/api/version", api.HandleVersion)
}

// HandleHealth reports process and storage health. Public, no auth — meant
// for load balancers and container orchestrators.
func (api *HealthAPI) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	if api.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := api.store.Ping(ctx); err != nil {
			status = "unhealthy"
			checks["storage"] = err.Error()
		} else {
			checks["storage"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}

// HandleVersion reports build and runtime information.
func (api *HealthAPI) HandleVersion(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     time.Since(api.processStart).String(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
