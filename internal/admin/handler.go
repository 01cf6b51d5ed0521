package admin

import (
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/relayhq/botgate/internal/tenant"
)

// Invalidator drops a tenant's cached outbound client.
type Invalidator interface {
	Invalidate(tenantID string) bool
	Len() int
}

// Handler serves the admin routes.
type Handler struct {
	registry tenant.Registry
	cache    Invalidator
	settings *Settings
	logger   *slog.Logger
}

// NewHandler creates the admin handler.
func NewHandler(registry tenant.Registry, cache Invalidator, settings *Settings, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		cache:    cache,
		settings: settings,
		logger:   logger,
	}
}

// Routes returns the admin subrouter. Callers mount it behind the gateway's
// auth middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/tenants", h.listTenants)
	r.Post("/api-version", h.setAPIVersion)
	r.Delete("/tenants/{id}/client", h.dropClient)
	return r
}

// tenantSummary is the admin view of a tenant. Credentials are never
// included.
type tenantSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.registry.List(r.Context())
	if err != nil {
		http.Error(w, "failed to list tenants", http.StatusInternalServerError)
		return
	}

	summaries := make([]tenantSummary, 0, len(tenants))
	for _, t := range tenants {
		summaries = append(summaries, tenantSummary{ID: t.ID, Name: t.Name})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tenants":      summaries,
		"live_clients": h.cache.Len(),
	})
}

var versionPattern = regexp.MustCompile(`^v[0-9]+$`)

func (h *Handler) setAPIVersion(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !versionPattern.MatchString(payload.Version) {
		http.Error(w, "invalid api version", http.StatusBadRequest)
		return
	}

	h.settings.SetAPIVersion(payload.Version)
	h.logger.Info("api version updated", slog.String("version", payload.Version))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) dropClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.cache.Invalidate(id) {
		http.Error(w, "no cached client", http.StatusNotFound)
		return
	}
	h.logger.Info("dropped cached client", slog.String("tenant_id", id))
	w.WriteHeader(http.StatusNoContent)
}
