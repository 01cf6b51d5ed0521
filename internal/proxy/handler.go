// Package proxy contains the gateway dispatcher: the HTTP-facing entry point
// that resolves a tenant's outbound client, forwards the request upstream,
// and maps the outcome to an HTTP response.
package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/relayhq/botgate/internal/domain"
	"github.com/relayhq/botgate/internal/server"
)

// TenantHeader carries the tenant id on every inbound request.
const TenantHeader = "X-Tenant-ID"

// Resolver maps a tenant id to its outbound client.
type Resolver interface {
	Resolve(ctx context.Context, tenantID string) (domain.OutboundClient, error)
}

// Recorder receives lifecycle events. Record must not block.
type Recorder interface {
	Record(event *domain.LifecycleEvent)
}

// Handler forwards inbound requests through the per-tenant outbound client.
type Handler struct {
	resolver Resolver
	recorder Recorder
	prefix   string
	logger   *slog.Logger
}

// NewHandler creates a dispatcher stripping the given routing prefix.
func NewHandler(resolver Resolver, recorder Recorder, prefix string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		resolver: resolver,
		recorder: recorder,
		prefix:   strings.TrimSuffix(prefix, "/"),
		logger:   logger,
	}
}

// Forward handles one inbound request. Authentication has already happened in
// middleware; rejected requests never reach this handler and emit no
// telemetry.
func (h *Handler) Forward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID := r.Header.Get(TenantHeader)
	if tenantID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing "+TenantHeader+" header")
		return
	}
	server.AddLogField(ctx, "tenant_id", tenantID)

	client, err := h.resolver.Resolve(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTenant) {
			h.writeError(w, http.StatusUnauthorized, "unknown tenant")
			return
		}
		server.AddError(ctx, err)
		h.writeError(w, http.StatusInternalServerError, "client initialization failed")
		return
	}

	route := h.forwardRoute(r.URL.Path)

	// Body omission is method-determined: GET and DELETE forward no body
	// regardless of what the inbound request carried.
	var body []byte
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
	}

	h.recorder.Record(&domain.LifecycleEvent{
		ID:        uuid.New().String(),
		Type:      domain.EventRequestFetching,
		TenantID:  tenantID,
		Method:    r.Method,
		Route:     route,
		Bucket:    domain.BucketNA,
		Timestamp: time.Now(),
	})

	result, err := client.Do(ctx, r.Method, route, body)
	if err != nil {
		h.failed(w, r, tenantID, route, err)
		return
	}

	server.AddLogField(ctx, "bucket", result.Bucket)
	h.recorder.Record(&domain.LifecycleEvent{
		ID:         uuid.New().String(),
		Type:       domain.EventRequestFetched,
		TenantID:   tenantID,
		Method:     r.Method,
		Route:      route,
		Bucket:     result.Bucket,
		Status:     result.Status,
		StatusText: http.StatusText(result.Status),
		Timestamp:  time.Now(),
	})

	if len(result.Body) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result.Body)
}

func (h *Handler) failed(w http.ResponseWriter, r *http.Request, tenantID, route string, err error) {
	var upErr *domain.UpstreamError
	if !errors.As(err, &upErr) {
		upErr = domain.NewUpstreamError(0, "", domain.BucketNA)
	}

	server.AddError(r.Context(), err)
	h.logger.Error("upstream request failed",
		slog.String("tenant_id", tenantID),
		slog.String("method", r.Method),
		slog.String("route", route),
		slog.Int("status", upErr.Status),
		slog.String("status_text", upErr.StatusText),
	)

	h.recorder.Record(&domain.LifecycleEvent{
		ID:         uuid.New().String(),
		Type:       domain.EventRequestFailed,
		TenantID:   tenantID,
		Method:     r.Method,
		Route:      route,
		Bucket:     upErr.Bucket,
		Status:     upErr.Status,
		StatusText: upErr.StatusText,
		Timestamp:  time.Now(),
	})

	payload := map[string]interface{}{
		"error": upErr,
	}
	if len(upErr.Body) > 0 {
		if json.Valid(upErr.Body) {
			payload["upstream"] = json.RawMessage(upErr.Body)
		} else {
			payload["upstream"] = string(upErr.Body)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(payload)
}

// forwardRoute strips the gateway's routing prefix from the inbound path. The
// forwarded route always starts with "/"; a request for exactly the prefix
// forwards "/".
func (h *Handler) forwardRoute(path string) string {
	route := strings.TrimPrefix(path, h.prefix)
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"status":  status,
			"message": message,
		},
	})
}
