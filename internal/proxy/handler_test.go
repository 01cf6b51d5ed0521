package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/relayhq/botgate/internal/domain"
)

type stubClient struct {
	result *domain.Result
	err    error

	calls  int
	method string
	route  string
	body   []byte
}

func (c *stubClient) Do(_ context.Context, method, route string, body []byte) (*domain.Result, error) {
	c.calls++
	c.method = method
	c.route = route
	c.body = body
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func (c *stubClient) Close() {}

type stubResolver struct {
	client domain.OutboundClient
	err    error
	calls  int
}

func (r *stubResolver) Resolve(_ context.Context, _ string) (domain.OutboundClient, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.client, nil
}

type captureRecorder struct {
	mu     sync.Mutex
	events []*domain.LifecycleEvent
}

func (r *captureRecorder) Record(event *domain.LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *captureRecorder) types() []domain.LifecycleEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]domain.LifecycleEventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

func newTestHandler(client *stubClient, resolveErr error) (*Handler, *stubResolver, *captureRecorder) {
	resolver := &stubResolver{client: client, err: resolveErr}
	recorder := &captureRecorder{}
	return NewHandler(resolver, recorder, "/api", nil), resolver, recorder
}

func doRequest(h *Handler, method, path, body, tenantID string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if tenantID != "" {
		req.Header.Set(TenantHeader, tenantID)
	}
	w := httptest.NewRecorder()
	h.Forward(w, req)
	return w
}

func TestForward_GetSuccess(t *testing.T) {
	client := &stubClient{result: &domain.Result{Status: 200, Bucket: "users", Body: []byte(`{"id":42}`)}}
	h, _, rec := newTestHandler(client, nil)

	w := doRequest(h, http.MethodGet, "/api/users/42", "", "app-1")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != `{"id":42}` {
		t.Errorf("unexpected body: %s", got)
	}
	if client.method != http.MethodGet || client.route != "/users/42" {
		t.Errorf("client invoked with (%s, %s)", client.method, client.route)
	}
	if client.body != nil {
		t.Errorf("GET forwarded a body: %q", client.body)
	}

	types := rec.types()
	if len(types) != 2 || types[0] != domain.EventRequestFetching || types[1] != domain.EventRequestFetched {
		t.Errorf("unexpected event sequence: %v", types)
	}
	if rec.events[1].Bucket != "users" || rec.events[1].Status != 200 {
		t.Errorf("fetched event = %+v", rec.events[1])
	}
}

func TestForward_PostUpstreamFailure(t *testing.T) {
	client := &stubClient{err: domain.NewUpstreamError(403, "Forbidden", "messages")}
	h, _, rec := newTestHandler(client, nil)

	w := doRequest(h, http.MethodPost, "/api/messages", `{"content":"hi"}`, "app-1")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if string(client.body) != `{"content":"hi"}` {
		t.Errorf("forwarded body = %q", client.body)
	}
	if !strings.Contains(w.Body.String(), "403") || !strings.Contains(w.Body.String(), "Forbidden") {
		t.Errorf("error payload missing upstream status: %s", w.Body.String())
	}

	types := rec.types()
	if len(types) != 2 || types[1] != domain.EventRequestFailed {
		t.Fatalf("unexpected event sequence: %v", types)
	}
	if rec.events[1].Status != 403 || rec.events[1].StatusText != "Forbidden" {
		t.Errorf("failed event = %+v", rec.events[1])
	}
}

func TestForward_TimeoutEmitsFailedEvent(t *testing.T) {
	client := &stubClient{err: domain.NewUpstreamError(0, "Timeout", domain.BucketNA)}
	h, _, rec := newTestHandler(client, nil)

	w := doRequest(h, http.MethodGet, "/api/users/42", "", "app-1")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	types := rec.types()
	if len(types) != 2 || types[1] != domain.EventRequestFailed {
		t.Fatalf("unexpected event sequence: %v", types)
	}
	failed := rec.events[1]
	if failed.StatusText != "Timeout" {
		t.Errorf("failed event status text = %q, want Timeout", failed.StatusText)
	}
	if failed.Status != domain.StatusUnknown {
		t.Errorf("failed event status = %d, want sentinel %d", failed.Status, domain.StatusUnknown)
	}
}

func TestForward_FailurePayloadCarriesUpstreamBody(t *testing.T) {
	upstreamBody := `{"message":"Missing Access","code":50001}`
	client := &stubClient{
		err: domain.NewUpstreamError(403, "Missing Access", "messages").WithBody([]byte(upstreamBody)),
	}
	h, _, _ := newTestHandler(client, nil)

	w := doRequest(h, http.MethodPost, "/api/messages", `{"content":"hi"}`, "app-1")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "50001") {
		t.Errorf("error payload missing upstream body: %s", w.Body.String())
	}
}

func TestForward_NoContent(t *testing.T) {
	client := &stubClient{result: &domain.Result{Status: 204, Bucket: "channels"}}
	h, _, rec := newTestHandler(client, nil)

	w := doRequest(h, http.MethodPut, "/api/channels/7/pins/9", "", "app-1")

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("204 response carried a body: %s", w.Body.String())
	}
	if types := rec.types(); len(types) != 2 || types[1] != domain.EventRequestFetched {
		t.Errorf("unexpected event sequence: %v", types)
	}
}

func TestForward_UnknownTenant(t *testing.T) {
	client := &stubClient{}
	h, resolver, rec := newTestHandler(client, domain.ErrUnknownTenant)

	w := doRequest(h, http.MethodGet, "/api/users/42", "", "nope")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if resolver.calls != 1 {
		t.Errorf("resolver calls = %d", resolver.calls)
	}
	if client.calls != 0 {
		t.Errorf("outbound client invoked %d times", client.calls)
	}
	if len(rec.types()) != 0 {
		t.Errorf("rejected request emitted telemetry: %v", rec.types())
	}
}

func TestForward_MissingTenantHeader(t *testing.T) {
	client := &stubClient{}
	h, resolver, rec := newTestHandler(client, nil)

	w := doRequest(h, http.MethodGet, "/api/users/42", "", "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver invoked without tenant header")
	}
	if len(rec.types()) != 0 {
		t.Errorf("rejected request emitted telemetry: %v", rec.types())
	}
}

func TestForward_BodyOmittedForDelete(t *testing.T) {
	client := &stubClient{result: &domain.Result{Status: 204}}
	h, _, _ := newTestHandler(client, nil)

	doRequest(h, http.MethodDelete, "/api/messages/1", `{"ignored":true}`, "app-1")

	if client.body != nil {
		t.Errorf("DELETE forwarded a body: %q", client.body)
	}
}

func TestForward_DefaultsForBareError(t *testing.T) {
	client := &stubClient{err: errors.New("connection reset")}
	h, _, rec := newTestHandler(client, nil)

	w := doRequest(h, http.MethodPost, "/api/messages", `{}`, "app-1")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	failed := rec.events[1]
	if failed.Status != domain.StatusUnknown || failed.StatusText != domain.StatusTextUnknown {
		t.Errorf("expected sentinel defaults, got %+v", failed)
	}
	if failed.Bucket != domain.BucketNA {
		t.Errorf("expected NA bucket, got %q", failed.Bucket)
	}
}

func TestForwardRoute(t *testing.T) {
	h := NewHandler(nil, nil, "/api", nil)

	cases := map[string]string{
		"/api/users/42": "/users/42",
		"/api":          "/",
		"/api/":         "/",
		"/users/42":     "/users/42",
	}
	for path, want := range cases {
		if got := h.forwardRoute(path); got != want {
			t.Errorf("forwardRoute(%q) = %q, want %q", path, got, want)
		}
	}

	// A root-mounted gateway forwards paths unchanged.
	root := NewHandler(nil, nil, "", nil)
	if got := root.forwardRoute("/users/42"); got != "/users/42" {
		t.Errorf("root forwardRoute = %q", got)
	}
}
