// Package domain provides the canonical types shared across the gateway:
// the outbound client contract, lifecycle telemetry events, and the error
// taxonomy surfaced to callers.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Defaults applied when an upstream failure carries no status information.
const (
	StatusUnknown     = http.StatusBadRequest
	StatusTextUnknown = "Unknown"
)

var (
	// ErrUnauthorized indicates a missing or mismatching gateway credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnknownTenant indicates a tenant id with no registered credential
	// and no cached client.
	ErrUnknownTenant = errors.New("unknown tenant")
)

// UpstreamError represents a failed call against the upstream API. The
// gateway never retries these; retry behavior belongs to the outbound client.
type UpstreamError struct {
	Status     int    `json:"status"`
	StatusText string `json:"status_text"`
	Bucket     string `json:"-"`
	Body       []byte `json:"-"`
}

// NewUpstreamError builds an UpstreamError, substituting the sentinel status
// and status text when the failure carries none.
func NewUpstreamError(status int, statusText, bucket string) *UpstreamError {
	if status == 0 {
		status = StatusUnknown
	}
	if statusText == "" {
		statusText = StatusTextUnknown
	}
	if bucket == "" {
		bucket = BucketNA
	}
	return &UpstreamError{Status: status, StatusText: statusText, Bucket: bucket}
}

// WithBody attaches the raw upstream response body for the error payload.
func (e *UpstreamError) WithBody(body []byte) *UpstreamError {
	e.Body = body
	return e
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.Status, e.StatusText)
}
