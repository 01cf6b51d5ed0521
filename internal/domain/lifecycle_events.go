package domain

import (
	"time"
)

// BucketNA is reported when the rate-limit bucket for a route is not known.
const BucketNA = "NA"

// LifecycleEventType identifies the stage of a forwarded request.
type LifecycleEventType string

const (
	EventRequestFetching LifecycleEventType = "REQUEST_FETCHING"
	EventRequestFetched  LifecycleEventType = "REQUEST_FETCHED"
	EventRequestFailed   LifecycleEventType = "REQUEST_FAILED"
)

// LifecycleEvent is one telemetry record describing a forwarded request's
// fetching/fetched/failed stage. Events are immutable once emitted and are
// buffered by the reporter until its periodic flush. Tenant credentials are
// never carried on events.
type LifecycleEvent struct {
	ID        string             `json:"id"`
	Type      LifecycleEventType `json:"type"`
	TenantID  string             `json:"tenant_id"`
	Method    string             `json:"method"`
	Route     string             `json:"route"`
	Bucket    string             `json:"bucket"`
	Timestamp time.Time          `json:"timestamp"`

	// Status and StatusText are set for FETCHED and FAILED events only.
	Status     int    `json:"status,omitempty"`
	StatusText string `json:"status_text,omitempty"`
}
