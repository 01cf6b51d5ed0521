package domain

import (
	"context"
)

// Result is the outcome of a successful upstream call. An empty Body marks a
// no-content operation and is mapped to 204 by the dispatcher.
type Result struct {
	Status int
	Bucket string
	Body   []byte
}

// OutboundClient is the rate-limit-aware HTTP client dedicated to one
// tenant's upstream calls. Implementations own the credential, the per-route
// rate-limit state, and any retry policy; the gateway treats failures as
// final.
type OutboundClient interface {
	// Do performs an authenticated call against the upstream API. Failed
	// calls return an *UpstreamError.
	Do(ctx context.Context, method, route string, body []byte) (*Result, error)

	// Close releases any resources held by the client. Called on cache
	// eviction.
	Close()
}
