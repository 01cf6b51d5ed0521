// Package admin exposes the gateway's enumerated administrative operations
// on the authenticated surface: listing tenants, switching the upstream API
// version, and dropping cached clients. Nothing here evaluates caller-
// supplied code.
package admin

import (
	"sync/atomic"
)

// Settings holds the mutable runtime settings admin operations may change.
// Reads are lock-free; the factory consults APIVersion when constructing new
// outbound clients.
type Settings struct {
	apiVersion atomic.Value
}

// NewSettings creates settings with the given initial API version.
func NewSettings(apiVersion string) *Settings {
	s := &Settings{}
	s.apiVersion.Store(apiVersion)
	return s
}

// APIVersion returns the upstream API version used for new clients.
func (s *Settings) APIVersion() string {
	return s.apiVersion.Load().(string)
}

// SetAPIVersion updates the upstream API version. Existing clients keep the
// version they were built with until their cache entry is dropped.
func (s *Settings) SetAPIVersion(v string) {
	s.apiVersion.Store(v)
}
