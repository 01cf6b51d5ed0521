// Package clientcache maps tenant ids to lazily-created outbound clients,
// guaranteeing at most one live client per tenant.
package clientcache

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/relayhq/botgate/internal/domain"
	"github.com/relayhq/botgate/internal/tenant"
)

// Factory constructs an outbound client for a tenant's credential.
type Factory func(t *tenant.Tenant) (domain.OutboundClient, error)

// Cache is a bounded LRU of outbound clients keyed by tenant id. Evicted
// clients are closed. Concurrent first resolutions of the same tenant id
// construct exactly one client.
type Cache struct {
	registry tenant.Registry
	factory  Factory
	clients  *lru.Cache[string, domain.OutboundClient]
	group    singleflight.Group
	logger   *slog.Logger
}

// New creates a cache holding at most maxClients clients.
func New(registry tenant.Registry, factory Factory, maxClients int, logger *slog.Logger) (*Cache, error) {
	if maxClients <= 0 {
		maxClients = 256
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		registry: registry,
		factory:  factory,
		logger:   logger,
	}

	clients, err := lru.NewWithEvict(maxClients, func(id string, client domain.OutboundClient) {
		logger.Info("evicting outbound client", slog.String("tenant_id", id))
		client.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("create client cache: %w", err)
	}
	c.clients = clients

	return c, nil
}

// Resolve returns the cached client for tenantID, constructing it on first
// access. Returns domain.ErrUnknownTenant when no credential is registered.
func (c *Cache) Resolve(ctx context.Context, tenantID string) (domain.OutboundClient, error) {
	if client, ok := c.clients.Get(tenantID); ok {
		return client, nil
	}

	// singleflight collapses concurrent first resolutions of the same id
	// into one construction.
	v, err, _ := c.group.Do(tenantID, func() (interface{}, error) {
		if client, ok := c.clients.Get(tenantID); ok {
			return client, nil
		}

		t, err := c.registry.Lookup(ctx, tenantID)
		if err != nil {
			return nil, err
		}

		client, err := c.factory(t)
		if err != nil {
			return nil, fmt.Errorf("create client for tenant %s: %w", tenantID, err)
		}

		c.clients.Add(tenantID, client)
		c.logger.Info("created outbound client", slog.String("tenant_id", tenantID))
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.OutboundClient), nil
}

// Invalidate drops a tenant's cached client, closing it via the eviction
// callback. Reports whether a client was present.
func (c *Cache) Invalidate(tenantID string) bool {
	return c.clients.Remove(tenantID)
}

// Len returns the number of live clients.
func (c *Cache) Len() int {
	return c.clients.Len()
}

// Close evicts and closes all clients.
func (c *Cache) Close() {
	c.clients.Purge()
}
