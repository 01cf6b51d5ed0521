package tenant

import (
	"context"
	"fmt"

	"github.com/relayhq/botgate/internal/config"
	"github.com/relayhq/botgate/internal/domain"
)

// Registry resolves tenant ids to credentials. Implementations are populated
// out of band (configuration or a secret store).
type Registry interface {
	// Lookup returns the tenant registered under id, or
	// domain.ErrUnknownTenant.
	Lookup(ctx context.Context, id string) (*Tenant, error)

	// List returns all registered tenants.
	List(ctx context.Context) ([]*Tenant, error)
}

// StaticRegistry is an immutable Registry populated from configuration.
type StaticRegistry struct {
	tenants map[string]*Tenant
}

// NewStaticRegistry builds a registry from tenant configs.
func NewStaticRegistry(configs []config.TenantConfig) (*StaticRegistry, error) {
	r := &StaticRegistry{tenants: make(map[string]*Tenant, len(configs))}
	for _, cfg := range configs {
		if cfg.ID == "" {
			return nil, fmt.Errorf("tenant with empty id")
		}
		if cfg.Token == "" {
			return nil, fmt.Errorf("tenant %s: empty token", cfg.ID)
		}
		if _, ok := r.tenants[cfg.ID]; ok {
			return nil, fmt.Errorf("duplicate tenant id %s", cfg.ID)
		}
		r.tenants[cfg.ID] = &Tenant{
			ID:    cfg.ID,
			Name:  cfg.Name,
			Token: cfg.Token,
		}
	}
	return r, nil
}

// Lookup implements Registry.
func (r *StaticRegistry) Lookup(_ context.Context, id string) (*Tenant, error) {
	t, ok := r.tenants[id]
	if !ok {
		return nil, domain.ErrUnknownTenant
	}
	return t, nil
}

// List implements Registry.
func (r *StaticRegistry) List(_ context.Context) ([]*Tenant, error) {
	tenants := make([]*Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		tenants = append(tenants, t)
	}
	return tenants, nil
}
