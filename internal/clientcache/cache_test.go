package clientcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/relayhq/botgate/internal/config"
	"github.com/relayhq/botgate/internal/domain"
	"github.com/relayhq/botgate/internal/tenant"
)

type fakeClient struct {
	tenantID string
	closed   atomic.Bool
}

func (c *fakeClient) Do(context.Context, string, string, []byte) (*domain.Result, error) {
	return &domain.Result{Status: 200}, nil
}

func (c *fakeClient) Close() {
	c.closed.Store(true)
}

func newTestCache(t *testing.T, maxClients int, constructed *atomic.Int64) *Cache {
	t.Helper()

	registry, err := tenant.NewStaticRegistry([]config.TenantConfig{
		{ID: "app-1", Name: "First", Token: "token-1"},
		{ID: "app-2", Name: "Second", Token: "token-2"},
		{ID: "app-3", Name: "Third", Token: "token-3"},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	factory := func(tn *tenant.Tenant) (domain.OutboundClient, error) {
		if constructed != nil {
			constructed.Add(1)
		}
		return &fakeClient{tenantID: tn.ID}, nil
	}

	cache, err := New(registry, factory, maxClients, nil)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	return cache
}

func TestResolve_CachesClient(t *testing.T) {
	var constructed atomic.Int64
	cache := newTestCache(t, 8, &constructed)

	first, err := cache.Resolve(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := cache.Resolve(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}

	if first != second {
		t.Error("second resolution returned a different client")
	}
	if n := constructed.Load(); n != 1 {
		t.Errorf("constructed %d clients, want 1", n)
	}
}

func TestResolve_UnknownTenant(t *testing.T) {
	cache := newTestCache(t, 8, nil)

	_, err := cache.Resolve(context.Background(), "missing")
	if err != domain.ErrUnknownTenant {
		t.Fatalf("expected ErrUnknownTenant, got %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("cache grew on failed resolution: %d", cache.Len())
	}
}

func TestResolve_ConcurrentSingleConstruction(t *testing.T) {
	var constructed atomic.Int64
	cache := newTestCache(t, 8, &constructed)

	const goroutines = 32
	clients := make([]domain.OutboundClient, goroutines)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			client, err := cache.Resolve(context.Background(), "app-1")
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			clients[i] = client
		}(i)
	}
	close(start)
	wg.Wait()

	if n := constructed.Load(); n != 1 {
		t.Errorf("constructed %d clients under concurrency, want 1", n)
	}
	for i := 1; i < goroutines; i++ {
		if clients[i] != clients[0] {
			t.Fatalf("goroutine %d got a different client instance", i)
		}
	}
}

func TestResolve_DistinctTenantsDistinctClients(t *testing.T) {
	cache := newTestCache(t, 8, nil)

	a, _ := cache.Resolve(context.Background(), "app-1")
	b, _ := cache.Resolve(context.Background(), "app-2")

	if a == b {
		t.Error("different tenants shared one client")
	}
	if cache.Len() != 2 {
		t.Errorf("cache len = %d, want 2", cache.Len())
	}
}

func TestInvalidate_ClosesClient(t *testing.T) {
	cache := newTestCache(t, 8, nil)

	client, _ := cache.Resolve(context.Background(), "app-1")
	if !cache.Invalidate("app-1") {
		t.Fatal("invalidate reported no cached client")
	}
	if !client.(*fakeClient).closed.Load() {
		t.Error("invalidated client was not closed")
	}
	if cache.Invalidate("app-1") {
		t.Error("second invalidate reported a cached client")
	}
}

func TestEviction_ClosesOldestClient(t *testing.T) {
	cache := newTestCache(t, 2, nil)

	first, _ := cache.Resolve(context.Background(), "app-1")
	cache.Resolve(context.Background(), "app-2")
	cache.Resolve(context.Background(), "app-3")

	if cache.Len() != 2 {
		t.Fatalf("cache len = %d, want 2", cache.Len())
	}
	if !first.(*fakeClient).closed.Load() {
		t.Error("evicted client was not closed")
	}
}
