package tenant

import (
	"context"
	"strings"
	"testing"

	"github.com/relayhq/botgate/internal/config"
	"github.com/relayhq/botgate/internal/domain"
)

func TestStaticRegistry_Lookup(t *testing.T) {
	r, err := NewStaticRegistry([]config.TenantConfig{
		{ID: "app-1", Name: "First Bot", Token: "token-1"},
		{ID: "app-2", Name: "Second Bot", Token: "token-2"},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	got, err := r.Lookup(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Name != "First Bot" || got.Token != "token-1" {
		t.Errorf("unexpected tenant: %+v", got)
	}

	if _, err := r.Lookup(context.Background(), "missing"); err != domain.ErrUnknownTenant {
		t.Errorf("expected ErrUnknownTenant, got %v", err)
	}

	tenants, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tenants) != 2 {
		t.Errorf("list returned %d tenants", len(tenants))
	}
}

func TestStaticRegistry_Validation(t *testing.T) {
	if _, err := NewStaticRegistry([]config.TenantConfig{{ID: "", Token: "t"}}); err == nil {
		t.Error("empty id accepted")
	}
	if _, err := NewStaticRegistry([]config.TenantConfig{{ID: "a", Token: ""}}); err == nil {
		t.Error("empty token accepted")
	}
	if _, err := NewStaticRegistry([]config.TenantConfig{
		{ID: "a", Token: "t1"},
		{ID: "a", Token: "t2"},
	}); err == nil {
		t.Error("duplicate id accepted")
	}
}

func TestMaskToken(t *testing.T) {
	if got := MaskToken("abcdefgh"); got != "abcd****" {
		t.Errorf("MaskToken = %q", got)
	}
	if got := MaskToken("ab"); got != "****" {
		t.Errorf("short MaskToken = %q", got)
	}
}

func TestTenantLogValue_MasksToken(t *testing.T) {
	tn := &Tenant{ID: "app-1", Name: "Bot", Token: "super-secret-token"}
	v := tn.LogValue().String()
	if strings.Contains(v, "super-secret-token") {
		t.Errorf("log value leaked token: %s", v)
	}
	if !strings.Contains(v, "app-1") {
		t.Errorf("log value missing tenant id: %s", v)
	}
}
