package webhooks

import (
	"testing"
	"time"

	"mosaic/internal/platform/models"
)

func TestConfigCache(t *testing.T) {
	cache := NewConfigCache(time.Minute)
	cfg := &models.WebhookConfiguration{ID: "whc_1", TenantID: "tenant-a", EndpointPath: "hr-events"}

	cache.Set("tenant-a", "hr-events", cfg)

	got, ok := cache.Get("tenant-a", "hr-events")
	if !ok || got.ID != "whc_1" {
		t.Fatalf("Expected cached config, got %v ok=%v", got, ok)
	}

	// Leading separator does not change the key.
	if _, ok := cache.Get("tenant-a", "/hr-events"); !ok {
		t.Error("Expected hit for path with leading slash")
	}

	if _, ok := cache.Get("tenant-b", "hr-events"); ok {
		t.Error("Expected miss for other tenant")
	}
}

func TestConfigCache_TTL(t *testing.T) {
	cache := NewConfigCache(10 * time.Millisecond)
	cache.Set("tenant-a", "hr-events", &models.WebhookConfiguration{ID: "whc_1"})

	time.Sleep(20 * time.Millisecond)

	if _, ok := cache.Get("tenant-a", "hr-events"); ok {
		t.Error("Expected entry to expire")
	}
}

func TestConfigCache_InvalidateTenant(t *testing.T) {
	cache := NewConfigCache(time.Minute)
	cache.Set("tenant-a", "hr-events", &models.WebhookConfiguration{ID: "whc_1"})
	cache.Set("tenant-a", "pay-events", &models.WebhookConfiguration{ID: "whc_2"})
	cache.Set("tenant-b", "hr-events", &models.WebhookConfiguration{ID: "whc_3"})

	cache.InvalidateTenant("tenant-a")

	if _, ok := cache.Get("tenant-a", "hr-events"); ok {
		t.Error("Expected tenant-a entry to be invalidated")
	}
	if _, ok := cache.Get("tenant-a", "pay-events"); ok {
		t.Error("Expected tenant-a entry to be invalidated")
	}
	if _, ok := cache.Get("tenant-b", "hr-events"); !ok {
		t.Error("Expected tenant-b entry to survive")
	}
}
