package webhooks

import (
	"strings"
	"sync"
	"time"

	"mosaic/internal/platform/models"
)

type cachedConfig struct {
	config   *models.WebhookConfiguration
	cachedAt time.Time
}

// ConfigCache keeps resolved configurations close to the hot ingestion
// path. Entries expire on a TTL and the whole tenant is invalidated on
// every create or update so stale auth parameters are never served.
type ConfigCache struct {
	store sync.Map // map[tenantID+"\x00"+path]*cachedConfig
	ttl   time.Duration
}

func NewConfigCache(ttl time.Duration) *ConfigCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ConfigCache{ttl: ttl}
}

func (c *ConfigCache) Get(tenantID, path string) (*models.WebhookConfiguration, bool) {
	val, ok := c.store.Load(cacheKey(tenantID, path))
	if !ok {
		return nil, false
	}

	entry := val.(*cachedConfig)
	if time.Since(entry.cachedAt) > c.ttl {
		c.store.Delete(cacheKey(tenantID, path))
		return nil, false
	}
	return entry.config, true
}

func (c *ConfigCache) Set(tenantID, path string, cfg *models.WebhookConfiguration) {
	c.store.Store(cacheKey(tenantID, path), &cachedConfig{
		config:   cfg,
		cachedAt: time.Now(),
	})
}

// InvalidateTenant drops every cached entry for the tenant.
func (c *ConfigCache) InvalidateTenant(tenantID string) {
	prefix := tenantID + "\x00"
	c.store.Range(func(key, _ interface{}) bool {
		if strings.HasPrefix(key.(string), prefix) {
			c.store.Delete(key)
		}
		return true
	})
}

func cacheKey(tenantID, path string) string {
	return tenantID + "\x00" + strings.TrimPrefix(path, "/")
}
