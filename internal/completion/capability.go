package completion

import "sync"

// CapabilityCache records, per provider type, whether the backend accepts
// structured tool definitions. The cache is process-wide by design: once a
// provider type is observed rejecting a tools field, every later completion
// against that type skips the probe and goes straight to the textual
// fallback convention.
//
// Support is assumed until proven otherwise; [CapabilityCache.Seed] can
// install a weak prior from configuration. A downgrade is permanent for the
// life of the process.
//
// Safe for concurrent use.
type CapabilityCache struct {
	mu          sync.RWMutex
	noFunctions map[string]bool // provider type -> observed lack of support
}

// NewCapabilityCache returns an empty cache. Most callers should share one
// cache per process; tests create their own to stay isolated.
func NewCapabilityCache() *CapabilityCache {
	return &CapabilityCache{noFunctions: make(map[string]bool)}
}

// SupportsFunctions reports whether providerType is currently believed to
// accept structured tool definitions.
func (c *CapabilityCache) SupportsFunctions(providerType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.noFunctions[providerType]
}

// Downgrade permanently records that providerType does not support
// structured tool definitions. Returns true if this call changed the state,
// false if the type was already downgraded.
func (c *CapabilityCache) Downgrade(providerType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noFunctions[providerType] {
		return false
	}
	c.noFunctions[providerType] = true
	return true
}

// Seed installs a prior belief for providerType. Seeding with true removes
// nothing: a type already downgraded by observation stays downgraded.
func (c *CapabilityCache) Seed(providerType string, supportsFunctions bool) {
	if supportsFunctions {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noFunctions[providerType] = true
}
