package transceiver

import (
	"sort"
	"sync"
)

// CacheEntry is what the transceiver remembers about one sensor.
// BackendID is zero until the backend has acknowledged a reading.
type CacheEntry struct {
	Name      string `json:"sensorName"`
	LastValue int64  `json:"lastValue"`
	BackendID int64  `json:"id"`
}

// Classification is the outcome of IdentityCache.Classify.
type Classification struct {
	// IsNewSensor is true the first time a sensor name is seen.
	IsNewSensor bool

	// KnownID is the backend id to update, or 0 when the reading must be
	// offered as new.
	KnownID int64
}

// IdentityCache maps sensor names to their last value and backend id.
//
// Entries are created on first sight and never removed; the cache lives for
// the process and starts empty on every run.
//
// Thread Safety: All methods are safe for concurrent use.
type IdentityCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
}

// NewIdentityCache returns an empty cache.
func NewIdentityCache() *IdentityCache {
	return &IdentityCache{entries: make(map[string]*CacheEntry)}
}

// Classify decides how a reading is dispatched and updates the cache.
//
//   - unknown name: entry created with no id; new sensor, no id
//   - same value as last time: the stored id (may be 0)
//   - different value: last value replaced; no id
func (c *IdentityCache) Classify(name string, value int64) Classification {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[name]
	if !ok {
		c.entries[name] = &CacheEntry{Name: name, LastValue: value}
		return Classification{IsNewSensor: true}
	}

	if entry.LastValue == value {
		return Classification{KnownID: entry.BackendID}
	}

	entry.LastValue = value
	return Classification{}
}

// RecordBackendID stores the id the backend assigned to name.
// It reports whether an entry existed; unknown names are ignored.
func (c *IdentityCache) RecordBackendID(name string, id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[name]
	if !ok {
		return false
	}
	entry.BackendID = id
	return true
}

// Lookup returns a copy of the entry for name.
func (c *IdentityCache) Lookup(name string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[name]
	if !ok {
		return CacheEntry{}, false
	}
	return *entry, true
}

// Len returns the number of known sensors.
func (c *IdentityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of every entry, sorted by name.
func (c *IdentityCache) Snapshot() []CacheEntry {
	c.mu.RLock()
	out := make([]CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
