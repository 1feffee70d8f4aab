package cache

import "time"

// CacheService is the process-local cache used for vendor balances,
// metrics responses, and the duplicate-view fast path. Implementations
// must be safe for concurrent use.
type CacheService interface {
	// Get returns the value and true when the key is present and
	// not expired.
	Get(key string) (interface{}, bool)

	// Set stores a value for the duration; zero means the cache's
	// default TTL.
	Set(key string, value interface{}, duration time.Duration)

	// Delete drops a key. Used for invalidation after balance writes.
	Delete(key string)

	// Flush drops everything.
	Flush()
}
