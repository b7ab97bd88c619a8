package types

import (
	"time"
)

// Cache is the contract the rest of the service is written against. All
// operations are fail-open: a backend failure is logged and surfaced as a
// miss or a no-op, never as an error to the caller.
type Cache interface {
	Get(key string) (interface{}, bool)
	GetJSON(key string, target interface{}) bool
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string)
	InvalidatePrefix(pattern string)
	Stop()
}

// CacheBackend is the raw storage strategy behind a Cache. Implementations
// may return errors; the Cache facade swallows them.
type CacheBackend interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, data []byte, ttl time.Duration) error
	Delete(key string) error
	DeletePrefix(prefix string) error
	Close() error
}

// CacheEntry is the JSON envelope stored by backends. An entry is logically
// absent once now exceeds StoredAt + TTL; callers cannot distinguish an
// expired entry from a true miss.
type CacheEntry struct {
	Data     interface{} `json:"data"`
	StoredAt int64       `json:"stored_at_ms"`
	TTL      int32       `json:"ttl_seconds"`
}

func (e *CacheEntry) Expired(now time.Time) bool {
	return now.UnixMilli() > e.StoredAt+int64(e.TTL)*1000
}
