package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
)

const (
	MaxTTL     = 24 * time.Hour
	DefaultTTL = 5 * time.Minute
)

type memoryEntry struct {
	data      []byte
	createdAt time.Time
	expiresAt time.Time
}

// MemoryBackend is the in-process fallback store: a map with delete-on-read
// expiry, a periodic sweep, and a bounded reap pass once the entry count
// crosses the high-water mark.
type MemoryBackend struct {
	logger     types.Logger
	maxEntries int
	data       map[string]*memoryEntry
	hits       uint64
	misses     uint64
	evictions  uint64
	mu         sync.RWMutex
	stopSweep  chan struct{}
	sweepDone  chan struct{}
	closed     int32
}

func NewMemoryBackend(logger types.Logger, maxEntries int, sweepInterval time.Duration) *MemoryBackend {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	m := &MemoryBackend{
		logger:     logger,
		maxEntries: maxEntries,
		data:       make(map[string]*memoryEntry),
		stopSweep:  make(chan struct{}),
		sweepDone:  make(chan struct{}),
	}

	go m.sweepLoop(sweepInterval)

	return m
}

func (m *MemoryBackend) Get(key string) ([]byte, bool, error) {
	now := time.Now()

	m.mu.RLock()
	entry, exists := m.data[key]
	if !exists {
		m.mu.RUnlock()
		atomic.AddUint64(&m.misses, 1)
		return nil, false, nil
	}

	if now.After(entry.expiresAt) {
		m.mu.RUnlock()
		m.mu.Lock()
		if entry, exists := m.data[key]; exists && now.After(entry.expiresAt) {
			delete(m.data, key)
		}
		m.mu.Unlock()

		atomic.AddUint64(&m.misses, 1)
		return nil, false, nil
	}

	data := entry.data
	m.mu.RUnlock()

	atomic.AddUint64(&m.hits, 1)
	return data, true, nil
}

func (m *MemoryBackend) Set(key string, data []byte, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := time.Now()
	entry := &memoryEntry{
		data:      data,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; !exists && len(m.data) >= m.maxEntries {
		m.reapUnsafe(now)
	}

	m.data[key] = entry
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) DeletePrefix(prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
		}
	}
	return nil
}

func (m *MemoryBackend) Close() error {
	if !atomic.CompareAndSwapInt32(&m.closed, 0, 1) {
		return nil
	}

	close(m.stopSweep)

	select {
	case <-m.sweepDone:
	case <-time.After(time.Second):
		m.logger.Warn("Memory cache sweep loop stop timeout")
	}

	m.mu.Lock()
	cleared := len(m.data)
	m.data = make(map[string]*memoryEntry)
	m.mu.Unlock()

	m.logger.Info("Memory cache cleared", zap.Int("cleared_entries", cleared))
	return nil
}

func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// reapUnsafe drops expired entries in one O(n) pass; if nothing expired it
// evicts the oldest entry so the map never exceeds the high-water mark.
// Caller holds the write lock.
func (m *MemoryBackend) reapUnsafe(now time.Time) {
	reaped := 0
	for key, entry := range m.data {
		if now.After(entry.expiresAt) {
			delete(m.data, key)
			reaped++
		}
	}

	if reaped > 0 {
		atomic.AddUint64(&m.evictions, uint64(reaped))
		m.logger.Debug("Cache reap completed", zap.Int("expired_entries", reaped))
		return
	}

	var oldestKey string
	var oldestTime time.Time
	for key, entry := range m.data {
		if oldestKey == "" || entry.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.createdAt
		}
	}

	if oldestKey != "" {
		delete(m.data, oldestKey)
		atomic.AddUint64(&m.evictions, 1)
	}
}

func (m *MemoryBackend) sweepLoop(interval time.Duration) {
	defer close(m.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			expired := 0
			for key, entry := range m.data {
				if now.After(entry.expiresAt) {
					delete(m.data, key)
					expired++
				}
			}
			m.mu.Unlock()

			if expired > 0 {
				m.logger.Debug("Cache sweep completed", zap.Int("expired_entries", expired))
			}
		}
	}
}
