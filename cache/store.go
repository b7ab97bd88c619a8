package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
	"github.com/threadlens/threadlens/utils"
)

// Store is the fail-open cache facade the rest of the service talks to.
// The backend is chosen once, lazily, on first use: if a Redis address is
// configured and reachable it wins; any failure falls back permanently to
// the in-process map for the rest of the process lifetime. A storage-layer
// failure after that is logged and surfaced as a miss or a no-op, because
// cache unavailability must never fail the surrounding request.
type Store struct {
	ctx         context.Context
	logger      types.Logger
	metrics     types.MetricsManager
	config      *types.CacheConfig
	namespace   string
	backend     types.CacheBackend
	backendOnce sync.Once
}

// envelope mirrors types.CacheEntry with the payload kept raw so callers can
// decode it into their own types.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	StoredAt int64           `json:"stored_at_ms"`
	TTL      int32           `json:"ttl_seconds"`
}

func (e *envelope) expired(now time.Time) bool {
	return now.UnixMilli() > e.StoredAt+int64(e.TTL)*1000
}

func NewStore(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *types.CacheConfig) *Store {
	namespace := config.Namespace
	if namespace == "" {
		namespace = "threadlens"
	}

	return &Store{
		ctx:       ctx,
		logger:    logger,
		metrics:   metrics,
		config:    config,
		namespace: namespace + ":",
	}
}

func (s *Store) Get(key string) (interface{}, bool) {
	var value interface{}
	if !s.GetJSON(key, &value) {
		return nil, false
	}
	return value, true
}

func (s *Store) GetJSON(key string, target interface{}) bool {
	start := time.Now()

	raw, ok := s.getRaw(key)
	if !ok {
		s.recordMetric("get", "miss", start)
		return false
	}

	if err := utils.Unmarshal(raw, target); err != nil {
		s.logger.Warn("Failed to unmarshal cached payload",
			zap.String("key", key), zap.Error(err))
		s.Delete(key)
		s.recordMetric("get", "miss", start)
		return false
	}

	s.recordMetric("get", "hit", start)
	return true
}

func (s *Store) Set(key string, value interface{}, ttl time.Duration) {
	start := time.Now()

	if key == "" {
		s.logger.Warn("Attempted to set cache entry with empty key")
		return
	}

	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	entry := types.CacheEntry{
		Data:     value,
		StoredAt: time.Now().UnixMilli(),
		TTL:      int32(ttl / time.Second),
	}

	data, err := utils.Marshal(entry)
	if err != nil {
		s.logger.Warn("Failed to marshal cache entry",
			zap.String("key", key), zap.Error(err))
		s.recordMetric("set", "error", start)
		return
	}

	if err := s.selectBackend().Set(s.namespace+key, data, ttl); err != nil {
		s.logger.Warn("Cache set failed",
			zap.String("key", key), zap.Error(err))
		s.recordMetric("set", "error", start)
		return
	}

	s.recordMetric("set", "success", start)
}

func (s *Store) Delete(key string) {
	start := time.Now()

	if err := s.selectBackend().Delete(s.namespace + key); err != nil {
		s.logger.Warn("Cache delete failed",
			zap.String("key", key), zap.Error(err))
		s.recordMetric("delete", "error", start)
		return
	}

	s.recordMetric("delete", "success", start)
}

// InvalidatePrefix deletes every key whose name starts with the literal
// prefix obtained by stripping a trailing wildcard marker from pattern.
// "communities:*" removes "communities:list" but not "all-communities:list".
func (s *Store) InvalidatePrefix(pattern string) {
	start := time.Now()

	prefix := pattern
	for len(prefix) > 0 && prefix[len(prefix)-1] == '*' {
		prefix = prefix[:len(prefix)-1]
	}

	if prefix == "" {
		s.logger.Warn("Refusing to invalidate empty prefix", zap.String("pattern", pattern))
		return
	}

	if err := s.selectBackend().DeletePrefix(s.namespace + prefix); err != nil {
		s.logger.Warn("Cache prefix invalidation failed",
			zap.String("prefix", prefix), zap.Error(err))
		s.recordMetric("invalidate", "error", start)
		return
	}

	s.recordMetric("invalidate", "success", start)
}

func (s *Store) Stop() {
	if s.backend == nil {
		return
	}

	if err := s.backend.Close(); err != nil {
		s.logger.Error("Failed to close cache backend", zap.Error(err))
	}
}

func (s *Store) getRaw(key string) ([]byte, bool) {
	data, ok, err := s.selectBackend().Get(s.namespace + key)
	if err != nil {
		s.logger.Warn("Cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var env envelope
	if err := utils.Unmarshal(data, &env); err != nil {
		s.logger.Warn("Failed to unmarshal cache envelope",
			zap.String("key", key), zap.Error(err))
		_ = s.selectBackend().Delete(s.namespace + key)
		return nil, false
	}

	if env.expired(time.Now()) {
		_ = s.selectBackend().Delete(s.namespace + key)
		return nil, false
	}

	return env.Data, true
}

// selectBackend resolves the backend exactly once. A Redis connection
// failure here is final: the store never retries the remote mid-session.
func (s *Store) selectBackend() types.CacheBackend {
	s.backendOnce.Do(func() {
		if s.config.RedisAddr != "" {
			backend, err := NewRedisBackend(s.ctx, s.logger, s.config)
			if err == nil {
				s.logger.Info("Cache backed by redis",
					zap.String("addr", s.config.RedisAddr))
				s.backend = backend
				return
			}

			s.logger.Warn("Redis unavailable, falling back to in-process cache",
				zap.String("addr", s.config.RedisAddr), zap.Error(err))
		}

		s.backend = NewMemoryBackend(s.logger, s.config.MaxEntries, s.config.SweepEvery)
		s.logger.Info("Cache backed by in-process map",
			zap.Int("max_entries", s.config.MaxEntries))
	})

	return s.backend
}

func (s *Store) recordMetric(operation, result string, start time.Time) {
	if s.metrics == nil {
		return
	}

	s.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	}).Inc()

	s.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	).ObserveDuration(start)
}
