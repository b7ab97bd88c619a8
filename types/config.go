package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
}

type ServiceConfig struct {
	Name     string          `yaml:"name" json:"name" validate:"required"`
	Version  string          `yaml:"version" json:"version" validate:"required"`
	Server   *ServerConfig   `yaml:"server" json:"server"`
	Logger   *LoggerConfig   `yaml:"logger" json:"logger"`
	Cache    *CacheConfig    `yaml:"cache" json:"cache"`
	Ledger   *LedgerConfig   `yaml:"ledger" json:"ledger"`
	Upstream *UpstreamConfig `yaml:"upstream" json:"upstream"`
	Auth     *AuthConfig     `yaml:"auth" json:"auth"`
	Events   *EventsConfig   `yaml:"events" json:"events"`
	Metrics  *MetricsConfig  `yaml:"metrics" json:"metrics"`
}

type ServerConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimitPerMin int    `yaml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	Compression     bool   `yaml:"compression" json:"compression"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" json:"level" validate:"required"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
	File   string `yaml:"file" json:"file"`
}

type CacheConfig struct {
	Namespace  string        `yaml:"namespace" json:"namespace"`
	RedisAddr  string        `yaml:"redis_addr" json:"redis_addr"`
	RedisDB    int           `yaml:"redis_db" json:"redis_db"`
	RedisPass  string        `yaml:"redis_password" json:"redis_password"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	MaxEntries int           `yaml:"max_entries" json:"max_entries"`
	SweepEvery time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

type LedgerConfig struct {
	Store         string `yaml:"store" json:"store" validate:"oneof=file clover"`
	Dir           string `yaml:"dir" json:"dir"`
	FlushInterval int    `yaml:"flush_interval_seconds" json:"flush_interval_seconds" validate:"min=1"`
}

type UpstreamConfig struct {
	BaseURL        string                `yaml:"base_url" json:"base_url" validate:"required,url"`
	Timeout        time.Duration         `yaml:"timeout" json:"timeout"`
	Retries        int                   `yaml:"retries" json:"retries" validate:"min=0"`
	CommentDepth   int                   `yaml:"comment_depth" json:"comment_depth"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests"`
}

type AuthConfig struct {
	Type      string        `yaml:"type" json:"type" validate:"oneof=local remote"`
	Secret    string        `yaml:"secret" json:"secret"`
	VerifyURL string        `yaml:"verify_url" json:"verify_url"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

type EventsConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	WebhookDB   string `yaml:"webhook_db" json:"webhook_db"`
	HookTimeout int    `yaml:"hook_timeout_seconds" json:"hook_timeout_seconds"`
	StreamURL   string `yaml:"stream_url" json:"stream_url"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
	Path      string `yaml:"path" json:"path"`
}
