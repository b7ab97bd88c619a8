package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/threadlens/threadlens/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(configPath string) (*types.ServiceConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.WrapError(err, "file not found: "+configPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := l.readFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.WrapError(err, "failed to parse YAML config")
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, types.WrapError(err, "config validation failed")
	}

	return config, nil
}

func (l *Loader) readFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Server: &types.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30,
			WriteTimeout:    30,
			IdleTimeout:     120,
			ShutdownTimeout: 10,
			RateLimitPerMin: 600,
			Compression:     true,
		},
		Logger: &types.LoggerConfig{
			Level:  "debug",
			Format: "console",
			Output: "stdout",
		},
		Cache: &types.CacheConfig{
			Namespace:  "threadlens",
			DefaultTTL: 5 * time.Minute,
			MaxEntries: 1000,
			SweepEvery: time.Minute,
		},
		Ledger: &types.LedgerConfig{
			Store:         "file",
			Dir:           "./data",
			FlushInterval: 5,
		},
		Upstream: &types.UpstreamConfig{
			BaseURL:      "http://localhost:8536",
			Timeout:      10 * time.Second,
			Retries:      2,
			CommentDepth: 8,
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				RecoveryTimeout:  30 * time.Second,
				HalfOpenRequests: 2,
			},
		},
		Auth: &types.AuthConfig{
			Type:    "local",
			Timeout: 5 * time.Second,
		},
		Events: &types.EventsConfig{
			Enabled:     false,
			WebhookDB:   "./data/webhooks.db",
			HookTimeout: 10,
		},
		Metrics: &types.MetricsConfig{
			Enabled:   true,
			Namespace: "threadlens",
			Path:      "/metrics",
		},
	}
}
