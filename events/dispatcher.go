package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
)

const eventSource = "threadlens"

// Dispatcher fans published events out to three sinks: in-process
// subscribers, registered webhooks, and the optional websocket stream.
// Publish never blocks or fails the caller; the mutation that raised the
// event has already committed.
type Dispatcher struct {
	ctx         context.Context
	logger      types.Logger
	metrics     types.MetricsManager
	webhooks    *WebhookManager
	stream      *WebSocketSink
	subscribers map[string][]types.EventHandler
	subsMu      sync.RWMutex
	running     int32
}

func NewDispatcher(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *types.EventsConfig) (*Dispatcher, error) {
	webhooks, err := NewWebhookManager(ctx, logger, metrics, config)
	if err != nil {
		return nil, types.WrapError(err, "failed to create webhook manager")
	}

	d := &Dispatcher{
		ctx:         ctx,
		logger:      logger,
		metrics:     metrics,
		webhooks:    webhooks,
		subscribers: make(map[string][]types.EventHandler),
	}

	if config.StreamURL != "" {
		d.stream = NewWebSocketSink(ctx, logger, config.StreamURL)
	}

	return d, nil
}

func (d *Dispatcher) Start() error {
	if !atomic.CompareAndSwapInt32(&d.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	if err := d.webhooks.Start(); err != nil {
		atomic.StoreInt32(&d.running, 0)
		return types.WrapError(err, "failed to start webhook manager")
	}

	if d.stream != nil {
		if err := d.stream.Start(); err != nil {
			d.logger.Error("Failed to start event stream sink", zap.Error(err))
		}
	}

	d.logger.Info("Event dispatcher started")
	return nil
}

func (d *Dispatcher) Stop() error {
	if !atomic.CompareAndSwapInt32(&d.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	if d.stream != nil {
		if err := d.stream.Stop(); err != nil {
			d.logger.Error("Failed to stop event stream sink", zap.Error(err))
		}
	}

	if err := d.webhooks.Stop(); err != nil {
		d.logger.Error("Failed to stop webhook manager", zap.Error(err))
	}

	d.logger.Info("Event dispatcher stopped")
	return nil
}

func (d *Dispatcher) IsRunning() bool {
	return atomic.LoadInt32(&d.running) == 1
}

// Webhooks exposes the registry for the HTTP management endpoints.
func (d *Dispatcher) Webhooks() *WebhookManager {
	return d.webhooks
}

func (d *Dispatcher) Publish(action string, payload interface{}) {
	if !d.IsRunning() {
		return
	}

	event := types.Event{
		ID:        uuid.New().String(),
		Action:    action,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
	}

	d.subsMu.RLock()
	handlers := d.subscribers[action]
	d.subsMu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}

	go d.webhooks.Notify(event)

	if d.stream != nil {
		d.stream.Push(event)
	}

	d.recordPublish(action)
	d.logger.Debug("Event published",
		zap.String("action", action),
		zap.String("event_id", event.ID))
}

func (d *Dispatcher) Subscribe(action string, handler types.EventHandler) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	d.subscribers[action] = append(d.subscribers[action], handler)
}

func (d *Dispatcher) recordPublish(action string) {
	if d.metrics == nil {
		return
	}

	d.metrics.Counter("events_published_total", map[string]string{
		"action": action,
	}).Inc()
}
