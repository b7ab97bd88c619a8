package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
	"github.com/threadlens/threadlens/utils"
)

type SinkState int32

const (
	SinkStateStopped SinkState = iota
	SinkStateRunning
	SinkStateReconnecting
	SinkStateStopping
)

const (
	sinkSendBuffer    = 256
	sinkWriteWait     = 10 * time.Second
	sinkPingInterval  = 30 * time.Second
	sinkReconnectWait = 5 * time.Second
)

// WebSocketSink streams published events to a downstream consumer over a
// persistent websocket connection. Events queued while the connection is
// down are dropped once the send buffer fills; the stream is a best-effort
// live feed, not a durable queue.
type WebSocketSink struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger types.Logger
	url    string
	conn   *websocket.Conn
	connMu sync.RWMutex
	send   chan types.Event
	done   chan struct{}
	state  atomic.Value
}

func NewWebSocketSink(ctx context.Context, logger types.Logger, url string) *WebSocketSink {
	sinkCtx, cancel := context.WithCancel(ctx)

	s := &WebSocketSink{
		ctx:    sinkCtx,
		cancel: cancel,
		logger: logger,
		url:    url,
		send:   make(chan types.Event, sinkSendBuffer),
		done:   make(chan struct{}),
	}

	s.state.Store(SinkStateStopped)
	return s
}

func (s *WebSocketSink) Start() error {
	if !s.state.CompareAndSwap(SinkStateStopped, SinkStateRunning) {
		return types.ErrServerAlreadyRunning
	}

	go s.writeLoop()

	s.logger.Info("Event stream sink started", zap.String("url", s.url))
	return nil
}

func (s *WebSocketSink) Stop() error {
	current := s.state.Load().(SinkState)
	if current == SinkStateStopped || current == SinkStateStopping {
		return types.ErrServerNotRunning
	}
	s.state.Store(SinkStateStopping)

	s.cancel()

	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("Event stream sink stop timeout")
	}

	s.closeConn()
	s.state.Store(SinkStateStopped)

	s.logger.Info("Event stream sink stopped")
	return nil
}

func (s *WebSocketSink) IsRunning() bool {
	state := s.state.Load().(SinkState)
	return state == SinkStateRunning || state == SinkStateReconnecting
}

// Push queues an event for streaming. Never blocks the publisher.
func (s *WebSocketSink) Push(event types.Event) {
	if !s.IsRunning() {
		return
	}

	select {
	case s.send <- event:
	default:
		s.logger.Warn("Event stream buffer full, dropping event",
			zap.String("action", event.Action),
			zap.String("event_id", event.ID))
	}
}

func (s *WebSocketSink) writeLoop() {
	defer close(s.done)

	ping := time.NewTicker(sinkPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.send:
			if err := s.writeEvent(event); err != nil {
				s.logger.Warn("Event stream write failed",
					zap.String("action", event.Action), zap.Error(err))
				s.reconnect()
			}
		case <-ping.C:
			if conn := s.getConn(); conn != nil {
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(sinkWriteWait))
			}
		}
	}
}

func (s *WebSocketSink) writeEvent(event types.Event) error {
	conn := s.getConn()
	if conn == nil {
		dialed, err := s.dial()
		if err != nil {
			return err
		}
		conn = dialed
	}

	data, err := utils.Marshal(event)
	if err != nil {
		return types.WrapError(err, "failed to marshal event")
	}

	_ = conn.SetWriteDeadline(time.Now().Add(sinkWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *WebSocketSink) dial() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		return nil, types.WrapError(err, "failed to dial event stream")
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.state.CompareAndSwap(SinkStateReconnecting, SinkStateRunning)
	s.logger.Info("Event stream connected", zap.String("url", s.url))
	return conn, nil
}

func (s *WebSocketSink) reconnect() {
	s.closeConn()
	s.state.CompareAndSwap(SinkStateRunning, SinkStateReconnecting)

	select {
	case <-time.After(sinkReconnectWait):
	case <-s.ctx.Done():
	}
}

func (s *WebSocketSink) getConn() *websocket.Conn {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn
}

func (s *WebSocketSink) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
