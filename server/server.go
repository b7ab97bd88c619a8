package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
	"github.com/threadlens/threadlens/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Server wraps fasthttp with the facade's middleware chain: recovery,
// request logging, optional rate limiting and compression, and bearer-token
// identity resolution.
type Server struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	config          *types.ServerConfig
	router          *Router
	server          *fasthttp.Server
	verifier        types.Verifier
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewServer(ctx context.Context, logger types.Logger, metrics types.MetricsManager, verifier types.Verifier, config *types.ServerConfig) *Server {
	serverCtx, cancel := context.WithCancel(ctx)

	shutdownTimeout := time.Duration(config.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	s := &Server{
		ctx:             serverCtx,
		cancel:          cancel,
		logger:          logger,
		metrics:         metrics,
		config:          config,
		router:          NewRouter(),
		verifier:        verifier,
		shutdownTimeout: shutdownTimeout,
	}

	s.state.Store(StateStopped)
	return s
}

func (s *Server) Router() *Router {
	return s.router
}

func (s *Server) Start() error {
	if !s.state.CompareAndSwap(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if s.state.Load() == StateStarting {
			s.state.Store(StateRunning)
		}
	}()

	middlewares := []Middleware{
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger, s.metrics),
	}

	if s.config.RateLimitPerMin > 0 {
		middlewares = append(middlewares, rateLimitMiddleware(s.logger, s.config.RateLimitPerMin))
	}
	if s.config.Compression {
		middlewares = append(middlewares, compressionMiddleware())
	}
	if s.verifier != nil {
		middlewares = append(middlewares, authMiddleware(s.verifier))
	}

	s.server = &fasthttp.Server{
		Handler:      chain(s.dispatch, middlewares...),
		Name:         "threadlens",
		ReadTimeout:  secondsOrDefault(s.config.ReadTimeout, 30),
		WriteTimeout: secondsOrDefault(s.config.WriteTimeout, 30),
		IdleTimeout:  secondsOrDefault(s.config.IdleTimeout, 60),
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe(addr)
	}()

	select {
	case err := <-errCh:
		s.state.Store(StateStopped)
		return types.Errorf(types.ErrServerStartFailed, "%v", err)
	case <-time.After(100 * time.Millisecond):
	}

	s.logger.Info("HTTP server started", zap.String("addr", addr))
	return nil
}

func (s *Server) Stop() error {
	if !s.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		s.state.Store(StateStopped)
		s.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.server.ShutdownWithContext(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown did not complete cleanly", zap.Error(err))
	}

	s.logger.Info("HTTP server stopped gracefully")
	return nil
}

func (s *Server) IsRunning() bool {
	return s.state.Load() == StateRunning
}

func (s *Server) dispatch(ctx *fasthttp.RequestCtx) {
	handler := s.router.Lookup(ctx)
	if handler == nil {
		writeError(ctx, fasthttp.StatusNotFound, "not found")
		return
	}

	handler(ctx)
}

func secondsOrDefault(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

func WriteJSON(ctx *fasthttp.RequestCtx, statusCode int, payload interface{}) {
	data, err := utils.Marshal(payload)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, "failed to encode response")
		return
	}

	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(data)
}

func WriteError(ctx *fasthttp.RequestCtx, statusCode int, message string) {
	writeError(ctx, statusCode, message)
}

func writeError(ctx *fasthttp.RequestCtx, statusCode int, message string) {
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBodyString(fmt.Sprintf(`{"error":%q}`, message))
}
