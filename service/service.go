package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/threadlens/threadlens/auth"
	"github.com/threadlens/threadlens/cache"
	"github.com/threadlens/threadlens/config"
	"github.com/threadlens/threadlens/cron"
	"github.com/threadlens/threadlens/events"
	"github.com/threadlens/threadlens/forum"
	"github.com/threadlens/threadlens/ledger"
	"github.com/threadlens/threadlens/logger"
	"github.com/threadlens/threadlens/metrics"
	"github.com/threadlens/threadlens/server"
	"github.com/threadlens/threadlens/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const flushJobName = "ledger-flush"

// Service assembles the facade: config, logger, metrics, cache, ledger,
// upstream client, auth, events and the HTTP server, with one lifecycle
// spanning them all.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Value

	configManager *config.Manager
	logger        types.Logger
	metrics       types.MetricsManager
	cache         *cache.Store
	ledger        *ledger.Manager
	forum         *forum.Client
	dispatcher    *events.Dispatcher
	scheduler     *cron.Scheduler
	server        *server.Server
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	configManager, err := config.NewManager(configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to load configuration")
	}

	cfg := configManager.GetConfig()

	serviceLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, types.WrapError(err, "failed to create logger")
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	s := &Service{
		ctx:           serviceCtx,
		cancel:        cancel,
		done:          make(chan struct{}),
		configManager: configManager,
		logger:        serviceLogger,
	}

	s.state.Store(StateStopped)

	if err := s.buildComponents(cfg); err != nil {
		cancel()
		return nil, err
	}

	return s, nil
}

func (s *Service) buildComponents(cfg *types.ServiceConfig) error {
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsManager, err := metrics.NewPrometheusMetrics(s.logger, cfg.Metrics)
		if err != nil {
			return types.WrapError(err, "failed to create metrics")
		}
		s.metrics = metricsManager
	}

	s.cache = cache.NewStore(s.ctx, s.logger, s.metrics, cfg.Cache)

	ledgerManager, err := ledger.NewManager(s.logger, s.metrics, cfg.Ledger)
	if err != nil {
		return types.WrapError(err, "failed to create ledger")
	}
	s.ledger = ledgerManager

	s.forum = forum.NewClient(s.ctx, s.logger, cfg.Upstream)

	var verifier types.Verifier
	if cfg.Auth != nil {
		verifier, err = auth.NewVerifier(s.logger, cfg.Auth)
		if err != nil {
			return types.WrapError(err, "failed to create verifier")
		}
	}

	if cfg.Events != nil && cfg.Events.Enabled {
		dispatcher, err := events.NewDispatcher(s.ctx, s.logger, s.metrics, cfg.Events)
		if err != nil {
			return types.WrapError(err, "failed to create event dispatcher")
		}
		s.dispatcher = dispatcher
	}

	s.scheduler = cron.NewScheduler(s.ctx, s.logger, s.metrics)
	s.server = server.NewServer(s.ctx, s.logger, s.metrics, verifier, cfg.Server)

	if err := s.registerRoutes(); err != nil {
		return types.WrapError(err, "failed to register routes")
	}

	s.subscribeInvalidation()
	return nil
}

// subscribeInvalidation drops cached views of a post after its score or
// bookmark state changed, so the next read reflects the mutation.
func (s *Service) subscribeInvalidation() {
	if s.dispatcher == nil {
		return
	}

	invalidate := func(event types.Event) {
		postID := eventPostID(event)
		if postID == "" {
			return
		}
		s.cache.Delete("post:" + postID)
		s.cache.InvalidatePrefix("comments:" + postID + ":*")
		s.cache.InvalidatePrefix(cache.SearchKeyPrefix + "*")
		s.cache.InvalidatePrefix("trending:*")
	}

	s.dispatcher.Subscribe(types.EventPostVote, invalidate)
	s.dispatcher.Subscribe(types.EventPostSaved, invalidate)
	s.dispatcher.Subscribe(types.EventPostUnsaved, invalidate)
}

func eventPostID(event types.Event) string {
	switch payload := event.Payload.(type) {
	case types.VoteEvent:
		return payload.PostID
	case types.BookmarkEvent:
		return payload.PostID
	default:
		return ""
	}
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("Service is already running")
		return types.ErrServerAlreadyRunning
	}

	if err := s.startComponents(); err != nil {
		s.state.Store(StateStopped)
		if stopErr := s.stopComponents(); stopErr != nil {
			s.logger.Error("Failed to stop components after start failure", zap.Error(stopErr))
		}
		return err
	}

	s.state.Store(StateRunning)
	s.setupSignalHandling()

	cfg := s.configManager.GetConfig()
	s.logger.Info("Service started",
		zap.String("name", cfg.Name),
		zap.String("version", cfg.Version),
		zap.String("address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))
	return nil
}

func (s *Service) startComponents() error {
	if s.metrics != nil {
		if err := s.metrics.Start(); err != nil {
			return types.WrapError(err, "failed to start metrics")
		}
	}

	if err := s.ledger.Start(); err != nil {
		return types.WrapError(err, "failed to start ledger")
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Start(); err != nil {
			return types.WrapError(err, "failed to start event dispatcher")
		}
	}

	flushSpec := fmt.Sprintf("@every %ds", s.flushIntervalSeconds())
	if err := s.scheduler.Add(flushJobName, flushSpec, s.flushLedger); err != nil {
		return types.WrapError(err, "failed to schedule ledger flush")
	}
	if err := s.scheduler.Start(); err != nil {
		return types.WrapError(err, "failed to start scheduler")
	}

	if err := s.server.Start(); err != nil {
		return types.WrapError(err, "failed to start server")
	}

	return nil
}

func (s *Service) flushIntervalSeconds() int {
	cfg := s.configManager.GetConfig()
	if cfg.Ledger != nil && cfg.Ledger.FlushInterval > 0 {
		return cfg.Ledger.FlushInterval
	}
	return 5
}

func (s *Service) flushLedger() {
	if err := s.ledger.Flush(); err != nil {
		s.logger.Error("Ledger flush failed", zap.Error(err))
	}
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		s.state.Store(StateStopped)
		s.cancel()
		close(s.done)
	}()

	err := s.stopComponents()
	if err != nil {
		s.logger.Error("Service stopped with errors", zap.Error(err))
		return err
	}

	s.logger.Info("Service stopped gracefully")
	return nil
}

func (s *Service) stopComponents() error {
	var firstErr error
	record := func(component string, err error) {
		if err == nil {
			return
		}
		s.logger.Error("Component stop failed", zap.String("component", component), zap.Error(err))
		if firstErr == nil {
			firstErr = types.WrapError(err, component)
		}
	}

	if s.server != nil && s.server.IsRunning() {
		record("server", s.server.Stop())
	}
	if s.scheduler != nil && s.scheduler.IsRunning() {
		record("scheduler", s.scheduler.Stop())
	}
	if s.dispatcher != nil && s.dispatcher.IsRunning() {
		record("events", s.dispatcher.Stop())
	}
	if s.ledger != nil && s.ledger.IsRunning() {
		record("ledger", s.ledger.Stop())
	}
	if s.forum != nil {
		s.forum.Close()
	}
	if s.cache != nil {
		s.cache.Stop()
	}
	if s.metrics != nil && s.metrics.IsRunning() {
		record("metrics", s.metrics.Stop())
	}

	return firstErr
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) IsRunning() bool {
	return s.state.Load() == StateRunning
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) setupSignalHandling() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)

		select {
		case sig := <-signals:
			s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			if err := s.Stop(); err != nil {
				s.logger.Error("Shutdown failed", zap.Error(err))
			}
		case <-s.ctx.Done():
		}
	}()
}

func (s *Service) publish(action string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(action, payload)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
