package cron

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Scheduler drives the facade's background jobs, chiefly the periodic
// ledger flush. Jobs registered after Start are picked up immediately; a
// panicking job is recovered and logged, never allowed to kill the process.
type Scheduler struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	metrics types.MetricsManager
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	mu      sync.RWMutex
	state   atomic.Value
}

func NewScheduler(ctx context.Context, logger types.Logger, metrics types.MetricsManager) *Scheduler {
	schedulerCtx, cancel := context.WithCancel(ctx)

	cronLogger := &zapCronLogger{logger: logger}

	s := &Scheduler{
		ctx:     schedulerCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		jobs: make(map[string]cron.EntryID),
	}

	s.state.Store(StateStopped)
	return s
}

func (s *Scheduler) Add(jobName, spec string, job func()) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}
	if spec == "" {
		return types.ErrCronExpressionInvalid
	}
	if job == nil {
		return types.ErrCronJobIsNil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobName]; exists {
		return types.Errorf(types.ErrCronJobExists, "%q", jobName)
	}

	entryID, err := s.cron.AddFunc(spec, s.wrapJob(jobName, job))
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%q: %v", spec, err)
	}

	s.jobs[jobName] = entryID
	s.logger.Info("Scheduled job added",
		zap.String("job", jobName), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) Remove(jobName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[jobName]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, jobName)
	}
}

func (s *Scheduler) Start() error {
	if !s.state.CompareAndSwap(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	s.cron.Start()
	s.state.Store(StateRunning)

	s.logger.Info("Scheduler started")
	return nil
}

func (s *Scheduler) Stop() error {
	if !s.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		s.state.Store(StateStopped)
		s.cancel()
	}()

	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn("Scheduler stop timeout, jobs may have been interrupted")
	}

	s.logger.Info("Scheduler stopped gracefully")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	return s.state.Load() == StateRunning
}

func (s *Scheduler) wrapJob(jobName string, job func()) func() {
	return func() {
		start := time.Now()
		job()

		if s.metrics != nil {
			s.metrics.Counter("scheduler_job_runs_total", map[string]string{
				"job": jobName,
			}).Inc()
			s.metrics.Histogram("scheduler_job_duration_seconds",
				[]float64{0.001, 0.01, 0.1, 1.0, 10.0},
				map[string]string{"job": jobName},
			).ObserveDuration(start)
		}
	}
}

type zapCronLogger struct {
	logger types.Logger
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
