// Package scheduler owns one repeating poll timer per entity.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"datewatch/internal/telemetry"
	"datewatch/internal/tracker"
)

// CycleRunner executes poll cycles. TryRun must skip when a cycle for
// the same entity is still in flight.
type CycleRunner interface {
	TryRun(ctx context.Context, identity string) (tracker.CycleStatus, error)
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler maps entity identities to cancellable timer goroutines.
// Each entity's timer is independent; cycles for different entities
// never block one another.
type Scheduler struct {
	runner CycleRunner
	store  tracker.EntityStore
	logger *zap.Logger

	mu     sync.Mutex
	timers map[string]*handle

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New constructs a Scheduler.
func New(runner CycleRunner, store tracker.EntityStore, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:  runner,
		store:   store,
		logger:  logger,
		timers:  make(map[string]*handle),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Start begins polling the entity at its configured interval. Starting
// an entity that is already polling is a no-op.
func (s *Scheduler) Start(identity string) error {
	ent, err := s.store.Get(identity)
	if err != nil {
		return err
	}
	interval := ent.PollInterval()
	if interval <= 0 {
		return tracker.NewConfigError("poll_interval_seconds", "must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.timers[identity]; running {
		return nil
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	h := &handle{cancel: cancel, done: make(chan struct{})}
	s.timers[identity] = h
	if err := s.store.SetPolling(identity, true); err != nil {
		cancel()
		delete(s.timers, identity)
		return err
	}
	telemetry.SetEntitiesPolling(len(s.timers))

	go s.run(ctx, identity, interval, h)
	s.logger.Info("polling started",
		zap.String("identity", identity),
		zap.Duration("interval", interval),
	)
	return nil
}

// Stop cancels the entity's timer. An in-flight cycle runs to
// completion. Idempotent if already stopped.
func (s *Scheduler) Stop(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(identity)
}

// Restart stops and starts the timer so a new interval takes effect.
func (s *Scheduler) Restart(identity string) error {
	s.Stop(identity)
	return s.Start(identity)
}

// IsRunning reports whether the entity has an active timer.
func (s *Scheduler) IsRunning(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, running := s.timers[identity]
	return running
}

// StopAll cancels every timer and waits for the loops to exit, bounded
// by ctx.
func (s *Scheduler) StopAll(ctx context.Context) error {
	s.mu.Lock()
	handles := make([]*handle, 0, len(s.timers))
	for identity := range s.timers {
		handles = append(handles, s.timers[identity])
	}
	for identity := range s.timers {
		s.stopLocked(identity)
	}
	s.cancel()
	s.mu.Unlock()

	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			s.logger.Warn("scheduler shutdown timed out", zap.Error(ctx.Err()))
			return ctx.Err()
		}
	}
	s.logger.Debug("scheduler stopped")
	return nil
}

func (s *Scheduler) stopLocked(identity string) {
	h, running := s.timers[identity]
	if !running {
		return
	}
	h.cancel()
	delete(s.timers, identity)
	if err := s.store.SetPolling(identity, false); err != nil && !errors.Is(err, tracker.ErrNotFound) {
		s.logger.Warn("clear polling flag failed", zap.String("identity", identity), zap.Error(err))
	}
	telemetry.SetEntitiesPolling(len(s.timers))
	s.logger.Info("polling stopped", zap.String("identity", identity))
}

func (s *Scheduler) run(ctx context.Context, identity string, interval time.Duration, h *handle) {
	defer close(h.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Detach the cycle from the timer context so stopping the
			// timer never aborts a cycle that already started.
			status, err := s.runner.TryRun(context.WithoutCancel(ctx), identity)
			if errors.Is(err, tracker.ErrNotFound) {
				s.logger.Info("entity gone, stopping timer", zap.String("identity", identity))
				s.Stop(identity)
				return
			}
			if err != nil {
				s.logger.Error("scheduled cycle failed", zap.String("identity", identity), zap.Error(err))
				continue
			}
			s.logger.Debug("scheduled cycle finished",
				zap.String("identity", identity),
				zap.String("status", string(status)),
			)
		case <-ctx.Done():
			return
		}
	}
}
