package feedback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/service"
)

const (
	defaultCheckInterval = 30 * time.Minute
	defaultForcedPeriod  = 24 * time.Hour
)

// Scheduler periodically checks the feedback threshold and forces a
// retraining run once per forced period regardless of it. Triggers are
// fire-and-forget; a failed run is logged and the schedule keeps going.
type Scheduler struct {
	storage       service.Storage
	retrainer     *Retrainer
	logger        *slog.Logger
	checkInterval time.Duration
	forcedPeriod  time.Duration
	stopOnce      sync.Once
	stop          chan struct{}
	done          chan struct{}
}

// NewScheduler creates a scheduler. Non-positive intervals fall back to
// the defaults.
func NewScheduler(storage service.Storage, retrainer *Retrainer, logger *slog.Logger, checkInterval, forcedPeriod time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if checkInterval <= 0 {
		checkInterval = defaultCheckInterval
	}
	if forcedPeriod <= 0 {
		forcedPeriod = defaultForcedPeriod
	}
	return &Scheduler{
		storage:       storage,
		retrainer:     retrainer,
		logger:        logger,
		checkInterval: checkInterval,
		forcedPeriod:  forcedPeriod,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start runs an immediate threshold check and then loops until Stop or
// context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop halts the schedule and waits for the loop to exit. Does not
// interrupt a retraining run already in flight. Safe to call more than
// once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	s.checkAndRetrain(ctx)

	check := time.NewTicker(s.checkInterval)
	defer check.Stop()
	forced := time.NewTicker(s.forcedPeriod)
	defer forced.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-check.C:
			s.checkAndRetrain(ctx)
		case <-forced.C:
			s.logger.Info("Daily retraining triggered")
			if err := s.retrainer.Retrain(ctx, model.TriggerScheduled); err != nil {
				s.logger.Error("Scheduled retraining failed", "error", err)
			}
		}
	}
}

// checkAndRetrain retrains when pending feedback has crossed the adaptive
// threshold.
func (s *Scheduler) checkAndRetrain(ctx context.Context) {
	pending, err := s.storage.GetPendingCount(ctx)
	if err != nil {
		s.logger.Warn("Failed to count pending feedback", "error", err)
		return
	}
	total, err := s.storage.CountRecords(ctx)
	if err != nil {
		s.logger.Warn("Failed to count categorized items", "error", err)
		return
	}

	if pending < Threshold(total) {
		return
	}

	if err := s.retrainer.Retrain(ctx, model.TriggerThreshold); err != nil {
		s.logger.Error("Threshold retraining failed", "error", err)
	}
}
