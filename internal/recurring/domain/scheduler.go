package domain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pendergraft/splitledger/internal/events"
	"github.com/pendergraft/splitledger/internal/observability/metrics"
	"github.com/pendergraft/splitledger/internal/storage"
)

// DueStore defines the storage operations needed by the scheduler.
type DueStore interface {
	ListDuePlans(ctx context.Context, now time.Time, limit int) ([]storage.RecurringPlan, error)
	AdvancePlan(ctx context.Context, id string, prev, next time.Time) (bool, error)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Tick      time.Duration
	BatchSize int
	Timeout   time.Duration
	Publisher events.Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// Scheduler emits plan.due events for recurring plans as they come due.
// Several schedulers may share a store; AdvancePlan ensures each occurrence
// is emitted once.
type Scheduler struct {
	store     DueStore
	publisher events.Publisher
	logger    *slog.Logger
	tick      time.Duration
	batch     int
	timeout   time.Duration
	now       func() time.Time
}

// NewScheduler creates a scheduler.
func NewScheduler(store DueStore, opts SchedulerOptions) *Scheduler {
	s := &Scheduler{
		store:     store,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		tick:      opts.Tick,
		batch:     opts.BatchSize,
		timeout:   opts.Timeout,
		now:       opts.Now,
	}
	if s.publisher == nil {
		s.publisher = events.Noop{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.tick <= 0 {
		s.tick = time.Minute
	}
	if s.batch <= 0 {
		s.batch = 100
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Run processes due plans on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("recurring plan scheduler started", "tick", s.tick)
	defer s.logger.Info("recurring plan scheduler stopped")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("processing due plans", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce emits one plan.due event for every plan due at or before now and
// returns how many were emitted.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()

	lctx, cancel := s.storeCtx(ctx)
	plans, err := s.store.ListDuePlans(lctx, now, s.batch)
	cancel()
	if err != nil {
		metrics.PlanDue("error")
		return 0, fmt.Errorf("listing due plans: %w", err)
	}

	emitted := 0
	for i := range plans {
		if ctx.Err() != nil {
			return emitted, ctx.Err()
		}

		p := &plans[i]
		next := NextOccurrence(p.NextDueAt, p.Interval, now)

		actx, cancel := s.storeCtx(ctx)
		won, err := s.store.AdvancePlan(actx, p.ID, p.NextDueAt, next)
		cancel()
		if err != nil {
			metrics.PlanDue("error")
			s.logger.Error("advancing plan", "plan", p.ID, "error", err)
			continue
		}
		if !won {
			// cancelled or claimed by another scheduler
			metrics.PlanDue("skipped")
			continue
		}

		metrics.PlanDue("emitted")
		emitted++

		plan := toPlan(p)
		data := planEventData(plan)
		data["dueAt"] = p.NextDueAt
		data["nextDueAt"] = next
		e := events.New(events.PlanDue, p.ID, data)
		if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
			metrics.EventPublishFailure(e.Type)
			s.logger.Warn("failed to publish event", "type", e.Type, "subject", e.Subject, "error", err)
		}
	}

	if emitted > 0 {
		s.logger.Info("recurring plans due", "emitted", emitted)
	}
	return emitted, nil
}

func (s *Scheduler) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
