package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pendergraft/splitledger/internal/apperr"
	"github.com/pendergraft/splitledger/internal/events"
	"github.com/pendergraft/splitledger/internal/storage"
	"github.com/pendergraft/splitledger/internal/validation"
)

// Common errors returned by the plan service.
var (
	ErrNotFound        = errors.New("plan not found")
	ErrInvalidAddress  = errors.New("invalid payer address")
	ErrInvalidCampaign = errors.New("invalid campaign id")
	ErrInvalidChainID  = errors.New("invalid chain ID")
	ErrInvalidInterval = errors.New("interval must be at least one minute")
	ErrInvalidAmount   = errors.New("amount must not be negative")
	ErrForbidden       = errors.New("only the payer may cancel a plan")
)

// PlanStore defines the storage operations needed by the plan service.
type PlanStore interface {
	CreatePlan(ctx context.Context, plan *storage.RecurringPlan) error
	GetPlan(ctx context.Context, id string) (*storage.RecurringPlan, error)
	ListPlans(ctx context.Context, filter storage.PlanFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.RecurringPlan], error)
	DeactivatePlan(ctx context.Context, id string) error
}

// Options configures a plan service.
type Options struct {
	Timeout   time.Duration
	Publisher events.Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

type service struct {
	store     PlanStore
	publisher events.Publisher
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// NewService creates a new plan service.
func NewService(store PlanStore, opts Options) *service {
	s := &service{
		store:     store,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		timeout:   opts.Timeout,
		now:       opts.Now,
	}
	if s.publisher == nil {
		s.publisher = events.Noop{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create validates and stores a new active plan.
func (s *service) Create(ctx context.Context, req CreatePlanRequest) (*Plan, error) {
	const op = "plans.Create"

	if err := validation.ValidateCampaignID(req.CampaignID); err != nil {
		return nil, apperr.Validation(op, "campaign", fmt.Errorf("%w: %v", ErrInvalidCampaign, err))
	}
	payer, err := validation.NormalizeAddress(req.Payer)
	if err != nil {
		return nil, apperr.Validation(op, "payer", fmt.Errorf("%w: %v", ErrInvalidAddress, err))
	}
	if err := validation.ValidateChainID(req.ChainID); err != nil {
		return nil, apperr.Validation(op, "chainId", fmt.Errorf("%w: %v", ErrInvalidChainID, err))
	}
	if req.Interval < MinInterval {
		return nil, apperr.Validation(op, "interval", fmt.Errorf("%w: got %s", ErrInvalidInterval, req.Interval))
	}
	if req.Amount < 0 {
		return nil, apperr.Validation(op, "amount", ErrInvalidAmount)
	}

	now := s.now().UTC()
	start := req.StartAt.UTC()
	if req.StartAt.IsZero() {
		start = now
	}

	// the store keeps whole seconds
	record := &storage.RecurringPlan{
		CampaignID: req.CampaignID,
		Payer:      payer,
		ChainID:    req.ChainID,
		Amount:     req.Amount,
		Interval:   req.Interval.Truncate(time.Second),
		NextDueAt:  start.Truncate(time.Microsecond),
		Active:     true,
		CreatedAt:  now,
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.CreatePlan(sctx, record); err != nil {
		return nil, apperr.Persistence(op, "payer="+payer, fmt.Errorf("creating plan: %w", err))
	}

	plan := toPlan(record)
	s.publish(ctx, events.PlanCreated, plan)
	return plan, nil
}

// Get retrieves a plan by id.
func (s *service) Get(ctx context.Context, id string) (*Plan, error) {
	return s.load(ctx, "plans.Get", id)
}

// List lists plans with filtering and pagination.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	const op = "plans.List"

	if filter.Payer != "" {
		payer, err := validation.NormalizeAddress(filter.Payer)
		if err != nil {
			return nil, apperr.Validation(op, "payer", fmt.Errorf("%w: %v", ErrInvalidAddress, err))
		}
		filter.Payer = payer
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	result, err := s.store.ListPlans(sctx, storage.PlanFilter{
		CampaignID: filter.CampaignID,
		Payer:      filter.Payer,
		Active:     filter.Active,
	}, storage.PaginationParams{Limit: pagination.Limit, Cursor: pagination.Cursor})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			return nil, apperr.Validation(op, "cursor", err)
		}
		return nil, apperr.Persistence(op, "", fmt.Errorf("listing plans: %w", err))
	}

	plans := make([]Plan, len(result.Data))
	for i := range result.Data {
		plans[i] = *toPlan(&result.Data[i])
	}
	return &ListResult{Plans: plans, HasMore: result.HasMore, NextCursor: result.NextCursor}, nil
}

// Cancel deactivates a plan. Cancelling an inactive plan is a no-op.
func (s *service) Cancel(ctx context.Context, id, actor string) (*Plan, error) {
	const op = "plans.Cancel"

	plan, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}

	normalized, err := validation.NormalizeAddress(actor)
	if err != nil || normalized != plan.Payer {
		return nil, apperr.Authorization(op, "actor="+actor, ErrForbidden)
	}
	if !plan.Active {
		return plan, nil
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.DeactivatePlan(sctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound(op, "id="+id, ErrNotFound)
		}
		return nil, apperr.Persistence(op, "id="+id, fmt.Errorf("cancelling plan: %w", err))
	}

	plan.Active = false
	s.publish(ctx, events.PlanCancelled, plan)
	return plan, nil
}

func (s *service) load(ctx context.Context, op, id string) (*Plan, error) {
	if id == "" {
		return nil, apperr.Validation(op, "", errors.New("plan id is required"))
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	record, err := s.store.GetPlan(sctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound(op, "id="+id, ErrNotFound)
		}
		return nil, apperr.Persistence(op, "id="+id, fmt.Errorf("getting plan: %w", err))
	}
	return toPlan(record), nil
}

func (s *service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *service) publish(ctx context.Context, typ string, plan *Plan) {
	e := events.New(typ, plan.ID, planEventData(plan))
	if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("failed to publish event", "type", typ, "subject", e.Subject, "error", err)
	}
}

func planEventData(p *Plan) map[string]any {
	return map[string]any{
		"campaignId":      p.CampaignID,
		"payer":           p.Payer,
		"chainId":         p.ChainID,
		"amount":          p.Amount,
		"intervalSeconds": int64(p.Interval / time.Second),
		"nextDueAt":       p.NextDueAt,
		"active":          p.Active,
	}
}

func toPlan(r *storage.RecurringPlan) *Plan {
	return &Plan{
		ID:         r.ID,
		CampaignID: r.CampaignID,
		Payer:      r.Payer,
		ChainID:    r.ChainID,
		Amount:     r.Amount,
		Interval:   r.Interval,
		NextDueAt:  r.NextDueAt,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
	}
}
