package domain

import (
	"context"
	"log/slog"
	"time"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	Create(ctx context.Context, req CreatePlanRequest) (*Plan, error)
	Get(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)
	Cancel(ctx context.Context, id, actor string) (*Plan, error)
}

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(loggingService) *loggingMiddleware {
	return func(next loggingService) *loggingMiddleware {
		return &loggingMiddleware{next: next, logger: logger}
	}
}

type loggingMiddleware struct {
	next   loggingService
	logger *slog.Logger
}

func (m *loggingMiddleware) Create(ctx context.Context, req CreatePlanRequest) (*Plan, error) {
	start := time.Now()
	plan, err := m.next.Create(ctx, req)
	id := ""
	if plan != nil {
		id = plan.ID
	}
	m.logger.Info("Create",
		"plan", id,
		"campaign", req.CampaignID,
		"payer", req.Payer,
		"interval", req.Interval,
		"duration", time.Since(start),
		"error", err,
	)
	return plan, err
}

func (m *loggingMiddleware) Get(ctx context.Context, id string) (*Plan, error) {
	start := time.Now()
	plan, err := m.next.Get(ctx, id)
	m.logger.Debug("Get",
		"plan", id,
		"duration", time.Since(start),
		"error", err,
	)
	return plan, err
}

func (m *loggingMiddleware) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	start := time.Now()
	result, err := m.next.List(ctx, filter, pagination)
	count := 0
	if result != nil {
		count = len(result.Plans)
	}
	m.logger.Debug("List",
		"campaign", filter.CampaignID,
		"payer", filter.Payer,
		"count", count,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) Cancel(ctx context.Context, id, actor string) (*Plan, error) {
	start := time.Now()
	plan, err := m.next.Cancel(ctx, id, actor)
	m.logger.Info("Cancel",
		"plan", id,
		"actor", actor,
		"duration", time.Since(start),
		"error", err,
	)
	return plan, err
}
