package domain

import (
	"context"
	"log/slog"
	"time"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	Create(ctx context.Context, req CreateRequest) (*SplitRequest, error)
	Get(ctx context.Context, id string) (*SplitRequest, error)
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)
	MarkLinePaid(ctx context.Context, id, recipient string, paidAt time.Time) (*SplitRequest, error)
	Reject(ctx context.Context, id, actor string) (*SplitRequest, error)
	Progress(ctx context.Context, id string) (*ProgressView, error)
}

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(loggingService) *loggingMiddleware {
	return func(next loggingService) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   loggingService
	logger *slog.Logger
}

func (m *loggingMiddleware) Create(ctx context.Context, req CreateRequest) (*SplitRequest, error) {
	start := time.Now()
	created, err := m.next.Create(ctx, req)
	id := ""
	if created != nil {
		id = created.ID
	}
	m.logger.Info("Create",
		"id", id,
		"creator", req.Creator,
		"campaign", req.CampaignID,
		"lines", len(req.Lines),
		"totalAmount", req.TotalAmount,
		"daoGated", req.DAOVerificationRequired,
		"duration", time.Since(start),
		"error", err,
	)
	return created, err
}

func (m *loggingMiddleware) Get(ctx context.Context, id string) (*SplitRequest, error) {
	start := time.Now()
	req, err := m.next.Get(ctx, id)
	m.logger.Debug("Get",
		"id", id,
		"duration", time.Since(start),
		"error", err,
	)
	return req, err
}

func (m *loggingMiddleware) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	start := time.Now()
	result, err := m.next.List(ctx, filter, pagination)
	m.logger.Debug("List",
		"filter", filter,
		"limit", pagination.Limit,
		"cursor", pagination.Cursor,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) MarkLinePaid(ctx context.Context, id, recipient string, paidAt time.Time) (*SplitRequest, error) {
	start := time.Now()
	req, err := m.next.MarkLinePaid(ctx, id, recipient, paidAt)
	status := ""
	if req != nil {
		status = string(req.Status)
	}
	m.logger.Info("MarkLinePaid",
		"id", id,
		"recipient", recipient,
		"status", status,
		"duration", time.Since(start),
		"error", err,
	)
	return req, err
}

func (m *loggingMiddleware) Reject(ctx context.Context, id, actor string) (*SplitRequest, error) {
	start := time.Now()
	req, err := m.next.Reject(ctx, id, actor)
	m.logger.Info("Reject",
		"id", id,
		"actor", actor,
		"duration", time.Since(start),
		"error", err,
	)
	return req, err
}

func (m *loggingMiddleware) Progress(ctx context.Context, id string) (*ProgressView, error) {
	start := time.Now()
	view, err := m.next.Progress(ctx, id)
	m.logger.Debug("Progress",
		"id", id,
		"duration", time.Since(start),
		"error", err,
	)
	return view, err
}
