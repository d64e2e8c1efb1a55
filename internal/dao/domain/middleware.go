package domain

import (
	"context"
	"log/slog"
	"time"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	CheckMembership(ctx context.Context, campaignID, address string) (Status, error)
	Membership(ctx context.Context, campaignID, address string) (*Record, error)
	SetVerification(ctx context.Context, campaignID, address string, status Status, actor string) (*Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, error)
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

func (m *loggingMiddleware) CheckMembership(ctx context.Context, campaignID, address string) (Status, error) {
	start := time.Now()
	status, err := m.next.CheckMembership(ctx, campaignID, address)
	m.logger.Debug("CheckMembership",
		"campaign", campaignID,
		"address", address,
		"status", status,
		"duration", time.Since(start),
		"error", err,
	)
	return status, err
}

func (m *loggingMiddleware) Membership(ctx context.Context, campaignID, address string) (*Record, error) {
	start := time.Now()
	rec, err := m.next.Membership(ctx, campaignID, address)
	m.logger.Debug("Membership",
		"campaign", campaignID,
		"address", address,
		"duration", time.Since(start),
		"error", err,
	)
	return rec, err
}

func (m *loggingMiddleware) SetVerification(ctx context.Context, campaignID, address string, status Status, actor string) (*Record, error) {
	start := time.Now()
	rec, err := m.next.SetVerification(ctx, campaignID, address, status, actor)
	m.logger.Info("SetVerification",
		"campaign", campaignID,
		"address", address,
		"status", status,
		"actor", actor,
		"duration", time.Since(start),
		"error", err,
	)
	return rec, err
}

func (m *loggingMiddleware) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	start := time.Now()
	recs, err := m.next.List(ctx, filter)
	m.logger.Debug("List",
		"filter", filter,
		"count", len(recs),
		"duration", time.Since(start),
		"error", err,
	)
	return recs, err
}
