package domain

import (
	"context"
	"log/slog"
	"time"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	Record(ctx context.Context, req RecordRequest) (*Deployment, error)
	Get(ctx context.Context, chainID int64, address string) (*Deployment, error)
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)
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

func (m *loggingMiddleware) Record(ctx context.Context, req RecordRequest) (*Deployment, error) {
	start := time.Now()
	d, err := m.next.Record(ctx, req)
	m.logger.Info("Record",
		"chainId", req.ChainID,
		"address", req.Address,
		"version", req.Version,
		"owner", req.Owner,
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}

func (m *loggingMiddleware) Get(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	start := time.Now()
	d, err := m.next.Get(ctx, chainID, address)
	m.logger.Debug("Get",
		"chainId", chainID,
		"address", address,
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
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
