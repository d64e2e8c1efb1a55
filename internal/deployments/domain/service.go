// Package domain contains the business logic for the delegation deployment
// registry.
package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/pendergraft/splitledger/internal/apperr"
	"github.com/pendergraft/splitledger/internal/events"
	"github.com/pendergraft/splitledger/internal/observability/metrics"
	"github.com/pendergraft/splitledger/internal/storage"
	"github.com/pendergraft/splitledger/internal/validation"
)

// Common errors returned by the deployment service.
var (
	ErrNotFound                 = errors.New("deployment not found")
	ErrAlreadyExists            = errors.New("deployment already recorded")
	ErrInvalidAddress           = errors.New("invalid address")
	ErrInvalidDelegationManager = errors.New("invalid delegation manager")
	ErrInvalidOwner             = errors.New("invalid owner")
	ErrInvalidChainID           = errors.New("invalid chain ID")
	ErrInvalidVersion           = errors.New("invalid version")
	ErrInvalidTxHash            = errors.New("invalid transaction hash")
)

var txHashRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// DeploymentStore defines the storage operations needed by the deployment service.
type DeploymentStore interface {
	RecordDeployment(ctx context.Context, d *storage.Deployment) error
	GetDeployment(ctx context.Context, chainID int64, address string) (*storage.Deployment, error)
	ListDeployments(ctx context.Context, filter storage.DeploymentFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Deployment], error)
}

// Options configures a deployment service.
type Options struct {
	Timeout   time.Duration
	Publisher events.Publisher
	Logger    *slog.Logger
}

// service implements the deployment registry.
type service struct {
	store     DeploymentStore
	publisher events.Publisher
	logger    *slog.Logger
	timeout   time.Duration
}

// NewService creates a new deployment service.
func NewService(store DeploymentStore, opts Options) *service {
	s := &service{
		store:     store,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		timeout:   opts.Timeout,
	}
	if s.publisher == nil {
		s.publisher = events.Noop{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Record records a new deployment. Each (chain, address) can be recorded once.
func (s *service) Record(ctx context.Context, req RecordRequest) (*Deployment, error) {
	const op = "deployments.Record"

	address, err := validation.NormalizeAddress(req.Address)
	if err != nil {
		metrics.DeploymentRecord("invalid")
		return nil, apperr.Validation(op, "address", fmt.Errorf("%w: %v", ErrInvalidAddress, err))
	}
	manager, err := validation.NormalizeAddress(req.DelegationManager)
	if err != nil {
		metrics.DeploymentRecord("invalid")
		return nil, apperr.Validation(op, "delegationManager", fmt.Errorf("%w: %v", ErrInvalidDelegationManager, err))
	}
	owner, err := validation.NormalizeAddress(req.Owner)
	if err != nil {
		metrics.DeploymentRecord("invalid")
		return nil, apperr.Validation(op, "owner", fmt.Errorf("%w: %v", ErrInvalidOwner, err))
	}
	if err := validation.ValidateChainID(req.ChainID); err != nil {
		metrics.DeploymentRecord("invalid")
		return nil, apperr.Validation(op, "chainId", fmt.Errorf("%w: %v", ErrInvalidChainID, err))
	}
	if err := validation.ValidateVersion(req.Version); err != nil {
		metrics.DeploymentRecord("invalid")
		return nil, apperr.Validation(op, "version", fmt.Errorf("%w: %v", ErrInvalidVersion, err))
	}
	if req.TxHash != "" && !txHashRegex.MatchString(req.TxHash) {
		metrics.DeploymentRecord("invalid")
		return nil, apperr.Validation(op, "txHash", ErrInvalidTxHash)
	}

	contract := req.Contract
	if contract == "" {
		contract = DelegatorContract
	}

	record := &storage.Deployment{
		Contract:          contract,
		ChainID:           req.ChainID,
		Address:           address,
		Version:           validation.NormalizeVersion(req.Version),
		DelegationManager: manager,
		Owner:             owner,
		TxHash:            req.TxHash,
	}

	entity := deploymentKey(req.ChainID, address)
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.RecordDeployment(sctx, record); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			metrics.DeploymentRecord("conflict")
			return nil, apperr.Conflict(op, entity, ErrAlreadyExists)
		}
		metrics.DeploymentRecord("error")
		return nil, apperr.Persistence(op, entity, fmt.Errorf("recording deployment: %w", err))
	}
	metrics.DeploymentRecord("recorded")

	deployment := toDeployment(record)
	e := events.New(events.DeploymentRecorded, entity, map[string]any{
		"contract":          deployment.Contract,
		"chainId":           deployment.ChainID,
		"address":           deployment.Address,
		"version":           deployment.Version,
		"delegationManager": deployment.DelegationManager,
		"owner":             deployment.Owner,
	})
	if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("failed to publish event", "type", e.Type, "subject", e.Subject, "error", err)
	}
	return deployment, nil
}

// Get retrieves a deployment by chain and address.
func (s *service) Get(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	const op = "deployments.Get"

	normalized, err := validation.NormalizeAddress(address)
	if err != nil {
		return nil, apperr.Validation(op, "address", fmt.Errorf("%w: %v", ErrInvalidAddress, err))
	}
	if err := validation.ValidateChainID(chainID); err != nil {
		return nil, apperr.Validation(op, "chainId", fmt.Errorf("%w: %v", ErrInvalidChainID, err))
	}

	entity := deploymentKey(chainID, normalized)
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	d, err := s.store.GetDeployment(sctx, chainID, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound(op, entity, ErrNotFound)
		}
		return nil, apperr.Persistence(op, entity, fmt.Errorf("getting deployment: %w", err))
	}
	return toDeployment(d), nil
}

// List lists deployments with filtering and pagination.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	const op = "deployments.List"

	if filter.Owner != "" {
		owner, err := validation.NormalizeAddress(filter.Owner)
		if err != nil {
			return nil, apperr.Validation(op, "owner", fmt.Errorf("%w: %v", ErrInvalidOwner, err))
		}
		filter.Owner = owner
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	result, err := s.store.ListDeployments(sctx, storage.DeploymentFilter{
		ChainID:  filter.ChainID,
		Contract: filter.Contract,
		Owner:    filter.Owner,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			return nil, apperr.Validation(op, "cursor", err)
		}
		return nil, apperr.Persistence(op, "", fmt.Errorf("listing deployments: %w", err))
	}

	deployments := make([]Deployment, len(result.Data))
	for i := range result.Data {
		deployments[i] = *toDeployment(&result.Data[i])
	}

	return &ListResult{
		Deployments: deployments,
		HasMore:     result.HasMore,
		NextCursor:  result.NextCursor,
	}, nil
}

func (s *service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func deploymentKey(chainID int64, address string) string {
	return strconv.FormatInt(chainID, 10) + "/" + address
}

func toDeployment(d *storage.Deployment) *Deployment {
	return &Deployment{
		ID:                d.ID,
		Contract:          d.Contract,
		ChainID:           d.ChainID,
		Address:           d.Address,
		Version:           d.Version,
		DelegationManager: d.DelegationManager,
		Owner:             d.Owner,
		TxHash:            d.TxHash,
		CreatedAt:         d.CreatedAt,
	}
}
