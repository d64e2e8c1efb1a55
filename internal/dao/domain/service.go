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
	"github.com/pendergraft/splitledger/internal/observability/metrics"
	"github.com/pendergraft/splitledger/internal/storage"
	"github.com/pendergraft/splitledger/internal/validation"
)

// Common errors returned by the DAO service.
var (
	ErrNotFound        = errors.New("verification record not found")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidCampaign = errors.New("invalid campaign id")
	ErrInvalidStatus   = errors.New("invalid verification status")
	ErrForbidden       = errors.New("actor does not hold the dao authority role")
)

// DAOStore defines the storage operations needed by the DAO domain.
type DAOStore interface {
	GetOrCreateDAORecord(ctx context.Context, seed *storage.DAORecord) (*storage.DAORecord, bool, error)
	UpsertDAORecord(ctx context.Context, rec *storage.DAORecord) error
	ListDAORecords(ctx context.Context, filter storage.DAOFilter, sort storage.SortParams) ([]storage.DAORecord, error)
}

// Authorizer decides whether an actor holds the DAO authority role.
type Authorizer interface {
	IsAuthority(ctx context.Context, actor string) bool
}

// Options configures a DAO service.
type Options struct {
	Timeout   time.Duration
	Publisher events.Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

type service struct {
	store     DAOStore
	authz     Authorizer
	publisher events.Publisher
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// NewService creates a new DAO verification service.
func NewService(store DAOStore, authz Authorizer, opts Options) *service {
	s := &service{
		store:     store,
		authz:     authz,
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

// CheckMembership returns the verification status of address in campaign.
// The first check creates a pending_verification record; later checks never
// mutate it.
func (s *service) CheckMembership(ctx context.Context, campaignID, address string) (Status, error) {
	rec, err := s.Membership(ctx, campaignID, address)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// Membership is CheckMembership returning the whole record.
func (s *service) Membership(ctx context.Context, campaignID, address string) (*Record, error) {
	const op = "dao.CheckMembership"

	campaignID, address, err := normalizeKey(op, campaignID, address)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	rec, created, err := s.store.GetOrCreateDAORecord(sctx, &storage.DAORecord{
		CampaignID: campaignID,
		Address:    address,
		Status:     string(StatusPendingVerification),
		UpdatedAt:  s.now().UTC(),
	})
	if err != nil {
		metrics.DAOCheck("error")
		return nil, apperr.Persistence(op, entity(campaignID, address), fmt.Errorf("checking membership: %w", err))
	}

	if created {
		metrics.DAOCheck("created")
		s.logger.Info("dao verification record created", "campaign", campaignID, "address", address)
	} else {
		metrics.DAOCheck("existing")
	}
	return toRecord(rec), nil
}

// SetVerification records a verification decision by a DAO authority.
func (s *service) SetVerification(ctx context.Context, campaignID, address string, status Status, actor string) (*Record, error) {
	const op = "dao.SetVerification"

	campaignID, address, err := normalizeKey(op, campaignID, address)
	if err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.Validation(op, entity(campaignID, address), fmt.Errorf("%w: %q", ErrInvalidStatus, status))
	}
	if actor == "" || !s.authz.IsAuthority(ctx, actor) {
		return nil, apperr.Authorization(op, "actor="+actor, ErrForbidden)
	}

	rec := &storage.DAORecord{
		CampaignID: campaignID,
		Address:    address,
		Status:     string(status),
		UpdatedAt:  s.now().UTC(),
		UpdatedBy:  actor,
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.UpsertDAORecord(sctx, rec); err != nil {
		return nil, apperr.Persistence(op, entity(campaignID, address), fmt.Errorf("setting verification: %w", err))
	}
	metrics.DAOVerification(string(status))

	result := toRecord(rec)
	e := events.New(events.DAOStatusChanged, campaignID+"/"+address, map[string]any{
		"campaignId": campaignID,
		"address":    address,
		"status":     status,
		"updatedBy":  actor,
	})
	if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		metrics.EventPublishFailure(e.Type)
		s.logger.Warn("failed to publish event", "type", e.Type, "subject", e.Subject, "error", err)
	}
	return result, nil
}

// List lists verification records.
func (s *service) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	const op = "dao.List"

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validation(op, "status", fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status))
	}
	if filter.Address != "" {
		addr, err := validation.NormalizeAddress(filter.Address)
		if err != nil {
			return nil, apperr.Validation(op, "address", fmt.Errorf("%w: %v", ErrInvalidAddress, err))
		}
		filter.Address = addr
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	recs, err := s.store.ListDAORecords(sctx, storage.DAOFilter{
		CampaignID: filter.CampaignID,
		Address:    filter.Address,
		Status:     string(filter.Status),
		Limit:      filter.Limit,
	}, storage.SortParams{Field: filter.Sort, Desc: filter.Desc})
	if err != nil {
		return nil, apperr.Persistence(op, "", fmt.Errorf("listing records: %w", err))
	}

	out := make([]Record, len(recs))
	for i := range recs {
		out[i] = *toRecord(&recs[i])
	}
	return out, nil
}

func (s *service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func normalizeKey(op, campaignID, address string) (string, string, error) {
	if err := validation.ValidateCampaignID(campaignID); err != nil {
		return "", "", apperr.Validation(op, "campaign", fmt.Errorf("%w: %v", ErrInvalidCampaign, err))
	}
	addr, err := validation.NormalizeAddress(address)
	if err != nil {
		return "", "", apperr.Validation(op, "address", fmt.Errorf("%w: %v", ErrInvalidAddress, err))
	}
	return campaignID, addr, nil
}

func entity(campaignID, address string) string {
	return "campaign=" + campaignID + " address=" + address
}

func toRecord(r *storage.DAORecord) *Record {
	return &Record{
		CampaignID: r.CampaignID,
		Address:    r.Address,
		Status:     Status(r.Status),
		UpdatedAt:  r.UpdatedAt,
		UpdatedBy:  r.UpdatedBy,
	}
}
