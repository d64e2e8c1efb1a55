package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pendergraft/splitledger/internal/apperr"
	dao "github.com/pendergraft/splitledger/internal/dao/domain"
	"github.com/pendergraft/splitledger/internal/events"
	"github.com/pendergraft/splitledger/internal/observability/metrics"
	"github.com/pendergraft/splitledger/internal/storage"
	"github.com/pendergraft/splitledger/internal/validation"
)

// Common errors returned by the split service. They are wrapped in an
// *apperr.Error carrying the kind.
var (
	ErrNotFound           = errors.New("split request not found")
	ErrRecipientNotFound  = errors.New("recipient is not part of this split request")
	ErrEmptyLines         = errors.New("split request must have at least one line")
	ErrInvalidShare       = errors.New("share must be between 1 and 10000 basis points")
	ErrSharesSum          = errors.New("shares must sum to exactly 10000 basis points")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrInvalidAmount      = errors.New("total amount must be positive")
	ErrDuplicateRecipient = errors.New("recipient appears more than once")
	ErrInvalidCampaign    = errors.New("invalid campaign id")
	ErrCampaignRequired   = errors.New("dao verification requires a campaign id")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrMissingID          = errors.New("split request id is required")
	ErrGateNotVerified    = errors.New("dao verification gate: creator is not verified for this campaign")
	ErrCreatorRejected    = errors.New("dao verification gate: creator was rejected for this campaign")
	ErrRequestRejected    = errors.New("split request has been rejected")
	ErrNotPending         = errors.New("only pending split requests can be rejected")
	ErrForbidden          = errors.New("actor does not hold the dao authority role")
)

// SplitStore defines the storage operations needed by the splits domain.
type SplitStore interface {
	CreateSplitRequest(ctx context.Context, req *storage.SplitRequest) error
	GetSplitRequest(ctx context.Context, id string) (*storage.SplitRequest, error)
	ListSplitRequests(ctx context.Context, filter storage.SplitFilter, sort storage.SortParams, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.SplitRequest], error)
	UpdateSplitStatus(ctx context.Context, id, from, to string) error
	MarkLinePaid(ctx context.Context, id, recipient string, paidAt time.Time) (*storage.LinePayment, error)
}

// VerificationGate reports the DAO verification status of an address,
// creating a pending record on first sight.
type VerificationGate interface {
	CheckMembership(ctx context.Context, campaignID, address string) (dao.Status, error)
}

// Authorizer decides whether an actor holds the DAO authority role.
type Authorizer interface {
	IsAuthority(ctx context.Context, actor string) bool
}

// Options configures a split service.
type Options struct {
	// Timeout bounds each storage call. Zero means no extra deadline.
	Timeout   time.Duration
	Publisher events.Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

type service struct {
	store     SplitStore
	gate      VerificationGate
	authz     Authorizer
	publisher events.Publisher
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
	locks     *keyedMutex
}

// NewService creates a new split service.
func NewService(store SplitStore, gate VerificationGate, authz Authorizer, opts Options) *service {
	s := &service{
		store:     store,
		gate:      gate,
		authz:     authz,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		timeout:   opts.Timeout,
		now:       opts.Now,
		locks:     newKeyedMutex(),
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

// Create validates and persists a new split request in pending status.
func (s *service) Create(ctx context.Context, req CreateRequest) (*SplitRequest, error) {
	const op = "splits.Create"

	creator, err := validation.NormalizeAddress(req.Creator)
	if err != nil {
		return nil, apperr.Validation(op, "creator", fmt.Errorf("%w: creator: %v", ErrInvalidAddress, err))
	}

	if req.CampaignID != "" {
		if err := validation.ValidateCampaignID(req.CampaignID); err != nil {
			return nil, apperr.Validation(op, "campaign", fmt.Errorf("%w: %v", ErrInvalidCampaign, err))
		}
	} else if req.DAOVerificationRequired {
		return nil, apperr.Validation(op, "campaign", ErrCampaignRequired)
	}

	if req.TotalAmount <= 0 {
		return nil, apperr.Validation(op, "totalAmount", fmt.Errorf("%w: got %d", ErrInvalidAmount, req.TotalAmount))
	}

	lines, err := normalizeLines(req.Lines)
	if err != nil {
		return nil, apperr.Validation(op, "lines", err)
	}

	shares := make([]int, len(lines))
	for i, l := range lines {
		shares[i] = l.ShareBasisPoints
	}
	amounts, err := Allocate(req.TotalAmount, shares)
	if err != nil {
		return nil, apperr.Validation(op, "totalAmount", err)
	}

	if req.DAOVerificationRequired {
		status, err := s.gate.CheckMembership(ctx, req.CampaignID, creator)
		if err != nil {
			return nil, err
		}
		if status == dao.StatusRejected {
			return nil, apperr.Validation(op, "creator="+creator, ErrCreatorRejected)
		}
	}

	now := s.now().UTC()
	record := &storage.SplitRequest{
		Creator:                 creator,
		CampaignID:              req.CampaignID,
		TotalAmount:             req.TotalAmount,
		Status:                  string(StatusPending),
		DAOVerificationRequired: req.DAOVerificationRequired,
		CreatedAt:               now,
		UpdatedAt:               now,
		Lines:                   make([]storage.SplitLine, len(lines)),
	}
	for i, l := range lines {
		record.Lines[i] = storage.SplitLine{
			Index:            i,
			Recipient:        l.Recipient,
			ShareBasisPoints: l.ShareBasisPoints,
			Amount:           amounts[i],
			State:            string(LineUnpaid),
		}
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.CreateSplitRequest(sctx, record); err != nil {
		metrics.SplitCreate("error")
		return nil, apperr.Persistence(op, "creator="+creator, fmt.Errorf("creating split request: %w", err))
	}
	metrics.SplitCreate("ok")

	created := toSplitRequest(record)
	s.publish(ctx, events.SplitCreated, created)
	return created, nil
}

// normalizeLines validates every line and returns copies with checksummed
// recipient addresses.
func normalizeLines(in []LineInput) ([]LineInput, error) {
	if len(in) == 0 {
		return nil, ErrEmptyLines
	}

	out := make([]LineInput, len(in))
	seen := make(map[string]int, len(in))
	var sum int64
	for i, l := range in {
		if l.ShareBasisPoints <= 0 || l.ShareBasisPoints > TotalBasisPoints {
			return nil, fmt.Errorf("%w: line %d has %d", ErrInvalidShare, i, l.ShareBasisPoints)
		}
		recipient, err := validation.NormalizeAddress(l.Recipient)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d recipient: %v", ErrInvalidAddress, i, err)
		}
		if j, dup := seen[recipient]; dup {
			return nil, fmt.Errorf("%w: lines %d and %d", ErrDuplicateRecipient, j, i)
		}
		seen[recipient] = i
		sum += int64(l.ShareBasisPoints)
		out[i] = LineInput{Recipient: recipient, ShareBasisPoints: l.ShareBasisPoints}
	}

	if sum != TotalBasisPoints {
		return nil, fmt.Errorf("%w: got %d", ErrSharesSum, sum)
	}
	return out, nil
}

// Get retrieves a split request by id.
func (s *service) Get(ctx context.Context, id string) (*SplitRequest, error) {
	const op = "splits.Get"
	if id == "" {
		return nil, apperr.Validation(op, "", ErrMissingID)
	}
	return s.load(ctx, op, id)
}

// List lists split requests with filtering and pagination.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	const op = "splits.List"

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validation(op, "status", fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status))
	}
	if filter.Creator != "" {
		creator, err := validation.NormalizeAddress(filter.Creator)
		if err != nil {
			return nil, apperr.Validation(op, "creator", fmt.Errorf("%w: %v", ErrInvalidAddress, err))
		}
		filter.Creator = creator
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	result, err := s.store.ListSplitRequests(sctx, storage.SplitFilter{
		Creator:    filter.Creator,
		CampaignID: filter.CampaignID,
		Status:     string(filter.Status),
	}, storage.SortParams{
		Field: filter.Sort,
		Desc:  filter.Desc,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			return nil, apperr.Validation(op, "cursor", err)
		}
		return nil, apperr.Persistence(op, "", fmt.Errorf("listing split requests: %w", err))
	}

	requests := make([]SplitRequest, len(result.Data))
	for i := range result.Data {
		requests[i] = *toSplitRequest(&result.Data[i])
	}

	return &ListResult{
		Requests:   requests,
		HasMore:    result.HasMore,
		NextCursor: result.NextCursor,
	}, nil
}

// MarkLinePaid records a recipient's payment and advances the request status.
// Confirming an already paid line returns the current request unchanged.
func (s *service) MarkLinePaid(ctx context.Context, id, recipient string, paidAt time.Time) (*SplitRequest, error) {
	const op = "splits.MarkLinePaid"

	if id == "" {
		return nil, apperr.Validation(op, "", ErrMissingID)
	}
	normalized, err := validation.NormalizeAddress(recipient)
	if err != nil {
		return nil, apperr.Validation(op, "id="+id, fmt.Errorf("%w: recipient: %v", ErrInvalidAddress, err))
	}
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	paidAt = paidAt.UTC()

	unlock := s.locks.Lock(id)
	defer unlock()

	req, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}

	line := req.Line(normalized)
	if line == nil {
		return nil, apperr.NotFound(op, "id="+id+" recipient="+normalized, ErrRecipientNotFound)
	}
	if req.Status == StatusRejected {
		if line.State == LinePaid {
			metrics.SplitLinePaid("duplicate")
			return req, nil
		}
		return nil, apperr.Validation(op, "id="+id, ErrRequestRejected)
	}
	if line.State == LineUnpaid && req.DAOVerificationRequired && req.Status == StatusPending {
		status, err := s.gate.CheckMembership(ctx, req.CampaignID, req.Creator)
		if err != nil {
			return nil, err
		}
		if status != dao.StatusVerified {
			return nil, apperr.Validation(op, "id="+id, fmt.Errorf("%w (status %s)", ErrGateNotVerified, status))
		}
	}

	sctx, cancel := s.storeCtx(ctx)
	payment, err := s.store.MarkLinePaid(sctx, id, normalized, paidAt)
	cancel()
	if err != nil {
		metrics.SplitLinePaid("error")
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, apperr.NotFound(op, "id="+id+" recipient="+normalized, ErrRecipientNotFound)
		case errors.Is(err, storage.ErrStatusConflict):
			return nil, apperr.Validation(op, "id="+id, ErrRequestRejected)
		}
		return nil, apperr.Persistence(op, "id="+id, fmt.Errorf("marking line paid: %w", err))
	}

	req, err = s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if payment.Paid {
		metrics.SplitLinePaid("paid")
		s.publish(ctx, events.SplitLinePaid, lineEvent{req: req, recipient: normalized})
	} else {
		metrics.SplitLinePaid("duplicate")
	}
	if next := Status(payment.Status); next != Status(payment.PrevStatus) {
		s.transitioned(ctx, req, next)
	}
	return req, nil
}

// Reject moves a pending request to rejected. Only DAO authorities may reject.
func (s *service) Reject(ctx context.Context, id, actor string) (*SplitRequest, error) {
	const op = "splits.Reject"

	if id == "" {
		return nil, apperr.Validation(op, "", ErrMissingID)
	}
	if actor == "" || !s.authz.IsAuthority(ctx, actor) {
		return nil, apperr.Authorization(op, "actor="+actor, ErrForbidden)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	req, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case StatusRejected:
		return req, nil
	case StatusPending:
	default:
		return nil, apperr.Validation(op, "id="+id, fmt.Errorf("%w: status is %s", ErrNotPending, req.Status))
	}

	sctx, cancel := s.storeCtx(ctx)
	err = s.store.UpdateSplitStatus(sctx, id, string(StatusPending), string(StatusRejected))
	cancel()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, apperr.NotFound(op, "id="+id, ErrNotFound)
	case errors.Is(err, storage.ErrStatusConflict):
		// the status moved after it was read
		current, lerr := s.load(ctx, op, id)
		if lerr != nil {
			return nil, lerr
		}
		if current.Status == StatusRejected {
			return current, nil
		}
		return nil, apperr.Validation(op, "id="+id, fmt.Errorf("%w: status is %s", ErrNotPending, current.Status))
	case err != nil:
		return nil, apperr.Persistence(op, "id="+id, fmt.Errorf("updating status: %w", err))
	}

	req.Status = StatusRejected
	s.transitioned(ctx, req, StatusRejected)
	return req, nil
}

// Progress returns the derived completion state of a request.
func (s *service) Progress(ctx context.Context, id string) (*ProgressView, error) {
	const op = "splits.Progress"
	if id == "" {
		return nil, apperr.Validation(op, "", ErrMissingID)
	}

	req, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	view := Progress(req)
	return &view, nil
}

func (s *service) load(ctx context.Context, op, id string) (*SplitRequest, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	record, err := s.store.GetSplitRequest(sctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound(op, "id="+id, ErrNotFound)
		}
		return nil, apperr.Persistence(op, "id="+id, fmt.Errorf("getting split request: %w", err))
	}
	return toSplitRequest(record), nil
}

// transitioned records a status change that the store has already applied.
func (s *service) transitioned(ctx context.Context, req *SplitRequest, next Status) {
	metrics.SplitTransition(string(next))
	s.publish(ctx, statusEventType(next), req)
}

func (s *service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// publish never fails the caller; the ledger is the source of truth.
func (s *service) publish(ctx context.Context, typ string, payload any) {
	var e events.Event
	switch p := payload.(type) {
	case *SplitRequest:
		e = events.New(typ, p.ID, splitEventData(p, ""))
	case lineEvent:
		e = events.New(typ, p.req.ID, splitEventData(p.req, p.recipient))
	default:
		return
	}

	if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		metrics.EventPublishFailure(typ)
		s.logger.Warn("failed to publish event", "type", typ, "subject", e.Subject, "error", err)
	}
}

type lineEvent struct {
	req       *SplitRequest
	recipient string
}

func splitEventData(req *SplitRequest, recipient string) map[string]any {
	data := map[string]any{
		"status":      req.Status,
		"creator":     req.Creator,
		"campaignId":  req.CampaignID,
		"totalAmount": req.TotalAmount,
		"progress":    ComputeProgress(req),
	}
	if recipient != "" {
		data["recipient"] = recipient
	}
	return data
}

func statusEventType(status Status) string {
	switch status {
	case StatusPartiallyFulfilled:
		return events.SplitPartiallyFulfilled
	case StatusFulfilled:
		return events.SplitFulfilled
	case StatusRejected:
		return events.SplitRejected
	default:
		return events.SplitCreated
	}
}

func toSplitRequest(r *storage.SplitRequest) *SplitRequest {
	req := &SplitRequest{
		ID:                      r.ID,
		Creator:                 r.Creator,
		CampaignID:              r.CampaignID,
		TotalAmount:             r.TotalAmount,
		Status:                  Status(r.Status),
		DAOVerificationRequired: r.DAOVerificationRequired,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
		Lines:                   make([]SplitLine, len(r.Lines)),
	}
	for i, l := range r.Lines {
		req.Lines[i] = SplitLine{
			Recipient:        l.Recipient,
			ShareBasisPoints: l.ShareBasisPoints,
			Amount:           l.Amount,
			State:            LineState(l.State),
			PaidAt:           l.PaidAt,
		}
	}
	return req
}
