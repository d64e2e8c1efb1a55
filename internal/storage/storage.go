package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/splitledger/internal/config"
)

// SplitStore handles split requests and their lines
type SplitStore interface {
	CreateSplitRequest(ctx context.Context, req *SplitRequest) error
	GetSplitRequest(ctx context.Context, id string) (*SplitRequest, error)
	ListSplitRequests(ctx context.Context, filter SplitFilter, sort SortParams, pagination PaginationParams) (*PaginatedResult[SplitRequest], error)
	// UpdateSplitStatus moves a request from one status to another. It
	// returns ErrStatusConflict when the stored status is no longer from.
	UpdateSplitStatus(ctx context.Context, id, from, to string) error
	// MarkLinePaid flips a single unpaid line to paid and derives the
	// request status from the line states in the same transaction. Paid is
	// false when the line was already paid. Unknown requests or recipients
	// return ErrNotFound, rejected requests ErrStatusConflict.
	MarkLinePaid(ctx context.Context, id, recipient string, paidAt time.Time) (*LinePayment, error)
}

// DAOStore handles DAO verification records
type DAOStore interface {
	// GetOrCreateDAORecord inserts seed if no record exists for its
	// (campaign, address) and returns the stored record. created is true only
	// for the caller whose insert won.
	GetOrCreateDAORecord(ctx context.Context, seed *DAORecord) (rec *DAORecord, created bool, err error)
	GetDAORecord(ctx context.Context, campaignID, address string) (*DAORecord, error)
	UpsertDAORecord(ctx context.Context, rec *DAORecord) error
	ListDAORecords(ctx context.Context, filter DAOFilter, sort SortParams) ([]DAORecord, error)
}

// PlanStore handles recurring payment plans
type PlanStore interface {
	CreatePlan(ctx context.Context, plan *RecurringPlan) error
	GetPlan(ctx context.Context, id string) (*RecurringPlan, error)
	ListPlans(ctx context.Context, filter PlanFilter, pagination PaginationParams) (*PaginatedResult[RecurringPlan], error)
	DeactivatePlan(ctx context.Context, id string) error
	ListDuePlans(ctx context.Context, now time.Time, limit int) ([]RecurringPlan, error)
	// AdvancePlan moves next_due_at from prev to next only if it still equals
	// prev, so concurrent schedulers fire each occurrence once.
	AdvancePlan(ctx context.Context, id string, prev, next time.Time) (bool, error)
}

// DeploymentStore handles delegation deployment records
type DeploymentStore interface {
	RecordDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error)
	ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error)
}

// APIKeyStore handles API key operations
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, name string) (key string, err error)
	ValidateAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	SplitStore
	DAOStore
	PlanStore
	DeploymentStore
	APIKeyStore

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}

// SplitRequest is the persisted form of a split request
type SplitRequest struct {
	ID                      string
	Creator                 string
	CampaignID              string
	TotalAmount             int64
	Status                  string
	DAOVerificationRequired bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
	Lines                   []SplitLine
}

// LinePayment is the outcome of MarkLinePaid
type LinePayment struct {
	Paid       bool // the line moved from unpaid to paid
	PrevStatus string
	Status     string
}

// SplitLine is one recipient row of a split request
type SplitLine struct {
	Index            int
	Recipient        string
	ShareBasisPoints int
	Amount           int64
	State            string
	PaidAt           *time.Time
}

// DAORecord is a DAO verification record keyed by (campaign, address)
type DAORecord struct {
	CampaignID string
	Address    string
	Status     string
	UpdatedAt  time.Time
	UpdatedBy  string
}

// RecurringPlan is a recurring payment plan
type RecurringPlan struct {
	ID         string
	CampaignID string
	Payer      string
	ChainID    int64
	Amount     int64
	Interval   time.Duration
	NextDueAt  time.Time
	Active     bool
	CreatedAt  time.Time
}

// Deployment records a delegator contract deployment reported by the
// external deployment tool
type Deployment struct {
	ID                string
	Contract          string
	ChainID           int64
	Address           string
	Version           string
	DelegationManager string
	Owner             string
	TxHash            string
	CreatedAt         time.Time
}

// APIKey represents an API key
type APIKey struct {
	ID         string
	Name       string
	KeyHash    string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// SplitFilter contains filter options for listing split requests
type SplitFilter struct {
	Creator    string
	CampaignID string
	Status     string
}

// DAOFilter contains filter options for listing DAO records
type DAOFilter struct {
	CampaignID string
	Address    string
	Status     string
	Limit      int // defaults to and is capped at 100
}

// PlanFilter contains filter options for listing plans
type PlanFilter struct {
	CampaignID string
	Payer      string
	Active     *bool
}

// DeploymentFilter contains filter options for listing deployments
type DeploymentFilter struct {
	ChainID  int64
	Contract string
	Owner    string
}

// SortParams selects an ordering. Unknown fields fall back to the store's
// default ordering.
type SortParams struct {
	Field string
	Desc  bool
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
