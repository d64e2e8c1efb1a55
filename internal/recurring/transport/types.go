// Package transport provides HTTP request/response types for recurring plans.
package transport

import (
	"time"

	"github.com/pendergraft/splitledger/internal/recurring/domain"
)

// CreatePlanRequest is the HTTP request body for creating a plan. Payer
// defaults to the signed-in wallet when omitted.
type CreatePlanRequest struct {
	CampaignID      string     `json:"campaignId" validate:"required,campaign"`
	Payer           string     `json:"payer" validate:"omitempty,eth_addr"`
	ChainID         int64      `json:"chainId" validate:"gt=0"`
	Amount          int64      `json:"amount" validate:"gte=0"`
	IntervalSeconds int64      `json:"intervalSeconds" validate:"gte=60"`
	StartAt         *time.Time `json:"startAt,omitempty"`
}

// ToDomain converts CreatePlanRequest to domain.CreatePlanRequest.
func (r CreatePlanRequest) ToDomain() domain.CreatePlanRequest {
	req := domain.CreatePlanRequest{
		CampaignID: r.CampaignID,
		Payer:      r.Payer,
		ChainID:    r.ChainID,
		Amount:     r.Amount,
		Interval:   time.Duration(r.IntervalSeconds) * time.Second,
	}
	if r.StartAt != nil {
		req.StartAt = *r.StartAt
	}
	return req
}

// PlanResponse is the HTTP representation of a plan.
type PlanResponse struct {
	ID              string    `json:"id"`
	CampaignID      string    `json:"campaignId"`
	Payer           string    `json:"payer"`
	ChainID         int64     `json:"chainId"`
	Amount          int64     `json:"amount"`
	IntervalSeconds int64     `json:"intervalSeconds"`
	NextDueAt       time.Time `json:"nextDueAt"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"createdAt"`
}

// FromDomain converts a domain.Plan to PlanResponse.
func FromDomain(p *domain.Plan) PlanResponse {
	return PlanResponse{
		ID:              p.ID,
		CampaignID:      p.CampaignID,
		Payer:           p.Payer,
		ChainID:         p.ChainID,
		Amount:          p.Amount,
		IntervalSeconds: int64(p.Interval / time.Second),
		NextDueAt:       p.NextDueAt,
		Active:          p.Active,
		CreatedAt:       p.CreatedAt,
	}
}
