// Package transport provides HTTP request/response types for the DAO domain.
package transport

import (
	"time"

	"github.com/pendergraft/splitledger/internal/dao/domain"
)

// SetVerificationRequest is the HTTP request body for recording a decision.
type SetVerificationRequest struct {
	Status string `json:"status" validate:"required,oneof=pending_verification verified rejected"`
}

// RecordResponse is the HTTP representation of a verification record.
type RecordResponse struct {
	CampaignID string    `json:"campaignId"`
	Address    string    `json:"address"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updatedAt"`
	UpdatedBy  string    `json:"updatedBy,omitempty"`
}

// FromDomain converts a domain.Record to RecordResponse.
func FromDomain(r *domain.Record) RecordResponse {
	return RecordResponse{
		CampaignID: r.CampaignID,
		Address:    r.Address,
		Status:     string(r.Status),
		UpdatedAt:  r.UpdatedAt,
		UpdatedBy:  r.UpdatedBy,
	}
}

// legacyResponse is the success envelope served on /api/dao.
type legacyResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
	Count   int  `json:"count"`
}

// legacyError is the failure envelope served on /api/dao.
type legacyError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
