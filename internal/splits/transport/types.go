// Package transport provides HTTP request/response types for the splits domain.
package transport

import (
	"time"

	"github.com/pendergraft/splitledger/internal/splits/domain"
)

// CreateSplitRequest is the HTTP request body for creating a split request.
// Creator defaults to the signed-in wallet when omitted.
type CreateSplitRequest struct {
	Creator                 string        `json:"creator" validate:"omitempty,eth_addr"`
	CampaignID              string        `json:"campaignId" validate:"omitempty,campaign"`
	DAOVerificationRequired bool          `json:"daoVerificationRequired"`
	TotalAmount             int64         `json:"totalAmount" validate:"gt=0"`
	Lines                   []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// LineRequest is one recipient share in a create request.
type LineRequest struct {
	Recipient        string `json:"recipient" validate:"required,eth_addr"`
	ShareBasisPoints int    `json:"shareBasisPoints" validate:"gt=0,lte=10000"`
}

// ToDomain converts CreateSplitRequest to domain.CreateRequest.
func (r CreateSplitRequest) ToDomain() domain.CreateRequest {
	lines := make([]domain.LineInput, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = domain.LineInput{Recipient: l.Recipient, ShareBasisPoints: l.ShareBasisPoints}
	}
	return domain.CreateRequest{
		Creator:                 r.Creator,
		CampaignID:              r.CampaignID,
		DAOVerificationRequired: r.DAOVerificationRequired,
		Lines:                   lines,
		TotalAmount:             r.TotalAmount,
	}
}

// MarkPaidRequest is the optional body of a mark-paid call.
type MarkPaidRequest struct {
	PaidAt *time.Time `json:"paidAt,omitempty"`
}

// SplitResponse is the HTTP representation of a split request.
type SplitResponse struct {
	ID                      string         `json:"id"`
	Creator                 string         `json:"creator"`
	CampaignID              string         `json:"campaignId,omitempty"`
	TotalAmount             int64          `json:"totalAmount"`
	Status                  string         `json:"status"`
	DAOVerificationRequired bool           `json:"daoVerificationRequired"`
	Progress                float64        `json:"progress"`
	Lines                   []LineResponse `json:"lines"`
	CreatedAt               time.Time      `json:"createdAt"`
	UpdatedAt               time.Time      `json:"updatedAt"`
}

// LineResponse is the HTTP representation of a split line.
type LineResponse struct {
	Recipient        string     `json:"recipient"`
	ShareBasisPoints int        `json:"shareBasisPoints"`
	Amount           int64      `json:"amount"`
	State            string     `json:"state"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
}

// ProgressResponse is the HTTP representation of request progress.
type ProgressResponse struct {
	RequestID   string  `json:"requestId"`
	Status      string  `json:"status"`
	Percent     float64 `json:"percent"`
	PaidAmount  int64   `json:"paidAmount"`
	TotalAmount int64   `json:"totalAmount"`
	PaidLines   int     `json:"paidLines"`
	TotalLines  int     `json:"totalLines"`
}

// FromDomain converts a domain.SplitRequest to SplitResponse.
func FromDomain(req *domain.SplitRequest) SplitResponse {
	lines := make([]LineResponse, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = LineResponse{
			Recipient:        l.Recipient,
			ShareBasisPoints: l.ShareBasisPoints,
			Amount:           l.Amount,
			State:            string(l.State),
			PaidAt:           l.PaidAt,
		}
	}
	return SplitResponse{
		ID:                      req.ID,
		Creator:                 req.Creator,
		CampaignID:              req.CampaignID,
		TotalAmount:             req.TotalAmount,
		Status:                  string(req.Status),
		DAOVerificationRequired: req.DAOVerificationRequired,
		Progress:                domain.ComputeProgress(req),
		Lines:                   lines,
		CreatedAt:               req.CreatedAt,
		UpdatedAt:               req.UpdatedAt,
	}
}

// ProgressFromDomain converts a domain.ProgressView to ProgressResponse.
func ProgressFromDomain(v *domain.ProgressView) ProgressResponse {
	return ProgressResponse{
		RequestID:   v.RequestID,
		Status:      string(v.Status),
		Percent:     v.Percent,
		PaidAmount:  v.PaidAmount,
		TotalAmount: v.TotalAmount,
		PaidLines:   v.PaidLines,
		TotalLines:  v.TotalLines,
	}
}
