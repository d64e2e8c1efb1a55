// Package domain contains the business logic for split payment requests.
package domain

import "time"

// Status is the lifecycle state of a split request.
type Status string

const (
	StatusPending            Status = "pending"
	StatusPartiallyFulfilled Status = "partially_fulfilled"
	StatusFulfilled          Status = "fulfilled"
	StatusRejected           Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPartiallyFulfilled, StatusFulfilled, StatusRejected:
		return true
	}
	return false
}

// LineState is the payment state of a single recipient.
type LineState string

const (
	LineUnpaid LineState = "unpaid"
	LinePaid   LineState = "paid"
)

// TotalBasisPoints is 100% expressed in basis points.
const TotalBasisPoints = 10000

// SplitRequest divides TotalAmount among its lines by basis-point shares.
type SplitRequest struct {
	ID                      string
	Creator                 string
	CampaignID              string
	Lines                   []SplitLine
	TotalAmount             int64
	Status                  Status
	DAOVerificationRequired bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// SplitLine is one recipient's portion of a request.
type SplitLine struct {
	Recipient        string
	ShareBasisPoints int
	Amount           int64
	State            LineState
	PaidAt           *time.Time
}

// PaidAmount sums the amounts of paid lines.
func (r *SplitRequest) PaidAmount() int64 {
	var paid int64
	for _, l := range r.Lines {
		if l.State == LinePaid {
			paid += l.Amount
		}
	}
	return paid
}

// Line returns the line for recipient, or nil.
func (r *SplitRequest) Line(recipient string) *SplitLine {
	for i := range r.Lines {
		if r.Lines[i].Recipient == recipient {
			return &r.Lines[i]
		}
	}
	return nil
}

// LineInput is a requested recipient share.
type LineInput struct {
	Recipient        string
	ShareBasisPoints int
}

// CreateRequest holds the input for creating a split request.
type CreateRequest struct {
	Creator                 string
	CampaignID              string
	DAOVerificationRequired bool
	Lines                   []LineInput
	TotalAmount             int64
}

// ListFilter contains filter options for listing split requests.
type ListFilter struct {
	Creator    string
	CampaignID string
	Status     Status
	Sort       string // created_at, total_amount or status
	Desc       bool
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated split requests.
type ListResult struct {
	Requests   []SplitRequest
	HasMore    bool
	NextCursor string
}

// ProgressView is the derived completion state of a request.
type ProgressView struct {
	RequestID   string
	Status      Status
	Percent     float64
	PaidAmount  int64
	TotalAmount int64
	PaidLines   int
	TotalLines  int
}
