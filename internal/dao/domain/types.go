// Package domain contains the DAO verification gate.
package domain

import "time"

// Status is the verification state of an address within a campaign.
type Status string

const (
	StatusPendingVerification Status = "pending_verification"
	StatusVerified            Status = "verified"
	StatusRejected            Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingVerification, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// Record is the verification record for (CampaignID, Address). Records are
// never deleted, only superseded.
type Record struct {
	CampaignID string
	Address    string
	Status     Status
	UpdatedAt  time.Time
	UpdatedBy  string
}

// ListFilter contains filter options for listing records.
type ListFilter struct {
	CampaignID string
	Address    string
	Status     Status
	Sort       string // updated_at, status or campaign
	Desc       bool
	Limit      int
}
