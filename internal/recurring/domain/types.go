// Package domain contains recurring payment plans and their scheduler.
package domain

import "time"

// MinInterval is the shortest allowed plan interval.
const MinInterval = time.Minute

// Plan is a recurring payment a payer commits to for a campaign.
type Plan struct {
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

// CreatePlanRequest holds the input for creating a plan. A zero StartAt
// makes the first occurrence due immediately.
type CreatePlanRequest struct {
	CampaignID string
	Payer      string
	ChainID    int64
	Amount     int64
	Interval   time.Duration
	StartAt    time.Time
}

// ListFilter contains filter options for listing plans.
type ListFilter struct {
	CampaignID string
	Payer      string
	Active     *bool
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated plans.
type ListResult struct {
	Plans      []Plan
	HasMore    bool
	NextCursor string
}

// NextOccurrence returns the first time after now reached by stepping due
// forward in whole intervals. A due time already after now is returned as is.
func NextOccurrence(due time.Time, interval time.Duration, now time.Time) time.Time {
	if interval <= 0 || due.After(now) {
		return due
	}
	steps := now.Sub(due)/interval + 1
	return due.Add(steps * interval)
}
