// Package domain contains the business logic for the delegation deployment
// registry.
package domain

import (
	"time"
)

// DelegatorContract is the contract name recorded when the deploy tool does
// not send one.
const DelegatorContract = "EIP7702StatelessDeleGator"

// Deployment is a recorded delegator deployment on one chain.
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

// RecordRequest is the request to record a new deployment. DelegationManager
// and Owner are the arguments the contract was initialized with.
type RecordRequest struct {
	Contract          string `json:"contract,omitempty"`
	ChainID           int64  `json:"chainId"`
	Address           string `json:"address"`
	Version           string `json:"version"`
	DelegationManager string `json:"delegationManager"`
	Owner             string `json:"owner"`
	TxHash            string `json:"txHash,omitempty"`
}

// ListFilter contains filter options for listing deployments.
type ListFilter struct {
	ChainID  int64
	Contract string
	Owner    string
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Deployments []Deployment
	HasMore     bool
	NextCursor  string
}
