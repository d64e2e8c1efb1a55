// Package transport provides HTTP request/response types for the deployments domain.
package transport

import (
	"time"

	"github.com/pendergraft/splitledger/internal/deployments/domain"
)

// RecordRequest is the HTTP request body sent by the deploy tool.
type RecordRequest struct {
	Contract          string `json:"contract,omitempty"`
	ChainID           int64  `json:"chainId" validate:"gt=0"`
	Address           string `json:"address" validate:"required,eth_addr"`
	Version           string `json:"version" validate:"required"`
	DelegationManager string `json:"delegationManager" validate:"required,eth_addr"`
	Owner             string `json:"owner" validate:"required,eth_addr"`
	TxHash            string `json:"txHash,omitempty"`
}

// ToDomain converts RecordRequest to domain.RecordRequest.
func (r RecordRequest) ToDomain() domain.RecordRequest {
	return domain.RecordRequest{
		Contract:          r.Contract,
		ChainID:           r.ChainID,
		Address:           r.Address,
		Version:           r.Version,
		DelegationManager: r.DelegationManager,
		Owner:             r.Owner,
		TxHash:            r.TxHash,
	}
}

// DeploymentResponse is the HTTP representation of a deployment.
type DeploymentResponse struct {
	ID                string    `json:"id"`
	Contract          string    `json:"contract"`
	ChainID           int64     `json:"chainId"`
	Address           string    `json:"address"`
	Version           string    `json:"version"`
	DelegationManager string    `json:"delegationManager"`
	Owner             string    `json:"owner"`
	TxHash            string    `json:"txHash,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// FromDomain converts a domain.Deployment to DeploymentResponse.
func FromDomain(d *domain.Deployment) DeploymentResponse {
	return DeploymentResponse{
		ID:                d.ID,
		Contract:          d.Contract,
		ChainID:           d.ChainID,
		Address:           d.Address,
		Version:           d.Version,
		DelegationManager: d.DelegationManager,
		Owner:             d.Owner,
		TxHash:            d.TxHash,
		CreatedAt:         d.CreatedAt,
	}
}
