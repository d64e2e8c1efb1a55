//go:build e2e

package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/splitledger/pkg/client"
)

func TestDeployment_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	c := newClient(createTestAPIKey(t, "deployments"))
	address, manager, owner := randomAddress(t), randomAddress(t), randomAddress(t)

	d := client.Deployment{
		ChainID:           31337,
		Address:           address,
		Version:           "1.3.0",
		DelegationManager: manager,
		Owner:             owner,
		TxHash:            "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12",
	}

	recorded, err := c.RecordDeployment(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "EIP7702StatelessDeleGator", recorded.Contract)
	assert.NotEmpty(t, recorded.ID)

	t.Run("get by chain and address", func(t *testing.T) {
		got, err := c.GetDeployment(ctx, 31337, address)
		require.NoError(t, err)
		assert.Equal(t, manager, got.DelegationManager)
		assert.Equal(t, owner, got.Owner)
		assert.Equal(t, "1.3.0", got.Version)
	})

	t.Run("duplicate is a conflict", func(t *testing.T) {
		_, err := c.RecordDeployment(ctx, d)
		assertHTTPError(t, err, "CONFLICT")
	})

	t.Run("same address on another chain", func(t *testing.T) {
		other := d
		other.ChainID = 10
		_, err := c.RecordDeployment(ctx, other)
		require.NoError(t, err)
	})

	t.Run("list by owner", func(t *testing.T) {
		page, err := c.ListDeployments(ctx, 0, owner, 10)
		require.NoError(t, err)
		assert.Len(t, page.Data, 2)

		page, err = c.ListDeployments(ctx, 10, owner, 10)
		require.NoError(t, err)
		assert.Len(t, page.Data, 1)
	})

	t.Run("missing deployment", func(t *testing.T) {
		_, err := c.GetDeployment(ctx, 31337, randomAddress(t))
		assertHTTPError(t, err, "NOT_FOUND")
	})
}

func TestDeployment_Validation(t *testing.T) {
	ctx := context.Background()
	c := newClient(createTestAPIKey(t, "deployments-validation"))

	base := client.Deployment{
		ChainID:           1,
		Address:           randomAddress(t),
		Version:           "1.3.0",
		DelegationManager: randomAddress(t),
		Owner:             randomAddress(t),
	}

	tests := []struct {
		name   string
		mutate func(*client.Deployment)
	}{
		{"bad version", func(d *client.Deployment) { d.Version = "latest" }},
		{"bad manager", func(d *client.Deployment) { d.DelegationManager = "0x1234" }},
		{"zero chain", func(d *client.Deployment) { d.ChainID = 0 }},
		{"bad tx hash", func(d *client.Deployment) { d.TxHash = "0xabc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			_, err := c.RecordDeployment(ctx, d)
			assertHTTPError(t, err, "INVALID_REQUEST")
		})
	}
}
