//go:build e2e

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/splitledger/pkg/client"
)

func TestPlans_PayerLifecycle(t *testing.T) {
	ctx := context.Background()
	campaign := uniqueCampaign("plans")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	payer := crypto.PubkeyToAddress(key.PublicKey).Hex()
	session := newClient("", client.WithToken(signIn(t, key)))
	keyed := newClient(createTestAPIKey(t, "plans"))

	start := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	plan, err := session.CreatePlan(ctx, client.CreatePlanRequest{
		CampaignID:      campaign,
		ChainID:         8453,
		Amount:          250,
		IntervalSeconds: 3600,
		StartAt:         &start,
	})
	require.NoError(t, err)
	assert.Equal(t, payer, plan.Payer, "payer defaults to the signed-in wallet")
	assert.True(t, plan.Active)
	assert.True(t, plan.NextDueAt.Equal(start))

	t.Run("listed by campaign", func(t *testing.T) {
		page, err := keyed.ListPlans(ctx, campaign, "", 10)
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.Equal(t, plan.ID, page.Data[0].ID)
	})

	t.Run("only the payer can cancel", func(t *testing.T) {
		_, err := keyed.CancelPlan(ctx, plan.ID)
		assertHTTPError(t, err, "FORBIDDEN")
	})

	t.Run("payer cancels", func(t *testing.T) {
		got, err := session.CancelPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.False(t, got.Active)

		got, err = session.CancelPlan(ctx, plan.ID)
		require.NoError(t, err, "cancel is idempotent")
		assert.False(t, got.Active)
	})
}

func TestPlans_Validation(t *testing.T) {
	c := newClient(createTestAPIKey(t, "plans-validation"))

	_, err := c.CreatePlan(context.Background(), client.CreatePlanRequest{
		CampaignID:      "c",
		Payer:           randomAddress(t),
		ChainID:         1,
		IntervalSeconds: 59,
	})
	assertHTTPError(t, err, "INVALID_REQUEST")
}
