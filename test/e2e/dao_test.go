//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/splitledger/pkg/client"
)

func TestDAO_GatedSplit(t *testing.T) {
	ctx := context.Background()
	c := newClient(createTestAPIKey(t, "dao-gated"))
	authority := authorityClient(t)
	campaign := uniqueCampaign("gated")
	creator, alice := randomAddress(t), randomAddress(t)

	split, err := c.CreateSplit(ctx, client.CreateSplitRequest{
		Creator:                 creator,
		CampaignID:              campaign,
		DAOVerificationRequired: true,
		TotalAmount:             500,
		Lines:                   []client.Line{{Recipient: alice, ShareBasisPoints: 10000}},
	})
	require.NoError(t, err)

	t.Run("payout held while unverified", func(t *testing.T) {
		_, err := c.MarkLinePaid(ctx, split.ID, alice)
		assertHTTPError(t, err, "INVALID_REQUEST")

		rec, err := c.CheckMembership(ctx, campaign, creator)
		require.NoError(t, err)
		assert.Equal(t, "pending_verification", rec.Status)
	})

	t.Run("api key alone cannot decide", func(t *testing.T) {
		_, err := c.SetVerification(ctx, campaign, creator, "verified")
		assertHTTPError(t, err, "FORBIDDEN")
	})

	t.Run("authority verifies creator", func(t *testing.T) {
		rec, err := authority.SetVerification(ctx, campaign, creator, "verified")
		require.NoError(t, err)
		assert.Equal(t, "verified", rec.Status)
		assert.NotEmpty(t, rec.UpdatedBy)
	})

	t.Run("payout proceeds", func(t *testing.T) {
		got, err := c.MarkLinePaid(ctx, split.ID, alice)
		require.NoError(t, err)
		assert.Equal(t, "fulfilled", got.Status)
	})

	t.Run("records listed by campaign", func(t *testing.T) {
		records, err := c.ListDAORecords(ctx, campaign, "")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, creator, records[0].Address)
	})
}

func TestDAO_Reject(t *testing.T) {
	ctx := context.Background()
	c := newClient(createTestAPIKey(t, "dao-reject"))
	authority := authorityClient(t)
	alice := randomAddress(t)

	split, err := c.CreateSplit(ctx, client.CreateSplitRequest{
		Creator:     randomAddress(t),
		TotalAmount: 10,
		Lines:       []client.Line{{Recipient: alice, ShareBasisPoints: 10000}},
	})
	require.NoError(t, err)

	_, err = c.RejectSplit(ctx, split.ID)
	assertHTTPError(t, err, "FORBIDDEN")

	rejected, err := authority.RejectSplit(ctx, split.ID)
	require.NoError(t, err)
	assert.Equal(t, "rejected", rejected.Status)

	again, err := authority.RejectSplit(ctx, split.ID)
	require.NoError(t, err, "rejecting twice is idempotent")
	assert.Equal(t, "rejected", again.Status)

	_, err = c.MarkLinePaid(ctx, split.ID, alice)
	assertHTTPError(t, err, "INVALID_REQUEST")
}

func TestDAO_RejectedCreatorCannotCreateGatedSplit(t *testing.T) {
	ctx := context.Background()
	c := newClient(createTestAPIKey(t, "dao-rejected-creator"))
	authority := authorityClient(t)
	campaign := uniqueCampaign("rejected")
	creator := randomAddress(t)

	_, err := authority.SetVerification(ctx, campaign, creator, "rejected")
	require.NoError(t, err)

	_, err = c.CreateSplit(ctx, client.CreateSplitRequest{
		Creator:                 creator,
		CampaignID:              campaign,
		DAOVerificationRequired: true,
		TotalAmount:             10,
		Lines:                   []client.Line{{Recipient: randomAddress(t), ShareBasisPoints: 10000}},
	})
	assertHTTPError(t, err, "INVALID_REQUEST")
}

func TestDAO_LegacyEndpoint(t *testing.T) {
	ctx := context.Background()
	campaign := uniqueCampaign("legacy")
	address := randomAddress(t)

	_, err := newClient("").CheckMembership(ctx, campaign, address)
	require.NoError(t, err)

	get := func(t *testing.T, query string) (int, map[string]any) {
		resp, err := http.Get(testCtx.TestServer.URL + "/api/dao" + query)
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp.StatusCode, body
	}

	t.Run("records", func(t *testing.T) {
		status, body := get(t, "?campaign="+campaign)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, float64(1), body["count"])
	})

	t.Run("splits", func(t *testing.T) {
		status, body := get(t, "?kind=splits")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["success"])
	})

	t.Run("unknown kind", func(t *testing.T) {
		status, body := get(t, "?kind=widgets")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, false, body["success"])
	})
}
