package facilitator_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coinbase/x402/go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antidote-labs/x402-gate/pkg/facilitator"
)

const keyID = "organizations/acme/apiKeys/key-1"

func secret(t *testing.T) string {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	return base64.StdEncoding.EncodeToString(priv)
}

func payload(t *testing.T) *types.PaymentPayload {
	t.Helper()

	return &types.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload: &types.ExactEvmPayload{
			Signature: "0xdeadbeef",
			Authorization: &types.ExactEvmPayloadAuthorization{
				From:        "0x26279EC7Ad9207013149967b5aA1CF42AC6487eb",
				To:          "0x8d6Efb97F6E3d218647eD74AF418d47489550Ae2",
				Value:       "1000000",
				ValidAfter:  "1754735643",
				ValidBefore: "1754736303",
				Nonce:       "0xd8ac8930d08bfa8ff03af000ef78f0c624f30047d52e62b3ae8e3b9e2b6462ca",
			},
		},
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/platform/v2/x402/verify", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, keyID, r.Header.Get("X-CDP-API-KEY"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))

		var body facilitator.RequestBody

		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 1, body.X402Version)
		assert.NotEmpty(t, body.PaymentPayload)
		assert.NotEmpty(t, body.PaymentRequirements)

		w.Header().Set("Content-Type", "application/json")

		_ = json.NewEncoder(w).Encode(facilitator.VerifyResponse{
			IsValid: true,
			Payer:   "0x26279EC7Ad9207013149967b5aA1CF42AC6487eb",
		})
	}))
	t.Cleanup(server.Close)

	client, err := facilitator.New(
		facilitator.WithBaseURL(server.URL),
		facilitator.WithCredentials(keyID, secret(t)),
	)
	require.NoError(t, err)

	resp, err := client.Verify(context.Background(), payload(t), types.PaymentRequirements{
		Scheme:            "exact",
		Network:           "base-sepolia",
		MaxAmountRequired: "1000000",
		PayTo:             "0x8d6Efb97F6E3d218647eD74AF418d47489550Ae2",
	})
	require.NoError(t, err)

	assert.True(t, resp.IsValid)
	assert.Equal(t, "0x26279EC7Ad9207013149967b5aA1CF42AC6487eb", resp.Payer)
}

func TestSettle(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/platform/v2/x402/settle", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")

		_ = json.NewEncoder(w).Encode(facilitator.SettleResponse{
			Success:     true,
			Transaction: "0xabc",
			Network:     "base-sepolia",
		})
	}))
	t.Cleanup(server.Close)

	client, err := facilitator.New(
		facilitator.WithBaseURL(server.URL),
		facilitator.WithCredentials(keyID, secret(t)),
	)
	require.NoError(t, err)

	resp, err := client.Settle(context.Background(), payload(t), types.PaymentRequirements{})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "0xabc", resp.Transaction)
}

func TestSupported(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/platform/v2/x402/supported", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")

		_ = json.NewEncoder(w).Encode(facilitator.SupportedResponse{
			Kinds: []facilitator.SupportedKind{
				{X402Version: 1, Scheme: "exact", Network: "base"},
				{X402Version: 1, Scheme: "exact", Network: "base-sepolia"},
			},
		})
	}))
	t.Cleanup(server.Close)

	client, err := facilitator.New(
		facilitator.WithBaseURL(server.URL),
		facilitator.WithCredentials(keyID, secret(t)),
	)
	require.NoError(t, err)

	resp, err := client.Supported(context.Background())
	require.NoError(t, err)
	assert.Len(t, resp.Kinds, 2)
}

func TestTokensAreNotReused(t *testing.T) {
	t.Parallel()

	var tokens []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")

		_ = json.NewEncoder(w).Encode(facilitator.SupportedResponse{})
	}))
	t.Cleanup(server.Close)

	client, err := facilitator.New(
		facilitator.WithBaseURL(server.URL),
		facilitator.WithCredentials(keyID, secret(t)),
	)
	require.NoError(t, err)

	_, err = client.Supported(context.Background())
	require.NoError(t, err)

	_, err = client.Supported(context.Background())
	require.NoError(t, err)

	require.Len(t, tokens, 2)
	assert.NotEqual(t, tokens[0], tokens[1])
}

func TestNoCredentials(t *testing.T) {
	t.Parallel()

	client, err := facilitator.New()
	require.NoError(t, err)

	_, err = client.Supported(context.Background())
	require.ErrorIs(t, err, facilitator.ErrNoCredentials)
}

func TestNon200(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client, err := facilitator.New(
		facilitator.WithBaseURL(server.URL),
		facilitator.WithCredentials(keyID, secret(t)),
	)
	require.NoError(t, err)

	_, err = client.Supported(context.Background())
	require.Error(t, err)
}
