package evm_test

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"

	"github.com/antidote-labs/x402-gate/internal/exact/evm"
	"github.com/antidote-labs/x402-gate/internal/signer"
	"github.com/antidote-labs/x402-gate/pkg/api"
	"github.com/antidote-labs/x402-gate/pkg/api/apitest"
)

func TestPay(t *testing.T) {
	t.Parallel()

	paymentRequestJSON := golden.Get(t, "x402_org_payment_request.json")

	sgnr, err := signer.NewECDSASignerFromHex(apitest.ECDSAPrivateKeyHex)
	require.NoError(t, err)

	var paymentRequest api.PaymentRequest

	require.NoError(t, json.Unmarshal(paymentRequestJSON, &paymentRequest))
	require.Len(t, paymentRequest.Accepts, 1)

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	payer := evm.NewExactEvm(sgnr, fixedNowFunc(t), fixedNonceFunc(t), log)
	assert.Equal(t, api.SchemeExact, payer.Scheme())

	payload, err := payer.Pay(paymentRequest.Accepts[0])
	require.NoError(t, err)
	require.NotNil(t, payload.Payload)
	require.NotNil(t, payload.Payload.Authorization)

	auth := payload.Payload.Authorization
	now := fixedNowFunc(t)()

	assert.Equal(t, 1, payload.X402Version)
	assert.Equal(t, "exact", payload.Scheme)
	assert.Equal(t, "base", payload.Network)
	assert.Equal(t, sgnr.Address().Hex(), auth.From)
	assert.Equal(t, "0x60ac86571E55F9735F00cE9e28361d203977B260", auth.To)
	assert.Equal(t, "10000", auth.Value)
	assert.Equal(t, strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10), auth.ValidAfter)
	assert.Equal(t, strconv.FormatInt(now.Add(60*time.Second).Unix(), 10), auth.ValidBefore)
	assert.Equal(t, hexutil.Encode(fixedNonceFunc(t)()), auth.Nonce)

	assertRecoversSigner(t, payload.Payload.Signature, paymentRequest.Accepts[0].Asset, auth, sgnr.Address().Hex())
}

func TestPayUnknownScheme(t *testing.T) {
	t.Parallel()

	sgnr, err := signer.NewECDSASignerFromHex(apitest.ECDSAPrivateKeyHex)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	payer := evm.NewExactEvm(sgnr, fixedNowFunc(t), fixedNonceFunc(t), log)

	paymentRequestJSON := golden.Get(t, "x402_org_payment_request.json")

	var paymentRequest api.PaymentRequest

	require.NoError(t, json.Unmarshal(paymentRequestJSON, &paymentRequest))

	details := paymentRequest.Accepts[0]
	details.Scheme = "upto"

	_, err = payer.Pay(details)
	require.Error(t, err)
}

// assertRecoversSigner recomputes the EIP-712 digest the payer signed and
// checks that the signature recovers to the signing address.
func assertRecoversSigner(t *testing.T, signature, asset string, auth any, expected string) {
	t.Helper()

	data, err := json.Marshal(auth)
	require.NoError(t, err)

	var message apitypes.TypedDataMessage

	require.NoError(t, json.Unmarshal(data, &message))
	delete(message, "signature")

	typedData := evm.TransferWithAuthorization(
		"USD Coin", "2", math.NewHexOrDecimal256(8453), asset, message,
	)

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	require.NoError(t, err)

	sig, err := hexutil.Decode(signature)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	sig[64] -= 27

	pubKey, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)

	assert.Equal(t, expected, crypto.PubkeyToAddress(*pubKey).Hex())
}

func fixedNonceFunc(t *testing.T) api.NonceFunc {
	t.Helper()

	nonce, err := hex.DecodeString("140fd607c52d266941aa8d8241891654b6d7ab50a02028cb900c746e3a1bf4dd")
	require.NoError(t, err)

	return func() []byte {
		return nonce
	}
}

func fixedNowFunc(t *testing.T) api.NowFunc {
	t.Helper()

	now, err := time.Parse(time.RFC3339, "2001-02-03T04:05:06Z")
	require.NoError(t, err)

	return func() time.Time {
		return now
	}
}
