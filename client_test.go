package x402gate_test

import (
	"crypto/ecdsa"
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/crypto/secp256k1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402gate "github.com/antidote-labs/x402-gate"
	"github.com/antidote-labs/x402-gate/internal/signer"
	"github.com/antidote-labs/x402-gate/pkg/api/apitest"
)

const testEnvVarName = "X402_BUYER_PRIVATE_KEY"

func TestClientForPrivateKey(t *testing.T) {
	t.Parallel()

	priv, err := ecdsa.GenerateKey(secp256k1.S256(), rand.Reader)
	require.NoError(t, err)

	cl, err := x402gate.ClientForPrivateKey(priv)
	require.NoError(t, err)
	assert.NotNil(t, cl)
}

func TestClientForPrivateKeyHex(t *testing.T) {
	t.Parallel()

	cl, err := x402gate.ClientForPrivateKeyHex(apitest.ECDSAPrivateKeyHex)
	require.NoError(t, err)
	assert.NotNil(t, cl)
}

func TestClientForPrivateKeyHexFromEnv(t *testing.T) {
	t.Run("passes", func(t *testing.T) {
		t.Setenv(testEnvVarName, apitest.ECDSAPrivateKeyHex)

		cl, err := x402gate.ClientForPrivateKeyHexFromEnv(testEnvVarName)
		require.NoError(t, err)
		assert.NotNil(t, cl)
	})

	t.Run("fails - variable not set", func(t *testing.T) {
		_, err := x402gate.ClientForPrivateKeyHexFromEnv("X402_MISSING_PRIVATE_KEY")
		require.ErrorIs(t, err, signer.ErrEnvVarNotFound)
	})
}

func TestClientForKeyStore(t *testing.T) {
	t.Parallel()

	ks, acct := apitest.Keystore(t)

	cl, err := x402gate.ClientForKeyStore(ks, acct, []byte(apitest.Passphrase))
	require.NoError(t, err)
	assert.NotNil(t, cl)
}

func TestClientForSigner(t *testing.T) {
	t.Parallel()

	sgnr, err := signer.NewECDSASignerFromHex(apitest.ECDSAPrivateKeyHex)
	require.NoError(t, err)

	cl, err := x402gate.ClientForSigner(sgnr)
	require.NoError(t, err)
	assert.NotNil(t, cl)
}

func TestWalletForPrivateKeyHex(t *testing.T) {
	t.Parallel()

	wallet, err := x402gate.WalletForPrivateKeyHex(apitest.ECDSAPrivateKeyHex, 84532)
	require.NoError(t, err)
	assert.NotEmpty(t, wallet.Address().Hex())
}
