// Package apitest provides fixtures shared by tests across the module: a
// deterministic private key, keystore and wallet helpers, and reusable
// conformance checks for api.Signer implementations.
package apitest

import (
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/secp256k1"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antidote-labs/x402-gate/pkg/api"
)

const (
	ECDSAPrivateKeyHex      = "6cfb3f917efa513636a6f8103d01426e932806cc7205c4361de4c633452e2b57"
	NotOnCurvePrivateKeyHex = "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

	Passphrase = "LetMeIn"
)

// TestSigner checks that signer produces the known-good signature over the
// reference TransferWithAuthorization digest.
func TestSigner(t *testing.T, signer api.Signer) {
	const expSig = "1bb6d051bf1a3d8e239b1dc6d92bba5db06ffe2f807e6cdf6555bf4ae801fca6146403a7f9c84bbab9f04fdaf4e46de5784632299cae77d41c71b1038b9e3f5a1b"

	hash, _ := TransferWithAuthorizationHash(t)

	actSig, err := signer.Sign(hash)
	require.NoError(t, err)

	actSig[64] += 27
	assert.Equal(t, expSig, hex.EncodeToString(actSig))
}

// PrivateKey returns the fixed test key as an ecdsa.PrivateKey.
func PrivateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	privBytes, err := hex.DecodeString(ECDSAPrivateKeyHex)
	require.NoError(t, err)

	priv := new(ecdsa.PrivateKey)
	priv.D = new(big.Int).SetBytes(privBytes)
	priv.PublicKey.Curve = secp256k1.S256()
	priv.PublicKey.X, priv.PublicKey.Y = secp256k1.S256().ScalarBaseMult(priv.D.Bytes())
	require.False(t, priv.X == nil || priv.Y == nil)

	return priv
}

// Address returns the address of the fixed test key.
func Address(t *testing.T) string {
	t.Helper()

	return crypto.PubkeyToAddress(PrivateKey(t).PublicKey).Hex()
}

// Keystore returns a throwaway keystore holding the fixed test key,
// protected by Passphrase.
func Keystore(t *testing.T) (*keystore.KeyStore, accounts.Account) {
	t.Helper()

	priv := PrivateKey(t)

	path := t.TempDir()
	ks := keystore.NewKeyStore(path, keystore.StandardScryptN, keystore.StandardScryptP)

	acct, err := ks.ImportECDSA(priv, Passphrase)
	require.NoError(t, err)
	require.NotNil(t, acct)

	return ks, acct
}

// TransferWithAuthorizationHash returns the EIP-712 digest and raw signable
// data of a fixed reference authorization, verifying both against known
// values.
func TransferWithAuthorizationHash(t *testing.T) ([]byte, string) {
	t.Helper()

	const (
		expHash = "291ea3849c8018ce32bbf62d479dc3ddf6aeb48ff26ce781af4c5eaa83279a5a"
		expData = "190102fa7265e7c5d81118673727957699e4d68f74cd74b7db77da710fe8a2c7834f4ef85a66e9f161738930fbdba8ae123e7abd7bd10ce397381f794ad74073192f"
	)

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              "USD Coin",
			Version:           "2",
			ChainId:           math.NewHexOrDecimal256(8453),
			VerifyingContract: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		},
		Message: apitypes.TypedDataMessage{
			"from":        "0x26279EC7Ad9207013149967b5aA1CF42AC6487eb",
			"to":          "0x8d6Efb97F6E3d218647eD74AF418d47489550Ae2",
			"value":       "320",
			"validAfter":  "1754735643",
			"validBefore": "1754736303",
			"nonce":       "0xd8ac8930d08bfa8ff03af000ef78f0c624f30047d52e62b3ae8e3b9e2b6462ca",
		},
	}

	hash, data, err := apitypes.TypedDataAndHash(typedData)
	require.NoError(t, err)
	require.Equal(t, expHash, hex.EncodeToString(hash))
	require.Equal(t, expData, hex.EncodeToString([]byte(data)))

	hash2 := crypto.Keccak256Hash([]byte(data))
	require.Equal(t, expHash, hex.EncodeToString(hash2.Bytes()))

	return hash, data
}
