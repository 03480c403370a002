package x402gate

import (
	"crypto/ecdsa"
	"net/http"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"

	"github.com/antidote-labs/x402-gate/internal/signer"
	"github.com/antidote-labs/x402-gate/pkg/api"
)

// ClientForPrivateKey returns an http.Client that pays for 402 responses by
// signing with the given secp256k1 private key.
func ClientForPrivateKey(priv *ecdsa.PrivateKey, opts ...Option) (*http.Client, error) {
	sgnr, err := signer.NewECDSASigner(priv)
	if err != nil {
		return nil, err
	}

	return ClientForSigner(sgnr, opts...)
}

// ClientForPrivateKeyHex is ClientForPrivateKey for a hex-encoded key.
func ClientForPrivateKeyHex(privHex string, opts ...Option) (*http.Client, error) {
	sgnr, err := signer.NewECDSASignerFromHex(privHex)
	if err != nil {
		return nil, err
	}

	return ClientForSigner(sgnr, opts...)
}

// ClientForPrivateKeyHexFromEnv is ClientForPrivateKeyHex for a key held in
// the named environment variable.
func ClientForPrivateKeyHexFromEnv(name string, opts ...Option) (*http.Client, error) {
	sgnr, err := signer.NewECDSASignerFromEnv(name)
	if err != nil {
		return nil, err
	}

	return ClientForSigner(sgnr, opts...)
}

// ClientForKeyStore returns a paying http.Client backed by an account in a
// go-ethereum keystore.  The account is unlocked with the given passphrase
// and stays unlocked for the life of the client.
func ClientForKeyStore(ks *keystore.KeyStore, acct accounts.Account, passphrase []byte, opts ...Option) (*http.Client, error) {
	sgnr, err := signer.NewKeyStoreSigner(ks, acct, passphrase)
	if err != nil {
		return nil, err
	}

	return ClientForSigner(sgnr, opts...)
}

// WalletForPrivateKeyHex returns a non-interactive api.Wallet pinned to one
// chain, signing with the given hex-encoded key.  Intended for agents that
// drive pkg/orchestrator without a human wallet.
func WalletForPrivateKeyHex(privHex string, chainID int64) (api.Wallet, error) {
	sgnr, err := signer.NewECDSASignerFromHex(privHex)
	if err != nil {
		return nil, err
	}

	return api.NewSignerWallet(sgnr, chainID), nil
}

// ClientForSigner returns a paying http.Client for any api.EVMSigner.  The
// client provided via WithClient keeps its existing transport underneath the
// payment layer.
func ClientForSigner(sgnr api.EVMSigner, opts ...Option) (*http.Client, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	next := cfg.client.Transport
	if next == nil {
		next = http.DefaultTransport
	}

	transport, err := NewTransport(next, sgnr, opts...)
	if err != nil {
		return nil, err
	}

	client := *cfg.client
	client.Transport = transport

	return &client, nil
}
