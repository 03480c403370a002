package signer

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"

	"github.com/antidote-labs/x402-gate/pkg/api"
)

var _ api.EVMSigner = (*KeyStoreSigner)(nil)

// KeyStoreSigner is an api.Signer backed by an unlocked account in a
// go-ethereum keystore.
type KeyStoreSigner struct {
	ks   *keystore.KeyStore
	acct accounts.Account
}

func NewKeyStoreSigner(ks *keystore.KeyStore, acct accounts.Account, passphrase []byte) (*KeyStoreSigner, error) {
	if !ks.HasAddress(acct.Address) {
		return nil, ErrAccountNotFound
	}

	if err := ks.Unlock(acct, string(passphrase)); err != nil {
		return nil, err
	}

	return &KeyStoreSigner{
		ks:   ks,
		acct: acct,
	}, nil
}

func (s *KeyStoreSigner) Address() common.Address {
	return s.acct.Address
}

func (s *KeyStoreSigner) Sign(digestHash []byte) ([]byte, error) {
	return s.ks.SignHash(s.acct, digestHash)
}
