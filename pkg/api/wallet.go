package api

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUserRejected is returned by Wallet implementations when the user
// declines a signature or network-switch prompt.  Implementations must wrap
// their provider-specific rejection errors so callers can detect it with
// errors.Is.
var ErrUserRejected = errors.New("user rejected wallet request")

// A Wallet is an interactive signing account.  Unlike Signer, every method
// takes a context: wallet prompts suspend until the user responds and callers
// are expected to bound that wait.
type Wallet interface {
	// Address returns the account the wallet signs for.
	Address() common.Address

	// ChainID reports the chain the wallet is currently connected to.
	ChainID(ctx context.Context) (int64, error)

	// SwitchChain asks the wallet to connect to another chain.  A user
	// refusal is reported as ErrUserRejected.
	SwitchChain(ctx context.Context, chainID int64) error

	// SignHash signs the 32-byte digest of an EIP-712 structured message.
	// A user refusal is reported as ErrUserRejected.
	SignHash(ctx context.Context, digest []byte) ([]byte, error)
}

var _ Wallet = (*SignerWallet)(nil)

// SignerWallet adapts a non-interactive EVMSigner into a Wallet pinned to a
// single chain.  It never prompts: signatures are produced immediately and a
// switch to any other chain fails.  Intended for agents and server-side
// payers that hold their own key.
type SignerWallet struct {
	signer  EVMSigner
	chainID int64
}

func NewSignerWallet(signer EVMSigner, chainID int64) *SignerWallet {
	return &SignerWallet{
		signer:  signer,
		chainID: chainID,
	}
}

func (w *SignerWallet) Address() common.Address {
	return w.signer.Address()
}

func (w *SignerWallet) ChainID(_ context.Context) (int64, error) {
	return w.chainID, nil
}

func (w *SignerWallet) SwitchChain(_ context.Context, chainID int64) error {
	if chainID != w.chainID {
		return errors.New("signer wallet is pinned to a single chain")
	}

	return nil
}

func (w *SignerWallet) SignHash(_ context.Context, digest []byte) ([]byte, error) {
	return w.signer.Sign(digest)
}

// WalletSigner adapts a Wallet back into an EVMSigner for code paths written
// against the non-interactive interface.  The context provided at
// construction bounds every signature prompt.
type WalletSigner struct {
	ctx    context.Context
	wallet Wallet
}

var _ EVMSigner = (*WalletSigner)(nil)

func NewWalletSigner(ctx context.Context, wallet Wallet) *WalletSigner {
	return &WalletSigner{
		ctx:    ctx,
		wallet: wallet,
	}
}

func (s *WalletSigner) Address() common.Address {
	return s.wallet.Address()
}

func (s *WalletSigner) Sign(digestHash []byte) ([]byte, error) {
	return s.wallet.SignHash(s.ctx, digestHash)
}
