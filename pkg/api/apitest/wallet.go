package apitest

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/antidote-labs/x402-gate/pkg/api"
)

var _ api.Wallet = (*FakeWallet)(nil)

// FakeWallet is a scriptable api.Wallet for tests.  It signs with the fixed
// test key and can be told to reject prompts or stall until the caller's
// context expires.
type FakeWallet struct {
	priv *ecdsa.PrivateKey

	// RejectSign and RejectSwitch make the corresponding prompt fail with
	// api.ErrUserRejected.
	RejectSign   bool
	RejectSwitch bool

	// SignDelay stalls SignHash, simulating a wallet prompt nobody answers.
	SignDelay time.Duration

	mu       sync.Mutex
	chainID  int64
	switches []int64
	signed   int
}

// NewFakeWallet returns a wallet connected to the given chain.
func NewFakeWallet(t *testing.T, chainID int64) *FakeWallet {
	t.Helper()

	return &FakeWallet{
		priv:    PrivateKey(t),
		chainID: chainID,
	}
}

func (w *FakeWallet) Address() common.Address {
	return crypto.PubkeyToAddress(w.priv.PublicKey)
}

func (w *FakeWallet) ChainID(_ context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.chainID, nil
}

func (w *FakeWallet) SwitchChain(_ context.Context, chainID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.RejectSwitch {
		return fmt.Errorf("switch to chain %d: %w", chainID, api.ErrUserRejected)
	}

	w.chainID = chainID
	w.switches = append(w.switches, chainID)

	return nil
}

func (w *FakeWallet) SignHash(ctx context.Context, digest []byte) ([]byte, error) {
	if w.SignDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.SignDelay):
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.RejectSign {
		return nil, fmt.Errorf("signature request: %w", api.ErrUserRejected)
	}

	w.signed++

	return crypto.Sign(digest, w.priv)
}

// Switches lists the chain IDs the wallet was asked to switch to.
func (w *FakeWallet) Switches() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]int64(nil), w.switches...)
}

// Signed reports how many signature prompts the wallet approved.
func (w *FakeWallet) Signed() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.signed
}
