package api

import (
	"crypto/rand"
	"time"

	"github.com/coinbase/x402/go/pkg/types"
)

type Scheme string

const (
	SchemeExact Scheme = "exact"
)

// Payer represents types that can be registered and make payments on the
// client's behalf.
type Payer interface {
	// Pay creates a signed types.PaymentPayload for the given
	// types.PaymentRequirements using the private key and configuration
	// provided through its constructor.
	Pay(requirements types.PaymentRequirements) (*types.PaymentPayload, error)
	// Scheme returns a constant Scheme used to route a payment request to
	// a Payer that can satisfy it.
	Scheme() Scheme
}

// PaymentRequest represents the body of a 402 Payment Required response in
// the x402 "accepts" form emitted by generic x402 sellers.  The access gate
// in this module answers with the flatter PaymentRequiredResponse; the client
// side understands both.
type PaymentRequest struct {
	X402Version int                         `json:"x402Version"`
	Err         string                      `json:"error"`
	Accepts     []types.PaymentRequirements `json:"accepts"`
}

// NonceFunc produces the random nonce embedded in a transfer authorization.
type NonceFunc func() []byte

// NowFunc reports the current time; injectable so authorization validity
// windows are testable against fixtures.
type NowFunc func() time.Time

func DefaultNonce() []byte {
	nonce := make([]byte, 32)
	_, _ = rand.Read(nonce)

	return nonce
}
