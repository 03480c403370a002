// Package verify implements the server-side admission decision: given a
// decoded payment authorization and the price requirement for the requested
// route, decide grant or deny.
//
// The decision rule itself is a pure function of its inputs.  The only
// mutable state is the spent-nonce store, consulted last so two requests
// racing to spend the same authorization resolve to exactly one grant.
package verify

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/coinbase/x402/go/pkg/types"

	"github.com/antidote-labs/x402-gate/internal/replay"
	"github.com/antidote-labs/x402-gate/pkg/api"
)

// Result is the outcome of an admission check.  Granted results carry the
// verified payer address and timestamp; denied results carry a
// machine-readable reason plus the requirement so the caller can retry with
// payment.
type Result struct {
	Granted     bool
	Payer       string
	VerifiedAt  time.Time
	Reason      api.DenyReason
	Requirement api.PriceRequirement
}

func grant(payer string, at time.Time, req api.PriceRequirement) Result {
	return Result{
		Granted:     true,
		Payer:       payer,
		VerifiedAt:  at,
		Requirement: req,
	}
}

func deny(reason api.DenyReason, req api.PriceRequirement) Result {
	return Result{
		Reason:      reason,
		Requirement: req,
	}
}

// A Verifier checks payment authorizations against price requirements.
type Verifier struct {
	now   api.NowFunc
	spent replay.Store
}

// New constructs a Verifier.  A nil spent store disables replay protection;
// the validity-window check always applies.
func New(now api.NowFunc, spent replay.Store) *Verifier {
	if now == nil {
		now = time.Now
	}

	return &Verifier{
		now:   now,
		spent: spent,
	}
}

// Verify decides admission.  The payload may be nil, meaning the request
// carried no authorization at all.  An error return indicates an internal
// fault (bad requirement configuration, nonce store failure), never a normal
// deny: callers must fail closed on it.
func (v *Verifier) Verify(ctx context.Context, payload *types.PaymentPayload, req api.PriceRequirement) (Result, error) {
	if !req.Complete() {
		return Result{}, fmt.Errorf("incomplete price requirement for recipient %q", req.Recipient)
	}

	required, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return Result{}, fmt.Errorf("price requirement amount %q is not a base-unit integer", req.Amount)
	}

	if payload == nil || payload.Payload == nil || payload.Payload.Authorization == nil {
		return deny(api.DenyReasonNoAuthorization, req), nil
	}

	auth := payload.Payload.Authorization

	if !api.EqualAddress(auth.To, req.Recipient) {
		return deny(api.DenyReasonRecipientMismatch, req), nil
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok || value.Sign() < 0 {
		return deny(api.DenyReasonInvalidAmount, req), nil
	}

	if value.Cmp(required) != 0 {
		return deny(api.DenyReasonAmountMismatch, req), nil
	}

	if payload.Scheme != string(api.SchemeExact) {
		return deny(api.DenyReasonSchemeMismatch, req), nil
	}

	if payload.Network != req.Network {
		return deny(api.DenyReasonNetworkMismatch, req), nil
	}

	now := v.now()

	if res, ok := v.checkWindow(auth, now, req); !ok {
		return res, nil
	}

	if v.spent != nil {
		first, err := v.spent.MarkSpent(ctx, payload.Network, auth.Nonce)
		if err != nil {
			return Result{}, fmt.Errorf("failed to record spent nonce: %w", err)
		}

		if !first {
			return deny(api.DenyReasonReused, req), nil
		}
	}

	return grant(auth.From, now, req), nil
}

// checkWindow enforces the authorization validity window: validAfter must be
// in the past and validBefore in the future.
func (v *Verifier) checkWindow(auth *types.ExactEvmPayloadAuthorization, now time.Time, req api.PriceRequirement) (Result, bool) {
	validAfter, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
	if err != nil {
		return deny(api.DenyReasonInvalidTimeWindow, req), false
	}

	validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return deny(api.DenyReasonInvalidTimeWindow, req), false
	}

	if validAfter >= validBefore {
		return deny(api.DenyReasonInvalidTimeWindow, req), false
	}

	if !now.After(time.Unix(validAfter, 0)) {
		return deny(api.DenyReasonNotYetValid, req), false
	}

	if !now.Before(time.Unix(validBefore, 0)) {
		return deny(api.DenyReasonExpired, req), false
	}

	return Result{}, true
}
